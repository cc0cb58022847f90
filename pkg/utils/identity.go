package utils

import (
	"time"

	"github.com/google/uuid"
)

// UUIDGenerator mints random ids, optionally prefixed
type UUIDGenerator struct {
	Prefix string
}

// NewID returns a fresh id
func (g UUIDGenerator) NewID() string {
	return g.Prefix + uuid.New().String()
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns the current local time
func (SystemClock) Now() time.Time {
	return time.Now()
}
