// Package testutil provides deterministic fakes for the application ports.
package testutil

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// FixedClock is a settable clock.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock returns a clock frozen at now.
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// Now returns the current fake time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// SequentialIDs mints ids prefix-1, prefix-2, ...
type SequentialIDs struct {
	Prefix string
	n      atomic.Int64
}

// NewID returns the next id.
func (g *SequentialIDs) NewID() string {
	return fmt.Sprintf("%s%d", g.Prefix, g.n.Add(1))
}

// Switch is a connectivity flag.
type Switch struct {
	online atomic.Bool
}

// NewSwitch returns a switch in the given state.
func NewSwitch(online bool) *Switch {
	s := &Switch{}
	s.online.Store(online)
	return s
}

// Online reports the current state.
func (s *Switch) Online() bool { return s.online.Load() }

// Set changes the state.
func (s *Switch) Set(online bool) { s.online.Store(online) }

type timer struct {
	at  time.Time
	seq int
	fn  func()
}

// ManualScheduler is a TimerScheduler driven by its own clock.
// Callbacks run synchronously inside Advance.
type ManualScheduler struct {
	mu     sync.Mutex
	clock  *FixedClock
	timers map[string]timer
	seq    int
}

// NewManualScheduler creates a scheduler sharing clock with the code under test.
func NewManualScheduler(clock *FixedClock) *ManualScheduler {
	return &ManualScheduler{clock: clock, timers: make(map[string]timer)}
}

// Schedule registers fn under name, replacing any pending callback of that name.
func (s *ManualScheduler) Schedule(name string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.timers[name] = timer{at: s.clock.Now().Add(delay), seq: s.seq, fn: fn}
}

// Cancel removes a pending callback.
func (s *ManualScheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	delete(s.timers, name)
	return ok
}

// CancelPrefix removes every pending callback whose name starts with prefix.
func (s *ManualScheduler) CancelPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for name := range s.timers {
		if strings.HasPrefix(name, prefix) {
			delete(s.timers, name)
			n++
		}
	}
	return n
}

// Pending reports whether name is scheduled.
func (s *ManualScheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	return ok
}

// Names returns the pending callback names in sorted order.
func (s *ManualScheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DueAt returns when name fires.
func (s *ManualScheduler) DueAt(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[name]
	return t.at, ok
}

// Stop drops every pending callback.
func (s *ManualScheduler) Stop() {
	s.mu.Lock()
	s.timers = make(map[string]timer)
	s.mu.Unlock()
}

// Advance moves the clock forward and fires due callbacks in due order.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.clock.Advance(d)
	now := s.clock.Now()
	for {
		s.mu.Lock()
		name, next, ok := s.nextDue(now)
		if ok {
			delete(s.timers, name)
		}
		s.mu.Unlock()
		if !ok {
			return
		}
		next.fn()
	}
}

func (s *ManualScheduler) nextDue(now time.Time) (string, timer, bool) {
	var (
		bestName string
		best     timer
		found    bool
	)
	for name, t := range s.timers {
		if t.at.After(now) {
			continue
		}
		if !found || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			bestName, best, found = name, t, true
		}
	}
	return bestName, best, found
}
