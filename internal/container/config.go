// Package container provides dependency injection and lifecycle management
// for the task sync engine following Clean Architecture principles.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/config"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/pkg/utils"
)

// Options replaces collaborators the container would otherwise build itself.
// Zero values select the production implementation.
type Options struct {
	// Clock defaults to the wall clock
	Clock port.Clock

	// IDs defaults to random UUIDs
	IDs port.IDGenerator

	// Remote defaults to the in-process store
	Remote port.RemoteStore

	// Location is used to parse client dates; defaults to time.Local
	Location *time.Location

	// SkipWorkers leaves background workers unregistered, for one-shot commands
	SkipWorkers bool
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = utils.SystemClock{}
	}
	if o.IDs == nil {
		o.IDs = utils.UUIDGenerator{}
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// syncOwner picks the member whose scope the device mirrors: the first
// configured admin, or the first member when there is none.
func syncOwner(cfg *config.Config) (*entity.Member, error) {
	roster := cfg.Roster()
	if len(roster) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	for i := range roster {
		if roster[i].IsAdmin() {
			return &roster[i], nil
		}
	}
	return &roster[0], nil
}
