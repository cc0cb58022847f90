package service

import (
	"fmt"
	"sort"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

// Roster resolves member ids to members.
type Roster struct {
	members map[string]*entity.Member
}

// NewRoster indexes members by id.
func NewRoster(members []entity.Member) *Roster {
	r := &Roster{members: make(map[string]*entity.Member, len(members))}
	for i := range members {
		m := members[i]
		r.members[m.ID] = &m
	}
	return r
}

// Lookup returns a copy of the member with id.
func (r *Roster) Lookup(id string) (*entity.Member, error) {
	m, ok := r.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownMember, id)
	}
	cp := *m
	return &cp, nil
}

// Members returns every member ordered by id.
func (r *Roster) Members() []entity.Member {
	out := make([]entity.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
