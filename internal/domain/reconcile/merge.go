// Package reconcile merges the locally cached task list with a remote snapshot.
//
// Conflicts resolve by last writer wins on EditedAt (CreatedAt when never
// edited). Merges are pure: inputs are never mutated and results are cloned.
package reconcile

import (
	"sort"
	"time"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

// IDSet is a set of entity ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership. A nil set contains nothing.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// FilterVisible drops private tasks that selfID does not own.
func FilterVisible(remote []*entity.Task, selfID string) []*entity.Task {
	out := make([]*entity.Task, 0, len(remote))
	for _, t := range remote {
		if t == nil || !t.VisibleTo(selfID) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Merge returns the authoritative task list.
//
// Ids in protected that exist locally keep their local version verbatim.
// Ids present only locally are treated as remotely deleted unless protected
// or a private task owned by selfID.
func Merge(local, remote []*entity.Task, protected IDSet, selfID string) []*entity.Task {
	r := rules[*entity.Task]{
		id:       func(t *entity.Task) string { return t.ID },
		modified: (*entity.Task).LastModified,
		clone:    (*entity.Task).Clone,
		keepLocalOnly: func(t *entity.Task) bool {
			return t.Private && t.CreatedBy == selfID
		},
		less: func(a, b *entity.Task) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		},
	}
	return merge(local, FilterVisible(remote, selfID), protected, r)
}

// MergeApprovals applies the task merge rules to approval requests.
func MergeApprovals(local, remote []*entity.TaskApproval, protected IDSet) []*entity.TaskApproval {
	r := rules[*entity.TaskApproval]{
		id:            func(a *entity.TaskApproval) string { return a.ID },
		modified:      (*entity.TaskApproval).LastModified,
		clone:         (*entity.TaskApproval).Clone,
		keepLocalOnly: func(*entity.TaskApproval) bool { return false },
		less: func(a, b *entity.TaskApproval) bool {
			if !a.RequestedAt.Equal(b.RequestedAt) {
				return a.RequestedAt.Before(b.RequestedAt)
			}
			return a.ID < b.ID
		},
	}
	return merge(local, remote, protected, r)
}

type rules[T any] struct {
	id            func(T) string
	modified      func(T) (time.Time, bool)
	clone         func(T) T
	keepLocalOnly func(T) bool
	less          func(a, b T) bool
}

func merge[T comparable](local, remote []T, protected IDSet, r rules[T]) []T {
	var zero T

	byID := make(map[string]T, len(local))
	for _, item := range local {
		if item == zero {
			continue
		}
		byID[r.id(item)] = item
	}

	out := make(map[string]T, len(local)+len(remote))
	seen := make(map[string]bool, len(remote))
	for _, rem := range remote {
		if rem == zero {
			continue
		}
		id := r.id(rem)
		seen[id] = true

		loc, ok := byID[id]
		switch {
		case !ok:
			out[id] = rem
		case protected.Has(id):
			out[id] = loc
		case remoteWins(loc, rem, r.modified):
			out[id] = rem
		default:
			out[id] = loc
		}
	}

	for id, loc := range byID {
		if seen[id] {
			continue
		}
		if protected.Has(id) || r.keepLocalOnly(loc) {
			out[id] = loc
		}
	}

	result := make([]T, 0, len(out))
	for _, item := range out {
		result = append(result, r.clone(item))
	}
	sort.SliceStable(result, func(i, j int) bool { return r.less(result[i], result[j]) })
	return result
}

// remoteWins: a side without a timestamp lets the remote copy win, otherwise
// the remote copy must be strictly newer.
func remoteWins[T any](local, remote T, modified func(T) (time.Time, bool)) bool {
	lt, lok := modified(local)
	rt, rok := modified(remote)
	if !lok || !rok {
		return true
	}
	return rt.After(lt)
}
