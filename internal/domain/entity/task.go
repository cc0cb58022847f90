package entity

import (
	"strings"
	"time"
)

// TempIDPrefix marks task ids minted on the device that the remote store has not confirmed yet.
const TempIDPrefix = "tmp-"

// Task is a household work item shared inside a family scope or kept personal.
//
// FamilyID == nil means the task is personal. Private tasks are visible only to
// CreatedBy even when FamilyID is set. DueDate carries date-only semantics; DueTime,
// when present, holds the clock time combined with DueDate.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	CreatedBy string  `json:"created_by"`
	FamilyID  *string `json:"family_id,omitempty"`
	Private   bool    `json:"private"`

	DueDate *time.Time   `json:"due_date,omitempty"`
	DueTime *time.Time   `json:"due_time,omitempty"`
	Repeat  RepeatConfig `json:"repeat"`

	Completed  bool       `json:"completed"`
	Status     TaskStatus `json:"status"`
	Unlocked   bool       `json:"unlocked"`
	ApprovalID string     `json:"approval_id,omitempty"`

	EditedBy     string     `json:"edited_by,omitempty"`
	EditedByName string     `json:"edited_by_name,omitempty"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`

	Subtasks          []Subtask         `json:"subtasks,omitempty"`
	SubtaskCategories []SubtaskCategory `json:"subtask_categories,omitempty"`
}

// Subtask is a checklist item inside a task.
type Subtask struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Done            bool       `json:"done"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	DueTime         *time.Time `json:"due_time,omitempty"`
	CompletedBy     string     `json:"completed_by,omitempty"`
	CompletedByName string     `json:"completed_by_name,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// SubtaskCategory groups subtasks under a heading.
type SubtaskCategory struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Subtasks []Subtask `json:"subtasks"`
}

// IsRecurring reports whether completing the task spawns a successor.
func (t *Task) IsRecurring() bool {
	return t.Repeat.IsRecurring()
}

// IsShared reports whether the task belongs to a family scope.
func (t *Task) IsShared() bool {
	return t.FamilyID != nil && *t.FamilyID != ""
}

// HasTemporaryID reports whether the id was minted locally and is still unconfirmed.
func (t *Task) HasTemporaryID() bool {
	return strings.HasPrefix(t.ID, TempIDPrefix)
}

// LastModified returns EditedAt when set, CreatedAt otherwise.
// The boolean is false when the task carries no timestamp at all.
func (t *Task) LastModified() (time.Time, bool) {
	if t.EditedAt != nil && !t.EditedAt.IsZero() {
		return *t.EditedAt, true
	}
	if !t.CreatedAt.IsZero() {
		return t.CreatedAt, true
	}
	return time.Time{}, false
}

// VisibleTo reports whether the member identified by userID may see the task.
func (t *Task) VisibleTo(userID string) bool {
	return !t.Private || t.CreatedBy == userID
}

// IsActionable reports whether the task belongs in the local working set.
// Deleted tasks and completed recurring instances live only in the remote store.
func (t *Task) IsActionable() bool {
	if t.Status == TaskStatusDeleted {
		return false
	}
	return !(t.Completed && t.IsRecurring())
}

// DueAt combines DueDate with the clock time of DueTime.
// The boolean is false when the task has no due date.
func (t *Task) DueAt() (time.Time, bool) {
	if t.DueDate == nil {
		return time.Time{}, false
	}
	d := *t.DueDate
	if t.DueTime == nil {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location()), true
	}
	c := *t.DueTime
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), c.Nanosecond(), d.Location()), true
}

// FindSubtask locates a subtask by id in either the simple or the categorized list.
// It returns a pointer into the task so callers can mutate in place.
func (t *Task) FindSubtask(id string) *Subtask {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			return &t.Subtasks[i]
		}
	}
	for c := range t.SubtaskCategories {
		cat := &t.SubtaskCategories[c]
		for i := range cat.Subtasks {
			if cat.Subtasks[i].ID == id {
				return &cat.Subtasks[i]
			}
		}
	}
	return nil
}

// AllSubtasks returns the simple and categorized subtasks as one flat copy.
func (t *Task) AllSubtasks() []Subtask {
	out := make([]Subtask, 0, len(t.Subtasks))
	out = append(out, t.Subtasks...)
	for _, cat := range t.SubtaskCategories {
		out = append(out, cat.Subtasks...)
	}
	return out
}

// ResetSubtasks clears completion state on every subtask.
func (t *Task) ResetSubtasks() {
	for i := range t.Subtasks {
		t.Subtasks[i].reset()
	}
	for c := range t.SubtaskCategories {
		for i := range t.SubtaskCategories[c].Subtasks {
			t.SubtaskCategories[c].Subtasks[i].reset()
		}
	}
}

func (s *Subtask) reset() {
	s.Done = false
	s.CompletedBy = ""
	s.CompletedByName = ""
	s.CompletedAt = nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.FamilyID = cloneString(t.FamilyID)
	c.DueDate = cloneTime(t.DueDate)
	c.DueTime = cloneTime(t.DueTime)
	c.EditedAt = cloneTime(t.EditedAt)
	c.Repeat = t.Repeat.Clone()
	if t.Subtasks != nil {
		c.Subtasks = cloneSubtasks(t.Subtasks)
	}
	if t.SubtaskCategories != nil {
		c.SubtaskCategories = make([]SubtaskCategory, len(t.SubtaskCategories))
		for i, cat := range t.SubtaskCategories {
			c.SubtaskCategories[i] = SubtaskCategory{
				ID:       cat.ID,
				Name:     cat.Name,
				Subtasks: cloneSubtasks(cat.Subtasks),
			}
		}
	}
	return &c
}

// Validate checks the invariants a task must satisfy before it is saved.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if t.CreatedBy == "" {
		return ErrMissingCreator
	}
	if t.Status != "" && !t.Status.IsValid() {
		return ErrInvalidStatus
	}
	if err := t.Repeat.Validate(); err != nil {
		return err
	}
	if t.IsRecurring() && t.DueDate == nil && t.Repeat.StartDate == nil {
		return ErrRecurringWithoutDate
	}
	return nil
}

func cloneSubtasks(in []Subtask) []Subtask {
	if in == nil {
		return nil
	}
	out := make([]Subtask, len(in))
	for i, s := range in {
		s.DueDate = cloneTime(s.DueDate)
		s.DueTime = cloneTime(s.DueTime)
		s.CompletedAt = cloneTime(s.CompletedAt)
		out[i] = s
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
