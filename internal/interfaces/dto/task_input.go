// Package dto holds the wire shapes shared by the HTTP adapter and the CLI importer.
package dto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/pkg/utils"
)

// TaskInput is a task as clients submit it. Dates are YYYY-MM-DD and
// times HH:MM in the server's location.
type TaskInput struct {
	ID          string          `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string          `json:"title" yaml:"title"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Shared      bool            `json:"shared" yaml:"shared"`
	Private     bool            `json:"private,omitempty" yaml:"private,omitempty"`
	DueDate     string          `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	DueTime     string          `json:"due_time,omitempty" yaml:"due_time,omitempty"`
	Repeat      RepeatInput     `json:"repeat" yaml:"repeat"`
	Subtasks    []SubtaskInput  `json:"subtasks,omitempty" yaml:"subtasks,omitempty"`
	Categories  []CategoryInput `json:"subtask_categories,omitempty" yaml:"subtask_categories,omitempty"`
}

// RepeatInput describes recurrence; Days holds weekday names for the custom kind.
type RepeatInput struct {
	Kind           string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Days           []string `json:"days,omitempty" yaml:"days,omitempty"`
	IntervalDays   int      `json:"interval_days,omitempty" yaml:"interval_days,omitempty"`
	DurationMonths int      `json:"duration_months,omitempty" yaml:"duration_months,omitempty"`
	StartDate      string   `json:"start_date,omitempty" yaml:"start_date,omitempty"`
}

// SubtaskInput is one checklist item.
type SubtaskInput struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Title   string `json:"title" yaml:"title"`
	Done    bool   `json:"done,omitempty" yaml:"done,omitempty"`
	DueDate string `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	DueTime string `json:"due_time,omitempty" yaml:"due_time,omitempty"`
}

// CategoryInput groups subtasks.
type CategoryInput struct {
	ID       string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string         `json:"name" yaml:"name"`
	Subtasks []SubtaskInput `json:"subtasks" yaml:"subtasks"`
}

// ErrInvalidInput marks malformed client values such as unparsable dates.
var ErrInvalidInput = errors.New("invalid input")

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ToTask converts the input for actor. Shared tasks join the actor's family.
// Subtasks and categories without an id get one from ids.
func (in *TaskInput) ToTask(actor *entity.Member, ids port.IDGenerator, loc *time.Location) (*entity.Task, error) {
	task := &entity.Task{
		ID:          strings.TrimSpace(in.ID),
		Title:       utils.SanitizeString(in.Title),
		Description: strings.TrimSpace(in.Description),
		Private:     in.Private,
	}
	if in.Shared {
		task.FamilyID = entity.StringPtr(actor.FamilyID)
	}

	due, dueTime, err := parseDue(in.DueDate, in.DueTime, loc)
	if err != nil {
		return nil, err
	}
	task.DueDate, task.DueTime = due, dueTime

	repeat, err := in.Repeat.toConfig(loc)
	if err != nil {
		return nil, err
	}
	task.Repeat = repeat

	if task.Subtasks, err = toSubtasks(in.Subtasks, ids, loc); err != nil {
		return nil, err
	}
	for _, c := range in.Categories {
		subtasks, err := toSubtasks(c.Subtasks, ids, loc)
		if err != nil {
			return nil, err
		}
		id := c.ID
		if id == "" {
			id = ids.NewID()
		}
		task.SubtaskCategories = append(task.SubtaskCategories, entity.SubtaskCategory{
			ID:       id,
			Name:     utils.SanitizeString(c.Name),
			Subtasks: subtasks,
		})
	}
	return task, nil
}

func (r RepeatInput) toConfig(loc *time.Location) (entity.RepeatConfig, error) {
	cfg := entity.RepeatConfig{
		Kind:           entity.RepeatKind(strings.ToLower(r.Kind)),
		IntervalDays:   r.IntervalDays,
		DurationMonths: r.DurationMonths,
	}
	if cfg.Kind == "" {
		cfg.Kind = entity.RepeatNone
	}
	if !cfg.Kind.IsValid() {
		return cfg, fmt.Errorf("%w: unknown kind %q", entity.ErrInvalidRepeatConfig, r.Kind)
	}
	for _, d := range r.Days {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return cfg, fmt.Errorf("%w: unknown weekday %q", entity.ErrInvalidRepeatConfig, d)
		}
		cfg.Days = append(cfg.Days, wd)
	}
	if r.StartDate != "" {
		start, err := utils.ParseDate(r.StartDate, loc)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", entity.ErrInvalidRepeatConfig, err)
		}
		cfg.StartDate = &start
	}
	return cfg, nil
}

func toSubtasks(in []SubtaskInput, ids port.IDGenerator, loc *time.Location) ([]entity.Subtask, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]entity.Subtask, 0, len(in))
	for _, s := range in {
		due, dueTime, err := parseDue(s.DueDate, s.DueTime, loc)
		if err != nil {
			return nil, err
		}
		id := s.ID
		if id == "" {
			id = ids.NewID()
		}
		out = append(out, entity.Subtask{
			ID:      id,
			Title:   utils.SanitizeString(s.Title),
			Done:    s.Done,
			DueDate: due,
			DueTime: dueTime,
		})
	}
	return out, nil
}

// parseDue returns the date and, when clock is set, the date combined with the clock.
func parseDue(date, clock string, loc *time.Location) (*time.Time, *time.Time, error) {
	if date == "" {
		if clock != "" {
			return nil, nil, fmt.Errorf("%w: due_time needs due_date", ErrInvalidInput)
		}
		return nil, nil, nil
	}
	d, err := utils.ParseDate(date, loc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if clock == "" {
		return &d, nil, nil
	}
	c, err := utils.ParseClock(clock)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	at := time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, loc)
	return &d, &at, nil
}
