package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

// DescribeChanges renders a field-by-field before/after summary of an edit.
// It returns an empty string when nothing user-visible changed.
func DescribeChanges(before, after *entity.Task) string {
	var parts []string
	add := func(field, from, to string) {
		if from != to {
			parts = append(parts, fmt.Sprintf("%s: %q -> %q", field, from, to))
		}
	}

	add("title", before.Title, after.Title)
	add("description", before.Description, after.Description)
	add("due_date", formatDate(before.DueDate), formatDate(after.DueDate))
	add("due_time", formatClock(before.DueTime), formatClock(after.DueTime))
	add("repeat", describeRepeat(before.Repeat), describeRepeat(after.Repeat))
	add("private", fmt.Sprint(before.Private), fmt.Sprint(after.Private))
	add("family", deref(before.FamilyID), deref(after.FamilyID))
	add("subtasks", describeSubtasks(before), describeSubtasks(after))

	return strings.Join(parts, "; ")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatClock(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("15:04")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func describeRepeat(r entity.RepeatConfig) string {
	if !r.IsRecurring() {
		return string(entity.RepeatNone)
	}
	var b strings.Builder
	b.WriteString(string(r.Kind))
	if len(r.Days) > 0 {
		days := make([]string, len(r.Days))
		for i, d := range r.Days {
			days[i] = d.String()[:3]
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(days, ","))
	}
	if r.IntervalDays > 0 {
		fmt.Fprintf(&b, " every %dd", r.IntervalDays)
	}
	if r.DurationMonths > 0 {
		fmt.Fprintf(&b, " for %dm", r.DurationMonths)
	}
	if r.StartDate != nil {
		fmt.Fprintf(&b, " from %s", r.StartDate.Format("2006-01-02"))
	}
	return b.String()
}

func describeSubtasks(t *entity.Task) string {
	all := t.AllSubtasks()
	titles := make([]string, len(all))
	for i, s := range all {
		titles[i] = s.Title
	}
	return strings.Join(titles, ", ")
}
