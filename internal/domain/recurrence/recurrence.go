// Package recurrence computes next occurrences for recurring tasks.
//
// Every function here is pure: callers pass "today" explicitly so results never
// depend on the wall clock.
package recurrence

import (
	"sort"
	"time"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

const day = 24 * time.Hour

// Result is the outcome of Next.
// Fallback is true when the repeat kind was not recognized and the date was
// advanced by one day so the caller never loops on the same occurrence.
type Result struct {
	Date     time.Time
	Fallback bool
}

// Occurrence describes the successor of a completed or skipped recurring task.
type Occurrence struct {
	DueDate  time.Time
	DueTime  *time.Time
	Anchor   time.Time
	Fallback bool
}

// Next returns the occurrence that follows reference.
//
// For the interval kind the step is counted from the anchor (StartDate, or
// reference when absent) so the cadence never drifts, and missed cycles are
// skipped until the result is not before today.
func Next(reference time.Time, cfg entity.RepeatConfig, today time.Time) Result {
	ref := entity.DateOnly(reference)

	switch cfg.Kind {
	case entity.RepeatDaily:
		return Result{Date: ref.AddDate(0, 0, 1)}
	case entity.RepeatWeekly:
		return Result{Date: ref.AddDate(0, 0, 7)}
	case entity.RepeatBiweekly:
		return Result{Date: ref.AddDate(0, 0, 15)}
	case entity.RepeatMonthly:
		return Result{Date: AddMonths(ref, 1)}
	case entity.RepeatYearly:
		return Result{Date: AddMonths(ref, 12)}
	case entity.RepeatCustom:
		if len(cfg.Days) == 0 {
			return Result{Date: ref.AddDate(0, 0, 1), Fallback: true}
		}
		return Result{Date: nextWeekday(ref, cfg.Days)}
	case entity.RepeatInterval:
		if cfg.IntervalDays <= 0 {
			return Result{Date: ref.AddDate(0, 0, 1), Fallback: true}
		}
		return Result{Date: nextInterval(ref, Anchor(reference, cfg), cfg.IntervalDays, entity.DateOnly(today.In(ref.Location())))}
	}
	return Result{Date: ref.AddDate(0, 0, 1), Fallback: true}
}

// Anchor returns the date recurrence cycles and duration windows are counted from.
func Anchor(currentDue time.Time, cfg entity.RepeatConfig) time.Time {
	if cfg.StartDate != nil && !cfg.StartDate.IsZero() {
		return entity.DateOnly(cfg.StartDate.In(currentDue.Location()))
	}
	return entity.DateOnly(currentDue)
}

// WindowEnd returns the end of the duration window. ok is false when the
// configuration has no duration cap.
func WindowEnd(currentDue time.Time, cfg entity.RepeatConfig) (end time.Time, ok bool) {
	if cfg.DurationMonths <= 0 {
		return time.Time{}, false
	}
	return AddMonths(Anchor(currentDue, cfg), cfg.DurationMonths), true
}

// Terminated reports whether a task due on currentDue has reached the end of
// its duration window and must not spawn a successor.
func Terminated(currentDue time.Time, cfg entity.RepeatConfig) bool {
	end, ok := WindowEnd(currentDue, cfg)
	if !ok {
		return false
	}
	return !entity.DateOnly(currentDue).Before(end)
}

// Plan computes the successor occurrence of task. It returns false when the
// task does not recur or its duration window has elapsed.
func Plan(task *entity.Task, today time.Time) (Occurrence, bool) {
	if task == nil || !task.IsRecurring() {
		return Occurrence{}, false
	}

	current := currentDue(task, today)
	if Terminated(current, task.Repeat) {
		return Occurrence{}, false
	}

	res := Next(current, task.Repeat, today)
	occ := Occurrence{
		DueDate:  res.Date,
		Anchor:   Anchor(current, task.Repeat),
		Fallback: res.Fallback,
	}
	if task.DueTime != nil {
		t := WithClock(res.Date, *task.DueTime)
		occ.DueTime = &t
	}
	return occ, true
}

// Apply moves successor onto occ, carrying the anchor forward so later
// instances keep counting cycles and duration from the original start.
func Apply(successor *entity.Task, occ Occurrence) {
	due := occ.DueDate
	successor.DueDate = &due
	if occ.DueTime != nil {
		t := *occ.DueTime
		successor.DueTime = &t
	} else {
		successor.DueTime = nil
	}
	if successor.Repeat.StartDate == nil && carriesAnchor(successor.Repeat) {
		a := occ.Anchor
		successor.Repeat.StartDate = &a
	}
}

// WithClock returns date with the clock time of clock (hours down to nanoseconds).
func WithClock(date, clock time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), date.Location())
}

// AddMonths adds n calendar months, clamping to the last day of the target month.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func carriesAnchor(cfg entity.RepeatConfig) bool {
	return cfg.Kind == entity.RepeatInterval || cfg.DurationMonths > 0
}

func currentDue(task *entity.Task, today time.Time) time.Time {
	switch {
	case task.DueDate != nil:
		return entity.DateOnly(*task.DueDate)
	case task.Repeat.StartDate != nil:
		return entity.DateOnly(*task.Repeat.StartDate)
	default:
		return entity.DateOnly(today)
	}
}

func nextWeekday(ref time.Time, days []time.Weekday) time.Time {
	set := append([]time.Weekday(nil), days...)
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })

	cur := ref.Weekday()
	for _, wd := range set {
		if wd > cur {
			return ref.AddDate(0, 0, int(wd-cur))
		}
	}
	return ref.AddDate(0, 0, 7-int(cur)+int(set[0]))
}

// nextInterval returns anchor + k*step for the smallest k >= 0 that is after
// ref and not before today.
func nextInterval(ref, anchor time.Time, step int, today time.Time) time.Time {
	k := 0
	if d := daysBetween(anchor, ref); d >= 0 {
		k = d/step + 1
	}
	if d := daysBetween(anchor, today); d > 0 {
		if c := (d + step - 1) / step; c > k {
			k = c
		}
	}
	return anchor.AddDate(0, 0, k*step)
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / day)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
