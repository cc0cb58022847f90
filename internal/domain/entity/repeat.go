package entity

import (
	"time"
)

// RepeatKind names a recurrence cadence.
type RepeatKind string

// Repeat kinds
const (
	RepeatNone     RepeatKind = "none"
	RepeatDaily    RepeatKind = "daily"
	RepeatWeekly   RepeatKind = "weekly"
	RepeatBiweekly RepeatKind = "biweekly"
	RepeatMonthly  RepeatKind = "monthly"
	RepeatYearly   RepeatKind = "yearly"
	RepeatCustom   RepeatKind = "custom"
	RepeatInterval RepeatKind = "interval"
)

// IsValid checks if the kind is known. The empty kind counts as none.
func (k RepeatKind) IsValid() bool {
	switch k {
	case "", RepeatNone, RepeatDaily, RepeatWeekly, RepeatBiweekly,
		RepeatMonthly, RepeatYearly, RepeatCustom, RepeatInterval:
		return true
	}
	return false
}

// RepeatConfig describes how a task recurs.
//
// Days is used by the custom kind, IntervalDays by the interval kind.
// DurationMonths caps any recurring kind when positive, counted from StartDate
// or, lacking one, from the task's due date.
type RepeatConfig struct {
	Kind           RepeatKind     `json:"kind" yaml:"kind"`
	Days           []time.Weekday `json:"days,omitempty" yaml:"days,omitempty"`
	IntervalDays   int            `json:"interval_days,omitempty" yaml:"interval_days,omitempty"`
	DurationMonths int            `json:"duration_months,omitempty" yaml:"duration_months,omitempty"`
	StartDate      *time.Time     `json:"start_date,omitempty" yaml:"start_date,omitempty"`
}

// IsRecurring reports whether the configuration produces successors.
func (r RepeatConfig) IsRecurring() bool {
	return r.Kind != "" && r.Kind != RepeatNone
}

// Clone returns a deep copy.
func (r RepeatConfig) Clone() RepeatConfig {
	c := r
	if r.Days != nil {
		c.Days = append([]time.Weekday(nil), r.Days...)
	}
	c.StartDate = cloneTime(r.StartDate)
	return c
}

// Validate rejects configurations that cannot produce a next occurrence.
func (r RepeatConfig) Validate() error {
	if !r.Kind.IsValid() {
		return ErrInvalidRepeatConfig
	}
	if r.DurationMonths < 0 {
		return ErrInvalidRepeatConfig
	}
	switch r.Kind {
	case RepeatCustom:
		if len(r.Days) == 0 {
			return ErrInvalidRepeatConfig
		}
		for _, d := range r.Days {
			if d < time.Sunday || d > time.Saturday {
				return ErrInvalidRepeatConfig
			}
		}
	case RepeatInterval:
		if r.IntervalDays <= 0 {
			return ErrInvalidRepeatConfig
		}
	}
	return nil
}
