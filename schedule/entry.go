// Package schedule provides recurring job definitions for the warehouse
// scheduler: soft-versioned schedule entries with a parent/child dependency
// graph.
package schedule

import "time"

// Frequency classifies how often a schedule fires.
type Frequency string

const (
	FrequencyNone        Frequency = "none"        // No recurring trigger
	FrequencyImmediate   Frequency = "immediate"   // Fired manually, never by the clock
	FrequencyDaily       Frequency = "daily"       // Every day at hour:minute
	FrequencyWeekly      Frequency = "weekly"      // Day is day-of-week (0=Sunday)
	FrequencyFortnightly Frequency = "fortnightly" // Every 14 days, anchored at valid_from
	FrequencyMonthly     Frequency = "monthly"     // Day is day-of-month
	FrequencyHalfYearly  Frequency = "half-yearly" // Every 6 months, anchored at valid_from
	FrequencyYearly      Frequency = "yearly"      // Every 12 months, anchored at valid_from
)

// IsValidFrequency returns true if the string is a known frequency code.
func IsValidFrequency(s string) bool {
	switch Frequency(s) {
	case FrequencyNone, FrequencyImmediate, FrequencyDaily, FrequencyWeekly,
		FrequencyFortnightly, FrequencyMonthly, FrequencyHalfYearly, FrequencyYearly:
		return true
	default:
		return false
	}
}

// Recurring reports whether the frequency produces clock-driven triggers.
func (f Frequency) Recurring() bool {
	return f != FrequencyNone && f != FrequencyImmediate
}

// Entry is one recurring job definition.
//
// Entries are soft-versioned: editing an entry inserts a new row and flips
// the prior row for the same job reference to Current=false. The scheduler
// core only ever reads entries; the admin surface owns writes.
type Entry struct {
	ScheduleID       string
	JobReference     string
	Frequency        Frequency
	Day              int // day-of-week (weekly) or day-of-month (monthly and up)
	Hour             int
	Minute           int
	ValidFrom        time.Time
	ValidTo          *time.Time // nil = open-ended
	Active           bool
	ParentScheduleID string // non-empty = fires after the parent job succeeds
	Current          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Live reports whether the entry should drive a trigger: it must be the
// current version, flagged active, and carry a recurring frequency.
func (e *Entry) Live() bool {
	return e.Current && e.Active && e.Frequency.Recurring()
}
