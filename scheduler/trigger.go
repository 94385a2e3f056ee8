package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teranos/warden/errors"
	"github.com/teranos/warden/schedule"
	"github.com/teranos/warden/sym"
)

// TriggerRegistry hosts the in-process recurring triggers: one cron entry per
// live schedule row. The synchronizer owns registration; nothing else writes
// to the registry.
type TriggerRegistry struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID // schedule_id -> cron entry
	logger  *zap.SugaredLogger
	mu      sync.Mutex
}

// NewTriggerRegistry creates a trigger registry firing in the given location.
func NewTriggerRegistry(loc *time.Location, logger *zap.SugaredLogger) *TriggerRegistry {
	return &TriggerRegistry{
		cron:    cron.New(cron.WithLocation(loc)),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// Start begins firing triggers.
func (r *TriggerRegistry) Start() {
	r.cron.Start()
}

// Stop stops the firing loop. In-flight trigger callbacks are not waited on;
// they only enqueue, and an enqueue racing shutdown is harmless.
func (r *TriggerRegistry) Stop() {
	r.cron.Stop()
}

// Register installs a trigger for the entry, firing cmd per the entry's
// frequency. Replaces nothing: the caller deregisters stale schedule IDs
// first.
func (r *TriggerRegistry) Register(entry *schedule.Entry, loc *time.Location, cmd func()) error {
	sched, err := BuildSchedule(entry, loc)
	if err != nil {
		err = errors.Wrap(err, "failed to build trigger schedule")
		err = errors.WithDetailf(err, "Schedule ID: %s", entry.ScheduleID)
		err = errors.WithDetailf(err, "Frequency: %s", entry.Frequency)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.ScheduleID]; exists {
		return errors.Newf("trigger already registered for schedule %s", entry.ScheduleID)
	}
	r.entries[entry.ScheduleID] = r.cron.Schedule(sched, cron.FuncJob(cmd))

	r.logger.Debugw("Trigger registered",
		"symbol", sym.Sched,
		"schedule_id", entry.ScheduleID,
		"job_reference", entry.JobReference,
		"frequency", entry.Frequency)
	return nil
}

// Deregister removes the trigger for a schedule ID. Unknown IDs are a no-op.
func (r *TriggerRegistry) Deregister(scheduleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.entries[scheduleID]
	if !ok {
		return
	}
	r.cron.Remove(id)
	delete(r.entries, scheduleID)

	r.logger.Debugw("Trigger deregistered", "symbol", sym.Sched, "schedule_id", scheduleID)
}

// Registered returns the schedule IDs currently carrying a trigger.
func (r *TriggerRegistry) Registered() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make(map[string]bool, len(r.entries))
	for id := range r.entries {
		ids[id] = true
	}
	return ids
}

// Has reports whether a trigger exists for the schedule ID.
func (r *TriggerRegistry) Has(scheduleID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[scheduleID]
	return ok
}

// Len returns the number of registered triggers.
func (r *TriggerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// BuildSchedule maps an entry's frequency to a cron.Schedule.
//
// daily, weekly and monthly translate to standard cron expressions;
// fortnightly, half-yearly and yearly have no cron expression and use
// interval schedules anchored at the entry's valid_from. All schedules are
// windowed: nothing fires before valid_from or after valid_to.
func BuildSchedule(entry *schedule.Entry, loc *time.Location) (cron.Schedule, error) {
	if !entry.Frequency.Recurring() {
		return nil, errors.Newf("frequency %s has no trigger", entry.Frequency)
	}

	var inner cron.Schedule
	var err error

	switch entry.Frequency {
	case schedule.FrequencyDaily:
		inner, err = cron.ParseStandard(fmt.Sprintf("%d %d * * *", entry.Minute, entry.Hour))
	case schedule.FrequencyWeekly:
		inner, err = cron.ParseStandard(fmt.Sprintf("%d %d * * %d", entry.Minute, entry.Hour, entry.Day))
	case schedule.FrequencyMonthly:
		inner, err = cron.ParseStandard(fmt.Sprintf("%d %d %d * *", entry.Minute, entry.Hour, entry.Day))
	case schedule.FrequencyFortnightly:
		inner = &intervalSchedule{anchor: anchorTime(entry, loc), every: 14 * 24 * time.Hour}
	case schedule.FrequencyHalfYearly:
		inner = &monthStepSchedule{anchor: anchorTime(entry, loc), months: 6}
	case schedule.FrequencyYearly:
		inner = &monthStepSchedule{anchor: anchorTime(entry, loc), months: 12}
	default:
		return nil, errors.Newf("unknown frequency: %s", entry.Frequency)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s trigger expression", entry.Frequency)
	}

	return &windowedSchedule{inner: inner, from: entry.ValidFrom, to: entry.ValidTo}, nil
}

// anchorTime computes the first nominal fire time for an anchored frequency:
// the entry's hour:minute on (or after) the valid_from date. For frequencies
// carrying a day-of-month, the anchor lands on that day.
func anchorTime(entry *schedule.Entry, loc *time.Location) time.Time {
	vf := entry.ValidFrom.In(loc)
	day := vf.Day()
	if entry.Frequency != schedule.FrequencyFortnightly && entry.Day > 0 {
		day = entry.Day
	}

	anchor := time.Date(vf.Year(), vf.Month(), day, entry.Hour, entry.Minute, 0, 0, loc)
	for anchor.Before(entry.ValidFrom) {
		switch entry.Frequency {
		case schedule.FrequencyFortnightly:
			anchor = anchor.Add(14 * 24 * time.Hour)
		case schedule.FrequencyHalfYearly:
			anchor = anchor.AddDate(0, 6, 0)
		default:
			anchor = anchor.AddDate(1, 0, 0)
		}
	}
	return anchor
}

// intervalSchedule fires at a fixed duration step from an anchor.
type intervalSchedule struct {
	anchor time.Time
	every  time.Duration
}

func (s *intervalSchedule) Next(t time.Time) time.Time {
	if t.Before(s.anchor) {
		return s.anchor
	}
	elapsed := t.Sub(s.anchor)
	steps := elapsed/s.every + 1
	return s.anchor.Add(steps * s.every)
}

// monthStepSchedule fires every N calendar months from an anchor.
type monthStepSchedule struct {
	anchor time.Time
	months int
}

func (s *monthStepSchedule) Next(t time.Time) time.Time {
	next := s.anchor
	for !next.After(t) {
		next = next.AddDate(0, s.months, 0)
	}
	return next
}

// windowedSchedule bounds an inner schedule to [from, to]. A zero Next time
// tells the cron runner the entry never fires again.
type windowedSchedule struct {
	inner cron.Schedule
	from  time.Time
	to    *time.Time
}

func (s *windowedSchedule) Next(t time.Time) time.Time {
	if t.Before(s.from) {
		t = s.from.Add(-time.Second)
	}
	next := s.inner.Next(t)
	if s.to != nil && next.After(*s.to) {
		return time.Time{}
	}
	return next
}
