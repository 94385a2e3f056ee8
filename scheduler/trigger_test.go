package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/warden/internal/util"
	"github.com/teranos/warden/schedule"
)

func triggerTestEntry(freq schedule.Frequency, day, hour, minute int) *schedule.Entry {
	return &schedule.Entry{
		ScheduleID:   "SCH_1",
		JobReference: "DIM_ACNT",
		Frequency:    freq,
		Day:          day,
		Hour:         hour,
		Minute:       minute,
		ValidFrom:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:       true,
		Current:      true,
	}
}

func TestBuildScheduleDaily(t *testing.T) {
	sched, err := BuildSchedule(triggerTestEntry(schedule.FrequencyDaily, 0, 2, 30), time.UTC)
	require.NoError(t, err)

	next := sched.Next(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 6, 1, 2, 30, 0, 0, time.UTC), next)

	// Past today's fire time, the next fire is tomorrow
	next = sched.Next(time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 6, 2, 2, 30, 0, 0, time.UTC), next)
}

func TestBuildScheduleWeekly(t *testing.T) {
	// Day 1 = Monday
	sched, err := BuildSchedule(triggerTestEntry(schedule.FrequencyWeekly, 1, 6, 0), time.UTC)
	require.NoError(t, err)

	// 2026-06-01 is a Monday
	next := sched.Next(time.Date(2026, 5, 30, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC), next)

	next = sched.Next(next)
	assert.Equal(t, time.Date(2026, 6, 8, 6, 0, 0, 0, time.UTC), next)
}

func TestBuildScheduleMonthly(t *testing.T) {
	sched, err := BuildSchedule(triggerTestEntry(schedule.FrequencyMonthly, 15, 1, 0), time.UTC)
	require.NoError(t, err)

	next := sched.Next(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 6, 15, 1, 0, 0, 0, time.UTC), next)

	next = sched.Next(next)
	assert.Equal(t, time.Date(2026, 7, 15, 1, 0, 0, 0, time.UTC), next)
}

func TestBuildScheduleFortnightly(t *testing.T) {
	sched, err := BuildSchedule(triggerTestEntry(schedule.FrequencyFortnightly, 0, 2, 30), time.UTC)
	require.NoError(t, err)

	// Anchored at valid_from's date: Jan 1, then every 14 days
	next := sched.Next(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 15, 2, 30, 0, 0, time.UTC), next)

	next = sched.Next(next)
	assert.Equal(t, time.Date(2026, 1, 29, 2, 30, 0, 0, time.UTC), next)

	// Before the anchor, the anchor itself is the first fire
	next = sched.Next(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 1, 2, 30, 0, 0, time.UTC), next)
}

func TestBuildScheduleHalfYearly(t *testing.T) {
	sched, err := BuildSchedule(triggerTestEntry(schedule.FrequencyHalfYearly, 15, 1, 0), time.UTC)
	require.NoError(t, err)

	// Anchored on day 15 of the valid_from month
	next := sched.Next(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 7, 15, 1, 0, 0, 0, time.UTC), next)
}

func TestBuildScheduleYearly(t *testing.T) {
	sched, err := BuildSchedule(triggerTestEntry(schedule.FrequencyYearly, 1, 0, 0), time.UTC)
	require.NoError(t, err)

	next := sched.Next(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), next)

	next = sched.Next(next)
	assert.Equal(t, time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC), next)
}

func TestBuildScheduleRespectsValidTo(t *testing.T) {
	entry := triggerTestEntry(schedule.FrequencyDaily, 0, 2, 30)
	entry.ValidTo = util.Ptr(time.Date(2026, 6, 30, 23, 59, 59, 0, time.UTC))

	sched, err := BuildSchedule(entry, time.UTC)
	require.NoError(t, err)

	next := sched.Next(time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 6, 30, 2, 30, 0, 0, time.UTC), next)

	// Past the window, the schedule never fires again
	next = sched.Next(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, next.IsZero())
}

func TestBuildScheduleRespectsValidFrom(t *testing.T) {
	sched, err := BuildSchedule(triggerTestEntry(schedule.FrequencyDaily, 0, 2, 30), time.UTC)
	require.NoError(t, err)

	// Before the window opens, the first fire is inside the window
	next := sched.Next(time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 1, 2, 30, 0, 0, time.UTC), next)
}

func TestBuildScheduleNonRecurring(t *testing.T) {
	_, err := BuildSchedule(triggerTestEntry(schedule.FrequencyNone, 0, 0, 0), time.UTC)
	require.Error(t, err)

	_, err = BuildSchedule(triggerTestEntry(schedule.FrequencyImmediate, 0, 0, 0), time.UTC)
	require.Error(t, err)
}

func TestTriggerRegistryRegisterDeregister(t *testing.T) {
	registry := NewTriggerRegistry(time.UTC, zap.NewNop().Sugar())

	entry := triggerTestEntry(schedule.FrequencyDaily, 0, 2, 30)
	require.NoError(t, registry.Register(entry, time.UTC, func() {}))
	assert.True(t, registry.Has("SCH_1"))
	assert.Equal(t, 1, registry.Len())

	// Double registration is refused
	err := registry.Register(entry, time.UTC, func() {})
	require.Error(t, err)

	registry.Deregister("SCH_1")
	assert.False(t, registry.Has("SCH_1"))
	assert.Equal(t, 0, registry.Len())

	// Unknown IDs are a no-op
	registry.Deregister("SCH_missing")
}
