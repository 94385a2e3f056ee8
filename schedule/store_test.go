package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wardentest "github.com/teranos/warden/internal/testing"
	"github.com/teranos/warden/internal/util"
)

func testEntry(scheduleID, jobReference string) *Entry {
	return &Entry{
		ScheduleID:   scheduleID,
		JobReference: jobReference,
		Frequency:    FrequencyDaily,
		Hour:         2,
		Minute:       30,
		ValidFrom:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:       true,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := NewStore(wardentest.CreateTestDB(t))

	entry := testEntry("SCH_1", "DIM_ACNT")
	entry.ValidTo = util.Ptr(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.Create(entry))

	got, err := store.Get("SCH_1")
	require.NoError(t, err)
	assert.Equal(t, "DIM_ACNT", got.JobReference)
	assert.Equal(t, FrequencyDaily, got.Frequency)
	assert.Equal(t, 2, got.Hour)
	assert.Equal(t, 30, got.Minute)
	assert.True(t, got.Active)
	assert.True(t, got.Current)
	require.NotNil(t, got.ValidTo)
	assert.Equal(t, 2026, got.ValidTo.Year())
}

func TestGetNotFound(t *testing.T) {
	store := NewStore(wardentest.CreateTestDB(t))

	_, err := store.Get("SCH_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// Two current rows for the same job reference must be impossible.
func TestCreateRejectsSecondCurrentVersion(t *testing.T) {
	store := NewStore(wardentest.CreateTestDB(t))

	require.NoError(t, store.Create(testEntry("SCH_1", "DIM_ACNT")))
	err := store.Create(testEntry("SCH_2", "DIM_ACNT"))
	require.Error(t, err)
}

func TestReplaceVersioning(t *testing.T) {
	store := NewStore(wardentest.CreateTestDB(t))

	require.NoError(t, store.Create(testEntry("SCH_1", "DIM_ACNT")))

	edited := testEntry("SCH_2", "DIM_ACNT")
	edited.Hour = 4
	require.NoError(t, store.Replace(edited))

	// The prior version survives as history
	old, err := store.Get("SCH_1")
	require.NoError(t, err)
	assert.False(t, old.Current)

	// Exactly one current row, carrying the edit
	current, err := store.ListCurrent()
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "SCH_2", current[0].ScheduleID)
	assert.Equal(t, 4, current[0].Hour)
}

func TestReplaceWithoutPriorVersion(t *testing.T) {
	store := NewStore(wardentest.CreateTestDB(t))

	require.NoError(t, store.Replace(testEntry("SCH_1", "DIM_ACNT")))

	got, err := store.Get("SCH_1")
	require.NoError(t, err)
	assert.True(t, got.Current)
}

func TestListCurrentActiveSkipsRetiredAndInactive(t *testing.T) {
	store := NewStore(wardentest.CreateTestDB(t))

	require.NoError(t, store.Create(testEntry("SCH_1", "DIM_ACNT")))
	require.NoError(t, store.Replace(testEntry("SCH_2", "DIM_ACNT")))

	disabled := testEntry("SCH_3", "FACT_TXN")
	disabled.Active = false
	require.NoError(t, store.Create(disabled))

	active, err := store.ListCurrentActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "SCH_2", active[0].ScheduleID)

	// ListCurrent still shows the disabled entry
	current, err := store.ListCurrent()
	require.NoError(t, err)
	assert.Len(t, current, 2)
}

func TestListChildren(t *testing.T) {
	store := NewStore(wardentest.CreateTestDB(t))

	require.NoError(t, store.Create(testEntry("SCH_parent", "STG_EXTRACT")))

	child := testEntry("SCH_child", "DIM_ACNT")
	child.ParentScheduleID = "SCH_parent"
	require.NoError(t, store.Create(child))

	inactive := testEntry("SCH_off", "FACT_TXN")
	inactive.ParentScheduleID = "SCH_parent"
	inactive.Active = false
	require.NoError(t, store.Create(inactive))

	unrelated := testEntry("SCH_other", "FACT_BAL")
	require.NoError(t, store.Create(unrelated))

	children, err := store.ListChildren("STG_EXTRACT")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "SCH_child", children[0].ScheduleID)
	assert.Equal(t, "DIM_ACNT", children[0].JobReference)
}

// A child pointing at a retired parent version must not fan out.
func TestListChildrenIgnoresRetiredParent(t *testing.T) {
	store := NewStore(wardentest.CreateTestDB(t))

	require.NoError(t, store.Create(testEntry("SCH_parent_v1", "STG_EXTRACT")))

	child := testEntry("SCH_child", "DIM_ACNT")
	child.ParentScheduleID = "SCH_parent_v1"
	require.NoError(t, store.Create(child))

	// Edit the parent; the child still references the retired version
	require.NoError(t, store.Replace(testEntry("SCH_parent_v2", "STG_EXTRACT")))

	children, err := store.ListChildren("STG_EXTRACT")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestFrequencyValidation(t *testing.T) {
	for _, code := range []string{"none", "immediate", "daily", "weekly", "fortnightly", "monthly", "half-yearly", "yearly"} {
		assert.True(t, IsValidFrequency(code), code)
	}
	assert.False(t, IsValidFrequency("hourly"))
	assert.False(t, IsValidFrequency("DAILY"))
}

func TestEntryLive(t *testing.T) {
	entry := testEntry("SCH_1", "DIM_ACNT")
	assert.False(t, entry.Live()) // not yet persisted as current
	entry.Current = true
	assert.True(t, entry.Live())

	entry.Active = false
	assert.False(t, entry.Live())
	entry.Active = true

	entry.Frequency = FrequencyNone
	assert.False(t, entry.Live())
	entry.Frequency = FrequencyImmediate
	assert.False(t, entry.Live())
}
