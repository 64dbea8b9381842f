package waves

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

// newTestCatalog builds a catalog over the demo bundle. mutate, when
// non-nil, adjusts the bundle before the store is built.
func newTestCatalog(t *testing.T, mutate func(*masterdata.Bundle)) *Catalog {
	t.Helper()
	bundle := masterdata.DemoBundle(demoStart)
	if mutate != nil {
		mutate(bundle)
	}
	store, err := masterdata.NewStore(bundle, nil)
	require.NoError(t, err)

	catalog, err := NewCatalog(store, nil)
	require.NoError(t, err)
	return catalog
}

// statusMap adapts a plain map to a TaskStatusFn.
func statusMap(m map[string]tasks.Status) TaskStatusFn {
	return func(taskID string) (tasks.Status, bool) {
		status, ok := m[taskID]
		return status, ok
	}
}

func TestNewCatalogRejectsEmptyTimetable(t *testing.T) {
	bundle := masterdata.DemoBundle(demoStart)
	bundle.RouteSchedule = nil
	store, err := masterdata.NewStore(bundle, nil)
	require.NoError(t, err)

	_, err = NewCatalog(store, nil)
	assert.ErrorIs(t, err, ErrNoTimetable)
}

func TestCreateWavesForDate(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	created := catalog.CreateWavesForDate(demoStart)
	require.Len(t, created, 3)

	morning := created[0]
	assert.Equal(t, "WAVE_1000_20250707", morning.ID)
	assert.Equal(t, time.Date(2025, 7, 7, 10, 0, 0, 0, time.UTC), morning.DeliveryAt)
	assert.Equal(t, time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC), morning.LatestCutoffAt)
	assert.Equal(t, []string{"R01"}, morning.Routes)
	assert.Equal(t, []string{"C001", "C002", "C003"}, morning.Partcustids)
	assert.Equal(t, []string{"0830", "0850", "0900"}, morning.CutoffTimes)
	assert.Equal(t, TypeScheduled, morning.Type)
	assert.Equal(t, StatusPlanned, morning.Status)
	assert.Equal(t, 60.0, morning.AvailableWorkMinutes())

	assert.Equal(t, "WAVE_1400_20250707", created[1].ID)
	assert.Equal(t, 90.0, created[1].AvailableWorkMinutes())
	assert.Equal(t, "WAVE_1630_20250707", created[2].ID)
	assert.Equal(t, 90.0, created[2].AvailableWorkMinutes())

	wave, ok := catalog.Get("WAVE_1400_20250707")
	require.True(t, ok)
	assert.Equal(t, []string{"C004", "C005"}, wave.Partcustids)
}

func TestCreateWavesForDateSkipsWeekend(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	saturday := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, catalog.CreateWavesForDate(saturday))

	catalog.IncludeWeekends = true
	assert.Len(t, catalog.CreateWavesForDate(saturday), 3)
}

func TestCreateWavesRollsDeliveryPastMidnight(t *testing.T) {
	catalog := newTestCatalog(t, func(b *masterdata.Bundle) {
		b.RouteSchedule = append(b.RouteSchedule, masterdata.RouteScheduleEntry{
			RouteCode: "R09", Partcustid: "C900", OrderEndTime: "2200", DeliveryTime: "0700",
		})
	})
	created := catalog.CreateWavesForDate(demoStart)
	require.Len(t, created, 4)

	night, ok := catalog.Get("WAVE_0700_20250707")
	require.True(t, ok)
	// Orders close at 22:00; the truck leaves the next morning.
	assert.Equal(t, time.Date(2025, 7, 7, 22, 0, 0, 0, time.UTC), night.LatestCutoffAt)
	assert.Equal(t, time.Date(2025, 7, 8, 7, 0, 0, 0, time.UTC), night.DeliveryAt)
	assert.Equal(t, 540.0, night.AvailableWorkMinutes())

	// Latest delivery lands last in the sorted result.
	assert.Equal(t, "WAVE_0700_20250707", created[3].ID)
}

func TestCatalogNormalizesShortClockValues(t *testing.T) {
	catalog := newTestCatalog(t, func(b *masterdata.Bundle) {
		b.RouteSchedule = append(b.RouteSchedule, masterdata.RouteScheduleEntry{
			RouteCode: "R09", Partcustid: "C900", OrderEndTime: "830", DeliveryTime: "945",
		})
	})
	catalog.CreateWavesForDate(demoStart)

	wave, ok := catalog.Get("WAVE_0945_20250707")
	require.True(t, ok)
	assert.Equal(t, []string{"0830"}, wave.CutoffTimes)
}

func TestFindWaveForPartcustid(t *testing.T) {
	catalog := newTestCatalog(t, nil)

	tests := []struct {
		name       string
		partcustid string
		orderTime  time.Time
		wantWave   string
		wantFound  bool
	}{
		{
			name:       "before cutoff",
			partcustid: "C001",
			orderTime:  time.Date(2025, 7, 7, 8, 30, 0, 0, time.UTC),
			wantWave:   "WAVE_1000_20250707",
			wantFound:  true,
		},
		{
			name:       "midday partner",
			partcustid: "C004",
			orderTime:  time.Date(2025, 7, 7, 11, 0, 0, 0, time.UTC),
			wantWave:   "WAVE_1400_20250707",
			wantFound:  true,
		},
		{
			name:       "after every cutoff falls back to last wave",
			partcustid: "C001",
			orderTime:  time.Date(2025, 7, 7, 11, 30, 0, 0, time.UTC),
			wantWave:   "WAVE_1000_20250707",
			wantFound:  true,
		},
		{
			name:       "unknown partcustid",
			partcustid: "NOPE",
			orderTime:  time.Date(2025, 7, 7, 8, 30, 0, 0, time.UTC),
			wantFound:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			waveID, found := catalog.FindWaveForPartcustid(tt.partcustid, tt.orderTime)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantWave, waveID)
		})
	}
}

func TestFindWaveForPartcustidAcrossWaves(t *testing.T) {
	// C001 also ships on a second, later wave.
	catalog := newTestCatalog(t, func(b *masterdata.Bundle) {
		b.RouteSchedule = append(b.RouteSchedule, masterdata.RouteScheduleEntry{
			RouteCode: "R01", Partcustid: "C001", OrderEndTime: "1100", DeliveryTime: "1200",
		})
	})

	// Past the 09:00 cutoff but before 11:00: the later wave takes it.
	waveID, found := catalog.FindWaveForPartcustid("C001", time.Date(2025, 7, 7, 9, 30, 0, 0, time.UTC))
	require.True(t, found)
	assert.Equal(t, "WAVE_1200_20250707", waveID)

	// Past both cutoffs: the day's last wave takes it late.
	waveID, found = catalog.FindWaveForPartcustid("C001", time.Date(2025, 7, 7, 11, 30, 0, 0, time.UTC))
	require.True(t, found)
	assert.Equal(t, "WAVE_1200_20250707", waveID)
}

func TestAttachTask(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	catalog.CreateWavesForDate(demoStart)

	require.NoError(t, catalog.AttachTask("WAVE_1000_20250707", "T1"))
	wave, _ := catalog.Get("WAVE_1000_20250707")
	assert.Equal(t, []string{"T1"}, wave.TaskIDs)
	assert.Equal(t, 1, wave.TotalTasks)

	assert.ErrorIs(t, catalog.AttachTask("WAVE_9999_20250707", "T2"), ErrWaveNotFound)

	require.NoError(t, wave.Cancel())
	assert.ErrorIs(t, catalog.AttachTask("WAVE_1000_20250707", "T2"), ErrNotAssignable)
}

func TestStartWave(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	catalog.CreateWavesForDate(demoStart)

	// Fifteen minutes early is within the default 30-minute buffer.
	now := time.Date(2025, 7, 7, 8, 45, 0, 0, time.UTC)
	require.NoError(t, catalog.StartWave("WAVE_1000_20250707", now))

	wave, _ := catalog.Get("WAVE_1000_20250707")
	assert.Equal(t, StatusInProgress, wave.Status)
	assert.Equal(t, now, wave.ActualStart)

	active := catalog.ActiveWaves()
	require.Len(t, active, 1)
	assert.Equal(t, "WAVE_1000_20250707", active[0].ID)

	// A full hour before the 12:30 cutoff exceeds the buffer.
	err := catalog.StartWave("WAVE_1400_20250707", time.Date(2025, 7, 7, 11, 30, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrStartTooEarly)

	assert.ErrorIs(t, catalog.StartWave("WAVE_9999_20250707", now), ErrWaveNotFound)
}

func TestStartDueWaves(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	catalog.CreateWavesForDate(demoStart)

	started := catalog.StartDueWaves(time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC))
	require.Len(t, started, 1)
	assert.Equal(t, "WAVE_1000_20250707", started[0].ID)

	// Later in the day the 14:00 wave comes due; the first one stays started.
	started = catalog.StartDueWaves(time.Date(2025, 7, 7, 12, 30, 0, 0, time.UTC))
	require.Len(t, started, 1)
	assert.Equal(t, "WAVE_1400_20250707", started[0].ID)

	assert.Len(t, catalog.ActiveWaves(), 2)
}

func TestCheckCompletion(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	catalog.CreateWavesForDate(demoStart)

	require.NoError(t, catalog.AttachTask("WAVE_1000_20250707", "T1"))
	require.NoError(t, catalog.AttachTask("WAVE_1000_20250707", "T2"))

	now := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	require.NoError(t, catalog.StartWave("WAVE_1000_20250707", now))

	statuses := map[string]tasks.Status{
		"T1": tasks.StatusCompleted,
		"T2": tasks.StatusInProgress,
	}

	result, err := catalog.CheckCompletion("WAVE_1000_20250707", now.Add(30*time.Minute), statusMap(statuses))
	require.NoError(t, err)
	assert.False(t, result.Completed)
	assert.Equal(t, 1, result.CompletedTasks)
	assert.Equal(t, []string{"T2"}, result.IncompleteTasks)
	assert.Len(t, catalog.ActiveWaves(), 1)

	statuses["T2"] = tasks.StatusCompleted
	completedAt := now.Add(45 * time.Minute)
	result, err = catalog.CheckCompletion("WAVE_1000_20250707", completedAt, statusMap(statuses))
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, 2, result.CompletedTasks)

	wave, _ := catalog.Get("WAVE_1000_20250707")
	assert.Equal(t, StatusCompleted, wave.Status)
	assert.Equal(t, completedAt, wave.ActualCompletion)
	assert.Empty(t, catalog.ActiveWaves())
	assert.Equal(t, []string{"WAVE_1000_20250707"}, catalog.History())
}

func TestCheckCompletionEmptyWaveCompletesTrivially(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	catalog.CreateWavesForDate(demoStart)

	now := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	require.NoError(t, catalog.StartWave("WAVE_1000_20250707", now))

	result, err := catalog.CheckCompletion("WAVE_1000_20250707", now, statusMap(nil))
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Zero(t, result.TotalTasks)
}

func TestCheckCompletionLeavesPlannedWavesAlone(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	catalog.CreateWavesForDate(demoStart)

	result, err := catalog.CheckCompletion("WAVE_1000_20250707", demoStart, statusMap(nil))
	require.NoError(t, err)
	assert.False(t, result.Completed)

	wave, _ := catalog.Get("WAVE_1000_20250707")
	assert.Equal(t, StatusPlanned, wave.Status)

	_, err = catalog.CheckCompletion("WAVE_9999_20250707", demoStart, statusMap(nil))
	assert.ErrorIs(t, err, ErrWaveNotFound)
}

func TestScanOverdue(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	catalog.CreateWavesForDate(demoStart)

	require.NoError(t, catalog.AttachTask("WAVE_1000_20250707", "T1"))
	require.NoError(t, catalog.StartWave("WAVE_1000_20250707", time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)))

	statuses := map[string]tasks.Status{"T1": tasks.StatusInProgress}

	// Before the delivery time there is nothing to report.
	assert.Empty(t, catalog.ScanOverdue(time.Date(2025, 7, 7, 9, 30, 0, 0, time.UTC), statusMap(statuses)))

	// Thirty minutes past delivery with an open task: the wave is delayed.
	report := catalog.ScanOverdue(time.Date(2025, 7, 7, 10, 30, 0, 0, time.UTC), statusMap(statuses))
	require.Len(t, report, 1)
	assert.False(t, report[0].OnTime)
	assert.Equal(t, 30.0, report[0].OverdueMinutes)
	assert.Equal(t, []string{"T1"}, report[0].IncompleteTasks)

	wave, _ := catalog.Get("WAVE_1000_20250707")
	assert.Equal(t, StatusDelayed, wave.Status)

	// Delayed waves stay on the scan until their tasks finish.
	report = catalog.ScanOverdue(time.Date(2025, 7, 7, 10, 45, 0, 0, time.UTC), statusMap(statuses))
	require.Len(t, report, 1)
	assert.Equal(t, 45.0, report[0].OverdueMinutes)

	// Once the task completes the wave closes out, late but done.
	statuses["T1"] = tasks.StatusCompleted
	report = catalog.ScanOverdue(time.Date(2025, 7, 7, 11, 0, 0, 0, time.UTC), statusMap(statuses))
	require.Len(t, report, 1)
	assert.True(t, report[0].OnTime)
	assert.Equal(t, StatusCompleted, wave.Status)
	assert.Empty(t, catalog.ActiveWaves())
}

func TestTrackProgress(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	catalog.CreateWavesForDate(demoStart)

	require.NoError(t, catalog.AttachTask("WAVE_1000_20250707", "T1"))
	require.NoError(t, catalog.AttachTask("WAVE_1000_20250707", "T2"))

	statuses := map[string]tasks.Status{
		"T1": tasks.StatusCompleted,
		"T2": tasks.StatusInProgress,
	}

	t.Run("waiting", func(t *testing.T) {
		progress, err := catalog.TrackProgress("WAVE_1000_20250707", time.Date(2025, 7, 7, 8, 0, 0, 0, time.UTC), statusMap(statuses))
		require.NoError(t, err)
		assert.Equal(t, PhaseWaiting, progress.Phase)
		assert.Equal(t, 60.0, progress.MinutesUntilStart)
		assert.Equal(t, 50.0, progress.ProgressPercent)
	})

	t.Run("in progress", func(t *testing.T) {
		progress, err := catalog.TrackProgress("WAVE_1000_20250707", time.Date(2025, 7, 7, 9, 30, 0, 0, time.UTC), statusMap(statuses))
		require.NoError(t, err)
		assert.Equal(t, PhaseInProgress, progress.Phase)
		assert.Equal(t, 30.0, progress.ElapsedMinutes)
		assert.Equal(t, 30.0, progress.RemainingMinutes)
		assert.Equal(t, 50.0, progress.TimeUtilization)
	})

	t.Run("overdue", func(t *testing.T) {
		progress, err := catalog.TrackProgress("WAVE_1000_20250707", time.Date(2025, 7, 7, 10, 30, 0, 0, time.UTC), statusMap(statuses))
		require.NoError(t, err)
		assert.Equal(t, PhaseOverdue, progress.Phase)
		assert.Equal(t, 30.0, progress.OverdueMinutes)
	})

	_, err := catalog.TrackProgress("WAVE_9999_20250707", demoStart, statusMap(statuses))
	assert.ErrorIs(t, err, ErrWaveNotFound)
}

func TestCanStationStartNextWave(t *testing.T) {
	catalog := newTestCatalog(t, nil)
	catalog.CreateWavesForDate(demoStart)

	now := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	require.NoError(t, catalog.AttachTask("WAVE_1000_20250707", "T1"))
	require.NoError(t, catalog.StartWave("WAVE_1000_20250707", now))

	morning, _ := catalog.Get("WAVE_1000_20250707")
	morning.AttachStation("ST2F01")

	statuses := map[string]tasks.Status{"T1": tasks.StatusInProgress}

	// ST2F01 still owes the morning wave a task.
	assert.False(t, catalog.CanStationStartNextWave("ST2F01", "WAVE_1400_20250707", now, statusMap(statuses)))

	// A station not serving the morning wave is free to move on.
	assert.True(t, catalog.CanStationStartNextWave("ST3F01", "WAVE_1400_20250707", now, statusMap(statuses)))

	// Unknown next wave blocks outright.
	assert.False(t, catalog.CanStationStartNextWave("ST2F01", "WAVE_9999_20250707", now, statusMap(statuses)))

	// Non-scheduled work is never gated on wave order.
	urgent, _ := catalog.Get("WAVE_1630_20250707")
	urgent.Type = TypeUrgent
	assert.True(t, catalog.CanStationStartNextWave("ST2F01", "WAVE_1630_20250707", now, statusMap(statuses)))

	// Finishing the morning wave releases the station.
	statuses["T1"] = tasks.StatusCompleted
	assert.True(t, catalog.CanStationStartNextWave("ST2F01", "WAVE_1400_20250707", now.Add(30*time.Minute), statusMap(statuses)))
}
