package waves

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var demoStart = time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC) // Monday

func TestWaveID(t *testing.T) {
	assert.Equal(t, "WAVE_1000_20250707", WaveID("1000", demoStart))
	assert.Equal(t, "WAVE_1630_20250708", WaveID("1630", demoStart.AddDate(0, 0, 1)))
}

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status     Status
		valid      bool
		assignable bool
		terminal   bool
	}{
		{StatusPlanned, true, true, false},
		{StatusReady, true, true, false},
		{StatusInProgress, true, true, false},
		{StatusCompleted, true, false, true},
		{StatusCancelled, true, false, true},
		{StatusDelayed, true, false, false},
		{Status("SHIPPED"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.IsValid())
			assert.Equal(t, tt.assignable, tt.status.IsAssignable())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestTypeIsValid(t *testing.T) {
	assert.True(t, TypeScheduled.IsValid())
	assert.True(t, TypeUrgent.IsValid())
	assert.True(t, TypeReceiving.IsValid())
	assert.False(t, Type("BATCH").IsValid())
}

func newTestWave() *Wave {
	return &Wave{
		ID:             WaveID("1000", demoStart),
		DeliveryHHMM:   "1000",
		DeliveryAt:     time.Date(2025, 7, 7, 10, 0, 0, 0, time.UTC),
		LatestCutoffAt: time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC),
		Type:           TypeScheduled,
		Status:         StatusPlanned,
	}
}

func TestWaveStart(t *testing.T) {
	t.Run("at cutoff", func(t *testing.T) {
		wave := newTestWave()
		now := wave.LatestCutoffAt

		require.NoError(t, wave.Start(now, 30))
		assert.Equal(t, StatusInProgress, wave.Status)
		assert.Equal(t, now, wave.ActualStart)
	})

	t.Run("within early buffer", func(t *testing.T) {
		wave := newTestWave()
		assert.NoError(t, wave.Start(wave.LatestCutoffAt.Add(-15*time.Minute), 30))
	})

	t.Run("too early", func(t *testing.T) {
		wave := newTestWave()
		err := wave.Start(wave.LatestCutoffAt.Add(-60*time.Minute), 30)
		assert.ErrorIs(t, err, ErrStartTooEarly)
		assert.Equal(t, StatusPlanned, wave.Status)
	})

	t.Run("from ready", func(t *testing.T) {
		wave := newTestWave()
		wave.Status = StatusReady
		assert.NoError(t, wave.Start(wave.LatestCutoffAt, 30))
	})

	t.Run("already running", func(t *testing.T) {
		wave := newTestWave()
		require.NoError(t, wave.Start(wave.LatestCutoffAt, 30))
		assert.ErrorIs(t, wave.Start(wave.LatestCutoffAt, 30), ErrNotStartable)
	})
}

func TestWaveCancel(t *testing.T) {
	wave := newTestWave()
	require.NoError(t, wave.Cancel())
	assert.Equal(t, StatusCancelled, wave.Status)

	// Terminal waves stay put.
	assert.ErrorIs(t, wave.Cancel(), ErrNotStartable)

	done := newTestWave()
	done.Status = StatusCompleted
	assert.ErrorIs(t, done.Cancel(), ErrNotStartable)
}

func TestAvailableWorkMinutes(t *testing.T) {
	wave := newTestWave()
	assert.Equal(t, 60.0, wave.AvailableWorkMinutes())

	wave.LatestCutoffAt = time.Time{}
	assert.Equal(t, 0.0, wave.AvailableWorkMinutes())

	inverted := newTestWave()
	inverted.LatestCutoffAt = inverted.DeliveryAt.Add(time.Hour)
	assert.Equal(t, 0.0, inverted.AvailableWorkMinutes())
}

func TestAddTaskAndAttachStation(t *testing.T) {
	wave := newTestWave()
	wave.AddTask("T1")
	wave.AddTask("T2")
	assert.Equal(t, 2, wave.TotalTasks)
	assert.Equal(t, []string{"T1", "T2"}, wave.TaskIDs)

	wave.AttachStation("ST2F01")
	wave.AttachStation("ST2F01")
	wave.AttachStation("ST3F01")
	assert.Equal(t, []string{"ST2F01", "ST3F01"}, wave.AssignedStations)
}

func TestFloorWorkWindow(t *testing.T) {
	tests := []struct {
		floor int
		want  float64
	}{
		{floor: 2, want: 25},
		{floor: 3, want: 30},
		{floor: 4, want: 30},
		{floor: 1, want: 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FloorWorkWindow(tt.floor), "floor %d", tt.floor)
	}
}
