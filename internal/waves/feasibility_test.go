package waves

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

func feasibilityParams() masterdata.Params {
	return masterdata.Params{
		TimeBufferMinutes:        10,
		MaxPartcustidsPerStation: 12,
	}
}

func feasibilityTask(id, partcustid string, minutes float64, deadline time.Time) *tasks.Task {
	return &tasks.Task{
		TaskID:            id,
		Partcustid:        partcustid,
		EstimatedDuration: minutes,
		DeliveryDeadline:  deadline,
	}
}

func TestCheckFeasibilityEmptyWave(t *testing.T) {
	result := CheckFeasibility(nil, demoStart, 4, feasibilityParams())
	assert.True(t, result.Feasible)
	assert.Equal(t, 4, result.StationCount)
	assert.Zero(t, result.RequiredMinutes)
}

func TestCheckFeasibilityNoDeadlinesAssumesFullShift(t *testing.T) {
	now := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	waveTasks := []*tasks.Task{
		feasibilityTask("T1", "C001", 30, time.Time{}),
		feasibilityTask("T2", "C002", 30, time.Time{}),
	}

	result := CheckFeasibility(waveTasks, now, 4, feasibilityParams())
	assert.True(t, result.Feasible)
	assert.Equal(t, 480.0, result.AvailableMinutes)
	assert.Equal(t, 60.0, result.RequiredMinutes)
	assert.Equal(t, 1.0, result.EstimatedStationsNeeded)
	assert.True(t, result.EarliestDeadline.IsZero())
}

func TestCheckFeasibilityWithinWindow(t *testing.T) {
	now := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(70 * time.Minute)
	waveTasks := []*tasks.Task{
		feasibilityTask("T1", "C001", 10, deadline),
		feasibilityTask("T2", "C002", 10, deadline),
		feasibilityTask("T3", "C003", 10, deadline),
		feasibilityTask("T4", "C001", 10, deadline),
	}

	result := CheckFeasibility(waveTasks, now, 4, feasibilityParams())
	assert.True(t, result.Feasible)
	assert.Equal(t, 60.0, result.AvailableMinutes) // 70 minus the 10-minute buffer
	assert.Equal(t, 40.0, result.RequiredMinutes)
	assert.Equal(t, 3, result.UniquePartcustids)
	assert.Equal(t, deadline, result.EarliestDeadline)
	assert.Empty(t, result.Reasons)
}

func TestCheckFeasibilityWorkloadExceedsWindow(t *testing.T) {
	now := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(70 * time.Minute)

	// 600 minutes of picking against a 60-minute window needs ten
	// stations; the pool has four.
	waveTasks := make([]*tasks.Task, 0, 20)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("T%02d", i+1)
		waveTasks = append(waveTasks, feasibilityTask(id, fmt.Sprintf("C%03d", i%5), 30, deadline))
	}

	result := CheckFeasibility(waveTasks, now, 4, feasibilityParams())
	assert.False(t, result.Feasible)
	assert.Equal(t, 60.0, result.AvailableMinutes)
	assert.Equal(t, 600.0, result.RequiredMinutes)
	assert.Equal(t, 10.0, result.StationsNeededByTime)
	assert.Equal(t, 10.0, result.EstimatedStationsNeeded)
	assert.NotEmpty(t, result.Reasons)
}

func TestCheckFeasibilityDeadlinePassed(t *testing.T) {
	now := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	waveTasks := []*tasks.Task{
		feasibilityTask("T1", "C001", 10, now.Add(-5*time.Minute)),
	}

	result := CheckFeasibility(waveTasks, now, 4, feasibilityParams())
	assert.False(t, result.Feasible)
	assert.Equal(t, 0.0, result.AvailableMinutes)
	assert.True(t, math.IsInf(result.StationsNeededByTime, 1))
	assert.NotEmpty(t, result.Reasons)
}

func TestCheckFeasibilityPartcustidGroupingBound(t *testing.T) {
	now := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(8 * time.Hour)

	// Thirty distinct partners at twelve per station needs 2.5 stations
	// even though the workload itself is tiny.
	waveTasks := make([]*tasks.Task, 0, 30)
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("T%02d", i+1)
		waveTasks = append(waveTasks, feasibilityTask(id, fmt.Sprintf("C%03d", i+1), 1, deadline))
	}

	cramped := CheckFeasibility(waveTasks, now, 2, feasibilityParams())
	assert.False(t, cramped.Feasible)
	assert.Equal(t, 2.5, cramped.StationsNeededByGroup)

	roomy := CheckFeasibility(waveTasks, now, 3, feasibilityParams())
	assert.True(t, roomy.Feasible)
}

func TestCheckFeasibilityEarliestDeadlineWins(t *testing.T) {
	now := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	early := now.Add(40 * time.Minute)
	late := now.Add(4 * time.Hour)

	waveTasks := []*tasks.Task{
		feasibilityTask("T1", "C001", 10, late),
		feasibilityTask("T2", "C002", 10, early),
	}

	result := CheckFeasibility(waveTasks, now, 4, feasibilityParams())
	assert.Equal(t, early, result.EarliestDeadline)
	assert.Equal(t, 30.0, result.AvailableMinutes)
}
