package receiving

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

func classifiedBacklog(t *testing.T) []ProcessedReceiving {
	t.Helper()
	classifier := newTestClassifier(t, nil)
	records := []masterdata.ReceivingRecord{
		receivingLine("RCV_000001", demoStart.AddDate(0, 0, -5), "F01", 10),  // overdue 5 days
		receivingLine("RCV_000002", demoStart.AddDate(0, 0, -3), "F01", 10),  // overdue 3 days
		receivingLine("RCV_000003", demoStart.AddDate(0, 0, -2), "F01", 200), // due today
		receivingLine("RCV_000004", demoStart.AddDate(0, 0, -2), "F01", 50),  // due today, smaller
		receivingLine("RCV_000005", demoStart.AddDate(0, 0, -1), "F01", 10),  // due tomorrow
		receivingLine("RCV_000006", demoStart, "F01", 10),                    // on schedule
	}
	return classifier.ProcessBatch(records, demoStart)
}

func TestOverdueSortsMostOverdueFirst(t *testing.T) {
	overdue := Overdue(classifiedBacklog(t))
	require.Len(t, overdue, 2)
	assert.Equal(t, "RCV_000001", overdue[0].Record.ReceivingID)
	assert.Equal(t, "RCV_000002", overdue[1].Record.ReceivingID)
}

func TestDueTodaySortsByPriorityThenQuantity(t *testing.T) {
	dueToday := DueToday(classifiedBacklog(t))
	require.Len(t, dueToday, 2)
	assert.Equal(t, "RCV_000003", dueToday[0].Record.ReceivingID)
	assert.Equal(t, "RCV_000004", dueToday[1].Record.ReceivingID)
}

func TestRecommendSchedule(t *testing.T) {
	rec := RecommendSchedule(classifiedBacklog(t), map[int]int{2: 2, 3: 1})

	assert.Len(t, rec.ImmediateAction, 2)
	assert.Len(t, rec.TodaySchedule, 2)
	assert.Len(t, rec.TomorrowSchedule, 1)
	assert.Len(t, rec.NormalSchedule, 1)
	assert.Len(t, rec.Warnings, 2)

	// Three stations at eight hours each dwarf the urgent backlog.
	assert.True(t, rec.Capacity.CapacitySufficient)
	assert.Greater(t, rec.Capacity.ImmediateHoursRequired, 0.0)
}

func TestRecommendScheduleWithoutStations(t *testing.T) {
	rec := RecommendSchedule(classifiedBacklog(t), nil)
	assert.False(t, rec.Capacity.CapacitySufficient)
}

func TestProgress(t *testing.T) {
	backlog := classifiedBacklog(t)

	summary := Progress(backlog, map[string]bool{"RCV_000001": true, "RCV_000006": true})
	assert.Equal(t, 6, summary.TotalTasks)
	assert.Equal(t, 2, summary.CompletedTasks)
	assert.Equal(t, 33.3, summary.CompletionRate)
	assert.Equal(t, 1, summary.OverdueRemaining)
	assert.Equal(t, 2, summary.DueTodayRemaining)
	assert.Equal(t, 1, summary.OnScheduleTasks)
}

func TestProgressEmpty(t *testing.T) {
	summary := Progress(nil, nil)
	assert.Zero(t, summary.TotalTasks)
	assert.Zero(t, summary.CompletionRate)
}

func TestSummarize(t *testing.T) {
	summary := Summarize(classifiedBacklog(t))

	assert.Equal(t, 6, summary.TotalItems)
	assert.Equal(t, 2, summary.PriorityCounts[tasks.PriorityP1])
	assert.Equal(t, 3, summary.PriorityCounts[tasks.PriorityP2])
	assert.Equal(t, 1, summary.PriorityCounts[tasks.PriorityP4])
	assert.Equal(t, 2, summary.OverdueCount)
	assert.Equal(t, 2, summary.DueTodayCount)
	assert.Zero(t, summary.UrgentItemsCount)
	assert.Equal(t, 2.2, summary.AvgDaysSinceArrival) // (5+3+2+2+1+0)/6 rounds to 2.2
	assert.Greater(t, summary.TotalEstimatedHours, 0.0)
}
