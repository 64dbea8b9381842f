package receiving

import (
	"fmt"
	"math"
	"sort"

	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

// Overdue returns the overdue lines, most-overdue first.
func Overdue(processed []ProcessedReceiving) []ProcessedReceiving {
	var out []ProcessedReceiving
	for _, p := range processed {
		if p.Deadline.IsOverdue {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Deadline.DaysSinceArrival != out[j].Deadline.DaysSinceArrival {
			return out[i].Deadline.DaysSinceArrival > out[j].Deadline.DaysSinceArrival
		}
		return out[i].Record.ReceivingID < out[j].Record.ReceivingID
	})
	return out
}

// DueToday returns the lines whose window closes today, highest priority
// and largest quantity first.
func DueToday(processed []ProcessedReceiving) []ProcessedReceiving {
	var out []ProcessedReceiving
	for _, p := range processed {
		if !p.Deadline.IsOverdue && p.Urgency == UrgencyDueToday {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		if out[i].Record.Quantity != out[j].Record.Quantity {
			return out[i].Record.Quantity > out[j].Record.Quantity
		}
		return out[i].Record.ReceivingID < out[j].Record.ReceivingID
	})
	return out
}

// CapacityAnalysis sizes the urgent receiving backlog against the station
// pool.
type CapacityAnalysis struct {
	ImmediateHoursRequired float64     `json:"immediate_hours_required"`
	TodayHoursRequired     float64     `json:"today_hours_required"`
	AvailableStations      map[int]int `json:"available_stations"`
	CapacitySufficient     bool        `json:"capacity_sufficient"`
}

// ScheduleRecommendation buckets the receiving backlog by when it has to
// run.
type ScheduleRecommendation struct {
	ImmediateAction  []ProcessedReceiving `json:"immediate_action_required"`
	TodaySchedule    []ProcessedReceiving `json:"today_schedule"`
	TomorrowSchedule []ProcessedReceiving `json:"tomorrow_schedule"`
	NormalSchedule   []ProcessedReceiving `json:"normal_schedule"`
	Capacity         CapacityAnalysis     `json:"capacity_analysis"`
	Warnings         []string             `json:"warnings,omitempty"`
}

// RecommendSchedule buckets processed receiving lines into execution
// groups and checks the urgent share against available station capacity
// (stations per floor, eight hours each, 20% reserve).
func RecommendSchedule(processed []ProcessedReceiving, availableStations map[int]int) ScheduleRecommendation {
	rec := ScheduleRecommendation{
		ImmediateAction: Overdue(processed),
		TodaySchedule:   DueToday(processed),
	}

	for _, p := range processed {
		switch {
		case p.Deadline.IsOverdue, p.Urgency == UrgencyDueToday:
			// Already bucketed above.
		case p.Urgency == UrgencyDueTomorrow:
			rec.TomorrowSchedule = append(rec.TomorrowSchedule, p)
		default:
			rec.NormalSchedule = append(rec.NormalSchedule, p)
		}
	}

	if n := len(rec.ImmediateAction); n > 0 {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("%d overdue receiving lines need immediate handling", n))
	}
	if n := len(rec.TodaySchedule); n > 0 {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("%d receiving lines must complete today", n))
	}

	var immediateMinutes, todayMinutes float64
	for _, p := range rec.ImmediateAction {
		immediateMinutes += p.EstimatedDuration
	}
	for _, p := range rec.TodaySchedule {
		todayMinutes += p.EstimatedDuration
	}

	rec.Capacity = CapacityAnalysis{
		ImmediateHoursRequired: round1(immediateMinutes / 60),
		TodayHoursRequired:     round1(todayMinutes / 60),
		AvailableStations:      availableStations,
		CapacitySufficient:     capacitySufficient(immediateMinutes+todayMinutes, availableStations),
	}
	return rec
}

// capacitySufficient assumes eight station-hours per day and keeps a 20%
// reserve for the rest of the backlog.
func capacitySufficient(requiredMinutes float64, availableStations map[int]int) bool {
	if len(availableStations) == 0 {
		return false
	}
	var totalMinutes float64
	for _, stations := range availableStations {
		totalMinutes += float64(stations) * 60 * 8
	}
	return requiredMinutes <= totalMinutes*0.8
}

// ProgressSummary reports how far the receiving backlog has come.
type ProgressSummary struct {
	TotalTasks        int     `json:"total_tasks"`
	CompletedTasks    int     `json:"completed_tasks"`
	CompletionRate    float64 `json:"completion_rate"`
	OverdueRemaining  int     `json:"overdue_remaining"`
	DueTodayRemaining int     `json:"due_today_remaining"`
	OnScheduleTasks   int     `json:"on_schedule_tasks"`
}

// Progress summarizes completion over classified receiving lines, keyed by
// receiving id.
func Progress(processed []ProcessedReceiving, completed map[string]bool) ProgressSummary {
	summary := ProgressSummary{TotalTasks: len(processed)}
	for _, p := range processed {
		if completed[p.Record.ReceivingID] {
			summary.CompletedTasks++
			continue
		}
		switch {
		case p.Deadline.IsOverdue:
			summary.OverdueRemaining++
		case p.Urgency == UrgencyDueToday:
			summary.DueTodayRemaining++
		default:
			summary.OnScheduleTasks++
		}
	}
	if summary.TotalTasks > 0 {
		summary.CompletionRate = round1(float64(summary.CompletedTasks) / float64(summary.TotalTasks) * 100)
	}
	return summary
}

// Summary aggregates one classification pass for the run results.
type Summary struct {
	TotalItems          int                    `json:"total_receiving_items"`
	PriorityCounts      map[tasks.Priority]int `json:"priority_distribution"`
	OverdueCount        int                    `json:"overdue_count"`
	DueTodayCount       int                    `json:"due_today_count"`
	TotalEstimatedHours float64                `json:"total_estimated_hours"`
	AvgDaysSinceArrival float64                `json:"avg_days_since_arrival"`
	UrgentItemsCount    int                    `json:"urgent_items_count"`
}

// Summarize rolls up a classified batch.
func Summarize(processed []ProcessedReceiving) Summary {
	summary := Summary{
		TotalItems:     len(processed),
		PriorityCounts: make(map[tasks.Priority]int),
	}

	var minutes, days float64
	for _, p := range processed {
		summary.PriorityCounts[p.Priority]++
		if p.Deadline.IsOverdue {
			summary.OverdueCount++
		}
		if p.Urgency == UrgencyDueToday {
			summary.DueTodayCount++
		}
		if p.Urgency == UrgencyUrgentItem {
			summary.UrgentItemsCount++
		}
		minutes += p.EstimatedDuration
		days += float64(p.Deadline.DaysSinceArrival)
	}

	summary.TotalEstimatedHours = round1(minutes / 60)
	if len(processed) > 0 {
		summary.AvgDaysSinceArrival = round1(days / float64(len(processed)))
	}
	return summary
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
