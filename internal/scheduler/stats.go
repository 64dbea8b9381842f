package scheduler

import (
	"math"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/exceptions"
	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
	"github.com/hsichihchen-design/cpdoldsim/internal/tracking"
	"github.com/hsichihchen-design/cpdoldsim/internal/waves"
)

// DaySummary is the end-of-day account of one simulated date, taken at
// the close event. Overtime running past it lands in the run totals.
type DaySummary struct {
	Date               string  `json:"date" bson:"date"`
	ShippingTotal      int     `json:"shipping_tasks_total" bson:"shipping_tasks_total"`
	ShippingCompleted  int     `json:"shipping_tasks_completed" bson:"shipping_tasks_completed"`
	ReceivingTotal     int     `json:"receiving_tasks_total" bson:"receiving_tasks_total"`
	ReceivingCompleted int     `json:"receiving_tasks_completed" bson:"receiving_tasks_completed"`
	WavesCompleted     int     `json:"waves_completed" bson:"waves_completed"`
	OvertimeSessions   int     `json:"overtime_sessions" bson:"overtime_sessions"`
	OvertimeHours      float64 `json:"overtime_hours" bson:"overtime_hours"`
	ExceptionsDetected int     `json:"exceptions_detected" bson:"exceptions_detected"`
	ExceptionsResolved int     `json:"exceptions_resolved" bson:"exceptions_resolved"`
}

// RunStats is everything a finished or failed run reports.
type RunStats struct {
	RunID     string    `json:"run_id" bson:"run_id"`
	State     State     `json:"state" bson:"state"`
	SimStart  time.Time `json:"sim_start" bson:"sim_start"`
	SimEnd    time.Time `json:"sim_end" bson:"sim_end"`
	WallStart time.Time `json:"wall_start" bson:"wall_start"`
	WallEnd   time.Time `json:"wall_end" bson:"wall_end"`

	EventCounts  map[string]int `json:"event_counts" bson:"event_counts"`
	DaySummaries []DaySummary   `json:"day_summaries" bson:"day_summaries"`
	Errors       []string       `json:"errors,omitempty" bson:"errors,omitempty"`
	Warnings     []string       `json:"warnings,omitempty" bson:"warnings,omitempty"`

	ShippingTasksCreated    int `json:"shipping_tasks_created" bson:"shipping_tasks_created"`
	ShippingTasksCompleted  int `json:"shipping_tasks_completed" bson:"shipping_tasks_completed"`
	ReceivingTasksCreated   int `json:"receiving_tasks_created" bson:"receiving_tasks_created"`
	ReceivingTasksCompleted int `json:"receiving_tasks_completed" bson:"receiving_tasks_completed"`
	OvertimeTasksCompleted  int `json:"overtime_tasks_completed" bson:"overtime_tasks_completed"`
	OverdueReceivingTasks   int `json:"overdue_receiving_tasks" bson:"overdue_receiving_tasks"`

	WavesPlanned   int `json:"waves_planned" bson:"waves_planned"`
	WavesCompleted int `json:"waves_completed" bson:"waves_completed"`

	OvertimeSessions   int     `json:"overtime_sessions" bson:"overtime_sessions"`
	TotalOvertimeHours float64 `json:"total_overtime_hours" bson:"total_overtime_hours"`

	ExceptionsDetected int `json:"exceptions_detected" bson:"exceptions_detected"`
	ExceptionsResolved int `json:"exceptions_resolved" bson:"exceptions_resolved"`
	ExceptionsActive   int `json:"exceptions_active" bson:"exceptions_active"`

	PeakUtilization float64           `json:"peak_utilization" bson:"peak_utilization"`
	FinalMetrics    *tracking.Metrics `json:"final_metrics,omitempty" bson:"final_metrics,omitempty"`
}

// Stats returns the run report, or nil while the run is still going.
func (e *Engine) Stats() *RunStats {
	return e.stats
}

// buildDaySummary tallies one date's work as it stands right now.
func (e *Engine) buildDaySummary(date time.Time) DaySummary {
	summary := DaySummary{Date: date.Format("2006-01-02")}

	for _, id := range e.taskIDs {
		t := e.tasks[id]
		switch t.Type {
		case tasks.TypeShipping:
			if !masterdata.SameDate(e.orderDates[t.TaskID], date) {
				continue
			}
			summary.ShippingTotal++
			if e.effectivelyComplete(t) {
				summary.ShippingCompleted++
			}
		case tasks.TypeReceiving:
			if !masterdata.SameDate(t.ArrivalDate, date) {
				continue
			}
			summary.ReceivingTotal++
			if e.effectivelyComplete(t) {
				summary.ReceivingCompleted++
			}
		}
	}

	for _, wave := range e.catalog.WavesOn(date) {
		if wave.Status == waves.StatusCompleted {
			summary.WavesCompleted++
		}
	}

	for _, session := range e.overtime.SessionsOn(date) {
		summary.OvertimeSessions++
		if session.ActualEndAt.IsZero() {
			summary.OvertimeHours += session.PlannedHours
		} else {
			summary.OvertimeHours += session.ActualHours
		}
	}
	summary.OvertimeHours = math.Round(summary.OvertimeHours*10) / 10

	for _, fault := range e.faults.History() {
		if masterdata.SameDate(fault.DetectionTime, date) {
			summary.ExceptionsDetected++
		}
		if fault.Status == exceptions.StatusResolved && masterdata.SameDate(fault.ResolutionTime, date) {
			summary.ExceptionsResolved++
		}
	}
	return summary
}

// effectivelyComplete treats a task handed to overtime as done once its
// variant finished.
func (e *Engine) effectivelyComplete(t *tasks.Task) bool {
	if t.Status == tasks.StatusCompleted {
		return true
	}
	if variant, found := e.overtime.Variant(tasks.OvertimeTaskID(t.TaskID)); found {
		return variant.Status == tasks.StatusCompleted
	}
	return false
}

// finalize closes the books: a forced tracker refresh, the run report,
// and the terminal lifecycle event. Idempotent; the first exit wins.
func (e *Engine) finalize() {
	if e.stats != nil {
		return
	}
	e.wallEnd = time.Now()
	now := e.clock.Now()
	e.tracker.Update(now, e.trackedTasks(), true)

	stats := &RunStats{
		RunID:     e.runID,
		State:     e.state,
		SimStart:  e.cfg.StartDate,
		SimEnd:    e.cfg.EndDate,
		WallStart: e.wallStart,
		WallEnd:   e.wallEnd,

		EventCounts:  make(map[string]int, len(e.eventCounts)),
		DaySummaries: append([]DaySummary(nil), e.daySummaries...),
		Errors:       append([]string(nil), e.runErrors...),
		Warnings:     append([]string(nil), e.runWarnings...),

		ShippingTasksCreated:    e.counts.shippingCreated,
		ShippingTasksCompleted:  e.counts.shippingCompleted,
		ReceivingTasksCreated:   e.counts.receivingCreated,
		ReceivingTasksCompleted: e.counts.receivingCompleted,
		OvertimeTasksCompleted:  e.counts.overtimeCompleted,

		WavesPlanned:   e.wavesPlanned,
		WavesCompleted: len(e.catalog.History()),
	}
	for k, v := range e.eventCounts {
		stats.EventCounts[k] = v
	}

	endDate := masterdata.DateOf(now)
	for _, id := range e.taskIDs {
		t := e.tasks[id]
		if t.Type == tasks.TypeReceiving && !e.effectivelyComplete(t) &&
			!t.DeadlineDate.IsZero() && masterdata.DateOf(t.DeadlineDate).Before(endDate) {
			stats.OverdueReceivingTasks++
		}
	}

	otStats := e.overtime.Stats()
	stats.OvertimeSessions = otStats.Sessions
	stats.TotalOvertimeHours = otStats.TotalHours

	for _, fault := range e.faults.History() {
		stats.ExceptionsDetected++
		if fault.Status == exceptions.StatusResolved {
			stats.ExceptionsResolved++
		}
	}
	stats.ExceptionsActive = e.faults.ActiveCount()

	for _, row := range e.tracker.MetricsHistory(0) {
		if row.WorkstationUtilization > stats.PeakUtilization {
			stats.PeakUtilization = row.WorkstationUtilization
		}
	}
	if metrics, found := e.tracker.CurrentMetrics(); found {
		stats.FinalMetrics = &metrics
	}

	e.stats = stats
	e.publishRunFinished(stats)
	e.log.Info("simulation finalized",
		"state", e.state,
		"days", len(stats.DaySummaries),
		"shipping_completed", stats.ShippingTasksCompleted,
		"receiving_completed", stats.ReceivingTasksCompleted,
		"waves_completed", stats.WavesCompleted,
		"overtime_sessions", stats.OvertimeSessions,
		"exceptions", stats.ExceptionsDetected,
		"wall_time", e.wallEnd.Sub(e.wallStart).String())
}
