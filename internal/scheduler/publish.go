package scheduler

import (
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/exceptions"
	"github.com/hsichihchen-design/cpdoldsim/internal/overtime"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
	"github.com/hsichihchen-design/cpdoldsim/internal/waves"
	"github.com/hsichihchen-design/cpdoldsim/pkg/cloudevents"
)

// publish hands a lifecycle event to the sink. Publishing is best-effort:
// a sink failure is logged and the run keeps going.
func (e *Engine) publish(event *cloudevents.SimCloudEvent) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(e.runCtx, event); err != nil {
		e.log.Warn("event publish failed", "type", event.Type, "error", err)
	}
}

func (e *Engine) publishRunStarted() {
	e.publish(e.events.CreateRunEvent(cloudevents.RunStarted, e.runID, cloudevents.RunStartedData{
		RunID:      e.runID,
		StartDate:  e.cfg.StartDate.Format("2006-01-02"),
		EndDate:    e.cfg.EndDate.Format("2006-01-02"),
		RandomSeed: e.cfg.Seed,
	}))
}

func (e *Engine) publishRunFinished(stats *RunStats) {
	eventType := cloudevents.RunCompleted
	if e.state == StateError {
		eventType = cloudevents.RunFailed
	}
	var efficiency float64
	if stats.FinalMetrics != nil {
		efficiency = stats.FinalMetrics.OverallEfficiency
	}
	e.publish(e.events.CreateRunEvent(eventType, e.runID, cloudevents.RunCompletedData{
		RunID:          e.runID,
		State:          string(stats.State),
		SimulatedDays:  len(stats.DaySummaries),
		TasksCompleted: stats.ShippingTasksCompleted + stats.ReceivingTasksCompleted + stats.OvertimeTasksCompleted,
		WavesCompleted: stats.WavesCompleted,
		Exceptions:     stats.ExceptionsDetected,
		Errors:         len(stats.Errors),
		Warnings:       len(stats.Warnings),
		Efficiency:     efficiency,
	}))
}

func (e *Engine) publishDaySummary(summary *DaySummary) {
	e.publish(e.events.CreateRunEvent(cloudevents.DayCompleted, e.runID, cloudevents.DayCompletedData{
		RunID:            e.runID,
		Date:             summary.Date,
		TasksCreated:     summary.ShippingTotal + summary.ReceivingTotal,
		TasksCompleted:   summary.ShippingCompleted + summary.ReceivingCompleted,
		WavesCompleted:   summary.WavesCompleted,
		OvertimeSessions: summary.OvertimeSessions,
		Exceptions:       summary.ExceptionsDetected,
	}))
}

func (e *Engine) publishWaveCompleted(wave *waves.Wave, now time.Time) {
	e.publish(e.events.CreateRunEvent(cloudevents.WaveCompleted, e.runID, cloudevents.WaveCompletedData{
		RunID:       e.runID,
		WaveID:      wave.ID,
		DeliveryAt:  wave.DeliveryAt,
		TaskCount:   wave.TotalTasks,
		CompletedAt: now,
	}))
}

// publishOvertimeScheduled emits one event per task variant the session runs.
func (e *Engine) publishOvertimeScheduled(session *overtime.Session, variants []*tasks.Task) {
	for _, variant := range variants {
		req, found := session.Requirements[variant.AssignedStation]
		if !found {
			continue
		}
		e.publish(e.events.CreateRunEvent(cloudevents.OvertimeScheduled, e.runID, cloudevents.OvertimeScheduledData{
			RunID:         e.runID,
			TaskID:        variant.TaskID,
			OriginalTask:  req.TaskID,
			RequiredHours: req.RequiredHours,
			StartAt:       session.StartAt,
			EndAt:         session.PlannedEndAt,
		}))
	}
}

func (e *Engine) publishExceptionResolved(fault *exceptions.Event, resolution *exceptions.Resolution) {
	e.publish(e.events.CreateRunEvent(cloudevents.ExceptionResolved, e.runID, cloudevents.ExceptionResolvedData{
		RunID:           e.runID,
		ExceptionID:     resolution.ExceptionID,
		ExceptionType:   string(fault.Type),
		Priority:        string(fault.Priority),
		HandlingMinutes: resolution.ActualMinutes,
		Escalated:       !fault.EscalationTime.IsZero(),
	}))
}
