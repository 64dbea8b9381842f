package sim

import "time"

// EventType identifies the kind of a scheduled simulation event
type EventType string

const (
	EventSimulationStart        EventType = "SIMULATION_START"
	EventSimulationEnd          EventType = "SIMULATION_END"
	EventTaskAssign             EventType = "TASK_ASSIGN"
	EventTaskStart              EventType = "TASK_START"
	EventTaskComplete           EventType = "TASK_COMPLETE"
	EventStationStartupComplete EventType = "STATION_STARTUP_COMPLETE"
	EventStationBecomeIdle      EventType = "STATION_BECOME_IDLE"
	EventReceivingLoad          EventType = "RECEIVING_LOAD"
	EventReceivingDeadlineCheck EventType = "RECEIVING_DEADLINE_CHECK"
	EventReceivingTaskAssign    EventType = "RECEIVING_TASK_ASSIGN"
	EventOvertimeEvaluation     EventType = "OVERTIME_EVALUATION"
	EventOvertimeStart          EventType = "OVERTIME_START"
	EventOvertimeEnd            EventType = "OVERTIME_END"
	EventExceptionDetected      EventType = "EXCEPTION_DETECTED"
	EventExceptionResolved      EventType = "EXCEPTION_RESOLVED"
	EventSystemStatusUpdate     EventType = "SYSTEM_STATUS_UPDATE"
	EventDailyScheduleGenerate  EventType = "DAILY_SCHEDULE_GENERATE"
	EventEndOfDayProcessing     EventType = "END_OF_DAY_PROCESSING"
	EventWaveCompletionCheck    EventType = "WAVE_COMPLETION_CHECK"
)

// IsValid checks if the event type is recognized
func (t EventType) IsValid() bool {
	switch t {
	case EventSimulationStart, EventSimulationEnd,
		EventTaskAssign, EventTaskStart, EventTaskComplete,
		EventStationStartupComplete, EventStationBecomeIdle,
		EventReceivingLoad, EventReceivingDeadlineCheck, EventReceivingTaskAssign,
		EventOvertimeEvaluation, EventOvertimeStart, EventOvertimeEnd,
		EventExceptionDetected, EventExceptionResolved,
		EventSystemStatusUpdate, EventDailyScheduleGenerate,
		EventEndOfDayProcessing, EventWaveCompletionCheck:
		return true
	}
	return false
}

// String returns the string representation of the event type
func (t EventType) String() string {
	return string(t)
}

// Event dispatch priorities. Lower dispatches first among equal times.
const (
	PriorityControl = 0
	PriorityHigh    = 1
	PriorityNormal  = 2
	PriorityLow     = 3
)

// Event is a scheduled occurrence in simulated time
type Event struct {
	Type     EventType
	Time     time.Time
	Priority int
	Payload  any
}
