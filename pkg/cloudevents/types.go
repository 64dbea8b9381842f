package cloudevents

import (
	"time"
)

// EventType constants for simulator domain events
const (
	// Run lifecycle events
	RunStarted   = "com.cpdold.sim.run.started"
	RunCompleted = "com.cpdold.sim.run.completed"
	RunFailed    = "com.cpdold.sim.run.failed"

	// Daily events
	DayCompleted = "com.cpdold.sim.day.completed"

	// Wave events
	WaveCompleted = "com.cpdold.sim.wave.completed"

	// Overtime events
	OvertimeScheduled = "com.cpdold.sim.overtime.scheduled"

	// Exception events
	ExceptionResolved = "com.cpdold.sim.exception.resolved"
)

// Source constants for event sources
const (
	SourceSimulator = "/cpdold/simulator"
	SourceAPI       = "/cpdold/api"
)

// SimCloudEvent represents a CloudEvents v1.0 compliant event
type SimCloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	// Simulator-specific extensions
	RunID         string `json:"simrunid,omitempty"`
	CorrelationID string `json:"simcorrelationid,omitempty"`
}

// RunStartedData represents the data payload for RunStarted events
type RunStartedData struct {
	RunID      string `json:"runId"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	RandomSeed int64  `json:"randomSeed"`
}

// RunCompletedData represents the data payload for RunCompleted events
type RunCompletedData struct {
	RunID          string  `json:"runId"`
	State          string  `json:"state"`
	SimulatedDays  int     `json:"simulatedDays"`
	TasksCompleted int     `json:"tasksCompleted"`
	WavesCompleted int     `json:"wavesCompleted"`
	Exceptions     int     `json:"exceptions"`
	Errors         int     `json:"errors"`
	Warnings       int     `json:"warnings"`
	Efficiency     float64 `json:"efficiency"`
}

// DayCompletedData represents the data payload for DayCompleted events
type DayCompletedData struct {
	RunID            string `json:"runId"`
	Date             string `json:"date"`
	TasksCreated     int    `json:"tasksCreated"`
	TasksCompleted   int    `json:"tasksCompleted"`
	WavesCompleted   int    `json:"wavesCompleted"`
	OvertimeSessions int    `json:"overtimeSessions"`
	Exceptions       int    `json:"exceptions"`
}

// WaveCompletedData represents the data payload for WaveCompleted events
type WaveCompletedData struct {
	RunID       string    `json:"runId"`
	WaveID      string    `json:"waveId"`
	DeliveryAt  time.Time `json:"deliveryAt"`
	TaskCount   int       `json:"taskCount"`
	CompletedAt time.Time `json:"completedAt"`
}

// OvertimeScheduledData represents the data payload for OvertimeScheduled events
type OvertimeScheduledData struct {
	RunID         string    `json:"runId"`
	TaskID        string    `json:"taskId"`
	OriginalTask  string    `json:"originalTask"`
	RequiredHours float64   `json:"requiredHours"`
	StartAt       time.Time `json:"startAt"`
	EndAt         time.Time `json:"endAt"`
}

// ExceptionResolvedData represents the data payload for ExceptionResolved events
type ExceptionResolvedData struct {
	RunID           string  `json:"runId"`
	ExceptionID     string  `json:"exceptionId"`
	ExceptionType   string  `json:"exceptionType"`
	Priority        string  `json:"priority"`
	HandlingMinutes float64 `json:"handlingMinutes"`
	Escalated       bool    `json:"escalated"`
}
