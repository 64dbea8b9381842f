package waves

import (
	"errors"
	"fmt"
	"time"
)

// Wave errors
var (
	ErrWaveNotFound  = errors.New("wave not found")
	ErrNoTimetable   = errors.New("route schedule is empty")
	ErrNotAssignable = errors.New("wave no longer accepts tasks")
	ErrNotStartable  = errors.New("wave cannot start from its current status")
	ErrStartTooEarly = errors.New("wave start requested too early")
)

// Status represents the lifecycle state of a delivery wave.
type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusReady      Status = "READY"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusDelayed    Status = "DELAYED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPlanned, StatusReady, StatusInProgress, StatusCompleted, StatusCancelled, StatusDelayed:
		return true
	default:
		return false
	}
}

// IsAssignable reports whether tasks may still be attached to a wave in
// this status.
func (s Status) IsAssignable() bool {
	return s == StatusPlanned || s == StatusReady || s == StatusInProgress
}

// IsTerminal reports whether the status ends the wave lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Type distinguishes scheduled delivery waves from ad-hoc groupings.
type Type string

const (
	TypeScheduled Type = "SCHEDULED"
	TypeUrgent    Type = "URGENT"
	TypeReceiving Type = "RECEIVING"
)

// IsValid checks if the wave type is valid.
func (t Type) IsValid() bool {
	switch t {
	case TypeScheduled, TypeUrgent, TypeReceiving:
		return true
	default:
		return false
	}
}

// Wave aggregates the routes and partner customers that leave together at
// one delivery time on one date. Normal shipping is planned per wave; the
// latest order cutoff opens the picking window and the delivery time
// closes it.
type Wave struct {
	ID             string    `json:"wave_id"`
	DeliveryHHMM   string    `json:"delivery_time"`
	DeliveryAt     time.Time `json:"delivery_datetime"`
	LatestCutoffAt time.Time `json:"latest_cutoff_datetime"`

	Routes      []string `json:"included_routes"`
	Partcustids []string `json:"included_partcustids"`
	CutoffTimes []string `json:"cutoff_times"`

	Type   Type   `json:"wave_type"`
	Status Status `json:"status"`

	TaskIDs          []string `json:"task_ids"`
	TotalTasks       int      `json:"total_tasks"`
	CompletedTasks   int      `json:"completed_tasks"`
	AssignedStations []string `json:"assigned_stations"`

	ActualStart      time.Time `json:"actual_start_time,omitempty"`
	ActualCompletion time.Time `json:"actual_completion_time,omitempty"`
}

// WaveID builds the canonical wave id for a delivery time on a date.
func WaveID(deliveryHHMM string, date time.Time) string {
	return fmt.Sprintf("WAVE_%s_%s", deliveryHHMM, date.Format("20060102"))
}

// AvailableWorkMinutes is the picking window between the latest cutoff and
// the delivery time.
func (w *Wave) AvailableWorkMinutes() float64 {
	if w.LatestCutoffAt.IsZero() || w.DeliveryAt.IsZero() {
		return 0
	}
	minutes := w.DeliveryAt.Sub(w.LatestCutoffAt).Minutes()
	if minutes < 0 {
		return 0
	}
	return minutes
}

// AddTask attaches a task to the wave.
func (w *Wave) AddTask(taskID string) {
	w.TaskIDs = append(w.TaskIDs, taskID)
	w.TotalTasks++
}

// AttachStation records a station working this wave.
func (w *Wave) AttachStation(stationID string) {
	for _, id := range w.AssignedStations {
		if id == stationID {
			return
		}
	}
	w.AssignedStations = append(w.AssignedStations, stationID)
}

// Start moves the wave into progress. Starting more than
// earlyBufferMinutes before the latest cutoff is refused.
func (w *Wave) Start(now time.Time, earlyBufferMinutes float64) error {
	if w.Status != StatusPlanned && w.Status != StatusReady {
		return fmt.Errorf("%w: %s is %s", ErrNotStartable, w.ID, w.Status)
	}
	if !w.LatestCutoffAt.IsZero() {
		if early := w.LatestCutoffAt.Sub(now).Minutes(); early > earlyBufferMinutes {
			return fmt.Errorf("%w: %s %.1f minutes before cutoff", ErrStartTooEarly, w.ID, early)
		}
	}
	w.Status = StatusInProgress
	w.ActualStart = now
	return nil
}

// Cancel abandons a wave that has not completed.
func (w *Wave) Cancel() error {
	if w.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotStartable, w.ID, w.Status)
	}
	w.Status = StatusCancelled
	return nil
}

// FloorWorkWindow returns the fixed packing window, in minutes, granted to
// normal shipping waves on a floor.
func FloorWorkWindow(floor int) float64 {
	switch floor {
	case 3:
		return 30
	case 2:
		return 25
	default:
		return 30
	}
}
