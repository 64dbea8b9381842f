package stations

import (
	"errors"
	"fmt"
	"time"
)

// Reservation guard errors.
var (
	ErrStationNotIdle = errors.New("station is not idle")
	ErrStationNotBusy = errors.New("station has no running task")
)

// Status represents the operational state of a workstation.
type Status string

const (
	StatusIdle        Status = "IDLE"
	StatusStartingUp  Status = "STARTING_UP"
	StatusBusy        Status = "BUSY"
	StatusMaintenance Status = "MAINTENANCE"
	StatusReserved    Status = "RESERVED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusStartingUp, StatusBusy, StatusMaintenance, StatusReserved:
		return true
	default:
		return false
	}
}

// Station is one workstation slot on a floor. Fixed stations are staffed
// every day; flex stations open on demand.
type Station struct {
	StationID            string    `json:"station_id"`
	Floor                int       `json:"floor"`
	IsFixed              bool      `json:"is_fixed"`
	Status               Status    `json:"status"`
	CurrentTaskID        string    `json:"current_task_id,omitempty"`
	AssignedStaff        int       `json:"assigned_staff,omitempty"`
	StartupStartedAt     time.Time `json:"startup_started_at,omitempty"`
	AvailableTime        time.Time `json:"available_time,omitempty"`
	ReservedForException bool      `json:"reserved_for_exception"`
}

// FixedStationID builds the id of the n-th fixed station on a floor (1-based).
func FixedStationID(floor, n int) string {
	return fmt.Sprintf("ST%dF%02d", floor, n)
}

// FlexStationID builds the id of the n-th flex station on a floor (1-based).
func FlexStationID(floor, n int) string {
	return fmt.Sprintf("ST%dT%02d", floor, n)
}

// Schedule books a task onto the station at assignment time. An idle
// station enters startup; a station already working queues the task behind
// its available time. The caller decides eligibility.
func (s *Station) Schedule(taskID string, staffID int, at, completion time.Time) {
	if s.Status == StatusIdle {
		s.Status = StatusStartingUp
		s.StartupStartedAt = at
	}
	if s.CurrentTaskID == "" {
		s.CurrentTaskID = taskID
	}
	s.AssignedStaff = staffID
	if completion.After(s.AvailableTime) {
		s.AvailableTime = completion
	}
}

// StartTask marks the station busy with the given task.
func (s *Station) StartTask(taskID string) {
	s.CurrentTaskID = taskID
	s.Status = StatusBusy
}

// CompleteTask releases the station after its task finished.
func (s *Station) CompleteTask(at time.Time) {
	s.CurrentTaskID = ""
	s.Status = StatusIdle
	s.AvailableTime = at
}

// BecomeIdle clears a station that has nothing queued. A no-op while a
// task is attached or the station is reserved.
func (s *Station) BecomeIdle(at time.Time) {
	if s.CurrentTaskID != "" || s.Status == StatusReserved || s.Status == StatusMaintenance {
		return
	}
	s.Status = StatusIdle
	if at.After(s.AvailableTime) {
		s.AvailableTime = at
	}
}

// Reserve takes an idle or warming station for exception handling. A
// warming station keeps its queued task; the release decides whether that
// task proceeds.
func (s *Station) Reserve() error {
	if s.Status != StatusIdle && s.Status != StatusStartingUp {
		return fmt.Errorf("%w: %s is %s", ErrStationNotIdle, s.StationID, s.Status)
	}
	s.Status = StatusReserved
	s.ReservedForException = true
	return nil
}

// ReserveInterrupting takes a busy station for exception handling. The
// caller pauses the running task.
func (s *Station) ReserveInterrupting() error {
	if s.Status != StatusBusy {
		return fmt.Errorf("%w: %s is %s", ErrStationNotBusy, s.StationID, s.Status)
	}
	s.Status = StatusReserved
	s.ReservedForException = true
	return nil
}

// ReleaseReservation hands the station back after exception handling.
// resumeTask restores the interrupted task; otherwise the station idles.
func (s *Station) ReleaseReservation(resumeTask bool, at time.Time) {
	s.ReservedForException = false
	if resumeTask && s.CurrentTaskID != "" {
		s.Status = StatusBusy
		return
	}
	s.CurrentTaskID = ""
	s.Status = StatusIdle
	if at.After(s.AvailableTime) {
		s.AvailableTime = at
	}
}

// CanAcceptWork reports whether the packer and gap-fill may place tasks here.
func (s *Station) CanAcceptWork() bool {
	return !s.ReservedForException && s.Status != StatusMaintenance && s.Status != StatusReserved
}

// AvailableAt reports whether the station is free for gap-fill work at now:
// idle or still starting up, with nothing queued beyond now.
func (s *Station) AvailableAt(now time.Time) bool {
	if !s.CanAcceptWork() {
		return false
	}
	if s.Status != StatusIdle && s.Status != StatusStartingUp {
		return false
	}
	return !s.AvailableTime.After(now)
}
