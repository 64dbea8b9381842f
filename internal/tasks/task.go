package tasks

import (
	"errors"
	"fmt"
	"time"
)

// Task errors
var (
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrTaskNotFound      = errors.New("task not found")
)

// Priority is the work priority class shared by shipping orders, receiving
// lines and the tasks built from them. P1 is the highest.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// IsValid checks if the priority is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityP1, PriorityP2, PriorityP3, PriorityP4:
		return true
	default:
		return false
	}
}

// Rank orders priorities for sorting; unknown classes sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	case PriorityP4:
		return 4
	default:
		return 5
	}
}

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusPaused     Status = "PAUSED"
	StatusCancelled  Status = "CANCELLED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusPaused, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends the task lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Type distinguishes the kinds of work a station executes.
type Type string

const (
	TypeShipping  Type = "SHIPPING"
	TypeReceiving Type = "RECEIVING"
	TypeOvertime  Type = "OVERTIME"
)

// IsValid checks if the task type is valid.
func (t Type) IsValid() bool {
	switch t {
	case TypeShipping, TypeReceiving, TypeOvertime:
		return true
	default:
		return false
	}
}

// Task is the unit of station work. Shipping tasks carry wave and
// delivery context, receiving tasks carry the arrival deadline ladder,
// overtime variants inherit from their originals.
type Task struct {
	TaskID   string   `json:"task_id"`
	OrderID  string   `json:"order_id"`
	Type     Type     `json:"task_type"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	FamilyCode     string `json:"family_code"`
	PartNumber     string `json:"part_number"`
	Quantity       int    `json:"quantity"`
	Floor          int    `json:"floor"`
	RequiresRepack bool   `json:"requires_repack"`

	// Planning estimate in minutes, no randomness.
	EstimatedDuration float64 `json:"estimated_duration"`

	// Shipping context.
	Partcustid           string    `json:"partcustid,omitempty"`
	RouteCode            string    `json:"route_code,omitempty"`
	RouteGroup           string    `json:"route_group,omitempty"`
	WaveID               string    `json:"wave_id,omitempty"`
	DeliveryDeadline     time.Time `json:"delivery_deadline,omitempty"`
	AvailableWorkMinutes float64   `json:"available_work_minutes,omitempty"`

	// Receiving context.
	ArrivalDate      time.Time `json:"arrival_date,omitempty"`
	DeadlineDate     time.Time `json:"deadline_date,omitempty"`
	DaysSinceArrival int       `json:"days_since_arrival,omitempty"`
	IsOverdue        bool      `json:"is_overdue,omitempty"`

	// Assignment and execution.
	AssignedStation   string    `json:"assigned_station,omitempty"`
	AssignedStaff     int       `json:"assigned_staff,omitempty"`
	PlannedStart      time.Time `json:"planned_start,omitempty"`
	PlannedCompletion time.Time `json:"planned_completion,omitempty"`
	ActualStart       time.Time `json:"actual_start,omitempty"`
	ActualCompletion  time.Time `json:"actual_completion,omitempty"`
	ActualDuration    float64   `json:"actual_duration,omitempty"`

	// Set when the overtime engine takes the task over.
	OvertimeReason string `json:"overtime_reason,omitempty"`
}

// ShippingTaskID builds the canonical shipping task id for an order line.
func ShippingTaskID(indexNo string) string {
	return fmt.Sprintf("T_SHIP_%s", indexNo)
}

// ReceivingTaskID builds the canonical receiving task id for a receiving line.
func ReceivingTaskID(receivingID string) string {
	return fmt.Sprintf("T_RCV_%s", receivingID)
}

// OvertimeTaskID builds the id of the overtime variant of a task.
func OvertimeTaskID(taskID string) string {
	return taskID + "_OT"
}

// IsSubWarehouse reports whether the task ships to a sub-warehouse, either
// directly or through the composite route/partcustid pairs.
func (t *Task) IsSubWarehouse() bool {
	if t.Type == TypeReceiving {
		return false
	}
	switch {
	case t.RouteCode == "SDTC" || t.RouteCode == "SDHN":
		return true
	case t.RouteCode == "R15" && t.Partcustid == "SDTC":
		return true
	case t.RouteCode == "R16" && t.Partcustid == "SDHN":
		return true
	default:
		return false
	}
}

// Assign binds the task to a station and staff member.
func (t *Task) Assign(stationID string, staffID int) error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: %s assign from %s", ErrInvalidTransition, t.TaskID, t.Status)
	}
	t.Status = StatusAssigned
	t.AssignedStation = stationID
	t.AssignedStaff = staffID
	return nil
}

// Start moves the task into execution with its randomized actual duration.
func (t *Task) Start(at time.Time, actualDuration float64) error {
	if t.Status != StatusAssigned {
		return fmt.Errorf("%w: %s start from %s", ErrInvalidTransition, t.TaskID, t.Status)
	}
	t.Status = StatusInProgress
	t.ActualStart = at
	t.ActualDuration = actualDuration
	return nil
}

// Complete finishes the task at the given simulated instant.
func (t *Task) Complete(at time.Time) error {
	if t.Status != StatusInProgress {
		return fmt.Errorf("%w: %s complete from %s", ErrInvalidTransition, t.TaskID, t.Status)
	}
	if !t.ActualStart.IsZero() && at.Before(t.ActualStart) {
		at = t.ActualStart
	}
	t.Status = StatusCompleted
	t.ActualCompletion = at
	return nil
}

// Pause suspends an in-progress task, used when an exception preempts the
// station.
func (t *Task) Pause() error {
	if t.Status != StatusInProgress {
		return fmt.Errorf("%w: %s pause from %s", ErrInvalidTransition, t.TaskID, t.Status)
	}
	t.Status = StatusPaused
	return nil
}

// Resume restarts a paused task.
func (t *Task) Resume() error {
	if t.Status != StatusPaused {
		return fmt.Errorf("%w: %s resume from %s", ErrInvalidTransition, t.TaskID, t.Status)
	}
	t.Status = StatusInProgress
	return nil
}

// Cancel terminates a task that has not completed, e.g. when its overtime
// variant supersedes it.
func (t *Task) Cancel() error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: %s cancel from %s", ErrInvalidTransition, t.TaskID, t.Status)
	}
	t.Status = StatusCancelled
	return nil
}

// RemainingMinutes estimates the work left at the given instant based on
// the actual duration when started, else the planning estimate.
func (t *Task) RemainingMinutes(now time.Time) float64 {
	switch t.Status {
	case StatusCompleted, StatusCancelled:
		return 0
	case StatusInProgress:
		duration := t.ActualDuration
		if duration <= 0 {
			duration = t.EstimatedDuration
		}
		elapsed := now.Sub(t.ActualStart).Minutes()
		if elapsed >= duration {
			return 0
		}
		return duration - elapsed
	default:
		return t.EstimatedDuration
	}
}
