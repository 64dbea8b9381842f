package exceptions

import (
	"fmt"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

// Type labels the kind of fault raised on the floor.
type Type string

const (
	TypeInventoryShortage Type = "INVENTORY_SHORTAGE"
	TypeItemDamage        Type = "ITEM_DAMAGE"
	TypePickingError      Type = "PICKING_ERROR"
	TypeSystemError       Type = "SYSTEM_ERROR"
	TypeQualityIssue      Type = "QUALITY_ISSUE"
	TypeBarcodeUnreadable Type = "BARCODE_UNREADABLE"
	TypePackagingError    Type = "PACKAGING_ERROR"
	TypeLocationError     Type = "LOCATION_ERROR"
)

// IsValid checks if the type is valid.
func (t Type) IsValid() bool {
	switch t {
	case TypeInventoryShortage, TypeItemDamage, TypePickingError, TypeSystemError,
		TypeQualityIssue, TypeBarcodeUnreadable, TypePackagingError, TypeLocationError:
		return true
	default:
		return false
	}
}

// Priority ranks how fast a fault must be worked.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// IsValid checks if the priority is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Bump raises the priority one level; CRITICAL stays put.
func (p Priority) Bump() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	case PriorityHigh:
		return PriorityCritical
	default:
		return p
	}
}

// IsUrgent reports whether the priority may preempt a busy station.
func (p Priority) IsUrgent() bool {
	return p == PriorityCritical || p == PriorityHigh
}

// Status tracks a fault through its handling lifecycle.
type Status string

const (
	StatusDetected   Status = "DETECTED"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusEscalated  Status = "ESCALATED"
	StatusCancelled  Status = "CANCELLED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusDetected, StatusAssigned, StatusInProgress, StatusResolved,
		StatusEscalated, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the fault needs no further handling.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// Event is one fault raised during the run and everything its handling
// accumulated.
type Event struct {
	ExceptionID string   `json:"exception_id"`
	Type        Type     `json:"exception_type"`
	Priority    Priority `json:"priority"`
	Status      Status   `json:"status"`

	// What the fault hit.
	TaskID    string `json:"task_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	StationID string `json:"station_id,omitempty"`

	DetectionTime     time.Time `json:"detection_time,omitempty"`
	AssignmentTime    time.Time `json:"assignment_time,omitempty"`
	StartHandlingTime time.Time `json:"start_handling_time,omitempty"`
	ResolutionTime    time.Time `json:"resolution_time,omitempty"`

	AssignedLeader   int    `json:"assigned_leader,omitempty"`
	HandlingStation  string `json:"handling_station,omitempty"`
	// Task whose execution this fault blocked at the handling station:
	// either paused mid-run or held back before it started.
	InterruptedTaskID string `json:"interrupted_task_id,omitempty"`

	EstimatedHandlingMinutes float64 `json:"estimated_handling_time,omitempty"`
	ActualHandlingMinutes    float64 `json:"actual_handling_time,omitempty"`

	Description     string `json:"description,omitempty"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`

	// Escalation trail.
	OriginalPriority Priority  `json:"original_priority,omitempty"`
	EscalationReason string    `json:"escalation_reason,omitempty"`
	EscalationTime   time.Time `json:"escalation_time,omitempty"`
}

// HandlingElapsedMinutes returns how long the fault has been worked on.
func (e *Event) HandlingElapsedMinutes(now time.Time) float64 {
	if e.StartHandlingTime.IsZero() {
		return 0
	}
	return now.Sub(e.StartHandlingTime).Minutes()
}

// ExceptionID builds the canonical fault id.
func ExceptionID(at time.Time, n int) string {
	return fmt.Sprintf("EXC_%s_%04d", at.Format("20060102_150405"), n)
}

func ambientExceptionID(at time.Time, n int) string {
	return fmt.Sprintf("SYS_%s_%04d", at.Format("20060102_150405"), n)
}

// handlingWindow bounds the handling minutes for one fault type.
type handlingWindow struct {
	Min, Avg, Max float64
}

var handlingWindows = map[Type]handlingWindow{
	TypeInventoryShortage: {Min: 10, Avg: 20, Max: 45},
	TypeItemDamage:        {Min: 5, Avg: 12, Max: 30},
	TypePickingError:      {Min: 8, Avg: 15, Max: 25},
	TypeSystemError:       {Min: 15, Avg: 30, Max: 60},
	TypeQualityIssue:      {Min: 20, Avg: 35, Max: 90},
	TypeBarcodeUnreadable: {Min: 3, Avg: 8, Max: 15},
	TypePackagingError:    {Min: 5, Avg: 10, Max: 20},
	TypeLocationError:     {Min: 8, Avg: 18, Max: 35},
}

var defaultHandlingWindow = handlingWindow{Min: 10, Avg: 20, Max: 40}

// Sampling distribution over fault types, most common first. The two
// slices stay index-aligned.
var (
	sampleTypes   = []Type{TypePickingError, TypeBarcodeUnreadable, TypeInventoryShortage, TypePackagingError, TypeItemDamage, TypeLocationError, TypeQualityIssue, TypeSystemError}
	sampleWeights = []float64{0.30, 0.20, 0.15, 0.15, 0.10, 0.05, 0.03, 0.02}
)

var basePriorities = map[Type]Priority{
	TypeSystemError:       PriorityCritical,
	TypeInventoryShortage: PriorityHigh,
	TypeQualityIssue:      PriorityHigh,
	TypeItemDamage:        PriorityMedium,
	TypePickingError:      PriorityMedium,
	TypePackagingError:    PriorityMedium,
	TypeLocationError:     PriorityMedium,
	TypeBarcodeUnreadable: PriorityLow,
}

// priorityFor maps a fault type to its handling priority, one level higher
// when the fault hit a P1 task.
func priorityFor(typ Type, taskPriority tasks.Priority) Priority {
	priority, ok := basePriorities[typ]
	if !ok {
		priority = PriorityMedium
	}
	if taskPriority == tasks.PriorityP1 {
		priority = priority.Bump()
	}
	return priority
}
