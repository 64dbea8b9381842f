package receiving

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

// Urgency labels why a receiving line sits where it does in the priority
// ladder.
type Urgency string

const (
	UrgencyOverdue     Urgency = "OVERDUE"
	UrgencyDueToday    Urgency = "DUE_TODAY"
	UrgencyUrgentItem  Urgency = "URGENT_ITEM"
	UrgencyHighVolume  Urgency = "HIGH_VOLUME"
	UrgencyDueTomorrow Urgency = "DUE_TOMORROW"
	UrgencyOnSchedule  Urgency = "ON_SCHEDULE"
)

// IsValid checks if the urgency label is valid.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyOverdue, UrgencyDueToday, UrgencyUrgentItem, UrgencyHighVolume, UrgencyDueTomorrow, UrgencyOnSchedule:
		return true
	default:
		return false
	}
}

// DeadlineInfo is the arrival arithmetic for one receiving line. The
// deadline falls receiving_completion_days after arrival, counting the
// arrival day itself.
type DeadlineInfo struct {
	ArrivalDate      time.Time `json:"arrival_date"`
	DeadlineDate     time.Time `json:"deadline_date"`
	DaysSinceArrival int       `json:"days_since_arrival"`
	RemainingDays    int       `json:"remaining_days"`
	IsOverdue        bool      `json:"is_overdue"`
	IsDueToday       bool      `json:"is_due_today"`
}

// ProcessedReceiving is one receiving line with its priority decision,
// deadline arithmetic and planning estimate.
type ProcessedReceiving struct {
	Record            masterdata.ReceivingRecord `json:"record"`
	Priority          tasks.Priority             `json:"priority_level"`
	Urgency           Urgency                    `json:"urgency"`
	UrgencyReason     string                     `json:"urgency_reason"`
	Deadline          DeadlineInfo               `json:"deadline"`
	EstimatedDuration float64                    `json:"estimated_duration"`
}

// Classifier assigns deadlines and priorities to inbound receiving lines.
type Classifier struct {
	params masterdata.Params
	log    *slog.Logger
}

// NewClassifier builds a classifier over the master-data store.
func NewClassifier(store *masterdata.Store, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		params: store.Params(),
		log:    logger.With("component", "receiving"),
	}
}

// Deadline computes the arrival arithmetic for a receiving line as of
// today. Lines without an arrival date count as arriving today.
func (c *Classifier) Deadline(record masterdata.ReceivingRecord, today time.Time) DeadlineInfo {
	today = masterdata.DateOf(today)
	arrival := masterdata.DateOf(record.ArrivalDate)
	if record.ArrivalDate.IsZero() {
		arrival = today
	}

	// Day 1 is the arrival day, so a 3-day window ends two days later.
	deadline := arrival.AddDate(0, 0, c.params.ReceivingCompletionDays-1)

	remaining := daysBetween(today, deadline)
	if remaining < 0 {
		remaining = 0
	}

	return DeadlineInfo{
		ArrivalDate:      arrival,
		DeadlineDate:     deadline,
		DaysSinceArrival: daysBetween(arrival, today),
		RemainingDays:    remaining,
		IsOverdue:        today.After(deadline),
		IsDueToday:       masterdata.SameDate(today, deadline),
	}
}

// Classify walks the urgency ladder for one receiving line: overdue wins,
// then due-today, then urgent item codes and high volumes, then
// due-tomorrow; everything else is on schedule.
func (c *Classifier) Classify(record masterdata.ReceivingRecord, deadline DeadlineInfo) (tasks.Priority, Urgency, string) {
	switch {
	case deadline.IsOverdue:
		return c.priorityFor(c.params.ReceivingCriticalPriority, tasks.PriorityP1),
			UrgencyOverdue,
			fmt.Sprintf("overdue by %d days", deadline.DaysSinceArrival)
	case deadline.IsDueToday:
		return c.priorityFor(c.params.ReceivingUrgentPriority, tasks.PriorityP2),
			UrgencyDueToday,
			fmt.Sprintf("due today (day %d of window)", c.params.ReceivingCompletionDays)
	case containsString(c.params.UrgentItemCodes, record.FamilyCode):
		return c.priorityFor(c.params.ReceivingUrgentPriority, tasks.PriorityP2),
			UrgencyUrgentItem,
			fmt.Sprintf("urgent item code (%s)", record.FamilyCode)
	case record.Quantity >= c.params.CriticalQuantityThreshold:
		return c.priorityFor(c.params.ReceivingUrgentPriority, tasks.PriorityP2),
			UrgencyHighVolume,
			fmt.Sprintf("high volume (%d pieces)", record.Quantity)
	case deadline.RemainingDays == 1:
		return c.priorityFor(c.params.ReceivingUrgentPriority, tasks.PriorityP2),
			UrgencyDueTomorrow,
			"due tomorrow (1 day remaining)"
	default:
		return c.priorityFor(c.params.ReceivingNormalPriority, tasks.PriorityP4),
			UrgencyOnSchedule,
			fmt.Sprintf("on schedule (%d days remaining)", deadline.RemainingDays)
	}
}

// Process classifies one receiving line end to end.
func (c *Classifier) Process(record masterdata.ReceivingRecord, today time.Time) ProcessedReceiving {
	deadline := c.Deadline(record, today)
	priority, urgency, reason := c.Classify(record, deadline)
	return ProcessedReceiving{
		Record:            record,
		Priority:          priority,
		Urgency:           urgency,
		UrgencyReason:     reason,
		Deadline:          deadline,
		EstimatedDuration: tasks.ReceivingEstimate(record.Quantity, c.params.ReceivingTimePerPieceMinutes),
	}
}

// ProcessBatch classifies a batch of receiving lines against today's date.
func (c *Classifier) ProcessBatch(records []masterdata.ReceivingRecord, today time.Time) []ProcessedReceiving {
	processed := make([]ProcessedReceiving, 0, len(records))
	counts := make(map[tasks.Priority]int)
	overdue := 0
	for _, record := range records {
		p := c.Process(record, today)
		processed = append(processed, p)
		counts[p.Priority]++
		if p.Deadline.IsOverdue {
			overdue++
		}
	}

	c.log.Info("receiving classified",
		"total", len(processed),
		"critical", counts[tasks.PriorityP1],
		"urgent", counts[tasks.PriorityP2],
		"normal", counts[tasks.PriorityP4])
	if overdue > 0 {
		c.log.Warn("overdue receiving lines", "count", overdue)
	}
	return processed
}

// priorityFor maps a configured priority name onto the task priority set,
// falling back when the parameter carries garbage.
func (c *Classifier) priorityFor(configured string, fallback tasks.Priority) tasks.Priority {
	p := tasks.Priority(configured)
	if !p.IsValid() {
		return fallback
	}
	return p
}

// daysBetween counts whole days from a to b; negative when b is earlier.
func daysBetween(a, b time.Time) int {
	return int(masterdata.DateOf(b).Sub(masterdata.DateOf(a)).Hours() / 24)
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
