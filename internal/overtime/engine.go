package overtime

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/staffing"
	"github.com/hsichihchen-design/cpdoldsim/internal/stations"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

var (
	ErrOvertimeDisabled = errors.New("overtime disabled")
	ErrNoRequirements   = errors.New("no overtime requirements")
	ErrWindowClosed     = errors.New("overtime window already closed")
	ErrSessionNotFound  = errors.New("overtime session not found")
)

// Sub-warehouse shipping counts as slipping this close to shift end.
const nearEndOfDayHours = 2.0

// Hours already on the clock when overtime is being considered.
const fullRegularDayHours = 8.0

// Session is one contiguous overtime window binding stations past shift end.
type Session struct {
	SessionID    string    `json:"session_id"`
	StartAt      time.Time `json:"start_at"`
	PlannedEndAt time.Time `json:"planned_end_at"`
	ActualEndAt  time.Time `json:"actual_end_at,omitempty"`
	Stations     []string  `json:"stations"`
	PlannedHours float64   `json:"planned_hours"`
	ActualHours  float64   `json:"actual_hours,omitempty"`
	Reason       string    `json:"reason"`

	Requirements map[string]staffing.OvertimeRequirement `json:"requirements"`
}

// SessionID builds the canonical overtime session id.
func SessionID(startAt time.Time) string {
	return fmt.Sprintf("OT_%s_%s", startAt.Format("20060102_1504"), uuid.New().String()[:8])
}

// Engine decides which slipping work crosses into overtime, turns it into
// requirement maps for the staffing generator, and books the sessions that
// run the overtime task variants.
type Engine struct {
	pool   *stations.Pool
	gen    *staffing.Generator
	params masterdata.Params
	log    *slog.Logger

	sessions []*Session
	active   map[string]*Session
	variants map[string]*tasks.Task
	order    []string
}

func NewEngine(pool *stations.Pool, gen *staffing.Generator, params masterdata.Params, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		pool:     pool,
		gen:      gen,
		params:   params,
		log:      logger.With("component", "overtime"),
		active:   make(map[string]*Session),
		variants: make(map[string]*tasks.Task),
	}
}

// NearEndOfDay reports whether now is inside the final stretch of the
// regular shift, when same-day work starts slipping.
func (e *Engine) NearEndOfDay(now time.Time) bool {
	end := e.params.ShiftEnd.At(now)
	threshold := end.Add(-time.Duration(nearEndOfDayHours * float64(time.Hour)))
	return !now.Before(threshold)
}

// TasksRequiringOvertime filters the open tasks down to the ones that must
// finish today: sub-warehouse shipping near shift end, and receiving at its
// completion deadline. The slip reason is stamped on the task.
func (e *Engine) TasksRequiringOvertime(open []*tasks.Task, now time.Time) []*tasks.Task {
	var out []*tasks.Task
	for _, t := range open {
		switch t.Status {
		case tasks.StatusPending, tasks.StatusAssigned, tasks.StatusInProgress:
		default:
			continue
		}

		reason := ""
		switch {
		case t.Type == tasks.TypeShipping && t.IsSubWarehouse() && e.NearEndOfDay(now):
			reason = "sub-warehouse shipping must finish today"
		case t.Type == tasks.TypeReceiving && !t.DeadlineDate.IsZero() &&
			!masterdata.DateOf(now).Before(masterdata.DateOf(t.DeadlineDate)):
			reason = fmt.Sprintf("receiving at its day-%d completion deadline", e.params.ReceivingCompletionDays)
		default:
			continue
		}

		if t.OvertimeReason == "" {
			t.OvertimeReason = reason
		}
		out = append(out, t)
	}
	return out
}

// Requirements maps slipping tasks to per-station overtime demand. Tasks
// keep their assigned station; unassigned ones take the first unreserved
// station on their floor. Hours are the remaining work, at least one hour,
// capped by max_overtime_hours.
func (e *Engine) Requirements(need []*tasks.Task, now time.Time, fallbackReason string) map[string]staffing.OvertimeRequirement {
	reqs := make(map[string]staffing.OvertimeRequirement, len(need))
	for _, t := range need {
		required := math.Max(1, t.RemainingMinutes(now)/60)
		if required > e.params.MaxOvertimeHours {
			required = e.params.MaxOvertimeHours
		}

		reason := t.OvertimeReason
		if reason == "" {
			reason = fallbackReason
		}

		reqs[e.stationFor(t)] = staffing.OvertimeRequirement{
			TaskID:        t.TaskID,
			RequiredHours: round1(required),
			Reason:        reason,
			CurrentHours:  fullRegularDayHours,
		}
	}
	return reqs
}

func (e *Engine) stationFor(t *tasks.Task) string {
	if t.AssignedStation != "" {
		return t.AssignedStation
	}
	for _, s := range e.pool.OnFloor(t.Floor) {
		if !s.ReservedForException {
			return s.StationID
		}
	}
	return stations.FixedStationID(t.Floor, 1)
}

// PlanSession books an overtime window starting at startAt, long enough for
// the largest per-station requirement and cut off at the hard overtime end.
func (e *Engine) PlanSession(reqs map[string]staffing.OvertimeRequirement, startAt time.Time) (*Session, error) {
	if !e.params.OvertimeEnabled {
		return nil, ErrOvertimeDisabled
	}
	if len(reqs) == 0 {
		return nil, ErrNoRequirements
	}

	stationIDs := make([]string, 0, len(reqs))
	var maxHours float64
	for stationID, req := range reqs {
		stationIDs = append(stationIDs, stationID)
		if req.RequiredHours > maxHours {
			maxHours = req.RequiredHours
		}
	}
	sort.Strings(stationIDs)

	end := startAt.Add(time.Duration(maxHours * float64(time.Hour)))
	hardEnd := e.params.OvertimeEndTime.At(startAt)
	if end.After(hardEnd) {
		end = hardEnd
	}
	if !end.After(startAt) {
		return nil, fmt.Errorf("%w: start %s is past %s", ErrWindowClosed,
			startAt.Format("15:04"), e.params.OvertimeEndTime)
	}

	session := &Session{
		SessionID:    SessionID(startAt),
		StartAt:      startAt,
		PlannedEndAt: end,
		Stations:     stationIDs,
		PlannedHours: round1(end.Sub(startAt).Hours()),
		Reason:       reqs[stationIDs[0]].Reason,
		Requirements: reqs,
	}
	e.sessions = append(e.sessions, session)
	e.active[session.SessionID] = session

	e.log.Info("overtime session planned",
		"session", session.SessionID, "stations", len(stationIDs),
		"plannedHours", session.PlannedHours, "reason", session.Reason)
	return session, nil
}

// StartSession extends the roster for the session's stations and spawns the
// overtime variant of every requirement's task. The variant supersedes the
// original, which is cancelled. Stations whose staff cannot legally stay
// are skipped with their task left as it was.
func (e *Engine) StartSession(sessionID string, roster *staffing.Roster, originals map[string]*tasks.Task, now time.Time) ([]*tasks.Task, []staffing.Shift, error) {
	session, ok := e.active[sessionID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	shifts := e.gen.OvertimeShifts(roster, session.Requirements)
	staffByStation := make(map[string]int, len(shifts))
	for _, shift := range shifts {
		staffByStation[shift.StationID] = shift.StaffID
	}

	var variants []*tasks.Task
	for _, stationID := range session.Stations {
		req := session.Requirements[stationID]

		original, ok := originals[req.TaskID]
		if !ok {
			e.log.Warn("overtime requirement for unknown task", "task", req.TaskID)
			continue
		}
		staffID, ok := staffByStation[stationID]
		if !ok {
			e.log.Warn("overtime station has no staffed shift",
				"session", sessionID, "station", stationID, "task", req.TaskID)
			continue
		}

		variant := variantOf(original, req)
		if err := variant.Assign(stationID, staffID); err != nil {
			e.log.Warn("overtime variant not assignable", "task", variant.TaskID, "error", err)
			continue
		}
		if err := original.Cancel(); err != nil {
			e.log.Warn("original task not cancellable", "task", original.TaskID, "error", err)
		}

		e.variants[variant.TaskID] = variant
		e.order = append(e.order, variant.TaskID)
		variants = append(variants, variant)

		e.log.Info("overtime task created",
			"task", variant.TaskID, "station", stationID, "staff", staffID,
			"hours", req.RequiredHours, "reason", req.Reason)
	}
	return variants, shifts, nil
}

// variantOf clones the slipping task as its top-priority overtime variant.
// The estimate covers the booked hours, not the original plan.
func variantOf(original *tasks.Task, req staffing.OvertimeRequirement) *tasks.Task {
	variant := &tasks.Task{
		TaskID:            tasks.OvertimeTaskID(original.TaskID),
		OrderID:           original.OrderID,
		Type:              tasks.TypeOvertime,
		Status:            tasks.StatusPending,
		Priority:          tasks.PriorityP1,
		FamilyCode:        original.FamilyCode,
		PartNumber:        original.PartNumber,
		Quantity:          original.Quantity,
		Floor:             original.Floor,
		RequiresRepack:    original.RequiresRepack,
		EstimatedDuration: req.RequiredHours * 60,
		Partcustid:        original.Partcustid,
		RouteCode:         original.RouteCode,
		RouteGroup:        original.RouteGroup,
		OvertimeReason:    req.Reason,
	}
	if original.Type == tasks.TypeReceiving {
		variant.ArrivalDate = original.ArrivalDate
		variant.DeadlineDate = original.DeadlineDate
		variant.DaysSinceArrival = original.DaysSinceArrival
		variant.IsOverdue = true
	}
	return variant
}

// EndSession closes the window and records the hours actually worked.
func (e *Engine) EndSession(sessionID string, now time.Time) (*Session, error) {
	session, ok := e.active[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	session.ActualEndAt = now
	session.ActualHours = round1(now.Sub(session.StartAt).Hours())
	delete(e.active, sessionID)

	e.log.Info("overtime session ended",
		"session", sessionID, "actualHours", session.ActualHours)
	return session, nil
}

// IncompleteVariants returns overtime tasks still open, in creation order.
// The scheduler force-closes these when their session ends.
func (e *Engine) IncompleteVariants() []*tasks.Task {
	var out []*tasks.Task
	for _, id := range e.order {
		t := e.variants[id]
		if t.Status != tasks.StatusCompleted && t.Status != tasks.StatusCancelled {
			out = append(out, t)
		}
	}
	return out
}

// Variant looks up an overtime task by id.
func (e *Engine) Variant(taskID string) (*tasks.Task, bool) {
	t, ok := e.variants[taskID]
	return t, ok
}

// Sessions returns every session booked this run.
func (e *Engine) Sessions() []*Session {
	return e.sessions
}

// ActiveSessionCount returns how many windows are currently open.
func (e *Engine) ActiveSessionCount() int {
	return len(e.active)
}

// SessionsOn returns the sessions that started on the given date.
func (e *Engine) SessionsOn(date time.Time) []*Session {
	var out []*Session
	for _, session := range e.sessions {
		if masterdata.SameDate(session.StartAt, date) {
			out = append(out, session)
		}
	}
	return out
}

// Stats summarizes the overtime load of the run.
type Stats struct {
	Sessions          int     `json:"sessions"`
	TotalHours        float64 `json:"total_hours"`
	Variants          int     `json:"variants"`
	CompletedVariants int     `json:"completed_variants"`
}

// Stats totals the booked sessions, preferring actual hours where a session
// already closed.
func (e *Engine) Stats() Stats {
	stats := Stats{Sessions: len(e.sessions), Variants: len(e.variants)}
	for _, session := range e.sessions {
		if session.ActualEndAt.IsZero() {
			stats.TotalHours += session.PlannedHours
		} else {
			stats.TotalHours += session.ActualHours
		}
	}
	stats.TotalHours = round1(stats.TotalHours)
	for _, t := range e.variants {
		if t.Status == tasks.StatusCompleted {
			stats.CompletedVariants++
		}
	}
	return stats
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
