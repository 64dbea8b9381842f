package exceptions

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/sim"
	"github.com/hsichihchen-design/cpdoldsim/internal/stations"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

// Handler errors
var (
	ErrExceptionNotFound = errors.New("exception not found")
	ErrNoLeader          = errors.New("no leader available")
	ErrNoStation         = errors.New("no station available for exception")
	ErrWrongStatus       = errors.New("exception in wrong status")
)

// Leader ids count up from here.
const firstLeaderID = 901

// Probability of a station-independent fault per ambient roll.
const ambientFaultProbability = 0.001

// Faults sitting unassigned longer than this escalate.
const detectedWaitLimitMinutes = 10.0

// Handler owns the fault lifecycle: detection rolls at task start, leader
// and station allocation, escalation sweeps, and resolution. It is the only
// component that reserves stations for exception work.
type Handler struct {
	pool   *stations.Pool
	params masterdata.Params
	stream *sim.Stream
	log    *slog.Logger

	active      map[string]*Event
	activeOrder []string
	history     []*Event
	resolved    []string

	availableLeaders []int
	busyLeaders      map[int]string
}

// NewHandler builds a handler drawing from the exceptions stream. Leaders
// are numbered from 901 up to the configured headcount.
func NewHandler(pool *stations.Pool, params masterdata.Params, stream *sim.Stream, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	leaders := make([]int, 0, params.LeaderCount)
	for i := 0; i < params.LeaderCount; i++ {
		leaders = append(leaders, firstLeaderID+i)
	}

	return &Handler{
		pool:             pool,
		params:           params,
		stream:           stream,
		log:              logger.With("component", "exceptions"),
		active:           make(map[string]*Event),
		busyLeaders:      make(map[int]string),
		availableLeaders: leaders,
	}
}

// DetectOnStart rolls the fault check for a task about to begin. Returns
// nil when the task may start cleanly. P1 tasks are handled more carefully
// and fault less; repack work faults more.
func (h *Handler) DetectOnStart(t *tasks.Task, now time.Time) *Event {
	probability := h.params.ExceptionProbabilityShipping
	if t.Type == tasks.TypeReceiving {
		probability = h.params.ExceptionProbabilityReceiving
	}
	if t.Priority == tasks.PriorityP1 {
		probability *= 0.8
	}
	if t.RequiresRepack {
		probability *= 1.3
	}

	if h.stream.Float64() >= probability {
		return nil
	}

	typ := h.sampleType()
	event := &Event{
		ExceptionID:   ExceptionID(now, h.stream.IntBetween(1000, 9999)),
		Type:          typ,
		Priority:      priorityFor(typ, t.Priority),
		Status:        StatusDetected,
		TaskID:        t.TaskID,
		OrderID:       t.OrderID,
		StationID:     t.AssignedStation,
		DetectionTime: now,
		Description:   fmt.Sprintf("%s while starting task %s", typ, t.TaskID),
	}
	h.register(event)
	return event
}

// DetectAmbient rolls the rare station-independent fault, checked on the
// periodic status tick.
func (h *Handler) DetectAmbient(now time.Time) *Event {
	if h.stream.Float64() >= ambientFaultProbability {
		return nil
	}

	typ := TypeSystemError
	priority := PriorityHigh
	if h.stream.IntBetween(0, 1) == 1 {
		typ = TypeQualityIssue
		priority = PriorityMedium
	}

	event := &Event{
		ExceptionID:   ambientExceptionID(now, h.stream.IntBetween(1000, 9999)),
		Type:          typ,
		Priority:      priority,
		Status:        StatusDetected,
		DetectionTime: now,
		Description:   fmt.Sprintf("ambient %s", typ),
	}
	h.register(event)
	return event
}

func (h *Handler) sampleType() Type {
	return sampleTypes[h.stream.WeightedIndex(sampleWeights)]
}

func (h *Handler) register(event *Event) {
	h.active[event.ExceptionID] = event
	h.activeOrder = append(h.activeOrder, event.ExceptionID)
	h.history = append(h.history, event)
	h.log.Warn("exception registered",
		"exception", event.ExceptionID, "type", event.Type, "priority", event.Priority)
}

// EstimateHandlingMinutes samples the handling duration for a fault type:
// normal around the type's average, clamped to its window, critical work
// resourced faster and low-priority work slower.
func (h *Handler) EstimateHandlingMinutes(typ Type, priority Priority) float64 {
	window, ok := handlingWindows[typ]
	if !ok {
		window = defaultHandlingWindow
	}

	minutes := h.stream.Normal(window.Avg, (window.Max-window.Min)/4)
	minutes = math.Max(window.Min, math.Min(window.Max, minutes))

	switch priority {
	case PriorityCritical:
		minutes *= 0.8
	case PriorityLow:
		minutes *= 1.2
	}
	return round1(minutes)
}

// AssignLeader books the next free leader onto the fault and fixes the
// handling estimate. With every leader busy the fault stays DETECTED and
// the caller retries later.
func (h *Handler) AssignLeader(exceptionID string, now time.Time) (int, error) {
	event, ok := h.active[exceptionID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrExceptionNotFound, exceptionID)
	}

	if event.EstimatedHandlingMinutes == 0 {
		event.EstimatedHandlingMinutes = h.EstimateHandlingMinutes(event.Type, event.Priority)
	}

	if len(h.availableLeaders) == 0 {
		return 0, fmt.Errorf("%w: exception %s", ErrNoLeader, exceptionID)
	}

	leader := h.availableLeaders[0]
	h.availableLeaders = h.availableLeaders[1:]
	h.busyLeaders[leader] = exceptionID

	event.AssignedLeader = leader
	event.AssignmentTime = now
	event.Status = StatusAssigned

	h.log.Info("leader assigned to exception",
		"exception", exceptionID, "leader", leader,
		"estimatedMinutes", event.EstimatedHandlingMinutes)
	return leader, nil
}

// Allocation reports where a fault is being handled and which task had to
// step aside for it.
type Allocation struct {
	ExceptionID         string    `json:"exception_id"`
	StationID           string    `json:"station_id"`
	InterruptedTaskID   string    `json:"interrupted_task_id,omitempty"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

// AllocateStation reserves a station for the fault and moves it into
// progress. Preference order: the fault's own station, then any idle
// station, then — for urgent faults when interruption is allowed — a busy
// one, whose running task is paused through the pause callback.
func (h *Handler) AllocateStation(exceptionID string, now time.Time, pause func(taskID string) error) (Allocation, error) {
	event, ok := h.active[exceptionID]
	if !ok {
		return Allocation{}, fmt.Errorf("%w: %s", ErrExceptionNotFound, exceptionID)
	}
	if event.AssignedLeader == 0 {
		return Allocation{}, fmt.Errorf("%w: %s has no leader", ErrWrongStatus, exceptionID)
	}

	station := h.findStation(event)
	if station == nil {
		return Allocation{}, fmt.Errorf("%w: exception %s", ErrNoStation, exceptionID)
	}

	allocation := Allocation{ExceptionID: exceptionID, StationID: station.StationID}

	if station.Status == stations.StatusBusy {
		interrupted := station.CurrentTaskID
		if interrupted != "" && pause != nil {
			if err := pause(interrupted); err != nil {
				return Allocation{}, fmt.Errorf("pause task %s: %w", interrupted, err)
			}
		}
		if err := station.ReserveInterrupting(); err != nil {
			return Allocation{}, err
		}
		allocation.InterruptedTaskID = interrupted
		h.log.Warn("task interrupted for exception",
			"exception", exceptionID, "task", interrupted, "station", station.StationID)
	} else {
		if err := station.Reserve(); err != nil {
			return Allocation{}, err
		}
		// A warming station keeps its queued task parked until release.
		allocation.InterruptedTaskID = station.CurrentTaskID
	}

	event.InterruptedTaskID = allocation.InterruptedTaskID
	event.HandlingStation = station.StationID
	event.StartHandlingTime = now
	event.Status = StatusInProgress
	allocation.EstimatedCompletion = now.Add(time.Duration(event.EstimatedHandlingMinutes * float64(time.Minute)))

	h.log.Info("exception handling started",
		"exception", exceptionID, "station", station.StationID,
		"estimatedCompletion", allocation.EstimatedCompletion)
	return allocation, nil
}

// findStation picks where the fault gets worked. Stations already reserved
// never qualify; a warming station qualifies only when it holds the fault's
// own task.
func (h *Handler) findStation(event *Event) *stations.Station {
	canPreempt := h.params.TaskInterruptionAllowed && event.Priority.IsUrgent()

	if event.StationID != "" {
		if s, ok := h.pool.Get(event.StationID); ok && !s.ReservedForException {
			switch s.Status {
			case stations.StatusIdle:
				return s
			case stations.StatusStartingUp:
				if s.CurrentTaskID == event.TaskID {
					return s
				}
			case stations.StatusBusy:
				if canPreempt {
					return s
				}
			}
		}
	}

	for _, s := range h.pool.All() {
		if s.Status == stations.StatusIdle && !s.ReservedForException {
			return s
		}
	}

	if canPreempt {
		for _, s := range h.pool.All() {
			if s.Status == stations.StatusBusy && !s.ReservedForException {
				return s
			}
		}
	}
	return nil
}

// Resolution is the outcome handed back to the engine so interrupted work
// can pick back up.
type Resolution struct {
	ExceptionID      string  `json:"exception_id"`
	TaskID           string  `json:"task_id,omitempty"`
	StationID        string  `json:"station_id,omitempty"`
	ResumeTaskID     string  `json:"resume_task_id,omitempty"`
	Leader           int     `json:"leader,omitempty"`
	ActualMinutes    float64 `json:"actual_minutes"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
	VarianceMinutes  float64 `json:"variance_minutes"`
}

// Resolve closes the fault: leader and station go back to the pool and the
// blocked task, if any, is reported for resumption. Escalated faults
// resolve the same way as in-progress ones.
func (h *Handler) Resolve(exceptionID string, now time.Time, notes string) (Resolution, error) {
	event, ok := h.active[exceptionID]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", ErrExceptionNotFound, exceptionID)
	}
	if event.Status != StatusInProgress && event.Status != StatusEscalated {
		return Resolution{}, fmt.Errorf("%w: %s is %s", ErrWrongStatus, exceptionID, event.Status)
	}

	if !event.StartHandlingTime.IsZero() {
		event.ActualHandlingMinutes = round1(now.Sub(event.StartHandlingTime).Minutes())
	}
	event.Status = StatusResolved
	event.ResolutionTime = now
	event.ResolutionNotes = notes

	resolution := Resolution{
		ExceptionID:      exceptionID,
		TaskID:           event.TaskID,
		StationID:        event.HandlingStation,
		ResumeTaskID:     event.InterruptedTaskID,
		Leader:           event.AssignedLeader,
		ActualMinutes:    event.ActualHandlingMinutes,
		EstimatedMinutes: event.EstimatedHandlingMinutes,
		VarianceMinutes:  round1(event.ActualHandlingMinutes - event.EstimatedHandlingMinutes),
	}

	h.releaseLeader(event)
	h.releaseStation(event, now)

	delete(h.active, exceptionID)
	h.removeActive(exceptionID)
	h.resolved = append(h.resolved, exceptionID)

	h.log.Info("exception resolved",
		"exception", exceptionID, "actualMinutes", event.ActualHandlingMinutes,
		"varianceMinutes", resolution.VarianceMinutes)
	return resolution, nil
}

func (h *Handler) releaseLeader(event *Event) {
	if event.AssignedLeader == 0 {
		return
	}
	if _, busy := h.busyLeaders[event.AssignedLeader]; busy {
		delete(h.busyLeaders, event.AssignedLeader)
		h.availableLeaders = append(h.availableLeaders, event.AssignedLeader)
	}
}

func (h *Handler) releaseStation(event *Event, now time.Time) {
	if event.HandlingStation == "" {
		return
	}
	station, ok := h.pool.Get(event.HandlingStation)
	if !ok {
		return
	}
	station.ReleaseReservation(event.InterruptedTaskID != "", now)
}

// Escalate bumps the fault one priority level and marks it ESCALATED.
func (h *Handler) Escalate(exceptionID string, now time.Time, reason string) error {
	event, ok := h.active[exceptionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExceptionNotFound, exceptionID)
	}

	original := event.Priority
	event.OriginalPriority = original
	event.Priority = original.Bump()
	event.Status = StatusEscalated
	event.EscalationReason = reason
	event.EscalationTime = now

	h.log.Warn("exception escalated",
		"exception", exceptionID, "from", original, "to", event.Priority, "reason", reason)
	return nil
}

// CheckEscalations sweeps the active faults and escalates everything past
// its limit: handling beyond the threshold, criticals sitting assigned, or
// anything waiting unassigned too long. Returns the escalated ids.
func (h *Handler) CheckEscalations(now time.Time) []string {
	var escalated []string

	for _, id := range append([]string(nil), h.activeOrder...) {
		event, ok := h.active[id]
		if !ok || event.Status == StatusEscalated {
			continue
		}

		reason := ""
		switch {
		case !event.StartHandlingTime.IsZero() && event.HandlingElapsedMinutes(now) > h.params.EscalationThresholdMinutes:
			reason = fmt.Sprintf("handling beyond %.0f minutes", h.params.EscalationThresholdMinutes)
		case event.Priority == PriorityCritical && h.params.CriticalImmediateEscalation && event.Status == StatusAssigned:
			reason = "critical fault escalates immediately"
		case event.Status == StatusDetected && !event.DetectionTime.IsZero() &&
			now.Sub(event.DetectionTime).Minutes() > detectedWaitLimitMinutes:
			reason = "waited too long for a leader"
		default:
			continue
		}

		if err := h.Escalate(id, now, reason); err == nil {
			escalated = append(escalated, id)
		}
	}
	return escalated
}

// Get looks up an active fault.
func (h *Handler) Get(exceptionID string) (*Event, bool) {
	event, ok := h.active[exceptionID]
	return event, ok
}

// Active returns the unresolved faults in detection order.
func (h *Handler) Active() []*Event {
	out := make([]*Event, 0, len(h.activeOrder))
	for _, id := range h.activeOrder {
		if event, ok := h.active[id]; ok {
			out = append(out, event)
		}
	}
	return out
}

// ActiveCount returns how many faults are still open.
func (h *Handler) ActiveCount() int {
	return len(h.active)
}

// History returns every fault seen this run, including resolved ones.
func (h *Handler) History() []*Event {
	return h.history
}

// AvailableLeaders returns the ids of leaders free to take a fault, in
// queue order.
func (h *Handler) AvailableLeaders() []int {
	return append([]int(nil), h.availableLeaders...)
}

// BusyLeaders maps each working leader to the fault they are handling.
func (h *Handler) BusyLeaders() map[int]string {
	out := make(map[int]string, len(h.busyLeaders))
	for leader, exceptionID := range h.busyLeaders {
		out[leader] = exceptionID
	}
	return out
}

// LeaderBusyRatio returns the share of leaders currently working a fault.
func (h *Handler) LeaderBusyRatio() float64 {
	total := len(h.availableLeaders) + len(h.busyLeaders)
	if total == 0 {
		return 0
	}
	return float64(len(h.busyLeaders)) / float64(total)
}

// Summary is the point-in-time view of the fault workload.
type Summary struct {
	ActiveCount   int `json:"active_count"`
	ResolvedCount int `json:"resolved_count"`
	TotalCount    int `json:"total_count"`

	ByStatus   map[Status]int   `json:"by_status"`
	ByType     map[Type]int     `json:"by_type"`
	ByPriority map[Priority]int `json:"by_priority"`

	AvailableLeaders  int     `json:"available_leaders"`
	BusyLeaders       int     `json:"busy_leaders"`
	LeaderUtilization float64 `json:"leader_utilization"`

	AvgHandlingMinutes   float64 `json:"avg_handling_minutes"`
	AvgVarianceMinutes   float64 `json:"avg_variance_minutes"`
	OnTimeResolutionRate float64 `json:"on_time_resolution_rate"`
}

// Summarize tallies the active faults and the resolution efficiency so far.
// A resolution counts as on time within 110% of its estimate.
func (h *Handler) Summarize() Summary {
	summary := Summary{
		ActiveCount:      len(h.active),
		ResolvedCount:    len(h.resolved),
		TotalCount:       len(h.history),
		ByStatus:         make(map[Status]int),
		ByType:           make(map[Type]int),
		ByPriority:       make(map[Priority]int),
		AvailableLeaders: len(h.availableLeaders),
		BusyLeaders:      len(h.busyLeaders),
	}

	for _, id := range h.activeOrder {
		event, ok := h.active[id]
		if !ok {
			continue
		}
		summary.ByStatus[event.Status]++
		summary.ByType[event.Type]++
		summary.ByPriority[event.Priority]++
	}

	summary.LeaderUtilization = round1(h.LeaderBusyRatio() * 100)

	var handled, estimated, variance float64
	var handledCount, onTime int
	for _, event := range h.history {
		if event.Status != StatusResolved || event.ActualHandlingMinutes == 0 {
			continue
		}
		handled += event.ActualHandlingMinutes
		handledCount++
		if event.EstimatedHandlingMinutes > 0 {
			estimated += event.EstimatedHandlingMinutes
			variance += event.ActualHandlingMinutes - event.EstimatedHandlingMinutes
			if event.ActualHandlingMinutes <= event.EstimatedHandlingMinutes*1.1 {
				onTime++
			}
		}
	}
	if handledCount > 0 {
		summary.AvgHandlingMinutes = round1(handled / float64(handledCount))
		summary.AvgVarianceMinutes = round1(variance / float64(handledCount))
		summary.OnTimeResolutionRate = round1(float64(onTime) / float64(handledCount) * 100)
	}
	return summary
}

func (h *Handler) removeActive(exceptionID string) {
	for i, id := range h.activeOrder {
		if id == exceptionID {
			h.activeOrder = append(h.activeOrder[:i], h.activeOrder[i+1:]...)
			return
		}
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
