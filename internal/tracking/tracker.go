package tracking

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/exceptions"
	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/stations"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
	"github.com/hsichihchen-design/cpdoldsim/internal/waves"
)

// Component names one tracked subsystem.
type Component string

const (
	ComponentWorkstation Component = "WORKSTATION"
	ComponentTask        Component = "TASK"
	ComponentWave        Component = "WAVE"
	ComponentStaff       Component = "STAFF"
	ComponentException   Component = "EXCEPTION"
)

const (
	// Updates arriving faster than this are coalesced.
	minUpdateInterval = 10 * time.Second
	// Full snapshot cadence.
	snapshotInterval = 60 * time.Second

	maxSnapshots = 1000
	maxChanges   = 500
	maxMetrics   = 1000

	recentCompletedWaves = 10
	recentResolvedFaults = 10
)

// StationState is the tracked view of one station.
type StationState struct {
	StationID            string          `json:"station_id"`
	Status               stations.Status `json:"status"`
	Floor                int             `json:"floor"`
	IsFixed              bool            `json:"is_fixed"`
	AssignedStaff        int             `json:"assigned_staff,omitempty"`
	ReservedForException bool            `json:"reserved_for_exception"`
	CurrentTaskID        string          `json:"current_task_id,omitempty"`
	AvailableTime        time.Time       `json:"available_time"`
}

// TaskState is the tracked view of one task.
type TaskState struct {
	TaskID           string         `json:"task_id"`
	OrderID          string         `json:"order_id,omitempty"`
	Type             tasks.Type     `json:"task_type"`
	Status           tasks.Status   `json:"status"`
	Priority         tasks.Priority `json:"priority"`
	Floor            int            `json:"floor"`
	AssignedStation  string         `json:"assigned_station,omitempty"`
	AssignedStaff    int            `json:"assigned_staff,omitempty"`
	ProgressPercent  float64        `json:"progress_percent"`
	RemainingMinutes float64        `json:"remaining_minutes"`
}

// WaveState is the tracked view of one wave.
type WaveState struct {
	WaveID          string       `json:"wave_id"`
	Status          waves.Status `json:"status"`
	TotalTasks      int          `json:"total_tasks"`
	CompletedTasks  int          `json:"completed_tasks"`
	ProgressPercent float64      `json:"progress_percent"`
}

// StaffState is the tracked view of one operator or leader.
type StaffState struct {
	StaffID           int    `json:"staff_id"`
	Role              string `json:"role"`
	Floor             int    `json:"floor,omitempty"`
	SkillLevel        int    `json:"skill_level,omitempty"`
	AssignedStation   string `json:"assigned_station,omitempty"`
	CurrentTaskID     string `json:"current_task_id,omitempty"`
	IsBusy            bool   `json:"is_busy"`
	AssignedException string `json:"assigned_exception,omitempty"`
}

// ExceptionState is the tracked view of one active fault.
type ExceptionState struct {
	ExceptionID      string              `json:"exception_id"`
	Type             exceptions.Type     `json:"exception_type"`
	Priority         exceptions.Priority `json:"priority"`
	Status           exceptions.Status   `json:"status"`
	TaskID           string              `json:"task_id,omitempty"`
	StationID        string              `json:"station_id,omitempty"`
	AssignedLeader   int                 `json:"assigned_leader,omitempty"`
	HandlingStation  string              `json:"handling_station,omitempty"`
	ProgressPercent  float64             `json:"progress_percent"`
	ElapsedMinutes   float64             `json:"elapsed_minutes"`
	RemainingMinutes float64             `json:"remaining_minutes"`
}

// FieldChange records one watched field moving between values.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// ChangeEvent records the watched-field diff of one component update.
type ChangeEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Component   Component              `json:"component_type"`
	ComponentID string                 `json:"component_id"`
	Changes     map[string]FieldChange `json:"changes"`
}

// Snapshot is the full tracked state at one instant.
type Snapshot struct {
	Timestamp  time.Time                 `json:"timestamp"`
	Metrics    Metrics                   `json:"metrics"`
	Stations   map[string]StationState   `json:"stations"`
	Tasks      map[string]TaskState      `json:"tasks"`
	Waves      map[string]WaveState      `json:"waves"`
	Staff      map[string]StaffState     `json:"staff"`
	Exceptions map[string]ExceptionState `json:"exceptions"`
}

// ring keeps the most recent max entries.
type ring[T any] struct {
	max   int
	items []T
}

func newRing[T any](max int) *ring[T] {
	return &ring[T]{max: max}
}

func (r *ring[T]) push(v T) {
	r.items = append(r.items, v)
	if len(r.items) > r.max {
		r.items = r.items[len(r.items)-r.max:]
	}
}

func (r *ring[T]) tail(n int) []T {
	if n <= 0 || n >= len(r.items) {
		return append([]T(nil), r.items...)
	}
	return append([]T(nil), r.items[len(r.items)-n:]...)
}

func (r *ring[T]) last() (T, bool) {
	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	return r.items[len(r.items)-1], true
}

// Tracker mirrors the live simulation state, detects watched-field changes,
// and keeps ring-buffered snapshots and metrics for reporting.
type Tracker struct {
	pool    *stations.Pool
	catalog *waves.Catalog
	handler *exceptions.Handler
	store   *masterdata.Store
	log     *slog.Logger

	enabled      bool
	lastUpdate   time.Time
	lastSnapshot time.Time

	stations   map[string]StationState
	tasks      map[string]TaskState
	waves      map[string]WaveState
	staff      map[string]StaffState
	exceptions map[string]ExceptionState

	snapshots *ring[Snapshot]
	changes   *ring[ChangeEvent]
	metrics   *ring[Metrics]
}

func NewTracker(pool *stations.Pool, catalog *waves.Catalog, handler *exceptions.Handler, store *masterdata.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		pool:       pool,
		catalog:    catalog,
		handler:    handler,
		store:      store,
		log:        logger.With("component", "tracking"),
		enabled:    true,
		stations:   make(map[string]StationState),
		tasks:      make(map[string]TaskState),
		waves:      make(map[string]WaveState),
		staff:      make(map[string]StaffState),
		exceptions: make(map[string]ExceptionState),
		snapshots:  newRing[Snapshot](maxSnapshots),
		changes:    newRing[ChangeEvent](maxChanges),
		metrics:    newRing[Metrics](maxMetrics),
	}
}

// Update refreshes every component view, records change events and metrics,
// and snapshots on the snapshot cadence. Updates inside the coalescing
// window are dropped unless forced. Reports whether the update ran.
func (t *Tracker) Update(now time.Time, all []*tasks.Task, force bool) bool {
	if !t.enabled {
		return false
	}
	if !force && !t.lastUpdate.IsZero() && now.Sub(t.lastUpdate) < minUpdateInterval {
		return false
	}

	t.updateStations(now)
	t.updateTasks(now, all)
	t.updateWaves(now)
	t.updateStaff(now)
	t.updateExceptions(now)

	metrics := t.computeMetrics(now, all)
	t.metrics.push(metrics)

	if t.lastSnapshot.IsZero() || now.Sub(t.lastSnapshot) >= snapshotInterval {
		t.takeSnapshot(now, metrics)
	}

	t.lastUpdate = now
	return true
}

func (t *Tracker) updateStations(now time.Time) {
	next := make(map[string]StationState, len(t.stations))
	for _, s := range t.pool.All() {
		state := StationState{
			StationID:            s.StationID,
			Status:               s.Status,
			Floor:                s.Floor,
			IsFixed:              s.IsFixed,
			AssignedStaff:        s.AssignedStaff,
			ReservedForException: s.ReservedForException,
			CurrentTaskID:        s.CurrentTaskID,
			AvailableTime:        s.AvailableTime,
		}
		if old, seen := t.stations[s.StationID]; seen {
			t.recordChanges(ComponentWorkstation, s.StationID, diffStation(old, state), now)
		}
		next[s.StationID] = state
	}
	t.stations = next
}

func (t *Tracker) updateTasks(now time.Time, all []*tasks.Task) {
	sorted := append([]*tasks.Task(nil), all...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TaskID < sorted[j].TaskID })

	next := make(map[string]TaskState, len(sorted))
	for _, task := range sorted {
		percent, remaining := taskProgress(task, now)
		state := TaskState{
			TaskID:           task.TaskID,
			OrderID:          task.OrderID,
			Type:             task.Type,
			Status:           task.Status,
			Priority:         task.Priority,
			Floor:            task.Floor,
			AssignedStation:  task.AssignedStation,
			AssignedStaff:    task.AssignedStaff,
			ProgressPercent:  percent,
			RemainingMinutes: remaining,
		}
		if old, seen := t.tasks[task.TaskID]; seen {
			t.recordChanges(ComponentTask, task.TaskID, diffTask(old, state), now)
		}
		next[task.TaskID] = state
	}
	t.tasks = next
}

// taskProgress estimates completion percent and remaining minutes. Only
// running tasks accrue progress; paused work reads zero until resumed.
func taskProgress(task *tasks.Task, now time.Time) (float64, float64) {
	remaining := round1(task.RemainingMinutes(now))
	switch task.Status {
	case tasks.StatusCompleted:
		return 100, 0
	case tasks.StatusInProgress:
		duration := task.ActualDuration
		if duration <= 0 {
			duration = task.EstimatedDuration
		}
		if duration <= 0 {
			return 100, 0
		}
		elapsed := now.Sub(task.ActualStart).Minutes()
		return round1(math.Min(100, elapsed/duration*100)), remaining
	default:
		return 0, remaining
	}
}

func (t *Tracker) updateWaves(now time.Time) {
	next := make(map[string]WaveState, len(t.waves))

	record := func(wave *waves.Wave) {
		state := WaveState{
			WaveID:         wave.ID,
			Status:         wave.Status,
			TotalTasks:     wave.TotalTasks,
			CompletedTasks: wave.CompletedTasks,
		}
		if wave.TotalTasks > 0 {
			state.ProgressPercent = round1(float64(wave.CompletedTasks) / float64(wave.TotalTasks) * 100)
		}
		if old, seen := t.waves[wave.ID]; seen {
			t.recordChanges(ComponentWave, wave.ID, diffWave(old, state), now)
		}
		next[wave.ID] = state
	}

	for _, wave := range t.catalog.ActiveWaves() {
		record(wave)
	}

	history := t.catalog.History()
	if len(history) > recentCompletedWaves {
		history = history[len(history)-recentCompletedWaves:]
	}
	for _, waveID := range history {
		if wave, ok := t.catalog.Get(waveID); ok {
			record(wave)
		}
	}

	t.waves = next
}

func (t *Tracker) updateStaff(now time.Time) {
	next := make(map[string]StaffState, len(t.staff))

	record := func(key string, state StaffState) {
		if old, seen := t.staff[key]; seen {
			t.recordChanges(ComponentStaff, key, diffStaff(old, state), now)
		}
		next[key] = state
	}

	for _, s := range t.pool.All() {
		if s.AssignedStaff == 0 {
			continue
		}
		state := StaffState{
			StaffID:         s.AssignedStaff,
			Role:            "operator",
			Floor:           s.Floor,
			AssignedStation: s.StationID,
			CurrentTaskID:   s.CurrentTaskID,
			IsBusy:          s.Status == stations.StatusBusy || s.Status == stations.StatusStartingUp,
		}
		if skill, ok := t.store.Staff(s.AssignedStaff); ok {
			state.SkillLevel = skill.SkillLevel
		}
		record(strconv.Itoa(s.AssignedStaff), state)
	}

	for _, leader := range t.handler.AvailableLeaders() {
		record(fmt.Sprintf("leader_%d", leader), StaffState{StaffID: leader, Role: "leader"})
	}

	busy := t.handler.BusyLeaders()
	leaderIDs := make([]int, 0, len(busy))
	for leader := range busy {
		leaderIDs = append(leaderIDs, leader)
	}
	sort.Ints(leaderIDs)
	for _, leader := range leaderIDs {
		record(fmt.Sprintf("leader_%d", leader), StaffState{
			StaffID:           leader,
			Role:              "leader",
			IsBusy:            true,
			AssignedException: busy[leader],
		})
	}

	t.staff = next
}

func (t *Tracker) updateExceptions(now time.Time) {
	next := make(map[string]ExceptionState, len(t.exceptions))

	record := func(event *exceptions.Event) {
		state := ExceptionState{
			ExceptionID:     event.ExceptionID,
			Type:            event.Type,
			Priority:        event.Priority,
			Status:          event.Status,
			TaskID:          event.TaskID,
			StationID:       event.StationID,
			AssignedLeader:  event.AssignedLeader,
			HandlingStation: event.HandlingStation,
		}
		switch {
		case event.Status == exceptions.StatusResolved:
			state.ProgressPercent = 100
			state.ElapsedMinutes = event.ActualHandlingMinutes
		case !event.StartHandlingTime.IsZero() && event.EstimatedHandlingMinutes > 0:
			elapsed := event.HandlingElapsedMinutes(now)
			state.ElapsedMinutes = round1(elapsed)
			state.ProgressPercent = round1(math.Min(100, elapsed/event.EstimatedHandlingMinutes*100))
			state.RemainingMinutes = round1(math.Max(0, event.EstimatedHandlingMinutes-elapsed))
		}
		if old, seen := t.exceptions[event.ExceptionID]; seen {
			t.recordChanges(ComponentException, event.ExceptionID, diffException(old, state), now)
		}
		next[event.ExceptionID] = state
	}

	for _, event := range t.handler.Active() {
		record(event)
	}

	// Terminal faults drop off Active; keep the recent ones visible so the
	// final status transition still emits a change event.
	history := t.handler.History()
	if len(history) > recentResolvedFaults {
		history = history[len(history)-recentResolvedFaults:]
	}
	for _, event := range history {
		if event.Status.IsTerminal() {
			record(event)
		}
	}

	t.exceptions = next
}

func diffStation(old, cur StationState) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	if old.Status != cur.Status {
		changes["status"] = FieldChange{Old: old.Status, New: cur.Status}
	}
	if old.CurrentTaskID != cur.CurrentTaskID {
		changes["current_task_id"] = FieldChange{Old: old.CurrentTaskID, New: cur.CurrentTaskID}
	}
	if old.AssignedStaff != cur.AssignedStaff {
		changes["assigned_staff"] = FieldChange{Old: old.AssignedStaff, New: cur.AssignedStaff}
	}
	if old.ReservedForException != cur.ReservedForException {
		changes["reserved_for_exception"] = FieldChange{Old: old.ReservedForException, New: cur.ReservedForException}
	}
	return changes
}

func diffTask(old, cur TaskState) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	if old.Status != cur.Status {
		changes["status"] = FieldChange{Old: old.Status, New: cur.Status}
	}
	if old.AssignedStation != cur.AssignedStation {
		changes["assigned_station"] = FieldChange{Old: old.AssignedStation, New: cur.AssignedStation}
	}
	if old.ProgressPercent != cur.ProgressPercent {
		changes["progress_percent"] = FieldChange{Old: old.ProgressPercent, New: cur.ProgressPercent}
	}
	return changes
}

func diffWave(old, cur WaveState) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	if old.Status != cur.Status {
		changes["status"] = FieldChange{Old: old.Status, New: cur.Status}
	}
	if old.CompletedTasks != cur.CompletedTasks {
		changes["completed_tasks"] = FieldChange{Old: old.CompletedTasks, New: cur.CompletedTasks}
	}
	if old.ProgressPercent != cur.ProgressPercent {
		changes["progress_percent"] = FieldChange{Old: old.ProgressPercent, New: cur.ProgressPercent}
	}
	return changes
}

func diffStaff(old, cur StaffState) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	if old.AssignedStation != cur.AssignedStation {
		changes["assigned_station"] = FieldChange{Old: old.AssignedStation, New: cur.AssignedStation}
	}
	if old.IsBusy != cur.IsBusy {
		changes["is_busy"] = FieldChange{Old: old.IsBusy, New: cur.IsBusy}
	}
	if old.AssignedException != cur.AssignedException {
		changes["assigned_exception"] = FieldChange{Old: old.AssignedException, New: cur.AssignedException}
	}
	return changes
}

func diffException(old, cur ExceptionState) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	if old.Status != cur.Status {
		changes["status"] = FieldChange{Old: old.Status, New: cur.Status}
	}
	if old.AssignedLeader != cur.AssignedLeader {
		changes["assigned_leader"] = FieldChange{Old: old.AssignedLeader, New: cur.AssignedLeader}
	}
	if old.HandlingStation != cur.HandlingStation {
		changes["handling_station"] = FieldChange{Old: old.HandlingStation, New: cur.HandlingStation}
	}
	if old.ProgressPercent != cur.ProgressPercent {
		changes["progress_percent"] = FieldChange{Old: old.ProgressPercent, New: cur.ProgressPercent}
	}
	return changes
}

func (t *Tracker) recordChanges(component Component, id string, changes map[string]FieldChange, now time.Time) {
	if len(changes) == 0 {
		return
	}
	t.changes.push(ChangeEvent{
		Timestamp:   now,
		Component:   component,
		ComponentID: id,
		Changes:     changes,
	})
	t.logNotableChange(component, id, changes)
}

// logNotableChange surfaces the transitions an operator would watch for.
func (t *Tracker) logNotableChange(component Component, id string, changes map[string]FieldChange) {
	status, ok := changes["status"]
	if !ok {
		return
	}
	switch component {
	case ComponentWorkstation:
		if status.New == stations.StatusReserved {
			t.log.Warn("station reserved for exception handling", "station", id)
		}
	case ComponentTask:
		if status.New == tasks.StatusPaused {
			t.log.Warn("task paused", "task", id)
		}
	case ComponentWave:
		if status.New == waves.StatusCompleted {
			t.log.Info("wave completed", "wave", id)
		}
	case ComponentException:
		switch status.New {
		case exceptions.StatusInProgress:
			t.log.Warn("exception handling underway", "exception", id)
		case exceptions.StatusResolved:
			t.log.Info("exception resolved", "exception", id)
		}
	}
}

func (t *Tracker) takeSnapshot(now time.Time, metrics Metrics) {
	snapshot := Snapshot{
		Timestamp:  now,
		Metrics:    metrics,
		Stations:   make(map[string]StationState, len(t.stations)),
		Tasks:      make(map[string]TaskState, len(t.tasks)),
		Waves:      make(map[string]WaveState, len(t.waves)),
		Staff:      make(map[string]StaffState, len(t.staff)),
		Exceptions: make(map[string]ExceptionState, len(t.exceptions)),
	}
	for k, v := range t.stations {
		snapshot.Stations[k] = v
	}
	for k, v := range t.tasks {
		snapshot.Tasks[k] = v
	}
	for k, v := range t.waves {
		snapshot.Waves[k] = v
	}
	for k, v := range t.staff {
		snapshot.Staff[k] = v
	}
	for k, v := range t.exceptions {
		snapshot.Exceptions[k] = v
	}
	t.snapshots.push(snapshot)
	t.lastSnapshot = now
}

// Snapshots returns up to limit most recent snapshots, oldest first.
// limit <= 0 returns everything retained.
func (t *Tracker) Snapshots(limit int) []Snapshot {
	return t.snapshots.tail(limit)
}

// RecentChanges returns up to limit most recent change events, oldest first.
func (t *Tracker) RecentChanges(limit int) []ChangeEvent {
	return t.changes.tail(limit)
}

// MetricsHistory returns up to limit most recent metric rows, oldest first.
func (t *Tracker) MetricsHistory(limit int) []Metrics {
	return t.metrics.tail(limit)
}

// CurrentMetrics returns the latest metrics row, if any update ran.
func (t *Tracker) CurrentMetrics() (Metrics, bool) {
	return t.metrics.last()
}

// StationStates returns the latest tracked station views keyed by id.
func (t *Tracker) StationStates() map[string]StationState {
	out := make(map[string]StationState, len(t.stations))
	for k, v := range t.stations {
		out[k] = v
	}
	return out
}

// TaskState returns the latest tracked view of one task.
func (t *Tracker) TaskState(taskID string) (TaskState, bool) {
	state, ok := t.tasks[taskID]
	return state, ok
}

// Enable turns tracking on.
func (t *Tracker) Enable() { t.enabled = true }

// Disable turns tracking off; updates become no-ops.
func (t *Tracker) Disable() { t.enabled = false }

// Reset drops all tracked state and history.
func (t *Tracker) Reset() {
	t.stations = make(map[string]StationState)
	t.tasks = make(map[string]TaskState)
	t.waves = make(map[string]WaveState)
	t.staff = make(map[string]StaffState)
	t.exceptions = make(map[string]ExceptionState)
	t.snapshots = newRing[Snapshot](maxSnapshots)
	t.changes = newRing[ChangeEvent](maxChanges)
	t.metrics = newRing[Metrics](maxMetrics)
	t.lastUpdate = time.Time{}
	t.lastSnapshot = time.Time{}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
