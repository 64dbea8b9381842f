// Package scheduler is the discrete-event engine of the simulator. It owns
// the event queue, the simulation clock and the domain services, advances
// time event by event, and replays one date window of historical
// transactions as executed warehouse work: shipping waves, receiving,
// exception handling and overtime.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hsichihchen-design/cpdoldsim/internal/assignment"
	"github.com/hsichihchen-design/cpdoldsim/internal/eventsink"
	"github.com/hsichihchen-design/cpdoldsim/internal/exceptions"
	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/orders"
	"github.com/hsichihchen-design/cpdoldsim/internal/overtime"
	"github.com/hsichihchen-design/cpdoldsim/internal/receiving"
	"github.com/hsichihchen-design/cpdoldsim/internal/sim"
	"github.com/hsichihchen-design/cpdoldsim/internal/staffing"
	"github.com/hsichihchen-design/cpdoldsim/internal/stations"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
	"github.com/hsichihchen-design/cpdoldsim/internal/tracking"
	"github.com/hsichihchen-design/cpdoldsim/internal/waves"
	"github.com/hsichihchen-design/cpdoldsim/pkg/cloudevents"
	"github.com/hsichihchen-design/cpdoldsim/pkg/metrics"
)

// Engine errors.
var (
	ErrInvalidWindow = errors.New("invalid simulation window")
	ErrWrongState    = errors.New("engine in wrong state")
	ErrTaskUnknown   = errors.New("task not registered")
)

var errBadPayload = errors.New("unexpected event payload")

// State is the engine lifecycle state.
type State string

// Engine lifecycle states.
const (
	StateCreated     State = "CREATED"
	StateInitialized State = "INITIALIZED"
	StateRunning     State = "RUNNING"
	StateCompleted   State = "COMPLETED"
	StateCancelled   State = "CANCELLED"
	StateError       State = "ERROR"
)

// IsValid reports whether the state is a known lifecycle state.
func (s State) IsValid() bool {
	switch s {
	case StateCreated, StateInitialized, StateRunning, StateCompleted, StateCancelled, StateError:
		return true
	}
	return false
}

// IsTerminal reports whether the engine can no longer run.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateError
}

// Event priorities; lower runs first at equal timestamps. Control bookends
// outrank exception work, which outranks day closings and completions.
// Status sweeps always run last.
const (
	prioControl    = 0
	prioException  = 1
	prioDayClose   = 2
	prioCompletion = 3
	prioAssign     = 4
	prioStart      = 5
	prioDeadline   = 6
	prioOvertime   = 7
	prioStatus     = 10
)

// Fixed offsets in the day's choreography.
const (
	receivingAssignDelay = 30 * time.Minute
	overtimeLeadTime     = 10 * time.Minute
	overtimeStartupDelay = 5 * time.Minute
	exceptionRetryDelay  = 5 * time.Minute
	waveCheckDelay       = time.Second
)

// Queue payloads. Each event carries just enough to re-find its subject in
// the engine tables.
type taskPayload struct{ TaskID string }

type completionPayload struct {
	TaskID string
	// Epoch guards against completions scheduled before a pause or a
	// cancellation; only the latest start's completion counts.
	Epoch int
}

type datePayload struct{ Date time.Time }

type wavePayload struct{ WaveID string }

type stationPayload struct {
	StationID string
	TaskID    string
}

type exceptionPayload struct{ ExceptionID string }

type sessionPayload struct{ SessionID string }

// Engine drives one simulation run. It is a single-goroutine value: Run
// owns it for the duration, and nothing in it locks.
type Engine struct {
	cfg    Config
	runID  string
	state  State
	halted bool

	store  *masterdata.Store
	params masterdata.Params

	clock *sim.Clock
	queue *sim.EventQueue
	rng   *sim.RNG

	pool       *stations.Pool
	catalog    *waves.Catalog
	staffgen   *staffing.Generator
	outbound   *orders.Classifier
	inbound    *receiving.Classifier
	estimator  *tasks.Estimator
	controller *assignment.Controller
	faults     *exceptions.Handler
	overtime   *overtime.Engine
	tracker    *tracking.Tracker

	sink    eventsink.Sink
	events  *cloudevents.EventFactory
	mon     *metrics.Metrics
	log     *slog.Logger
	runCtx  context.Context

	tasks      map[string]*tasks.Task
	taskIDs    []string
	orderDates map[string]time.Time
	rosters    map[string]*staffing.Roster
	epochs     map[string]int

	eventCounts  map[string]int
	daySummaries []DaySummary
	runErrors    []string
	runWarnings  []string

	counts struct {
		shippingCreated    int
		shippingCompleted  int
		receivingCreated   int
		receivingCompleted int
		overtimeCompleted  int
	}

	wavesPlanned int
	stats        *RunStats

	wallStart time.Time
	wallEnd   time.Time
}

// NewEngine wires a simulation engine over a loaded master-data store. The
// sink and metrics are optional; a nil logger falls back to the process
// default.
func NewEngine(store *masterdata.Store, cfg Config, sink eventsink.Sink, mon *metrics.Metrics, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("scheduler: nil master-data store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	catalog, err := waves.NewCatalog(store, logger)
	if err != nil {
		return nil, fmt.Errorf("build wave catalog: %w", err)
	}

	params := store.Params()
	rng := sim.NewRNG(cfg.Seed)
	pool := stations.NewPool(store.StationCapacities())
	staffgen := staffing.NewGenerator(store, logger)
	faults := exceptions.NewHandler(pool, params, rng.Stream(sim.StreamExceptions), logger)

	e := &Engine{
		cfg:         cfg,
		state:       StateCreated,
		store:       store,
		params:      params,
		clock:       sim.NewClock(cfg.StartDate),
		queue:       sim.NewEventQueue(),
		rng:         rng,
		pool:        pool,
		catalog:     catalog,
		staffgen:    staffgen,
		outbound:    orders.NewClassifier(store, logger),
		inbound:     receiving.NewClassifier(store, logger),
		estimator:   tasks.NewEstimator(store),
		controller:  assignment.NewController(pool, catalog, params, logger),
		faults:      faults,
		overtime:    overtime.NewEngine(pool, staffgen, params, logger),
		tracker:     tracking.NewTracker(pool, catalog, faults, store, logger),
		sink:        sink,
		events:      cloudevents.NewEventFactory(cloudevents.SourceSimulator),
		mon:         mon,
		log:         logger.With("component", "scheduler"),
		runCtx:      context.Background(),
		tasks:       make(map[string]*tasks.Task),
		orderDates:  make(map[string]time.Time),
		rosters:     make(map[string]*staffing.Roster),
		epochs:      make(map[string]int),
		eventCounts: make(map[string]int),
	}
	return e, nil
}

// Initialize books the run: an id, waves for every working day in the
// window, and the calendar of recurring events. It may be called once.
func (e *Engine) Initialize() (string, error) {
	if e.state != StateCreated {
		return "", fmt.Errorf("%w: initialize in state %s", ErrWrongState, e.state)
	}

	e.runID = newRunID()
	e.log = e.log.With("run_id", e.runID)

	e.wavesPlanned = e.buildCalendar()
	e.state = StateInitialized

	e.log.Info("simulation initialized",
		"start", e.cfg.StartDate.Format(time.RFC3339),
		"end", e.cfg.EndDate.Format(time.RFC3339),
		"seed", e.cfg.Seed,
		"queued_events", e.queue.Len(),
		"waves_planned", e.wavesPlanned)
	return e.runID, nil
}

// RunID returns the run id assigned at Initialize.
func (e *Engine) RunID() string { return e.runID }

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Clock returns the simulation clock, read-only for callers.
func (e *Engine) Clock() *sim.Clock { return e.clock }

// Tracker exposes the state tracker for status endpoints.
func (e *Engine) Tracker() *tracking.Tracker { return e.tracker }

// Run drains the event queue until the end bookend fires, the context is
// cancelled, or the start handler fails. Per-event handler errors are
// logged, recorded and skipped; only engine-level failures come back as
// the returned error.
func (e *Engine) Run(ctx context.Context) error {
	if e.state != StateInitialized {
		return fmt.Errorf("%w: run in state %s", ErrWrongState, e.state)
	}
	e.state = StateRunning
	e.runCtx = ctx
	e.wallStart = time.Now()
	e.log.Info("simulation running")
	e.publishRunStarted()

	for e.queue.Len() > 0 && !e.halted {
		select {
		case <-ctx.Done():
			e.state = StateCancelled
			e.warn("run cancelled at %s: %v", e.clock.Now().Format(time.RFC3339), ctx.Err())
			e.finalize()
			return ctx.Err()
		default:
		}

		ev := e.queue.Pop()
		e.clock.Set(ev.Time)
		e.eventCounts[string(ev.Type)]++
		if e.mon != nil {
			e.mon.RecordSimEvent(string(ev.Type))
		}

		if err := e.dispatch(ev); err != nil {
			e.fail(ev, err)
			if ev.Type == sim.EventSimulationStart {
				e.state = StateError
				e.finalize()
				return fmt.Errorf("simulation start: %w", err)
			}
		}
	}

	if e.state == StateRunning {
		e.state = StateCompleted
	}
	e.finalize()
	return nil
}

// dispatch routes one event to its handler, converting panics into handler
// errors so a bad event cannot take the run down.
func (e *Engine) dispatch(ev *sim.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	switch ev.Type {
	case sim.EventSimulationStart:
		return e.handleSimulationStart(ev)
	case sim.EventSimulationEnd:
		return e.handleSimulationEnd(ev)
	case sim.EventDailyScheduleGenerate:
		return e.handleDailySchedule(ev)
	case sim.EventReceivingLoad:
		return e.handleReceivingLoad(ev)
	case sim.EventTaskAssign, sim.EventReceivingTaskAssign:
		return e.handleTaskAssign(ev)
	case sim.EventTaskStart:
		return e.handleTaskStart(ev)
	case sim.EventTaskComplete:
		return e.handleTaskComplete(ev)
	case sim.EventWaveCompletionCheck:
		return e.handleWaveCompletionCheck(ev)
	case sim.EventStationBecomeIdle:
		return e.handleStationBecomeIdle(ev)
	case sim.EventReceivingDeadlineCheck:
		return e.handleReceivingDeadlineCheck(ev)
	case sim.EventOvertimeEvaluation:
		return e.handleOvertimeEvaluation(ev)
	case sim.EventOvertimeStart:
		return e.handleOvertimeStart(ev)
	case sim.EventOvertimeEnd:
		return e.handleOvertimeEnd(ev)
	case sim.EventExceptionDetected:
		return e.handleExceptionDetected(ev)
	case sim.EventExceptionResolved:
		return e.handleExceptionResolved(ev)
	case sim.EventSystemStatusUpdate:
		return e.handleSystemStatusUpdate(ev)
	case sim.EventEndOfDayProcessing:
		return e.handleEndOfDay(ev)
	default:
		e.log.Warn("event type has no handler", "type", ev.Type)
		return nil
	}
}

// buildCalendar seeds the queue with the run bookends, the per-workday
// choreography and the periodic sweeps, and instantiates every workday's
// waves so order intake can attach tasks to any day in the window.
func (e *Engine) buildCalendar() int {
	start, end := e.cfg.StartDate, e.cfg.EndDate

	e.schedule(start, sim.EventSimulationStart, prioControl, nil)
	e.schedule(end, sim.EventSimulationEnd, prioControl, nil)

	inWindow := func(t time.Time) bool {
		return !t.Before(start) && t.Before(end)
	}

	wavesPlanned := 0
	for day := masterdata.DateOf(start); day.Before(end); day = day.AddDate(0, 0, 1) {
		if !masterdata.IsWorkday(day) {
			continue
		}
		wavesPlanned += len(e.catalog.CreateWavesForDate(day))

		daily := []struct {
			clock    masterdata.ClockTime
			typ      sim.EventType
			priority int
		}{
			{masterdata.ClockTime{Hour: 6}, sim.EventDailyScheduleGenerate, prioStart},
			{masterdata.ClockTime{Hour: 8}, sim.EventReceivingLoad, prioCompletion},
			{masterdata.ClockTime{Hour: 10}, sim.EventReceivingDeadlineCheck, prioDeadline},
			{masterdata.ClockTime{Hour: 14}, sim.EventReceivingDeadlineCheck, prioDeadline},
			{masterdata.ClockTime{Hour: 16}, sim.EventReceivingDeadlineCheck, prioDeadline},
			{masterdata.ClockTime{Hour: 17}, sim.EventEndOfDayProcessing, prioDayClose},
		}
		for _, entry := range daily {
			switch entry.typ {
			case sim.EventReceivingLoad, sim.EventReceivingDeadlineCheck:
				if !e.cfg.ReceivingEnabled {
					continue
				}
			}
			if at := entry.clock.At(day); inWindow(at) {
				e.schedule(at, entry.typ, entry.priority, datePayload{Date: day})
			}
		}
	}

	for t := start.Add(e.cfg.StatusUpdateInterval); t.Before(end); t = t.Add(e.cfg.StatusUpdateInterval) {
		e.schedule(t, sim.EventSystemStatusUpdate, prioStatus, nil)
	}

	if e.cfg.OvertimeEnabled {
		for t := start; t.Before(end); t = t.Add(e.cfg.OvertimeEvaluationInterval) {
			if h := t.Hour(); h < overtimeEvaluationFirstHour || h > overtimeEvaluationLastHour {
				continue
			}
			e.schedule(t, sim.EventOvertimeEvaluation, prioOvertime, nil)
		}
	}

	return wavesPlanned
}

func (e *Engine) schedule(t time.Time, typ sim.EventType, priority int, payload any) {
	e.queue.Push(&sim.Event{Type: typ, Time: t, Priority: priority, Payload: payload})
}

// register adds a task to the engine tables in creation order.
func (e *Engine) register(t *tasks.Task) {
	e.tasks[t.TaskID] = t
	e.taskIDs = append(e.taskIDs, t.TaskID)
}

// task finds a regular task or an overtime variant.
func (e *Engine) task(taskID string) (*tasks.Task, bool) {
	if t, ok := e.tasks[taskID]; ok {
		return t, true
	}
	return e.overtime.Variant(taskID)
}

// taskStatus adapts the engine tables to the wave catalog's lookup.
func (e *Engine) taskStatus(taskID string) (tasks.Status, bool) {
	t, ok := e.task(taskID)
	if !ok {
		return "", false
	}
	return t.Status, true
}

// allTasks returns every regular task in creation order.
func (e *Engine) allTasks() []*tasks.Task {
	out := make([]*tasks.Task, 0, len(e.taskIDs))
	for _, id := range e.taskIDs {
		out = append(out, e.tasks[id])
	}
	return out
}

// pendingTasks returns the regular tasks still waiting for a station.
func (e *Engine) pendingTasks() []*tasks.Task {
	var out []*tasks.Task
	for _, id := range e.taskIDs {
		if t := e.tasks[id]; t.Status == tasks.StatusPending {
			out = append(out, t)
		}
	}
	return out
}

// openTasks returns the regular tasks that still need work: pending,
// assigned, in progress or paused.
func (e *Engine) openTasks() []*tasks.Task {
	var out []*tasks.Task
	for _, id := range e.taskIDs {
		if t := e.tasks[id]; !t.Status.IsTerminal() {
			out = append(out, t)
		}
	}
	return out
}

// rosterFor returns the roster for the date, generating it on first use so
// early-morning assignment never runs unstaffed.
func (e *Engine) rosterFor(date time.Time) *staffing.Roster {
	key := masterdata.DateOf(date).Format("2006-01-02")
	if r, ok := e.rosters[key]; ok {
		return r
	}
	r := e.staffgen.DailyRoster(date, e.rng.Stream(sim.StreamShortage))
	e.rosters[key] = r
	return r
}

// bumpEpoch invalidates any completion already queued for the task and
// returns the epoch the next completion must carry.
func (e *Engine) bumpEpoch(taskID string) int {
	e.epochs[taskID]++
	return e.epochs[taskID]
}

func (e *Engine) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.runWarnings = append(e.runWarnings, msg)
	e.log.Warn(msg)
}

func (e *Engine) fail(ev *sim.Event, err error) {
	e.runErrors = append(e.runErrors,
		fmt.Sprintf("%s at %s: %v", ev.Type, ev.Time.Format(time.RFC3339), err))
	e.log.Error("event handler failed", "type", ev.Type, "time", ev.Time, "error", err)
}

func newRunID() string {
	return fmt.Sprintf("SIM_%s_%s", time.Now().UTC().Format("20060102_150405"), uuid.New().String()[:8])
}
