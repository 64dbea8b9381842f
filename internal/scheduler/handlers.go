package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/exceptions"
	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/overtime"
	"github.com/hsichihchen-design/cpdoldsim/internal/sim"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

// handleSimulationStart turns the window's order history into shipping
// tasks. Each task gets an assignment attempt queued at a priority-scaled
// delay after its order arrived. Producing no tasks from a non-empty
// history is fatal; the run aborts with state ERROR.
func (e *Engine) handleSimulationStart(ev *sim.Event) error {
	now := ev.Time
	e.log.Info("simulation started")

	records := e.ordersInWindow()
	if len(records) == 0 {
		e.warn("no orders between %s and %s",
			e.cfg.StartDate.Format("2006-01-02"), e.cfg.EndDate.Format("2006-01-02"))
		return nil
	}

	processed, summary := e.outbound.ProcessBatch(records)
	created, skipped := 0, 0
	for i := range processed {
		po := &processed[i]
		t, err := e.shippingTask(po)
		if err != nil {
			skipped++
			e.warn("order %s skipped: %v", po.Order.IndexNo, err)
			continue
		}

		arrival := e.orderArrival(po.Order, now)
		e.register(t)
		e.orderDates[t.TaskID] = masterdata.DateOf(po.Order.Date)
		e.attachToWave(t, arrival)
		e.counts.shippingCreated++
		created++

		e.schedule(arrival.Add(e.assignDelay(t.Priority)),
			sim.EventTaskAssign, prioAssign, taskPayload{TaskID: t.TaskID})
	}

	if created == 0 {
		return fmt.Errorf("none of %d order lines produced a task", len(records))
	}
	e.log.Info("shipping intake complete",
		"orders", summary.TotalOrders, "tasks", created, "skipped", skipped,
		"late_orders", summary.LateOrders, "sub_warehouse", summary.SubWarehouseOrders)
	return nil
}

// handleSimulationEnd stops the loop; unprocessed events stay in the queue.
func (e *Engine) handleSimulationEnd(ev *sim.Event) error {
	e.halted = true
	e.log.Info("simulation end reached", "remaining_events", e.queue.Len())
	return nil
}

// handleDailySchedule materializes the date's roster.
func (e *Engine) handleDailySchedule(ev *sim.Event) error {
	p, ok := ev.Payload.(datePayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	roster := e.rosterFor(p.Date)
	e.log.Info("daily roster ready",
		"date", p.Date.Format("2006-01-02"), "shifts", roster.StaffCount())
	return nil
}

// handleReceivingLoad builds receiving tasks for the date's arrivals and
// queues their batched assignment half an hour later.
func (e *Engine) handleReceivingLoad(ev *sim.Event) error {
	p, ok := ev.Payload.(datePayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	now := ev.Time

	records := e.store.ReceivingOn(p.Date)
	if len(records) == 0 {
		e.log.Debug("no receiving arrivals", "date", p.Date.Format("2006-01-02"))
		return nil
	}

	processed := e.inbound.ProcessBatch(records, p.Date)
	created, skipped := 0, 0
	for i := range processed {
		t, err := e.receivingTask(&processed[i])
		if err != nil {
			skipped++
			e.warn("receiving %s skipped: %v", processed[i].Record.ReceivingID, err)
			continue
		}
		e.register(t)
		e.counts.receivingCreated++
		created++
	}

	if created > 0 {
		e.schedule(now.Add(receivingAssignDelay),
			sim.EventReceivingTaskAssign, prioAssign, datePayload{Date: p.Date})
	}
	e.log.Info("receiving intake complete",
		"date", p.Date.Format("2006-01-02"), "tasks", created, "skipped", skipped)
	return nil
}

// handleTaskAssign runs one assignment tick over everything still pending.
// The triggering task may already have been placed by an earlier tick;
// that is normal and drops the event.
func (e *Engine) handleTaskAssign(ev *sim.Event) error {
	if p, ok := ev.Payload.(taskPayload); ok {
		t, found := e.tasks[p.TaskID]
		if !found {
			return fmt.Errorf("%w: %s", ErrTaskUnknown, p.TaskID)
		}
		if t.Status != tasks.StatusPending {
			return nil
		}
	}
	e.runAssignment(ev.Time)
	return nil
}

// runAssignment starts any waves whose cutoff passed, hands the pending
// backlog to the controller, and queues a start per placement. Tasks the
// controller flagged for overtime get a session booked right away.
func (e *Engine) runAssignment(now time.Time) {
	e.catalog.StartDueWaves(now)

	pending := e.pendingTasks()
	if len(pending) == 0 {
		return
	}

	roster := e.rosterFor(now)
	result := e.controller.AssignTasks(pending, roster, now)

	for _, placement := range result.Placements {
		e.schedule(placement.PlannedStart,
			sim.EventTaskStart, prioStart, taskPayload{TaskID: placement.TaskID})
	}
	if len(result.OvertimeRequired) > 0 {
		e.queueOvertimeByID(result.OvertimeRequired, now)
	}
	if len(result.Placements) > 0 || len(result.Unassigned) > 0 {
		e.log.Info("assignment tick",
			"placed", len(result.Placements),
			"unassigned", len(result.Unassigned),
			"overtime_flagged", len(result.OvertimeRequired))
	}
}

// handleTaskStart rolls the exception dice and, when clear, moves the task
// into execution. A fault parks the task in ASSIGNED until resolution
// re-queues its start.
func (e *Engine) handleTaskStart(ev *sim.Event) error {
	p, ok := ev.Payload.(taskPayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	t, found := e.task(p.TaskID)
	if !found {
		return fmt.Errorf("%w: %s", ErrTaskUnknown, p.TaskID)
	}
	if t.Status != tasks.StatusAssigned {
		e.log.Debug("start dropped", "task", t.TaskID, "status", t.Status)
		return nil
	}
	now := ev.Time

	if e.cfg.ExceptionsEnabled {
		if fault := e.faults.DetectOnStart(t, now); fault != nil {
			if e.mon != nil {
				e.mon.RecordException(string(fault.Type))
			}
			e.schedule(now, sim.EventExceptionDetected, prioException,
				exceptionPayload{ExceptionID: fault.ExceptionID})
			return nil
		}
	}

	e.startExecution(t, now)
	return nil
}

// startExecution rolls the actual duration for the assigned staff member
// and moves the task and its station into execution.
func (e *Engine) startExecution(t *tasks.Task, now time.Time) {
	skill, ok := e.store.Staff(t.AssignedStaff)
	if !ok {
		skill = masterdata.StaffSkill{SkillLevel: 3, CapacityMultiplier: 1}
	}
	actual := e.estimator.ActualDuration(t, skill, e.rng.Stream(sim.StreamDurations))
	if err := t.Start(now, actual); err != nil {
		e.warn("task %s failed to start: %v", t.TaskID, err)
		return
	}

	completion := now.Add(minutesDur(actual))
	if station, found := e.pool.Get(t.AssignedStation); found {
		station.StartTask(t.TaskID)
		if completion.After(station.AvailableTime) {
			station.AvailableTime = completion
		}
	}

	epoch := e.bumpEpoch(t.TaskID)
	e.schedule(completion, sim.EventTaskComplete, prioCompletion,
		completionPayload{TaskID: t.TaskID, Epoch: epoch})
}

// handleTaskComplete closes out a task. Completions queued before a pause
// or a cancellation carry an old epoch and are dropped.
func (e *Engine) handleTaskComplete(ev *sim.Event) error {
	p, ok := ev.Payload.(completionPayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	t, found := e.task(p.TaskID)
	if !found {
		return fmt.Errorf("%w: %s", ErrTaskUnknown, p.TaskID)
	}
	if p.Epoch != e.epochs[p.TaskID] || t.Status != tasks.StatusInProgress {
		e.log.Debug("stale completion dropped", "task", p.TaskID, "status", t.Status)
		return nil
	}
	now := ev.Time

	if err := t.Complete(now); err != nil {
		return err
	}
	e.countCompletion(t)
	if e.mon != nil {
		e.mon.RecordTaskCompleted(string(t.Type))
	}

	if t.WaveID != "" {
		e.schedule(now.Add(waveCheckDelay),
			sim.EventWaveCompletionCheck, prioDayClose, wavePayload{WaveID: t.WaveID})
	}
	if t.AssignedStation != "" {
		e.schedule(now, sim.EventStationBecomeIdle, prioAssign,
			stationPayload{StationID: t.AssignedStation, TaskID: t.TaskID})
	}
	return nil
}

func (e *Engine) countCompletion(t *tasks.Task) {
	switch t.Type {
	case tasks.TypeShipping:
		e.counts.shippingCompleted++
	case tasks.TypeReceiving:
		e.counts.receivingCompleted++
	case tasks.TypeOvertime:
		e.counts.overtimeCompleted++
	}
}

// handleWaveCompletionCheck closes the wave once every attached task
// completed and frees its stations for the next wave. Re-checks against an
// already closed wave are harmless.
func (e *Engine) handleWaveCompletionCheck(ev *sim.Event) error {
	p, ok := ev.Payload.(wavePayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	now := ev.Time

	result, err := e.catalog.CheckCompletion(p.WaveID, now, e.taskStatus)
	if err != nil {
		return err
	}
	if !result.Completed {
		return nil
	}

	wave, found := e.catalog.Get(p.WaveID)
	if !found {
		return nil
	}
	for _, stationID := range wave.AssignedStations {
		e.schedule(now, sim.EventStationBecomeIdle, prioAssign,
			stationPayload{StationID: stationID})
	}
	if e.mon != nil {
		e.mon.RecordWaveCompleted()
	}
	e.publishWaveCompleted(wave, now)
	e.log.Info("wave completed", "wave", p.WaveID, "tasks", result.TotalTasks)
	return nil
}

// handleStationBecomeIdle releases the station unless exception handling
// holds it, then backfills from the pending backlog.
func (e *Engine) handleStationBecomeIdle(ev *sim.Event) error {
	p, ok := ev.Payload.(stationPayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	now := ev.Time

	station, found := e.pool.Get(p.StationID)
	if !found {
		return fmt.Errorf("unknown station %s", p.StationID)
	}
	if station.ReservedForException {
		return nil
	}
	if p.TaskID != "" && station.CurrentTaskID == p.TaskID {
		station.CompleteTask(now)
	} else {
		station.BecomeIdle(now)
	}

	e.runAssignment(now)
	return nil
}

// handleReceivingDeadlineCheck sweeps receiving work against its completion
// deadline. Overdue lines get an immediate overtime session; lines due
// today without progress get one from mid-afternoon.
func (e *Engine) handleReceivingDeadlineCheck(ev *sim.Event) error {
	p, ok := ev.Payload.(datePayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	now := ev.Time
	today := masterdata.DateOf(p.Date)

	var overdue, dueToday []*tasks.Task
	for _, id := range e.taskIDs {
		t := e.tasks[id]
		if t.Type != tasks.TypeReceiving || t.Status.IsTerminal() ||
			t.DeadlineDate.IsZero() || e.hasVariant(t.TaskID) {
			continue
		}
		deadline := masterdata.DateOf(t.DeadlineDate)
		switch {
		case deadline.Before(today):
			overdue = append(overdue, t)
		case deadline.Equal(today) && t.Status != tasks.StatusInProgress:
			dueToday = append(dueToday, t)
		}
	}

	if len(overdue) > 0 {
		e.warn("%d receiving task(s) past their completion deadline at %s",
			len(overdue), now.Format("15:04"))
		e.bookOvertime(overdue, now, "receiving past completion deadline")
	}
	if len(dueToday) > 0 && now.Hour() >= 15 {
		e.bookOvertime(dueToday, now, "receiving due today still incomplete")
	}
	return nil
}

// handleOvertimeEvaluation looks for same-day work that will not finish in
// regular hours and books it a session ten minutes out.
func (e *Engine) handleOvertimeEvaluation(ev *sim.Event) error {
	now := ev.Time
	today := masterdata.DateOf(now)

	var candidates []*tasks.Task
	for _, t := range e.openTasks() {
		if t.Type == tasks.TypeShipping && !masterdata.SameDate(e.orderDates[t.TaskID], today) {
			continue
		}
		if e.hasVariant(t.TaskID) {
			continue
		}
		candidates = append(candidates, t)
	}

	need := e.overtime.TasksRequiringOvertime(candidates, now)
	if len(need) == 0 {
		return nil
	}
	e.bookOvertime(need, now.Add(overtimeLeadTime), "end-of-day slip")
	return nil
}

// queueOvertimeByID books overtime for tasks the assignment controller
// reported as unplaceable inside their wave window.
func (e *Engine) queueOvertimeByID(ids []string, now time.Time) {
	var need []*tasks.Task
	for _, id := range ids {
		t, found := e.tasks[id]
		if !found || t.Status.IsTerminal() || e.hasVariant(id) {
			continue
		}
		need = append(need, t)
	}
	e.bookOvertime(need, now.Add(overtimeLeadTime), "wave capacity exhausted")
}

// bookOvertime plans one session covering the tasks and queues its start
// and end. A closed overtime window downgrades to a warning.
func (e *Engine) bookOvertime(need []*tasks.Task, startAt time.Time, fallbackReason string) {
	if !e.cfg.OvertimeEnabled || len(need) == 0 {
		return
	}

	reqs := e.overtime.Requirements(need, e.clock.Now(), fallbackReason)
	session, err := e.overtime.PlanSession(reqs, startAt)
	switch {
	case errors.Is(err, overtime.ErrOvertimeDisabled):
		e.log.Debug("overtime disabled by parameters", "tasks", len(need))
		return
	case errors.Is(err, overtime.ErrNoRequirements):
		return
	case errors.Is(err, overtime.ErrWindowClosed):
		e.warn("overtime window closed for %d task(s): %v", len(need), err)
		return
	case err != nil:
		e.warn("overtime planning failed: %v", err)
		return
	}

	e.schedule(session.StartAt, sim.EventOvertimeStart, prioException,
		sessionPayload{SessionID: session.SessionID})
	e.schedule(session.PlannedEndAt, sim.EventOvertimeEnd, prioCompletion,
		sessionPayload{SessionID: session.SessionID})
}

// handleOvertimeStart spawns the session's task variants, extends the
// roster with its shifts, and queues the variants' starts shortly after.
func (e *Engine) handleOvertimeStart(ev *sim.Event) error {
	p, ok := ev.Payload.(sessionPayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	now := ev.Time

	roster := e.rosterFor(now)
	variants, shifts, err := e.overtime.StartSession(p.SessionID, roster, e.tasks, now)
	if err != nil {
		return err
	}
	roster.Append(shifts...)

	for _, variant := range variants {
		e.schedule(now.Add(overtimeStartupDelay),
			sim.EventTaskStart, prioException, taskPayload{TaskID: variant.TaskID})
	}
	if e.mon != nil {
		e.mon.RecordOvertimeSession()
	}
	if session, found := e.sessionByID(p.SessionID); found {
		e.publishOvertimeScheduled(session, variants)
	}
	e.log.Info("overtime session started", "session", p.SessionID, "variants", len(variants))
	return nil
}

// handleOvertimeEnd closes the window: running variants are force-completed
// at the whistle, unstarted ones cancelled, their stations released.
func (e *Engine) handleOvertimeEnd(ev *sim.Event) error {
	p, ok := ev.Payload.(sessionPayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	now := ev.Time

	session, err := e.overtime.EndSession(p.SessionID, now)
	if err != nil {
		if errors.Is(err, overtime.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	for _, stationID := range session.Stations {
		req, found := session.Requirements[stationID]
		if !found {
			continue
		}
		variant, found := e.overtime.Variant(tasks.OvertimeTaskID(req.TaskID))
		if !found {
			continue
		}
		switch variant.Status {
		case tasks.StatusInProgress:
			if err := variant.Complete(now); err != nil {
				e.warn("overtime task %s failed to close: %v", variant.TaskID, err)
				continue
			}
			e.bumpEpoch(variant.TaskID)
			e.counts.overtimeCompleted++
			if e.mon != nil {
				e.mon.RecordTaskCompleted(string(variant.Type))
			}
			e.releaseStationOf(variant, now)
		case tasks.StatusPending, tasks.StatusAssigned:
			if err := variant.Cancel(); err == nil {
				e.releaseStationOf(variant, now)
			}
		}
	}

	e.log.Info("overtime session closed",
		"session", session.SessionID, "hours", session.ActualHours)
	return nil
}

// handleExceptionDetected walks the fault through leader and station
// allocation. Either resource missing retries the whole event later; a
// successful allocation books the resolution.
func (e *Engine) handleExceptionDetected(ev *sim.Event) error {
	p, ok := ev.Payload.(exceptionPayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	now := ev.Time

	fault, active := e.faults.Get(p.ExceptionID)
	if !active {
		e.log.Debug("exception no longer active", "exception", p.ExceptionID)
		return nil
	}

	if fault.AssignedLeader == 0 {
		if _, err := e.faults.AssignLeader(p.ExceptionID, now); err != nil {
			if errors.Is(err, exceptions.ErrNoLeader) {
				e.schedule(now.Add(exceptionRetryDelay), sim.EventExceptionDetected, prioException, p)
				return nil
			}
			return err
		}
	}

	allocation, err := e.faults.AllocateStation(p.ExceptionID, now, e.pauseTask)
	if err != nil {
		if errors.Is(err, exceptions.ErrNoStation) {
			e.schedule(now.Add(exceptionRetryDelay), sim.EventExceptionDetected, prioException, p)
			return nil
		}
		return err
	}

	e.schedule(allocation.EstimatedCompletion, sim.EventExceptionResolved, prioException, p)
	return nil
}

// pauseTask suspends a running task so its station can host exception
// work. Its queued completion goes stale through the epoch bump.
func (e *Engine) pauseTask(taskID string) error {
	t, found := e.task(taskID)
	if !found {
		return fmt.Errorf("%w: %s", ErrTaskUnknown, taskID)
	}
	if err := t.Pause(); err != nil {
		return err
	}
	e.bumpEpoch(taskID)
	e.log.Info("task paused for exception handling", "task", taskID)
	return nil
}

// handleExceptionResolved closes the fault and picks the blocked work back
// up: a paused task resumes with a fraction of its estimate left, a parked
// one gets a fresh start.
func (e *Engine) handleExceptionResolved(ev *sim.Event) error {
	p, ok := ev.Payload.(exceptionPayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	now := ev.Time

	fault, active := e.faults.Get(p.ExceptionID)
	if !active {
		return nil
	}
	resolution, err := e.faults.Resolve(p.ExceptionID, now, "resolved on schedule")
	if err != nil {
		return err
	}
	e.publishExceptionResolved(fault, &resolution)

	if resolution.ResumeTaskID == "" {
		return nil
	}
	t, found := e.task(resolution.ResumeTaskID)
	if !found {
		e.warn("resumable task %s not registered", resolution.ResumeTaskID)
		return nil
	}

	switch t.Status {
	case tasks.StatusPaused:
		if err := t.Resume(); err != nil {
			return err
		}
		remaining := t.EstimatedDuration * e.cfg.ResumeWorkFraction
		epoch := e.bumpEpoch(t.TaskID)
		e.schedule(now.Add(minutesDur(remaining)), sim.EventTaskComplete, prioCompletion,
			completionPayload{TaskID: t.TaskID, Epoch: epoch})
		e.log.Info("paused task resumed",
			"task", t.TaskID, "remaining_minutes", remaining)
	case tasks.StatusAssigned:
		// Parked on a warming station for the whole handling; start now.
		e.schedule(now, sim.EventTaskStart, prioStart, taskPayload{TaskID: t.TaskID})
	}
	return nil
}

// handleSystemStatusUpdate is the periodic sweep: wave activation, tracker
// refresh, escalation checks and the ambient fault roll.
func (e *Engine) handleSystemStatusUpdate(ev *sim.Event) error {
	now := ev.Time
	e.catalog.StartDueWaves(now)
	e.tracker.Update(now, e.trackedTasks(), false)

	if escalated := e.faults.CheckEscalations(now); len(escalated) > 0 {
		e.log.Warn("exceptions escalated", "count", len(escalated))
	}
	if e.cfg.ExceptionsEnabled {
		if fault := e.faults.DetectAmbient(now); fault != nil {
			if e.mon != nil {
				e.mon.RecordException(string(fault.Type))
			}
			e.schedule(now, sim.EventExceptionDetected, prioException,
				exceptionPayload{ExceptionID: fault.ExceptionID})
		}
	}
	return nil
}

// handleEndOfDay books overtime for the day's must-finish work, then
// closes the day's books.
func (e *Engine) handleEndOfDay(ev *sim.Event) error {
	p, ok := ev.Payload.(datePayload)
	if !ok {
		return fmt.Errorf("%w: %T", errBadPayload, ev.Payload)
	}
	now := ev.Time
	date := masterdata.DateOf(p.Date)

	var slipping []*tasks.Task
	for _, id := range e.taskIDs {
		t := e.tasks[id]
		if t.Status.IsTerminal() || e.hasVariant(t.TaskID) {
			continue
		}
		switch {
		case t.Type == tasks.TypeShipping && t.IsSubWarehouse() &&
			masterdata.SameDate(e.orderDates[t.TaskID], date):
			slipping = append(slipping, t)
		case t.Type == tasks.TypeReceiving && !t.DeadlineDate.IsZero() &&
			masterdata.DateOf(t.DeadlineDate).Equal(date):
			slipping = append(slipping, t)
		}
	}
	e.bookOvertime(slipping, now, "end of day")

	summary := e.buildDaySummary(date)
	e.daySummaries = append(e.daySummaries, summary)
	e.publishDaySummary(&summary)
	e.log.Info("day closed",
		"date", summary.Date,
		"shipping_done", summary.ShippingCompleted,
		"receiving_done", summary.ReceivingCompleted,
		"waves_completed", summary.WavesCompleted,
		"overtime_sessions", summary.OvertimeSessions)
	return nil
}

// hasVariant reports whether the overtime engine already took the task over.
func (e *Engine) hasVariant(taskID string) bool {
	_, found := e.overtime.Variant(tasks.OvertimeTaskID(taskID))
	return found
}

// releaseStationOf idles the station still holding the task, if any.
func (e *Engine) releaseStationOf(t *tasks.Task, now time.Time) {
	if t.AssignedStation == "" {
		return
	}
	if station, found := e.pool.Get(t.AssignedStation); found && station.CurrentTaskID == t.TaskID {
		station.CompleteTask(now)
	}
}

// trackedTasks is everything the state tracker mirrors: regular tasks plus
// open overtime variants.
func (e *Engine) trackedTasks() []*tasks.Task {
	return append(e.allTasks(), e.overtime.IncompleteVariants()...)
}

// sessionByID finds a booked overtime session.
func (e *Engine) sessionByID(id string) (*overtime.Session, bool) {
	for _, session := range e.overtime.Sessions() {
		if session.SessionID == id {
			return session, true
		}
	}
	return nil, false
}

func minutesDur(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
