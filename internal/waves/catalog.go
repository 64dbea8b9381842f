package waves

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

// TaskStatusFn resolves a task id to its current status. The task registry
// is owned by the engine; the catalog only reads through this function.
type TaskStatusFn func(taskID string) (tasks.Status, bool)

// waveTemplate is one distinct delivery time from the timetable with
// everything that leaves at that time.
type waveTemplate struct {
	deliveryHHMM string
	delivery     masterdata.ClockTime
	routes       []string
	partcustids  []string
	cutoffs      []string
	latestHHMM   string
	latestCutoff masterdata.ClockTime
}

// Catalog groups the route timetable by delivery time and instantiates the
// resulting waves per simulated day. It also tracks the live waves:
// active set, completion and overdue scans.
type Catalog struct {
	params masterdata.Params
	log    *slog.Logger

	// IncludeWeekends lets weekend-enabled timetables produce waves on
	// Saturday and Sunday. Off by default.
	IncludeWeekends bool

	templates     map[string]*waveTemplate
	deliveryTimes []string            // sorted template keys
	partcustWaves map[string][]string // partcustid -> sorted delivery HHMMs

	waves   map[string]*Wave
	active  []string
	history []string
}

// NewCatalog indexes the route timetable. An empty timetable is rejected:
// without delivery times there is nothing to plan shipping against.
func NewCatalog(store *masterdata.Store, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries := store.RouteSchedule()
	if len(entries) == 0 {
		return nil, ErrNoTimetable
	}

	c := &Catalog{
		params:        store.Params(),
		log:           logger.With("component", "waves"),
		templates:     make(map[string]*waveTemplate),
		partcustWaves: make(map[string][]string),
		waves:         make(map[string]*Wave),
	}
	c.buildTemplates(entries)

	c.log.Info("wave catalog built",
		"deliveryTimes", len(c.templates),
		"partcustids", len(c.partcustWaves))
	return c, nil
}

// buildTemplates groups timetable rows by delivery time. Routes and
// partcustids dedupe in first-appearance order; the latest cutoff is the
// lexicographic max of the zero-padded cutoffs, falling back to the
// delivery time itself when no row carries a cutoff.
func (c *Catalog) buildTemplates(entries []masterdata.RouteScheduleEntry) {
	for _, entry := range entries {
		delivery, err := masterdata.ParseClock(entry.DeliveryTime)
		if err != nil {
			c.log.Warn("unparseable delivery time, row skipped",
				"route", entry.RouteCode, "partcustid", entry.Partcustid, "value", entry.DeliveryTime)
			continue
		}
		key := delivery.HHMM()

		tpl, ok := c.templates[key]
		if !ok {
			tpl = &waveTemplate{deliveryHHMM: key, delivery: delivery}
			c.templates[key] = tpl
			c.deliveryTimes = append(c.deliveryTimes, key)
		}

		tpl.routes = appendUnique(tpl.routes, entry.RouteCode)
		tpl.partcustids = appendUnique(tpl.partcustids, entry.Partcustid)

		if entry.OrderEndTime != "" {
			cutoff, err := masterdata.ParseClock(entry.OrderEndTime)
			if err != nil {
				c.log.Warn("unparseable cutoff, ignored",
					"route", entry.RouteCode, "partcustid", entry.Partcustid, "value", entry.OrderEndTime)
			} else {
				tpl.cutoffs = appendUnique(tpl.cutoffs, cutoff.HHMM())
			}
		}
	}

	sort.Strings(c.deliveryTimes)

	for _, key := range c.deliveryTimes {
		tpl := c.templates[key]
		sort.Strings(tpl.cutoffs)
		if len(tpl.cutoffs) > 0 {
			tpl.latestHHMM = tpl.cutoffs[len(tpl.cutoffs)-1]
		} else {
			tpl.latestHHMM = tpl.deliveryHHMM
		}
		// Zero-padded HHMM parses back losslessly.
		tpl.latestCutoff, _ = masterdata.ParseClock(tpl.latestHHMM)

		for _, partcustid := range tpl.partcustids {
			c.partcustWaves[partcustid] = append(c.partcustWaves[partcustid], key)
		}
	}
	for _, times := range c.partcustWaves {
		sort.Strings(times)
	}
}

// CreateWavesForDate instantiates every template as a concrete wave on the
// date. Weekends produce no waves unless IncludeWeekends is set. A
// delivery wallclock earlier than its cutoff rolls to the next day.
func (c *Catalog) CreateWavesForDate(date time.Time) []*Wave {
	date = masterdata.DateOf(date)
	if !masterdata.IsWorkday(date) && !c.IncludeWeekends {
		c.log.Info("weekend, no waves created", "date", date.Format("2006-01-02"))
		return nil
	}

	created := make([]*Wave, 0, len(c.deliveryTimes))
	for _, key := range c.deliveryTimes {
		wave := c.instantiate(c.templates[key], date)
		c.waves[wave.ID] = wave
		created = append(created, wave)
	}

	sort.Slice(created, func(i, j int) bool {
		if !created[i].DeliveryAt.Equal(created[j].DeliveryAt) {
			return created[i].DeliveryAt.Before(created[j].DeliveryAt)
		}
		return created[i].ID < created[j].ID
	})

	c.log.Info("daily waves created", "date", date.Format("2006-01-02"), "waves", len(created))
	return created
}

func (c *Catalog) instantiate(tpl *waveTemplate, date time.Time) *Wave {
	deliveryAt := tpl.delivery.At(date)
	cutoffAt := tpl.latestCutoff.At(date)
	if tpl.delivery.Compare(tpl.latestCutoff) < 0 {
		deliveryAt = deliveryAt.AddDate(0, 0, 1)
	}

	return &Wave{
		ID:             WaveID(tpl.deliveryHHMM, date),
		DeliveryHHMM:   tpl.deliveryHHMM,
		DeliveryAt:     deliveryAt,
		LatestCutoffAt: cutoffAt,
		Routes:         append([]string(nil), tpl.routes...),
		Partcustids:    append([]string(nil), tpl.partcustids...),
		CutoffTimes:    append([]string(nil), tpl.cutoffs...),
		Type:           TypeScheduled,
		Status:         StatusPlanned,
	}
}

// Get returns the wave with the given id.
func (c *Catalog) Get(waveID string) (*Wave, bool) {
	wave, ok := c.waves[waveID]
	return wave, ok
}

// FindWaveForPartcustid returns the id of the earliest wave on the order
// date whose cutoff the partner customer can still make. When every cutoff
// has passed, the day's last wave takes the order late. Unknown
// partcustids return false.
func (c *Catalog) FindWaveForPartcustid(partcustid string, orderTime time.Time) (string, bool) {
	times, ok := c.partcustWaves[partcustid]
	if !ok || len(times) == 0 {
		return "", false
	}
	orderHHMM := fmt.Sprintf("%02d%02d", orderTime.Hour(), orderTime.Minute())
	for _, key := range times {
		if orderHHMM <= c.templates[key].latestHHMM {
			return WaveID(key, orderTime), true
		}
	}
	return WaveID(times[len(times)-1], orderTime), true
}

// AttachTask adds a task to a wave that still accepts work.
func (c *Catalog) AttachTask(waveID, taskID string) error {
	wave, ok := c.waves[waveID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWaveNotFound, waveID)
	}
	if !wave.Status.IsAssignable() {
		return fmt.Errorf("%w: %s is %s", ErrNotAssignable, waveID, wave.Status)
	}
	wave.AddTask(taskID)
	return nil
}

// StartWave starts one wave, honoring the early-start buffer.
func (c *Catalog) StartWave(waveID string, now time.Time) error {
	wave, ok := c.waves[waveID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWaveNotFound, waveID)
	}
	if err := wave.Start(now, c.params.EarlyStartBufferMinutes); err != nil {
		return err
	}
	c.active = appendUnique(c.active, waveID)
	c.log.Info("wave started",
		"wave", waveID, "deliveryAt", wave.DeliveryAt, "workMinutes", wave.AvailableWorkMinutes())
	return nil
}

// StartDueWaves starts every planned wave whose latest cutoff has arrived.
func (c *Catalog) StartDueWaves(now time.Time) []*Wave {
	var started []*Wave
	for _, waveID := range c.sortedWaveIDs() {
		wave := c.waves[waveID]
		if wave.Status != StatusPlanned || wave.LatestCutoffAt.IsZero() || wave.LatestCutoffAt.After(now) {
			continue
		}
		if err := c.StartWave(waveID, now); err != nil {
			c.log.Warn("due wave failed to start", "wave", waveID, "error", err)
			continue
		}
		started = append(started, wave)
	}
	return started
}

// CompletionResult reports a completion check over one wave.
type CompletionResult struct {
	Completed       bool     `json:"completed"`
	TotalTasks      int      `json:"total_tasks"`
	CompletedTasks  int      `json:"completed_tasks"`
	IncompleteTasks []string `json:"incomplete_tasks,omitempty"`
}

// CheckCompletion closes out the wave when every attached task has
// completed: status COMPLETED, dropped from the active set, kept in
// history. Waves that are not running are reported incomplete without
// mutation.
func (c *Catalog) CheckCompletion(waveID string, now time.Time, statusOf TaskStatusFn) (CompletionResult, error) {
	wave, ok := c.waves[waveID]
	if !ok {
		return CompletionResult{}, fmt.Errorf("%w: %s", ErrWaveNotFound, waveID)
	}
	if wave.Status != StatusInProgress && wave.Status != StatusDelayed {
		return CompletionResult{TotalTasks: len(wave.TaskIDs)}, nil
	}

	var completed int
	var incomplete []string
	for _, taskID := range wave.TaskIDs {
		status, known := statusOf(taskID)
		if !known {
			continue
		}
		if status == tasks.StatusCompleted {
			completed++
		} else {
			incomplete = append(incomplete, taskID)
		}
	}

	result := CompletionResult{
		Completed:       len(incomplete) == 0,
		TotalTasks:      len(wave.TaskIDs),
		CompletedTasks:  completed,
		IncompleteTasks: incomplete,
	}
	wave.CompletedTasks = completed

	if result.Completed {
		wave.Status = StatusCompleted
		wave.ActualCompletion = now
		c.removeActive(waveID)
		c.history = appendUnique(c.history, waveID)
		c.log.Info("wave completed", "wave", waveID, "tasks", completed)
	}
	return result, nil
}

// ProgressPhase locates a wave relative to its picking window.
type ProgressPhase string

const (
	PhaseWaiting    ProgressPhase = "waiting"
	PhaseInProgress ProgressPhase = "in_progress"
	PhaseOverdue    ProgressPhase = "overdue"
)

// Progress is a point-in-time view of one wave's completion and timing.
type Progress struct {
	WaveID            string        `json:"wave_id"`
	Status            Status        `json:"status"`
	ProgressPercent   float64       `json:"progress_percent"`
	CompletedTasks    int           `json:"completed_tasks"`
	TotalTasks        int           `json:"total_tasks"`
	Phase             ProgressPhase `json:"phase"`
	MinutesUntilStart float64       `json:"minutes_until_start,omitempty"`
	ElapsedMinutes    float64       `json:"elapsed_minutes,omitempty"`
	RemainingMinutes  float64       `json:"remaining_minutes,omitempty"`
	TimeUtilization   float64       `json:"time_utilization,omitempty"`
	OverdueMinutes    float64       `json:"overdue_minutes,omitempty"`
}

// TrackProgress reports how far a wave has come against its window.
func (c *Catalog) TrackProgress(waveID string, now time.Time, statusOf TaskStatusFn) (Progress, error) {
	wave, ok := c.waves[waveID]
	if !ok {
		return Progress{}, fmt.Errorf("%w: %s", ErrWaveNotFound, waveID)
	}

	completed := 0
	for _, taskID := range wave.TaskIDs {
		if status, known := statusOf(taskID); known && status == tasks.StatusCompleted {
			completed++
		}
	}
	wave.CompletedTasks = completed

	progress := Progress{
		WaveID:         waveID,
		Status:         wave.Status,
		CompletedTasks: completed,
		TotalTasks:     wave.TotalTasks,
	}
	if wave.TotalTasks > 0 {
		progress.ProgressPercent = round1(float64(completed) / float64(wave.TotalTasks) * 100)
	}

	switch {
	case now.Before(wave.LatestCutoffAt):
		progress.Phase = PhaseWaiting
		progress.MinutesUntilStart = wave.LatestCutoffAt.Sub(now).Minutes()
	case !now.After(wave.DeliveryAt):
		progress.Phase = PhaseInProgress
		progress.ElapsedMinutes = now.Sub(wave.LatestCutoffAt).Minutes()
		progress.RemainingMinutes = wave.DeliveryAt.Sub(now).Minutes()
		if window := wave.AvailableWorkMinutes(); window > 0 {
			progress.TimeUtilization = round1(progress.ElapsedMinutes / window * 100)
		}
	default:
		progress.Phase = PhaseOverdue
		progress.OverdueMinutes = now.Sub(wave.DeliveryAt).Minutes()
	}
	return progress, nil
}

// OverdueWave is one entry of an overdue scan.
type OverdueWave struct {
	WaveID          string   `json:"wave_id"`
	OnTime          bool     `json:"on_time"`
	OverdueMinutes  float64  `json:"overdue_minutes,omitempty"`
	CompletedTasks  int      `json:"completed_tasks"`
	TotalTasks      int      `json:"total_tasks"`
	IncompleteTasks []string `json:"incomplete_tasks,omitempty"`
}

// ScanOverdue visits every running wave whose delivery time has arrived.
// Fully completed waves close out; incomplete ones are marked DELAYED and
// reported with how late they run.
func (c *Catalog) ScanOverdue(now time.Time, statusOf TaskStatusFn) []OverdueWave {
	var out []OverdueWave
	for _, waveID := range c.sortedWaveIDs() {
		wave := c.waves[waveID]
		if wave.Status != StatusInProgress && wave.Status != StatusDelayed {
			continue
		}
		if wave.DeliveryAt.IsZero() || wave.DeliveryAt.After(now) {
			continue
		}

		result, err := c.CheckCompletion(waveID, now, statusOf)
		if err != nil {
			continue
		}
		if result.Completed {
			out = append(out, OverdueWave{
				WaveID:         waveID,
				OnTime:         true,
				CompletedTasks: result.CompletedTasks,
				TotalTasks:     result.TotalTasks,
			})
			continue
		}

		overdue := round1(now.Sub(wave.DeliveryAt).Minutes())
		if wave.Status == StatusInProgress {
			wave.Status = StatusDelayed
		}
		out = append(out, OverdueWave{
			WaveID:          waveID,
			OverdueMinutes:  overdue,
			CompletedTasks:  result.CompletedTasks,
			TotalTasks:      result.TotalTasks,
			IncompleteTasks: result.IncompleteTasks,
		})
		c.log.Warn("wave past delivery time",
			"wave", waveID, "overdueMinutes", overdue,
			"completed", result.CompletedTasks, "total", result.TotalTasks)
	}
	return out
}

// CanStationStartNextWave reports whether a station may pick normal
// shipping from the next wave: every active scheduled wave it serves must
// have completed. Non-scheduled work is never gated.
func (c *Catalog) CanStationStartNextWave(stationID, nextWaveID string, now time.Time, statusOf TaskStatusFn) bool {
	next, ok := c.waves[nextWaveID]
	if !ok {
		return false
	}
	if next.Type != TypeScheduled {
		return true
	}

	for _, activeID := range append([]string(nil), c.active...) {
		wave, ok := c.waves[activeID]
		if !ok || wave.Type != TypeScheduled {
			continue
		}
		serves := false
		for _, id := range wave.AssignedStations {
			if id == stationID {
				serves = true
				break
			}
		}
		if !serves {
			continue
		}
		result, err := c.CheckCompletion(activeID, now, statusOf)
		if err != nil || !result.Completed {
			return false
		}
	}
	return true
}

// ActiveWaves returns the running waves sorted by id.
func (c *Catalog) ActiveWaves() []*Wave {
	out := make([]*Wave, 0, len(c.active))
	for _, waveID := range c.active {
		if wave, ok := c.waves[waveID]; ok {
			out = append(out, wave)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// History returns the ids of completed waves in completion order.
func (c *Catalog) History() []string {
	return append([]string(nil), c.history...)
}

// WavesOn returns the waves instantiated for a date, sorted by delivery.
func (c *Catalog) WavesOn(date time.Time) []*Wave {
	var out []*Wave
	for _, waveID := range c.sortedWaveIDs() {
		wave := c.waves[waveID]
		if masterdata.SameDate(wave.LatestCutoffAt, date) {
			out = append(out, wave)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeliveryAt.Equal(out[j].DeliveryAt) {
			return out[i].DeliveryAt.Before(out[j].DeliveryAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Catalog) sortedWaveIDs() []string {
	ids := make([]string, 0, len(c.waves))
	for id := range c.waves {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Catalog) removeActive(waveID string) {
	for i, id := range c.active {
		if id == waveID {
			c.active = append(c.active[:i], c.active[i+1:]...)
			return
		}
	}
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
