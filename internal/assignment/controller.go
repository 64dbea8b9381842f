package assignment

import (
	"log/slog"
	"sort"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/packing"
	"github.com/hsichihchen-design/cpdoldsim/internal/staffing"
	"github.com/hsichihchen-design/cpdoldsim/internal/stations"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
	"github.com/hsichihchen-design/cpdoldsim/internal/waves"
)

// defaultWaveID groups shipping tasks that match no scheduled wave.
const defaultWaveID = "WAVE_DEFAULT"

// gapMinutesPerStation is the slack each free station is assumed to offer
// when sizing the remaining gap for stage three.
const gapMinutesPerStation = 30.0

// receivingPriorityThreshold is the aggregate gap, in minutes, below which
// receiving jumps ahead of sub-warehouse shipping.
const receivingPriorityThreshold = 60.0

// Placement is one task booked onto a station during a controller tick.
// PlannedStart is where the scheduler fires the task's start event.
type Placement struct {
	TaskID            string    `json:"task_id"`
	StationID         string    `json:"station_id"`
	StaffID           int       `json:"staff_id"`
	WaveID            string    `json:"wave_id,omitempty"`
	PlannedStart      time.Time `json:"planned_start"`
	PlannedCompletion time.Time `json:"planned_completion"`
}

// Result collects everything one controller tick decided. Unassigned tasks
// stay pending and ride the next tick; OvertimeRequired names the subset
// that cannot wait for it.
type Result struct {
	Placements       []Placement                        `json:"placements"`
	Unassigned       []string                           `json:"unassigned"`
	OvertimeRequired []string                           `json:"overtime_required"`
	WaveAnalysis     map[string]waves.FeasibilityResult `json:"wave_analysis"`
}

// Controller places pending tasks onto stations in three stages: scheduled
// waves are packed whole for P1 shipping, urgent P2 shipping fills the gaps
// left over, and sub-warehouse shipping plus receiving take whatever remains.
// Stations booked by an earlier stage stay off-limits to the later ones.
type Controller struct {
	pool    *stations.Pool
	catalog *waves.Catalog
	packer  *packing.Packer
	params  masterdata.Params
	log     *slog.Logger
}

// NewController wires the controller onto the shared station pool and wave
// catalog. A nil logger falls back to slog.Default().
func NewController(pool *stations.Pool, catalog *waves.Catalog, params masterdata.Params, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		pool:    pool,
		catalog: catalog,
		packer:  packing.NewPacker(pool, params, logger),
		params:  params,
		log:     logger.With("component", "assignment"),
	}
}

// AssignTasks runs one assignment tick over the pending tasks. Tasks that
// are no longer pending are skipped.
func (c *Controller) AssignTasks(pending []*tasks.Task, roster *staffing.Roster, now time.Time) Result {
	result := Result{WaveAnalysis: make(map[string]waves.FeasibilityResult)}
	groups := c.groupTasks(pending, now)
	used := make(map[string]struct{})

	c.assignWaves(groups.waves, roster, now, used, &result)
	c.assignGap(sortShippingGap(groups.urgent), roster, now, used, &result)
	c.assignGap(c.stageThreeOrder(groups.subWarehouse, groups.receiving, now, used), roster, now, used, &result)

	c.log.Info("assignment tick finished",
		"pending", len(pending),
		"assigned", len(result.Placements),
		"unassigned", len(result.Unassigned),
		"overtimeRequired", len(result.OvertimeRequired))
	return result
}

// taskGroups splits one tick's pending tasks by stage.
type taskGroups struct {
	waves        map[string][]*tasks.Task
	urgent       []*tasks.Task
	subWarehouse []*tasks.Task
	receiving    []*tasks.Task
}

func (c *Controller) groupTasks(pending []*tasks.Task, now time.Time) taskGroups {
	groups := taskGroups{waves: make(map[string][]*tasks.Task)}
	for _, t := range pending {
		if t.Status != tasks.StatusPending {
			continue
		}
		switch {
		case t.Type == tasks.TypeReceiving:
			groups.receiving = append(groups.receiving, t)
		case t.IsSubWarehouse():
			groups.subWarehouse = append(groups.subWarehouse, t)
		case t.Priority == tasks.PriorityP2:
			groups.urgent = append(groups.urgent, t)
		case t.Priority == tasks.PriorityP1:
			waveID := t.WaveID
			if waveID == "" {
				id, ok := c.catalog.FindWaveForPartcustid(t.Partcustid, now)
				if !ok {
					id = defaultWaveID
				}
				waveID = id
			}
			groups.waves[waveID] = append(groups.waves[waveID], t)
		default:
			// P3 and below shipping rides the last gap stage.
			groups.subWarehouse = append(groups.subWarehouse, t)
		}
	}
	return groups
}

// assignWaves is stage one: per wave, the deadline feasibility gate and
// then the partcustid packer with fixed floor windows. An infeasible wave
// places nothing and routes every task to overtime.
func (c *Controller) assignWaves(waveGroups map[string][]*tasks.Task, roster *staffing.Roster, now time.Time, used map[string]struct{}, result *Result) {
	for _, waveID := range c.orderedWaveIDs(waveGroups) {
		waveTasks := waveGroups[waveID]

		feasibility := waves.CheckFeasibility(waveTasks, now, c.usableStations(used), c.params)
		result.WaveAnalysis[waveID] = feasibility

		if !feasibility.Feasible {
			c.log.Warn("wave infeasible, routing tasks to overtime",
				"wave", waveID, "tasks", len(waveTasks), "reasons", feasibility.Reasons)
			for _, t := range waveTasks {
				result.Unassigned = append(result.Unassigned, t.TaskID)
				result.OvertimeRequired = append(result.OvertimeRequired, t.TaskID)
			}
			continue
		}

		packed := c.packer.PackWave(waveTasks, waves.FloorWorkWindow, used)
		byID := taskIndex(waveTasks)
		attachID := waveID
		if attachID == defaultWaveID {
			attachID = ""
		}

		for _, assignment := range packed.Assignments {
			staffID, ok := c.staffFor(assignment.StationID, assignment.Floor, roster)
			if !ok {
				c.log.Warn("no staff available for station", "station", assignment.StationID)
				result.Unassigned = append(result.Unassigned, assignment.TaskIDs()...)
				continue
			}
			for _, taskID := range assignment.TaskIDs() {
				c.place(byID[taskID], assignment.StationID, staffID, attachID, now, result)
			}
		}

		// Groups the packer could not seat missed the wave window.
		for _, group := range packed.Unassigned {
			result.Unassigned = append(result.Unassigned, group.TaskIDs...)
			result.OvertimeRequired = append(result.OvertimeRequired, group.TaskIDs...)
		}
	}
}

// assignGap places tasks one by one onto free stations of the matching
// floor. Stations it books join the used set for the rest of the tick.
func (c *Controller) assignGap(list []*tasks.Task, roster *staffing.Roster, now time.Time, used map[string]struct{}, result *Result) {
	for _, t := range list {
		station := c.gapStationOnFloor(t.Floor, now, used)
		if station == nil {
			result.Unassigned = append(result.Unassigned, t.TaskID)
			if t.IsOverdue {
				result.OvertimeRequired = append(result.OvertimeRequired, t.TaskID)
			}
			continue
		}
		staffID, ok := c.staffFor(station.StationID, station.Floor, roster)
		if !ok {
			c.log.Warn("no staff available for station", "station", station.StationID)
			result.Unassigned = append(result.Unassigned, t.TaskID)
			continue
		}
		c.place(t, station.StationID, staffID, t.WaveID, now, result)
		used[station.StationID] = struct{}{}
	}
}

// stageThreeOrder interleaves sub-warehouse shipping and receiving for the
// last gap stage. With little slack left receiving goes first so inbound
// deadlines do not starve behind sub-warehouse runs.
func (c *Controller) stageThreeOrder(subWarehouse, receiving []*tasks.Task, now time.Time, used map[string]struct{}) []*tasks.Task {
	sub := sortShippingGap(subWarehouse)
	rcv := sortReceivingGap(receiving)
	if len(sub) == 0 && len(rcv) == 0 {
		return nil
	}

	gap := float64(len(c.pool.GapStations(now, used))) * gapMinutesPerStation
	if gap < receivingPriorityThreshold {
		c.log.Info("gap time short, receiving precedes sub-warehouse", "gapMinutes", gap)
		return append(rcv, sub...)
	}
	return append(sub, rcv...)
}

// place books the task onto the station. The task queues behind whatever
// the station already holds; an idle station pays startup first.
func (c *Controller) place(t *tasks.Task, stationID string, staffID int, waveID string, now time.Time, result *Result) {
	station, ok := c.pool.Get(stationID)
	if !ok || t == nil {
		if t != nil {
			result.Unassigned = append(result.Unassigned, t.TaskID)
		}
		return
	}

	start := now
	if station.AvailableTime.After(start) {
		start = station.AvailableTime
	}
	if station.Status == stations.StatusIdle {
		start = start.Add(minutesToDuration(c.params.StationStartupMinutes))
	}
	completion := start.Add(minutesToDuration(t.EstimatedDuration))

	if err := t.Assign(stationID, staffID); err != nil {
		c.log.Error("task rejected assignment", "task", t.TaskID, "error", err)
		result.Unassigned = append(result.Unassigned, t.TaskID)
		return
	}
	t.PlannedStart = start
	t.PlannedCompletion = completion
	station.Schedule(t.TaskID, staffID, now, completion)

	if waveID != "" {
		if wave, found := c.catalog.Get(waveID); found {
			wave.AttachStation(stationID)
		}
	}

	result.Placements = append(result.Placements, Placement{
		TaskID:            t.TaskID,
		StationID:         stationID,
		StaffID:           staffID,
		WaveID:            waveID,
		PlannedStart:      start,
		PlannedCompletion: completion,
	})
}

// staffFor resolves who works a station: the rostered shift first, then the
// floor's first rostered staff for flex stations opened on demand.
func (c *Controller) staffFor(stationID string, floor int, roster *staffing.Roster) (int, bool) {
	if roster == nil {
		return 0, false
	}
	if id, ok := roster.StaffForStation(stationID); ok {
		return id, true
	}
	if ids := roster.StaffOnFloor(floor); len(ids) > 0 {
		return ids[0], true
	}
	return 0, false
}

func (c *Controller) gapStationOnFloor(floor int, now time.Time, used map[string]struct{}) *stations.Station {
	for _, s := range c.pool.GapStations(now, used) {
		if s.Floor == floor {
			return s
		}
	}
	return nil
}

// usableStations counts stations a wave could still draw on this tick.
func (c *Controller) usableStations(used map[string]struct{}) int {
	count := 0
	for _, s := range c.pool.All() {
		if _, taken := used[s.StationID]; taken {
			continue
		}
		if s.CanAcceptWork() {
			count++
		}
	}
	return count
}

// orderedWaveIDs sorts wave groups by delivery time so earlier waves draw
// stations first; groups unknown to the catalog go last.
func (c *Controller) orderedWaveIDs(waveGroups map[string][]*tasks.Task) []string {
	ids := make([]string, 0, len(waveGroups))
	for id := range waveGroups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		wi, iok := c.catalog.Get(ids[i])
		wj, jok := c.catalog.Get(ids[j])
		switch {
		case iok && jok:
			if !wi.DeliveryAt.Equal(wj.DeliveryAt) {
				return wi.DeliveryAt.Before(wj.DeliveryAt)
			}
			return ids[i] < ids[j]
		case iok:
			return true
		case jok:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

// sortShippingGap orders gap-fill shipping by floor, then largest quantity.
func sortShippingGap(list []*tasks.Task) []*tasks.Task {
	sorted := append([]*tasks.Task(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Floor != b.Floor {
			return a.Floor < b.Floor
		}
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.TaskID < b.TaskID
	})
	return sorted
}

// sortReceivingGap orders receiving by urgency rank before floor so overdue
// backlog beats fresh arrivals to the remaining stations.
func sortReceivingGap(list []*tasks.Task) []*tasks.Task {
	sorted := append([]*tasks.Task(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if a.Floor != b.Floor {
			return a.Floor < b.Floor
		}
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.TaskID < b.TaskID
	})
	return sorted
}

func taskIndex(list []*tasks.Task) map[string]*tasks.Task {
	byID := make(map[string]*tasks.Task, len(list))
	for _, t := range list {
		byID[t.TaskID] = t
	}
	return byID
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
