package packing

import (
	"log/slog"
	"sort"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/stations"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

// PartcustidGroup bundles one partner customer's tasks on one floor. The
// group is atomic: every task of it rides the same station.
type PartcustidGroup struct {
	Partcustid string   `json:"partcustid"`
	Floor      int      `json:"floor"`
	TaskIDs    []string `json:"task_ids"`
	Workload   float64  `json:"workload_minutes"`
}

// StationAssignment is one station's packed load.
type StationAssignment struct {
	StationID string            `json:"station_id"`
	Floor     int               `json:"floor"`
	Groups    []PartcustidGroup `json:"groups"`
	Workload  float64           `json:"workload_minutes"`
}

// TaskIDs flattens the assignment's tasks in group order.
func (a StationAssignment) TaskIDs() []string {
	var out []string
	for _, g := range a.Groups {
		out = append(out, g.TaskIDs...)
	}
	return out
}

// Partcustids counts the distinct partners packed onto the station.
func (a StationAssignment) Partcustids() int {
	return len(a.Groups)
}

// Result is the outcome of packing: station assignments plus the groups no
// station could take. Unassigned groups surface to the overtime engine.
type Result struct {
	Assignments []StationAssignment `json:"assignments"`
	Unassigned  []PartcustidGroup   `json:"unassigned,omitempty"`
}

// StationsUsed lists the assigned station ids in assignment order.
func (r Result) StationsUsed() []string {
	out := make([]string, 0, len(r.Assignments))
	for _, a := range r.Assignments {
		out = append(out, a.StationID)
	}
	return out
}

// TimeCap yields the per-station workload budget, in minutes, for a floor.
type TimeCap func(floor int) float64

// UniformCap budgets every floor with the same window, the non-P1 mode
// where the feasibility check supplies the minutes.
func UniformCap(minutes float64) TimeCap {
	return func(int) float64 { return minutes }
}

// GroupTasks buckets wave tasks into per-floor partcustid groups, each
// floor's list sorted by workload descending (ties by partcustid so packing
// stays deterministic).
func GroupTasks(waveTasks []*tasks.Task) map[int][]PartcustidGroup {
	type key struct {
		floor      int
		partcustid string
	}
	grouped := make(map[key]*PartcustidGroup)
	var order []key

	for _, t := range waveTasks {
		k := key{floor: t.Floor, partcustid: t.Partcustid}
		g, ok := grouped[k]
		if !ok {
			g = &PartcustidGroup{Partcustid: t.Partcustid, Floor: t.Floor}
			grouped[k] = g
			order = append(order, k)
		}
		g.TaskIDs = append(g.TaskIDs, t.TaskID)
		g.Workload += t.EstimatedDuration
	}

	byFloor := make(map[int][]PartcustidGroup)
	for _, k := range order {
		byFloor[k.floor] = append(byFloor[k.floor], *grouped[k])
	}
	for floor := range byFloor {
		groups := byFloor[floor]
		sort.SliceStable(groups, func(i, j int) bool {
			if groups[i].Workload != groups[j].Workload {
				return groups[i].Workload > groups[j].Workload
			}
			return groups[i].Partcustid < groups[j].Partcustid
		})
	}
	return byFloor
}

// Packer places partcustid groups onto stations, fewest stations first,
// honoring the partner and workload caps.
type Packer struct {
	pool   *stations.Pool
	params masterdata.Params
	log    *slog.Logger
}

// NewPacker builds a packer over the station pool.
func NewPacker(pool *stations.Pool, params masterdata.Params, logger *slog.Logger) *Packer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Packer{
		pool:   pool,
		params: params,
		log:    logger.With("component", "packing"),
	}
}

// PackFloor greedily fills stations on one floor: the open assignment
// extends while it stays under both caps, otherwise it is emitted and the
// next station opens. Groups bigger than the window still get their own
// station — atomicity wins over the cap. Stations in used never qualify
// and newly opened ones are added to it.
func (p *Packer) PackFloor(floor int, groups []PartcustidGroup, capMinutes float64, used map[string]struct{}) Result {
	maxPartners := p.params.MaxPartcustidsPerStation
	if maxPartners <= 0 {
		maxPartners = 1
	}

	var result Result
	var current *StationAssignment

	for _, g := range groups {
		if current != nil {
			if len(current.Groups)+1 <= maxPartners && current.Workload+g.Workload <= capMinutes {
				current.Groups = append(current.Groups, g)
				current.Workload += g.Workload
				continue
			}
			result.Assignments = append(result.Assignments, *current)
			current = nil
		}

		station := p.pool.NextAvailableOnFloor(floor, used)
		if station == nil {
			p.log.Warn("no station left on floor, group unassigned",
				"floor", floor, "partcustid", g.Partcustid, "tasks", len(g.TaskIDs))
			result.Unassigned = append(result.Unassigned, g)
			continue
		}
		used[station.StationID] = struct{}{}
		current = &StationAssignment{
			StationID: station.StationID,
			Floor:     floor,
			Groups:    []PartcustidGroup{g},
			Workload:  g.Workload,
		}
	}
	if current != nil {
		result.Assignments = append(result.Assignments, *current)
	}
	return result
}

// PackWave packs a whole wave: tasks grouped per floor, floors processed
// in ascending order, the time cap resolved per floor.
func (p *Packer) PackWave(waveTasks []*tasks.Task, capFor TimeCap, used map[string]struct{}) Result {
	byFloor := GroupTasks(waveTasks)

	floors := make([]int, 0, len(byFloor))
	for floor := range byFloor {
		floors = append(floors, floor)
	}
	sort.Ints(floors)

	var result Result
	for _, floor := range floors {
		floorResult := p.PackFloor(floor, byFloor[floor], capFor(floor), used)
		result.Assignments = append(result.Assignments, floorResult.Assignments...)
		result.Unassigned = append(result.Unassigned, floorResult.Unassigned...)
	}

	p.log.Debug("wave packed",
		"floors", len(floors),
		"assignments", len(result.Assignments),
		"unassigned", len(result.Unassigned))
	return result
}
