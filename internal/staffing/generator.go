package staffing

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/sim"
	"github.com/hsichihchen-design/cpdoldsim/internal/stations"
)

// rosterFloors are the floors staffed every working day, in roster order.
var rosterFloors = []int{2, 3, 4}

// fallbackMaxDailyHours applies when a staff record carries no usable
// per-day hour limit.
const fallbackMaxDailyHours = 12.0

// Generator builds daily staff rosters from the skill master and the
// staffing parameters. Rosters are built floor by floor; a staff member
// picked for one floor is not considered again that day.
type Generator struct {
	store  *masterdata.Store
	params masterdata.Params
	log    *slog.Logger
}

// NewGenerator returns a roster generator over the given master data.
func NewGenerator(store *masterdata.Store, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		store:  store,
		params: store.Params(),
		log:    logger.With("component", "staffing"),
	}
}

// DailyRoster builds the roster for one date from the given stream.
func (g *Generator) DailyRoster(date time.Time, stream *sim.Stream) *Roster {
	date = masterdata.DateOf(date)
	roster := &Roster{Date: date}
	taken := make(map[int]struct{})
	for _, floor := range rosterFloors {
		roster.Append(g.floorShifts(date, floor, taken, stream)...)
	}
	g.log.Info("daily roster generated",
		"date", date.Format("2006-01-02"),
		"shifts", len(roster.Shifts))
	return roster
}

// PeriodRosters builds one roster per workday in [start, end]. Each date
// draws from its own named stream, so a day's roster does not depend on
// how many days precede it in the period.
func (g *Generator) PeriodRosters(start, end time.Time, rng *sim.RNG) []*Roster {
	var rosters []*Roster
	last := masterdata.DateOf(end)
	for date := masterdata.DateOf(start); !date.After(last); date = date.AddDate(0, 0, 1) {
		if !masterdata.IsWorkday(date) {
			continue
		}
		stream := rng.Stream("roster:" + date.Format("2006-01-02"))
		rosters = append(rosters, g.DailyRoster(date, stream))
	}
	return rosters
}

// floorShifts staffs a single floor: apply the shortage draw, narrow the
// eligible pool to staff not yet rostered today, then draw without
// replacement and assign fixed stations in position order.
func (g *Generator) floorShifts(date time.Time, floor int, taken map[int]struct{}, stream *sim.Stream) []Shift {
	planned := g.params.PlannedStaff[floor]
	actual := g.applyShortage(planned, stream)
	if actual < planned {
		g.log.Info("staff shortage",
			"floor", floor, "planned", planned, "actual", actual)
	}

	eligible := g.eligibleStaff(floor)
	if len(eligible) < actual {
		g.log.Warn("not enough eligible staff",
			"floor", floor, "needed", actual, "eligible", len(eligible))
		actual = len(eligible)
	}

	pool := make([]int, 0, len(eligible))
	for _, id := range eligible {
		if _, used := taken[id]; !used {
			pool = append(pool, id)
		}
	}
	if len(pool) < actual {
		g.log.Warn("eligible staff already rostered on another floor",
			"floor", floor, "needed", actual, "free", len(pool))
		actual = len(pool)
	}

	shifts := make([]Shift, 0, actual)
	for i, staffID := range drawWithoutReplacement(pool, actual, stream) {
		taken[staffID] = struct{}{}
		shifts = append(shifts, g.regularShift(date, floor, i, staffID))
	}
	return shifts
}

// applyShortage reduces the planned headcount with the configured
// probability, never below one.
func (g *Generator) applyShortage(planned int, stream *sim.Stream) int {
	if stream.Float64() >= g.params.StaffShortageProbability {
		return planned
	}
	reduction := stream.IntBetween(g.params.StaffShortageReductionMin, g.params.StaffShortageReductionMax)
	actual := planned - reduction
	if actual < 1 {
		actual = 1
	}
	return actual
}

// eligibleStaff returns the ids of staff whose home floor matches or who
// float across all floors, sorted ascending.
func (g *Generator) eligibleStaff(floor int) []int {
	var ids []int
	for _, skill := range g.store.AllStaff() {
		if skill.WorksOnFloor(floor) {
			ids = append(ids, skill.StaffID)
		}
	}
	sort.Ints(ids)
	return ids
}

func (g *Generator) regularShift(date time.Time, floor, position, staffID int) Shift {
	return Shift{
		Date:      date,
		Floor:     floor,
		StationID: stations.FixedStationID(floor, position+1),
		StaffID:   staffID,
		StartTime: g.params.ShiftStart,
		EndTime:   g.params.ShiftEnd,
		Hours:     shiftHours(g.params.ShiftStart, g.params.ShiftEnd),
	}
}

// OvertimeRequirement describes why a station's rostered staff needs to
// stay past shift end.
type OvertimeRequirement struct {
	TaskID        string  `json:"task_id"`
	RequiredHours float64 `json:"required_hours"`
	Reason        string  `json:"reason"`
	CurrentHours  float64 `json:"current_hours"` // hours already worked; 0 means a full regular day
}

// OvertimeShifts extends the rostered staff of the given stations past
// shift end. Hours are capped by max_overtime_hours and cut off at the
// hard overtime_end_time; staff without a rostered shift or over their
// daily hour limit are skipped. Stations are processed in id order.
func (g *Generator) OvertimeShifts(roster *Roster, requirements map[string]OvertimeRequirement) []Shift {
	stationIDs := make([]string, 0, len(requirements))
	for stationID := range requirements {
		stationIDs = append(stationIDs, stationID)
	}
	sort.Strings(stationIDs)

	var shifts []Shift
	for _, stationID := range stationIDs {
		req := requirements[stationID]
		base, ok := roster.ShiftForStation(stationID)
		if !ok {
			g.log.Warn("no rostered staff for overtime station", "station", stationID)
			continue
		}
		if !g.CanWorkOvertime(base.StaffID, req) {
			g.log.Warn("staff cannot work overtime",
				"station", stationID, "staff", base.StaffID, "requiredHours", req.RequiredHours)
			continue
		}

		hours := math.Min(req.RequiredHours, g.params.MaxOvertimeHours)
		start := base.EndTime
		endSeconds := start.Seconds() + int(math.Round(hours*3600))
		if limit := g.params.OvertimeEndTime.Seconds(); endSeconds > limit {
			endSeconds = limit
			hours = math.Max(0, float64(limit-start.Seconds())/3600)
		}

		shifts = append(shifts, Shift{
			Date:           base.Date,
			Floor:          base.Floor,
			StationID:      stationID,
			StaffID:        base.StaffID,
			StartTime:      start,
			EndTime:        clockFromSeconds(endSeconds),
			Hours:          round2(hours),
			IsOvertime:     true,
			OvertimeHours:  round2(hours),
			OvertimeReason: req.Reason,
		})
		g.log.Info("overtime rostered",
			"station", stationID, "staff", base.StaffID, "hours", round2(hours))
	}
	return shifts
}

// CanWorkOvertime reports whether a staff member may extend into the
// requested overtime block. Overtime must be enabled, the staff member
// must exist, and worked plus requested hours must stay within their
// daily limit.
func (g *Generator) CanWorkOvertime(staffID int, req OvertimeRequirement) bool {
	if !g.params.OvertimeEnabled {
		return false
	}
	skill, ok := g.store.Staff(staffID)
	if !ok {
		return false
	}
	limit := skill.MaxHoursPerDay
	if limit <= 0 {
		limit = fallbackMaxDailyHours
	}
	worked := req.CurrentHours
	if worked <= 0 {
		worked = g.params.DailyWorkHours
	}
	return worked+req.RequiredHours <= limit
}

// FeasibilityReport is the outcome of the roster sanity checks.
type FeasibilityReport struct {
	MinimumStaffing       bool `json:"minimum_staffing"`        // every rostered date has at least one shift per floor
	ConsistentShiftTimes  bool `json:"consistent_shift_times"`  // at most two distinct shift windows (regular + overtime)
	NoDuplicateAssignment bool `json:"no_duplicate_assignment"` // no staff member holds two regular shifts on one date
	NoHoursViolation      bool `json:"no_hours_violation"`      // daily totals stay within each staff member's limit
}

// Feasible reports whether every check passed.
func (f FeasibilityReport) Feasible() bool {
	return f.MinimumStaffing && f.ConsistentShiftTimes && f.NoDuplicateAssignment && f.NoHoursViolation
}

// Validate runs the roster sanity checks over a batch of shifts, which may
// span several dates.
func (g *Generator) Validate(shifts []Shift) FeasibilityReport {
	report := FeasibilityReport{
		MinimumStaffing:       true,
		ConsistentShiftTimes:  true,
		NoDuplicateAssignment: true,
		NoHoursViolation:      true,
	}
	if len(shifts) == 0 {
		return report
	}

	type dateFloor struct {
		date  string
		floor int
	}
	type dateStaff struct {
		date    string
		staffID int
	}

	dates := make(map[string]struct{})
	floorCounts := make(map[dateFloor]int)
	regularCounts := make(map[dateStaff]int)
	hours := make(map[dateStaff]float64)
	windows := make(map[[2]string]struct{})

	for _, shift := range shifts {
		date := shift.Date.Format("2006-01-02")
		dates[date] = struct{}{}
		hours[dateStaff{date, shift.StaffID}] += shift.Hours
		windows[[2]string{shift.StartTime.String(), shift.EndTime.String()}] = struct{}{}
		if !shift.IsOvertime {
			floorCounts[dateFloor{date, shift.Floor}]++
			regularCounts[dateStaff{date, shift.StaffID}]++
		}
	}

	for date := range dates {
		for _, floor := range rosterFloors {
			if floorCounts[dateFloor{date, floor}] == 0 {
				report.MinimumStaffing = false
				g.log.Warn("floor left unstaffed", "date", date, "floor", floor)
			}
		}
	}

	// Regular window plus at most one overtime window.
	if len(windows) > 2 {
		report.ConsistentShiftTimes = false
		g.log.Warn("inconsistent shift windows", "windows", len(windows))
	}

	for key, count := range regularCounts {
		if count > 1 {
			report.NoDuplicateAssignment = false
			g.log.Warn("staff rostered twice on one date",
				"date", key.date, "staff", key.staffID, "shifts", count)
		}
	}

	for key, total := range hours {
		limit := fallbackMaxDailyHours
		if skill, ok := g.store.Staff(key.staffID); ok && skill.MaxHoursPerDay > 0 {
			limit = skill.MaxHoursPerDay
		}
		if total > limit {
			report.NoHoursViolation = false
			g.log.Warn("daily hours over limit",
				"date", key.date, "staff", key.staffID, "hours", total, "limit", limit)
		}
	}

	return report
}

// drawWithoutReplacement picks count distinct values from pool using a
// partial shuffle driven by the stream.
func drawWithoutReplacement(pool []int, count int, stream *sim.Stream) []int {
	if count > len(pool) {
		count = len(pool)
	}
	if count <= 0 {
		return nil
	}
	remaining := append([]int(nil), pool...)
	picked := make([]int, 0, count)
	for len(picked) < count {
		i := stream.IntBetween(0, len(remaining)-1)
		picked = append(picked, remaining[i])
		remaining[i] = remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]
	}
	return picked
}

// shiftHours returns the span between two wall-clock times in hours,
// rolling past midnight when the end does not follow the start.
func shiftHours(start, end masterdata.ClockTime) float64 {
	seconds := end.Seconds() - start.Seconds()
	if seconds <= 0 {
		seconds += 24 * 3600
	}
	return round2(float64(seconds) / 3600)
}

func clockFromSeconds(total int) masterdata.ClockTime {
	total %= 24 * 3600
	return masterdata.ClockTime{
		Hour:   total / 3600,
		Minute: total % 3600 / 60,
		Second: total % 60,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
