package waves

import (
	"fmt"
	"math"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

// defaultAvailableMinutes stands in when no task in the wave carries a
// delivery deadline: a full eight-hour shift.
const defaultAvailableMinutes = 480.0

// FeasibilityResult is the outcome of checking whether a wave's workload
// fits the time left before its earliest deadline.
type FeasibilityResult struct {
	Feasible                bool      `json:"feasible"`
	EarliestDeadline        time.Time `json:"earliest_deadline,omitempty"`
	AvailableMinutes        float64   `json:"available_minutes"`
	RequiredMinutes         float64   `json:"required_minutes"`
	UniquePartcustids       int       `json:"unique_partcustids"`
	StationsNeededByGroup   float64   `json:"stations_needed_by_group"`
	StationsNeededByTime    float64   `json:"stations_needed_by_time"`
	EstimatedStationsNeeded float64   `json:"estimated_stations_needed"`
	StationCount            int       `json:"station_count"`
	Reasons                 []string  `json:"reasons,omitempty"`
}

// CheckFeasibility decides whether waveTasks can complete before the
// earliest delivery deadline given the station pool. Available time is the
// span to that deadline minus the safety buffer; the station demand is the
// larger of the partcustid-grouping bound and the workload-over-time
// bound. A wave with no tasks is trivially feasible.
func CheckFeasibility(waveTasks []*tasks.Task, now time.Time, stationCount int, params masterdata.Params) FeasibilityResult {
	if len(waveTasks) == 0 {
		return FeasibilityResult{Feasible: true, StationCount: stationCount}
	}

	var earliest time.Time
	var workload float64
	partcustids := make(map[string]struct{})
	for _, task := range waveTasks {
		workload += task.EstimatedDuration
		if task.Partcustid != "" {
			partcustids[task.Partcustid] = struct{}{}
		}
		if task.DeliveryDeadline.IsZero() {
			continue
		}
		if earliest.IsZero() || task.DeliveryDeadline.Before(earliest) {
			earliest = task.DeliveryDeadline
		}
	}

	result := FeasibilityResult{
		EarliestDeadline:  earliest,
		RequiredMinutes:   workload,
		UniquePartcustids: len(partcustids),
		StationCount:      stationCount,
	}

	available := defaultAvailableMinutes
	if !earliest.IsZero() {
		available = earliest.Sub(now).Minutes() - params.TimeBufferMinutes
	}

	maxPerStation := params.MaxPartcustidsPerStation
	if maxPerStation <= 0 {
		maxPerStation = 1
	}
	result.StationsNeededByGroup = math.Max(1, float64(len(partcustids))/float64(maxPerStation))

	if available > 0 {
		result.StationsNeededByTime = math.Max(1, workload/available)
	} else {
		result.StationsNeededByTime = math.Inf(1)
	}
	result.EstimatedStationsNeeded = math.Max(result.StationsNeededByGroup, result.StationsNeededByTime)

	result.Feasible = available > 0 &&
		result.EstimatedStationsNeeded <= float64(stationCount) &&
		workload <= available*float64(stationCount)

	if available <= 0 {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("no working time left before deadline (%.1f min after buffer)", available))
	}
	if result.EstimatedStationsNeeded > float64(stationCount) {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("needs %.1f stations, pool has %d", result.EstimatedStationsNeeded, stationCount))
	}
	if available > 0 && workload > available*float64(stationCount) {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("workload %.1f min exceeds pool capacity %.1f min", workload, available*float64(stationCount)))
	}

	result.AvailableMinutes = math.Max(0, available)
	return result
}
