package tracking

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/stations"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

var (
	ErrNoMetrics     = errors.New("tracking: no metrics recorded")
	ErrUnknownMetric = errors.New("tracking: unknown metric")
)

// Metrics is one rolling row of system-level indicators.
type Metrics struct {
	Timestamp              time.Time `json:"timestamp" bson:"timestamp"`
	WorkstationUtilization float64   `json:"workstation_utilization" bson:"workstation_utilization"`
	TaskCompletionRate     float64   `json:"task_completion_rate" bson:"task_completion_rate"`
	WaveProgressAvg        float64   `json:"wave_progress_avg" bson:"wave_progress_avg"`
	ExceptionCount         int       `json:"active_exception_count" bson:"active_exception_count"`
	StaffUtilization       float64   `json:"staff_utilization" bson:"staff_utilization"`
	OverallEfficiency      float64   `json:"overall_efficiency" bson:"overall_efficiency"`
}

func (t *Tracker) computeMetrics(now time.Time, all []*tasks.Task) Metrics {
	m := Metrics{
		Timestamp:              now,
		WorkstationUtilization: round1(t.pool.UtilizationRate()),
		ExceptionCount:         t.handler.ActiveCount(),
	}

	if len(all) > 0 {
		completed := 0
		for _, task := range all {
			if task.Status == tasks.StatusCompleted {
				completed++
			}
		}
		m.TaskCompletionRate = round1(float64(completed) / float64(len(all)) * 100)
	}

	var waveSum float64
	waveCount := 0
	for _, wave := range t.catalog.ActiveWaves() {
		if wave.TotalTasks == 0 {
			continue
		}
		waveSum += float64(wave.CompletedTasks) / float64(wave.TotalTasks) * 100
		waveCount++
	}
	if waveCount > 0 {
		m.WaveProgressAvg = round1(waveSum / float64(waveCount))
	}

	// Staff utilization counts packers only; leaders have their own ratio.
	staffed, working := 0, 0
	for _, s := range t.pool.All() {
		if s.AssignedStaff == 0 {
			continue
		}
		staffed++
		if s.Status == stations.StatusBusy || s.Status == stations.StatusStartingUp {
			working++
		}
	}
	if staffed > 0 {
		m.StaffUtilization = round1(float64(working) / float64(staffed) * 100)
	}

	exceptionFactor := 100 - math.Min(100, float64(m.ExceptionCount)*10)
	factors := make([]float64, 0, 4)
	for _, f := range []float64{m.WorkstationUtilization, m.TaskCompletionRate, m.WaveProgressAvg, exceptionFactor} {
		if f > 0 {
			factors = append(factors, f)
		}
	}
	if len(factors) > 0 {
		var sum float64
		for _, f := range factors {
			sum += f
		}
		m.OverallEfficiency = round1(sum / float64(len(factors)))
	}

	return m
}

// HealthStatus grades the system at a glance.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthWarning  HealthStatus = "WARNING"
	HealthCritical HealthStatus = "CRITICAL"
)

// Health is the scored assessment derived from the latest metrics row.
type Health struct {
	Status          HealthStatus `json:"status"`
	Score           float64      `json:"score"`
	Issues          []string     `json:"issues,omitempty"`
	Warnings        []string     `json:"warnings,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
}

// AssessHealth scores the latest metrics row: 100 minus fixed deductions
// for saturation, starvation, exception backlog, and leader load.
func (t *Tracker) AssessHealth() (Health, error) {
	m, ok := t.metrics.last()
	if !ok {
		return Health{}, ErrNoMetrics
	}

	h := Health{Score: 100}

	switch {
	case m.WorkstationUtilization < 30:
		h.Score -= 10
		h.Warnings = append(h.Warnings, fmt.Sprintf("station utilization %.1f%% below 30%%", m.WorkstationUtilization))
		h.Recommendations = append(h.Recommendations, "pull pending work forward or trim the roster")
	case m.WorkstationUtilization > 90:
		h.Score -= 15
		h.Issues = append(h.Issues, fmt.Sprintf("stations saturated at %.1f%%", m.WorkstationUtilization))
		h.Recommendations = append(h.Recommendations, "open temp stations or plan overtime")
	}

	if m.ExceptionCount > 5 {
		h.Score -= 20
		h.Issues = append(h.Issues, fmt.Sprintf("%d active exceptions outstanding", m.ExceptionCount))
		h.Recommendations = append(h.Recommendations, "add exception-handling leaders")
	}

	if m.OverallEfficiency < 60 {
		h.Score -= 25
		h.Issues = append(h.Issues, fmt.Sprintf("overall efficiency %.1f%% below 60%%", m.OverallEfficiency))
	}

	if ratio := t.handler.LeaderBusyRatio(); ratio > 0.8 {
		h.Score -= 10
		h.Warnings = append(h.Warnings, fmt.Sprintf("exception leaders at %.0f%% busy", ratio*100))
	}

	if h.Score < 0 {
		h.Score = 0
	}
	switch {
	case h.Score >= 80:
		h.Status = HealthHealthy
	case h.Score >= 60:
		h.Status = HealthWarning
	default:
		h.Status = HealthCritical
	}
	return h, nil
}

// TrendDirection classifies a metric's movement over a window.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// Trend summarizes one metric over the analyzed window.
type Trend struct {
	Metric     string         `json:"metric_name"`
	DataPoints int            `json:"data_points"`
	Current    float64        `json:"current_value"`
	Min        float64        `json:"min_value"`
	Max        float64        `json:"max_value"`
	Avg        float64        `json:"avg_value"`
	Direction  TrendDirection `json:"trend_direction"`
}

var metricFields = map[string]func(Metrics) float64{
	"workstation_utilization": func(m Metrics) float64 { return m.WorkstationUtilization },
	"task_completion_rate":    func(m Metrics) float64 { return m.TaskCompletionRate },
	"wave_progress_avg":       func(m Metrics) float64 { return m.WaveProgressAvg },
	"exception_count":         func(m Metrics) float64 { return float64(m.ExceptionCount) },
	"staff_utilization":       func(m Metrics) float64 { return m.StaffUtilization },
	"overall_efficiency":      func(m Metrics) float64 { return m.OverallEfficiency },
}

// Metrics where a falling value is the good direction.
var lowerIsBetter = map[string]bool{
	"exception_count": true,
}

// MetricsTrend analyzes the lastN metric rows (0 = all retained): halves the
// window and compares means — a shift beyond ±10% reads as improving or
// declining, oriented by whether the metric is better high or low. Fewer
// than 3 points always read stable.
func (t *Tracker) MetricsTrend(name string, lastN int) (Trend, error) {
	field, ok := metricFields[name]
	if !ok {
		return Trend{}, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}
	rows := t.metrics.tail(lastN)
	if len(rows) == 0 {
		return Trend{}, ErrNoMetrics
	}

	values := make([]float64, len(rows))
	for i, row := range rows {
		values[i] = field(row)
	}

	trend := Trend{
		Metric:     name,
		DataPoints: len(values),
		Current:    values[len(values)-1],
		Min:        values[0],
		Max:        values[0],
		Direction:  TrendStable,
	}
	var sum float64
	for _, v := range values {
		sum += v
		trend.Min = math.Min(trend.Min, v)
		trend.Max = math.Max(trend.Max, v)
	}
	trend.Avg = round1(sum / float64(len(values)))

	if len(values) >= 3 {
		firstAvg := mean(values[:len(values)/2])
		secondAvg := mean(values[len(values)/2:])
		switch {
		case secondAvg > firstAvg*1.1:
			trend.Direction = TrendImproving
		case secondAvg < firstAvg*0.9:
			trend.Direction = TrendDeclining
		}
		if lowerIsBetter[name] {
			switch trend.Direction {
			case TrendImproving:
				trend.Direction = TrendDeclining
			case TrendDeclining:
				trend.Direction = TrendImproving
			}
		}
	}
	return trend, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Overview is the headline count block for dashboards.
type Overview struct {
	Timestamp        time.Time               `json:"timestamp"`
	StationsByStatus map[stations.Status]int `json:"stations_by_status"`
	TasksByStatus    map[tasks.Status]int    `json:"tasks_by_status"`
	ActiveWaves      int                     `json:"active_waves"`
	CompletedWaves   int                     `json:"completed_waves"`
	StaffTracked     int                     `json:"staff_tracked"`
	ActiveExceptions int                     `json:"active_exceptions"`
}

// Overview summarizes the latest tracked state.
func (t *Tracker) Overview(now time.Time) Overview {
	o := Overview{
		Timestamp:        now,
		StationsByStatus: t.pool.StatusCounts(),
		TasksByStatus:    make(map[tasks.Status]int),
		ActiveWaves:      len(t.catalog.ActiveWaves()),
		CompletedWaves:   len(t.catalog.History()),
		StaffTracked:     len(t.staff),
		ActiveExceptions: t.handler.ActiveCount(),
	}
	for _, state := range t.tasks {
		o.TasksByStatus[state.Status]++
	}
	return o
}

// FloorStations breaks station occupancy down for one floor.
type FloorStations struct {
	Floor       int      `json:"floor"`
	Total       int      `json:"total"`
	Utilization float64  `json:"utilization"`
	Active      []string `json:"active,omitempty"`
	Idle        []string `json:"idle,omitempty"`
	Reserved    []string `json:"reserved,omitempty"`
}

// StationSummary reports occupancy overall and per floor.
type StationSummary struct {
	Utilization float64         `json:"overall_utilization"`
	Floors      []FloorStations `json:"floors"`
}

// StationSummary groups the pool by floor with id-sorted occupancy lists.
func (t *Tracker) StationSummary() StationSummary {
	byFloor := make(map[int]*FloorStations)
	var floors []int
	for _, s := range t.pool.All() {
		fs, ok := byFloor[s.Floor]
		if !ok {
			fs = &FloorStations{Floor: s.Floor}
			byFloor[s.Floor] = fs
			floors = append(floors, s.Floor)
		}
		fs.Total++
		switch s.Status {
		case stations.StatusBusy, stations.StatusStartingUp:
			fs.Active = append(fs.Active, s.StationID)
		case stations.StatusIdle:
			fs.Idle = append(fs.Idle, s.StationID)
		case stations.StatusReserved:
			fs.Reserved = append(fs.Reserved, s.StationID)
		}
	}
	sort.Ints(floors)

	summary := StationSummary{Utilization: round1(t.pool.UtilizationRate())}
	for _, floor := range floors {
		fs := byFloor[floor]
		if fs.Total > 0 {
			fs.Utilization = round1(float64(len(fs.Active)) / float64(fs.Total) * 100)
		}
		summary.Floors = append(summary.Floors, *fs)
	}
	return summary
}

// Report bundles the dashboard view: overview, metrics, stations, health,
// and the last 20 change events.
type Report struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	Overview      Overview       `json:"overview"`
	Metrics       Metrics        `json:"metrics"`
	Stations      StationSummary `json:"stations"`
	Health        Health         `json:"health"`
	RecentChanges []ChangeEvent  `json:"recent_changes,omitempty"`
}

// Report assembles the full status report from the latest update.
func (t *Tracker) Report(now time.Time) (Report, error) {
	metrics, ok := t.metrics.last()
	if !ok {
		return Report{}, ErrNoMetrics
	}
	health, err := t.AssessHealth()
	if err != nil {
		return Report{}, err
	}
	return Report{
		GeneratedAt:   now,
		Overview:      t.Overview(now),
		Metrics:       metrics,
		Stations:      t.StationSummary(),
		Health:        health,
		RecentChanges: t.changes.tail(20),
	}, nil
}
