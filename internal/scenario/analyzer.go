package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/scheduler"
)

// Impact classifies how strongly a scenario moved the key metrics,
// bucketed on the mean absolute impact score across all of them.
type Impact string

// Impact levels, from under 5% mean movement to over 50%.
const (
	ImpactMinimal  Impact = "MINIMAL"
	ImpactLow      Impact = "LOW"
	ImpactModerate Impact = "MODERATE"
	ImpactHigh     Impact = "HIGH"
	ImpactSevere   Impact = "SEVERE"
)

// IsValid reports whether the impact level is a known classification.
func (i Impact) IsValid() bool {
	switch i {
	case ImpactMinimal, ImpactLow, ImpactModerate, ImpactHigh, ImpactSevere:
		return true
	}
	return false
}

func impactFor(score float64) Impact {
	switch {
	case score < 5:
		return ImpactMinimal
	case score < 15:
		return ImpactLow
	case score < 30:
		return ImpactModerate
	case score < 50:
		return ImpactHigh
	default:
		return ImpactSevere
	}
}

// Outcome condenses one finished run into the metrics scenario
// comparisons work on. Rates are percentages; per-day figures divide by
// the number of simulated days.
type Outcome struct {
	RunID         string `json:"run_id"`
	SimulatedDays int    `json:"simulated_days"`

	TaskCompletionRate      float64 `json:"task_completion_rate"`
	WavesCompleted          int     `json:"waves_completed"`
	ExceptionsDetected      int     `json:"exceptions_detected"`
	ExceptionsResolved      int     `json:"exceptions_resolved"`
	ExceptionResolutionRate float64 `json:"exception_resolution_rate"`
	ExceptionsPerDay        float64 `json:"exceptions_per_day"`
	OvertimeSessions        int     `json:"overtime_sessions"`
	OvertimeHoursPerDay     float64 `json:"overtime_hours_per_day"`
	OverdueReceivingTasks   int     `json:"overdue_receiving_tasks"`
	PeakUtilization         float64 `json:"peak_utilization"`
	StaffUtilization        float64 `json:"staff_utilization"`
	OverallEfficiency       float64 `json:"overall_efficiency"`
}

// outcomeOf extracts the comparison metrics from a run report. Tasks
// finished by an overtime variant count as completed. With nothing
// detected the resolution rate reads 100: there was nothing left to
// resolve.
func outcomeOf(stats *scheduler.RunStats) Outcome {
	o := Outcome{
		RunID:                 stats.RunID,
		SimulatedDays:         len(stats.DaySummaries),
		WavesCompleted:        stats.WavesCompleted,
		ExceptionsDetected:    stats.ExceptionsDetected,
		ExceptionsResolved:    stats.ExceptionsResolved,
		OvertimeSessions:      stats.OvertimeSessions,
		OverdueReceivingTasks: stats.OverdueReceivingTasks,
		PeakUtilization:       stats.PeakUtilization,
	}

	created := stats.ShippingTasksCreated + stats.ReceivingTasksCreated
	completed := stats.ShippingTasksCompleted + stats.ReceivingTasksCompleted + stats.OvertimeTasksCompleted
	if created > 0 {
		o.TaskCompletionRate = round2(float64(completed) / float64(created) * 100)
	}

	if stats.ExceptionsDetected > 0 {
		o.ExceptionResolutionRate = round2(float64(stats.ExceptionsResolved) / float64(stats.ExceptionsDetected) * 100)
	} else {
		o.ExceptionResolutionRate = 100
	}

	if o.SimulatedDays > 0 {
		o.ExceptionsPerDay = round2(float64(stats.ExceptionsDetected) / float64(o.SimulatedDays))
		o.OvertimeHoursPerDay = round2(stats.TotalOvertimeHours / float64(o.SimulatedDays))
	}

	if stats.FinalMetrics != nil {
		o.StaffUtilization = stats.FinalMetrics.StaffUtilization
		o.OverallEfficiency = stats.FinalMetrics.OverallEfficiency
	}
	return o
}

// Movement direction that counts as damage: shrinking a higher-is-better
// metric hurts, growing a lower-is-better one does, and for the neutral
// utilization gauges any movement scores as impact.
type direction int

const (
	higherIsBetter direction = iota
	lowerIsBetter
	neutral
)

type metricDef struct {
	name  string
	dir   direction
	value func(Outcome) float64
}

func metricTable() []metricDef {
	return []metricDef{
		{"task_completion_rate", higherIsBetter, func(o Outcome) float64 { return o.TaskCompletionRate }},
		{"waves_completed", higherIsBetter, func(o Outcome) float64 { return float64(o.WavesCompleted) }},
		{"overall_efficiency", higherIsBetter, func(o Outcome) float64 { return o.OverallEfficiency }},
		{"exception_resolution_rate", higherIsBetter, func(o Outcome) float64 { return o.ExceptionResolutionRate }},
		{"exceptions_per_day", lowerIsBetter, func(o Outcome) float64 { return o.ExceptionsPerDay }},
		{"overtime_sessions", lowerIsBetter, func(o Outcome) float64 { return float64(o.OvertimeSessions) }},
		{"overtime_hours_per_day", lowerIsBetter, func(o Outcome) float64 { return o.OvertimeHoursPerDay }},
		{"overdue_receiving_tasks", lowerIsBetter, func(o Outcome) float64 { return float64(o.OverdueReceivingTasks) }},
		{"peak_utilization", neutral, func(o Outcome) float64 { return o.PeakUtilization }},
		{"staff_utilization", neutral, func(o Outcome) float64 { return o.StaffUtilization }},
	}
}

// Delta is one metric compared across the baseline and scenario runs.
// ImpactScore is the percentage change signed so that positive always
// means worse.
type Delta struct {
	Metric        string  `json:"metric"`
	Baseline      float64 `json:"baseline"`
	Scenario      float64 `json:"scenario"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	ImpactScore   float64 `json:"impact_score"`
}

// Report is the outcome of one scenario analysis: both runs condensed,
// the per-metric deltas, and the classification. Metrics that moved more
// than ten percent land in the degraded or improved lists.
type Report struct {
	Scenario Scenario `json:"scenario"`
	Baseline Outcome  `json:"baseline"`
	Outcome  Outcome  `json:"outcome"`

	Deltas            []Delta  `json:"deltas"`
	DegradedMetrics   []string `json:"degraded_metrics,omitempty"`
	ImprovedMetrics   []string `json:"improved_metrics,omitempty"`
	ThresholdBreaches []string `json:"threshold_breaches,omitempty"`

	ImpactScore float64 `json:"impact_score"`
	Impact      Impact  `json:"impact"`
}

// Critical operating limits checked against the scenario outcome. A
// breach means the varied warehouse would run outside its safe envelope.
type limit struct {
	metric   string
	value    func(Outcome) float64
	critical float64
	upper    bool
}

var criticalLimits = []limit{
	{"peak_utilization", func(o Outcome) float64 { return o.PeakUtilization }, 95, true},
	{"staff_utilization", func(o Outcome) float64 { return o.StaffUtilization }, 95, true},
	{"task_completion_rate", func(o Outcome) float64 { return o.TaskCompletionRate }, 70, false},
	{"overtime_hours_per_day", func(o Outcome) float64 { return o.OvertimeHoursPerDay }, 32, true},
	{"exceptions_per_day", func(o Outcome) float64 { return o.ExceptionsPerDay }, 15, true},
}

func checkLimits(o Outcome) []string {
	var breaches []string
	for _, lim := range criticalLimits {
		v := lim.value(o)
		if lim.upper && v > lim.critical {
			breaches = append(breaches, fmt.Sprintf("%s %.2f above critical %.2f", lim.metric, v, lim.critical))
		}
		if !lim.upper && v < lim.critical {
			breaches = append(breaches, fmt.Sprintf("%s %.2f below critical %.2f", lim.metric, v, lim.critical))
		}
	}
	return breaches
}

// compare builds the report for one scenario run against the baseline.
// A zero baseline value yields a zero percentage change; the absolute
// change still shows in the delta.
func compare(sc Scenario, baseline, outcome Outcome) *Report {
	report := &Report{Scenario: sc, Baseline: baseline, Outcome: outcome}

	defs := metricTable()
	total := 0.0
	for _, def := range defs {
		b, v := def.value(baseline), def.value(outcome)
		delta := Delta{
			Metric:   def.name,
			Baseline: round3(b),
			Scenario: round3(v),
			Change:   round3(v - b),
		}
		if b != 0 {
			delta.ChangePercent = round2((v - b) / b * 100)
		}
		switch def.dir {
		case higherIsBetter:
			delta.ImpactScore = -delta.ChangePercent
		case lowerIsBetter:
			delta.ImpactScore = delta.ChangePercent
		default:
			delta.ImpactScore = math.Abs(delta.ChangePercent)
		}
		report.Deltas = append(report.Deltas, delta)
		total += math.Abs(delta.ImpactScore)

		if math.Abs(delta.ChangePercent) > 10 {
			worse := (delta.ChangePercent > 0 && def.dir != higherIsBetter) ||
				(delta.ChangePercent < 0 && def.dir == higherIsBetter)
			if worse {
				report.DegradedMetrics = append(report.DegradedMetrics, def.name)
			} else {
				report.ImprovedMetrics = append(report.ImprovedMetrics, def.name)
			}
		}
	}

	report.ImpactScore = round2(total / float64(len(defs)))
	report.Impact = impactFor(report.ImpactScore)
	report.ThresholdBreaches = checkLimits(outcome)
	return report
}

// Analyzer replays one simulation window under varied parameters. The
// baseline runs once on the unmodified bundle and is cached; every run,
// the baseline included, uses the same seed so that outcomes differ only
// where the parameters do.
type Analyzer struct {
	base *masterdata.Bundle
	cfg  scheduler.Config
	log  *slog.Logger

	baseline *Outcome
}

// NewAnalyzer builds an analyzer over a master-data bundle and a run
// configuration. The bundle is never mutated; each run works on its own
// parameter copy.
func NewAnalyzer(base *masterdata.Bundle, cfg scheduler.Config, logger *slog.Logger) (*Analyzer, error) {
	if base == nil {
		return nil, errors.New("scenario: nil master-data bundle")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		base: base,
		cfg:  cfg,
		log:  logger.With("component", "scenario"),
	}, nil
}

// Baseline runs the unmodified bundle once and caches the outcome for
// every later comparison.
func (a *Analyzer) Baseline(ctx context.Context) (Outcome, error) {
	if a.baseline != nil {
		return *a.baseline, nil
	}
	outcome, err := a.simulate(ctx, Scenario{Name: "baseline"})
	if err != nil {
		return Outcome{}, fmt.Errorf("baseline run: %w", err)
	}
	a.baseline = &outcome
	return outcome, nil
}

// Run executes one scenario and reports it against the baseline.
func (a *Analyzer) Run(ctx context.Context, sc Scenario) (*Report, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	baseline, err := a.Baseline(ctx)
	if err != nil {
		return nil, err
	}

	a.log.Info("running scenario", "scenario", sc.Name)
	outcome, err := a.simulate(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}

	report := compare(sc, baseline, outcome)
	a.log.Info("scenario finished",
		"scenario", sc.Name,
		"impact", report.Impact,
		"impact_score", report.ImpactScore,
		"degraded", len(report.DegradedMetrics),
		"breaches", len(report.ThresholdBreaches))
	return report, nil
}

// RunAll executes the scenarios in order and stops at the first failure,
// returning the reports finished so far alongside the error.
func (a *Analyzer) RunAll(ctx context.Context, scenarios []Scenario) ([]*Report, error) {
	reports := make([]*Report, 0, len(scenarios))
	for _, sc := range scenarios {
		report, err := a.Run(ctx, sc)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (a *Analyzer) simulate(ctx context.Context, sc Scenario) (Outcome, error) {
	store, err := masterdata.NewStore(sc.Apply(a.base), a.log)
	if err != nil {
		return Outcome{}, fmt.Errorf("build store: %w", err)
	}

	engine, err := scheduler.NewEngine(store, a.cfg, nil, nil, a.log.With("scenario", sc.Name))
	if err != nil {
		return Outcome{}, fmt.Errorf("build engine: %w", err)
	}
	if _, err := engine.Initialize(); err != nil {
		return Outcome{}, fmt.Errorf("initialize: %w", err)
	}
	if err := engine.Run(ctx); err != nil {
		return Outcome{}, fmt.Errorf("run: %w", err)
	}
	return outcomeOf(engine.Stats()), nil
}

// Rank orders reports from most to least disruptive. Ties keep their
// original order.
func Rank(reports []*Report) []*Report {
	out := append([]*Report(nil), reports...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ImpactScore > out[j].ImpactScore })
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
