// Package scenario replays a simulation window under modified warehouse
// parameters and measures how the outcome moves against an identically
// seeded baseline run: what-if analysis for speed loss, short staffing
// and exception stress.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
)

// Scenario errors.
var (
	ErrInvalidScenario = errors.New("invalid scenario")
	ErrNoScenarios     = errors.New("no scenarios defined")
)

// Scenario is one what-if variation of the warehouse. The named knobs
// scale the current parameter values; Overrides sets raw parameter rows
// outright and wins over the knobs. A zero knob leaves its parameters
// unchanged, so an empty Scenario reproduces the baseline.
type Scenario struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// SpeedReductionFactor slows the stations down: startup and picking
	// base times grow by the given fraction. 0.25 means 25% slower.
	SpeedReductionFactor float64 `yaml:"speed_reduction_factor,omitempty" json:"speed_reduction_factor,omitempty"`

	// StaffReductionFraction removes that share of the planned headcount
	// on every floor, never below one person per floor.
	StaffReductionFraction float64 `yaml:"staff_reduction_fraction,omitempty" json:"staff_reduction_fraction,omitempty"`

	// ExceptionProbabilityMultiplier scales the shipping and receiving
	// exception probabilities, capped at 1. Zero means unchanged; use an
	// override to switch exceptions off outright.
	ExceptionProbabilityMultiplier float64 `yaml:"exception_probability_multiplier,omitempty" json:"exception_probability_multiplier,omitempty"`

	// LeaderCountReduction removes leaders from the exception-handling
	// pool, never below zero. With no leaders left, detected exceptions
	// stay active for the rest of the run.
	LeaderCountReduction int `yaml:"leader_count_reduction,omitempty" json:"leader_count_reduction,omitempty"`

	// Overrides sets parameter table values by name, applied after the
	// knobs above.
	Overrides map[string]string `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// Validate checks the scenario knobs are inside their working ranges.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if s.SpeedReductionFactor < 0 {
		return fmt.Errorf("%w: speed_reduction_factor %.2f is negative", ErrInvalidScenario, s.SpeedReductionFactor)
	}
	if s.StaffReductionFraction < 0 || s.StaffReductionFraction >= 1 {
		return fmt.Errorf("%w: staff_reduction_fraction %.2f outside [0,1)", ErrInvalidScenario, s.StaffReductionFraction)
	}
	if s.ExceptionProbabilityMultiplier < 0 {
		return fmt.Errorf("%w: exception_probability_multiplier %.2f is negative", ErrInvalidScenario, s.ExceptionProbabilityMultiplier)
	}
	if s.LeaderCountReduction < 0 {
		return fmt.Errorf("%w: leader_count_reduction %d is negative", ErrInvalidScenario, s.LeaderCountReduction)
	}
	for name := range s.Overrides {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: override with empty parameter name", ErrInvalidScenario)
		}
	}
	return nil
}

// Apply returns a copy of the bundle with the scenario written into its
// parameter table. Override rows are appended, and later duplicates win
// when the parameter store indexes them. Only the parameter slice is
// copied; the transaction tables are shared with the base bundle and
// never mutated.
//
// The fallback values mirror the canonical parameter defaults, so a
// bundle that omits a row still scales from what the engine would use.
func (s Scenario) Apply(base *masterdata.Bundle) *masterdata.Bundle {
	clone := *base
	clone.SystemParameters = make([]masterdata.SystemParameter, len(base.SystemParameters), len(base.SystemParameters)+8)
	copy(clone.SystemParameters, base.SystemParameters)

	current := masterdata.NewParameterStore(base.SystemParameters)
	push := func(name, value, dataType string) {
		clone.SystemParameters = append(clone.SystemParameters, masterdata.SystemParameter{
			Name:     name,
			Value:    value,
			DataType: dataType,
		})
	}

	if s.SpeedReductionFactor > 0 {
		slow := 1 + s.SpeedReductionFactor
		push("picking_base_time_repack", formatFloat(current.Float("picking_base_time_repack", 45)*slow), "float")
		push("picking_base_time_no_repack", formatFloat(current.Float("picking_base_time_no_repack", 30)*slow), "float")
		push("station_startup_time_minutes", formatFloat(current.Float("station_startup_time_minutes", 180)*slow), "float")
	}

	if s.StaffReductionFraction > 0 {
		for _, floor := range []int{2, 3, 4} {
			name := fmt.Sprintf("planned_staff_%df", floor)
			reduced := int(float64(current.Int(name, 8)) * (1 - s.StaffReductionFraction))
			if reduced < 1 {
				reduced = 1
			}
			push(name, strconv.Itoa(reduced), "integer")
		}
	}

	if s.ExceptionProbabilityMultiplier > 0 {
		shipping := current.Float("exception_probability_shipping", 0.02) * s.ExceptionProbabilityMultiplier
		receiving := current.Float("exception_probability_receiving", 0.015) * s.ExceptionProbabilityMultiplier
		if shipping > 1 {
			shipping = 1
		}
		if receiving > 1 {
			receiving = 1
		}
		push("exception_probability_shipping", formatFloat(shipping), "float")
		push("exception_probability_receiving", formatFloat(receiving), "float")
	}

	if s.LeaderCountReduction > 0 {
		leaders := current.Int("leader_count", 2) - s.LeaderCountReduction
		if leaders < 0 {
			leaders = 0
		}
		push("leader_count", strconv.Itoa(leaders), "integer")
	}

	names := make([]string, 0, len(s.Overrides))
	for name := range s.Overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		push(name, s.Overrides[name], "string")
	}

	return &clone
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Templates returns the built-in scenario catalog: the stress cases the
// planning team asks about most.
func Templates() []Scenario {
	return []Scenario{
		{Name: "speed-reduction-light", Description: "Stations 10% slower", SpeedReductionFactor: 0.10},
		{Name: "speed-reduction-moderate", Description: "Stations 25% slower", SpeedReductionFactor: 0.25},
		{Name: "speed-reduction-severe", Description: "Stations 50% slower", SpeedReductionFactor: 0.50},
		{Name: "staff-reduction-10pct", Description: "Planned headcount down 10% on every floor", StaffReductionFraction: 0.10},
		{Name: "staff-reduction-25pct", Description: "Planned headcount down 25% on every floor", StaffReductionFraction: 0.25},
		{Name: "exception-surge-2x", Description: "Exception probabilities doubled", ExceptionProbabilityMultiplier: 2},
		{Name: "exception-surge-5x", Description: "Exception probabilities at five times the norm", ExceptionProbabilityMultiplier: 5},
		{Name: "single-leader", Description: "One exception leader instead of two", LeaderCountReduction: 1},
	}
}

// File is the on-disk scenario catalog format.
type File struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Load reads and validates a scenario catalog from a YAML file.
func Load(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario catalog and validates every entry. Scenario
// names must be unique within one catalog.
func Parse(data []byte) ([]Scenario, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse scenario file: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, ErrNoScenarios
	}

	seen := make(map[string]bool, len(file.Scenarios))
	for i, sc := range file.Scenarios {
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %d (%q): %w", i+1, sc.Name, err)
		}
		if seen[sc.Name] {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidScenario, sc.Name)
		}
		seen[sc.Name] = true
	}
	return file.Scenarios, nil
}
