package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
)

var demoStart = time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC) // Monday

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		scenario Scenario
		wantErr  bool
	}{
		{name: "name only", scenario: Scenario{Name: "baseline-check"}},
		{name: "all knobs", scenario: Scenario{
			Name:                           "everything",
			SpeedReductionFactor:           0.25,
			StaffReductionFraction:         0.1,
			ExceptionProbabilityMultiplier: 2,
			LeaderCountReduction:           1,
			Overrides:                      map[string]string{"max_overtime_hours": "2.0"},
		}},
		{name: "missing name", scenario: Scenario{SpeedReductionFactor: 0.1}, wantErr: true},
		{name: "blank name", scenario: Scenario{Name: "   "}, wantErr: true},
		{name: "negative speed factor", scenario: Scenario{Name: "s", SpeedReductionFactor: -0.1}, wantErr: true},
		{name: "staff fraction at one", scenario: Scenario{Name: "s", StaffReductionFraction: 1}, wantErr: true},
		{name: "negative staff fraction", scenario: Scenario{Name: "s", StaffReductionFraction: -0.2}, wantErr: true},
		{name: "negative multiplier", scenario: Scenario{Name: "s", ExceptionProbabilityMultiplier: -1}, wantErr: true},
		{name: "negative leader reduction", scenario: Scenario{Name: "s", LeaderCountReduction: -1}, wantErr: true},
		{name: "blank override name", scenario: Scenario{Name: "s", Overrides: map[string]string{" ": "1"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scenario.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidScenario)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestApplyScalesParameters(t *testing.T) {
	base := masterdata.DemoBundle(demoStart)
	baseRows := len(base.SystemParameters)

	sc := Scenario{
		Name:                           "everything",
		SpeedReductionFactor:           0.25,
		StaffReductionFraction:         0.25,
		ExceptionProbabilityMultiplier: 3,
		LeaderCountReduction:           1,
	}
	modified := sc.Apply(base)
	params := masterdata.NewParameterStore(modified.SystemParameters)

	// Demo values: picking 45/30s, startup 180s, staff 6/7/4, exception
	// probabilities 0.02/0.015, two leaders.
	assert.InDelta(t, 56.25, params.Float("picking_base_time_repack", 0), 1e-9)
	assert.InDelta(t, 37.5, params.Float("picking_base_time_no_repack", 0), 1e-9)
	assert.InDelta(t, 225, params.Float("station_startup_time_minutes", 0), 1e-9)

	assert.Equal(t, 4, params.Int("planned_staff_2f", 0))
	assert.Equal(t, 5, params.Int("planned_staff_3f", 0))
	assert.Equal(t, 3, params.Int("planned_staff_4f", 0))

	assert.InDelta(t, 0.06, params.Float("exception_probability_shipping", 0), 1e-9)
	assert.InDelta(t, 0.045, params.Float("exception_probability_receiving", 0), 1e-9)

	assert.Equal(t, 1, params.Int("leader_count", 0))

	// The base bundle is untouched.
	assert.Len(t, base.SystemParameters, baseRows)
	original := masterdata.NewParameterStore(base.SystemParameters)
	assert.InDelta(t, 45, original.Float("picking_base_time_repack", 0), 1e-9)
	assert.Equal(t, 6, original.Int("planned_staff_2f", 0))
	assert.Equal(t, 2, original.Int("leader_count", 0))
}

func TestApplyFloorsAndCaps(t *testing.T) {
	base := masterdata.DemoBundle(demoStart)

	sc := Scenario{
		Name:                           "worst-case",
		StaffReductionFraction:         0.95,
		ExceptionProbabilityMultiplier: 1000,
		LeaderCountReduction:           5,
	}
	params := masterdata.NewParameterStore(sc.Apply(base).SystemParameters)

	assert.Equal(t, 1, params.Int("planned_staff_2f", 0))
	assert.Equal(t, 1, params.Int("planned_staff_3f", 0))
	assert.Equal(t, 1, params.Int("planned_staff_4f", 0))
	assert.InDelta(t, 1.0, params.Float("exception_probability_shipping", 0), 1e-9)
	assert.InDelta(t, 1.0, params.Float("exception_probability_receiving", 0), 1e-9)
	assert.Equal(t, 0, params.Int("leader_count", -1))
}

func TestApplyOverridesWinOverKnobs(t *testing.T) {
	base := masterdata.DemoBundle(demoStart)

	sc := Scenario{
		Name:                 "pinned",
		SpeedReductionFactor: 0.5,
		Overrides: map[string]string{
			"picking_base_time_repack": "100",
			"overtime_enabled":         "N",
		},
	}
	params := masterdata.NewParameterStore(sc.Apply(base).SystemParameters)

	assert.InDelta(t, 100, params.Float("picking_base_time_repack", 0), 1e-9)
	assert.InDelta(t, 45, params.Float("picking_base_time_no_repack", 0), 1e-9)
	assert.False(t, params.Bool("overtime_enabled", true))
}

func TestApplyEmptyScenarioIsIdentity(t *testing.T) {
	base := masterdata.DemoBundle(demoStart)
	modified := Scenario{Name: "baseline"}.Apply(base)

	assert.Len(t, modified.SystemParameters, len(base.SystemParameters))
	assert.Equal(t, base.Orders, modified.Orders)
	assert.Equal(t, base.Items, modified.Items)
}

func TestParseCatalog(t *testing.T) {
	doc := []byte(`
scenarios:
  - name: exception-surge
    description: Exception probabilities doubled
    exception_probability_multiplier: 2.0
  - name: short-staffed
    staff_reduction_fraction: 0.25
    leader_count_reduction: 1
    overrides:
      planned_staff_4f: "3"
`)
	scenarios, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	assert.Equal(t, "exception-surge", scenarios[0].Name)
	assert.Equal(t, "Exception probabilities doubled", scenarios[0].Description)
	assert.InDelta(t, 2.0, scenarios[0].ExceptionProbabilityMultiplier, 1e-9)

	assert.Equal(t, "short-staffed", scenarios[1].Name)
	assert.InDelta(t, 0.25, scenarios[1].StaffReductionFraction, 1e-9)
	assert.Equal(t, 1, scenarios[1].LeaderCountReduction)
	assert.Equal(t, map[string]string{"planned_staff_4f": "3"}, scenarios[1].Overrides)
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{name: "empty document", doc: "scenarios: []", want: ErrNoScenarios},
		{name: "no scenarios key", doc: "other: 1", want: ErrNoScenarios},
		{name: "invalid scenario", doc: "scenarios:\n  - name: bad\n    speed_reduction_factor: -1\n", want: ErrInvalidScenario},
		{name: "duplicate names", doc: "scenarios:\n  - name: twin\n  - name: twin\n", want: ErrInvalidScenario},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte("scenarios: ["))
		require.Error(t, err)
	})
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	doc := "scenarios:\n  - name: from-disk\n    speed_reduction_factor: 0.1\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	scenarios, err := Load(path)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "from-disk", scenarios[0].Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestTemplatesAreValidAndUnique(t *testing.T) {
	templates := Templates()
	require.NotEmpty(t, templates)

	seen := make(map[string]bool, len(templates))
	for _, sc := range templates {
		require.NoError(t, sc.Validate(), "template %s", sc.Name)
		assert.False(t, seen[sc.Name], "duplicate template name %s", sc.Name)
		seen[sc.Name] = true
	}
}
