package httpapi

import (
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/runner"
	"github.com/hsichihchen-design/cpdoldsim/internal/scenario"
	"github.com/hsichihchen-design/cpdoldsim/internal/scheduler"
)

const dateLayout = "2006-01-02"

// CreateSimulationRequest is the body of POST /api/v1/simulations. Dates
// are calendar days, end exclusive. A zero seed gets a wall-clock seed
// assigned, and the descriptor echoes whichever seed the run ended up
// with.
type CreateSimulationRequest struct {
	StartDate string `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" binding:"required,datetime=2006-01-02"`
	Seed      int64  `json:"seed"`

	StatusUpdateMinutes       int      `json:"status_update_minutes" binding:"omitempty,min=1,max=720"`
	OvertimeEvaluationMinutes int      `json:"overtime_evaluation_minutes" binding:"omitempty,min=5,max=720"`
	ResumeWorkFraction        *float64 `json:"resume_work_fraction" binding:"omitempty,gt=0,lte=1"`

	ReceivingEnabled  *bool `json:"receiving_enabled"`
	OvertimeEnabled   *bool `json:"overtime_enabled"`
	ExceptionsEnabled *bool `json:"exceptions_enabled"`

	// ParameterOverrides sets warehouse parameter rows by name for this
	// run only, the same way scenario overrides do.
	ParameterOverrides map[string]string `json:"parameter_overrides" binding:"omitempty,dive,keys,required,endkeys"`
}

func (r CreateSimulationRequest) toConfig() scheduler.Config {
	start, _ := time.Parse(dateLayout, r.StartDate)
	end, _ := time.Parse(dateLayout, r.EndDate)

	cfg := scheduler.DefaultConfig(start, end, r.Seed)
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if r.StatusUpdateMinutes > 0 {
		cfg.StatusUpdateInterval = time.Duration(r.StatusUpdateMinutes) * time.Minute
	}
	if r.OvertimeEvaluationMinutes > 0 {
		cfg.OvertimeEvaluationInterval = time.Duration(r.OvertimeEvaluationMinutes) * time.Minute
	}
	if r.ResumeWorkFraction != nil {
		cfg.ResumeWorkFraction = *r.ResumeWorkFraction
	}
	if r.ReceivingEnabled != nil {
		cfg.ReceivingEnabled = *r.ReceivingEnabled
	}
	if r.OvertimeEnabled != nil {
		cfg.OvertimeEnabled = *r.OvertimeEnabled
	}
	if r.ExceptionsEnabled != nil {
		cfg.ExceptionsEnabled = *r.ExceptionsEnabled
	}
	return cfg
}

// ScenarioRunRequest is the body of POST /api/v1/scenarios/run: a
// simulation window plus one inline scenario to compare against the
// identically seeded baseline.
type ScenarioRunRequest struct {
	StartDate string            `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate   string            `json:"end_date" binding:"required,datetime=2006-01-02"`
	Seed      int64             `json:"seed"`
	Scenario  scenario.Scenario `json:"scenario"`
}

func (r ScenarioRunRequest) toConfig() scheduler.Config {
	start, _ := time.Parse(dateLayout, r.StartDate)
	end, _ := time.Parse(dateLayout, r.EndDate)

	cfg := scheduler.DefaultConfig(start, end, r.Seed)
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return cfg
}

// ListSimulationsResponse is the body of GET /api/v1/simulations.
type ListSimulationsResponse struct {
	Runs  []runner.Descriptor `json:"runs"`
	Count int                 `json:"count"`
}

// ScenarioTemplatesResponse is the body of GET /api/v1/scenarios/templates.
type ScenarioTemplatesResponse struct {
	Templates []scenario.Scenario `json:"templates"`
	Count     int                 `json:"count"`
}
