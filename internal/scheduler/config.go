package scheduler

import (
	"fmt"
	"time"
)

// Engine knobs not covered by the warehouse parameter table.
const (
	DefaultStatusUpdateInterval       = 5 * time.Minute
	DefaultOvertimeEvaluationInterval = time.Hour
	DefaultResumeWorkFraction         = 0.5
)

// Overtime evaluations only fire during plausible working hours.
const (
	overtimeEvaluationFirstHour = 8
	overtimeEvaluationLastHour  = 20
)

// Config controls one simulation run. The dates delimit simulated time;
// the rest tunes the engine itself. Warehouse behavior — shifts, durations,
// probabilities — comes from masterdata.Params, not from here.
type Config struct {
	StartDate time.Time `json:"start_date" bson:"start_date"`
	EndDate   time.Time `json:"end_date" bson:"end_date"`
	Seed      int64     `json:"random_seed" bson:"random_seed"`

	StatusUpdateInterval       time.Duration `json:"status_update_interval" bson:"status_update_interval"`
	OvertimeEvaluationInterval time.Duration `json:"overtime_evaluation_interval" bson:"overtime_evaluation_interval"`

	// Fraction of its estimate a preempted task still needs once it
	// resumes.
	ResumeWorkFraction float64 `json:"resume_work_fraction" bson:"resume_work_fraction"`

	// Feature gates. These switch whole event families off; the
	// overtime_enabled parameter additionally gates session planning
	// inside an otherwise enabled run.
	ReceivingEnabled  bool `json:"receiving_enabled" bson:"receiving_enabled"`
	OvertimeEnabled   bool `json:"overtime_enabled" bson:"overtime_enabled"`
	ExceptionsEnabled bool `json:"exceptions_enabled" bson:"exceptions_enabled"`
}

// DefaultConfig returns a run configuration with every feature enabled.
func DefaultConfig(start, end time.Time, seed int64) Config {
	return Config{
		StartDate:                  start,
		EndDate:                    end,
		Seed:                       seed,
		StatusUpdateInterval:       DefaultStatusUpdateInterval,
		OvertimeEvaluationInterval: DefaultOvertimeEvaluationInterval,
		ResumeWorkFraction:         DefaultResumeWorkFraction,
		ReceivingEnabled:           true,
		OvertimeEnabled:            true,
		ExceptionsEnabled:          true,
	}
}

func (c *Config) normalize() {
	if c.StatusUpdateInterval <= 0 {
		c.StatusUpdateInterval = DefaultStatusUpdateInterval
	}
	if c.OvertimeEvaluationInterval <= 0 {
		c.OvertimeEvaluationInterval = DefaultOvertimeEvaluationInterval
	}
	if c.ResumeWorkFraction <= 0 || c.ResumeWorkFraction > 1 {
		c.ResumeWorkFraction = DefaultResumeWorkFraction
	}
}

func (c Config) validate() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidWindow)
	}
	if !c.StartDate.Before(c.EndDate) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow,
			c.StartDate.Format(time.RFC3339), c.EndDate.Format(time.RFC3339))
	}
	return nil
}
