package tasks

import (
	"math"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/sim"
)

// Estimator computes task durations. Fixed estimates are deterministic and
// feed wave planning; actual durations add staff skill and a bounded random
// factor and govern the scheduled completion event.
type Estimator struct {
	store  *masterdata.Store
	params masterdata.Params
}

// NewEstimator builds an estimator over the master-data store.
func NewEstimator(store *masterdata.Store) *Estimator {
	return &Estimator{store: store, params: store.Params()}
}

// ReceivingEstimate is the planning estimate for a receiving line: quantity
// times the per-piece handling time, clamped to half and triple the raw
// value with a one-minute floor.
func ReceivingEstimate(quantity int, perPieceMinutes float64) float64 {
	raw := float64(quantity) * perPieceMinutes
	return round2(clamp(raw, math.Max(1, raw*0.5), raw*3))
}

// FixedEstimate returns the planning estimate in minutes, no randomness.
// Receiving work scales with quantity; shipping work uses the picking base
// times with per-item means taking precedence over the parameters.
func (e *Estimator) FixedEstimate(t *Task) float64 {
	if t.Type == TypeReceiving {
		return ReceivingEstimate(t.Quantity, e.params.ReceivingTimePerPieceMinutes)
	}

	var base, additional float64
	if t.RequiresRepack {
		base = e.params.PickingBaseRepackMinutes
		additional = e.params.RepackAdditionalMinutes
	} else {
		base = e.params.PickingBaseNoRepackMinutes
	}

	if item, ok := e.store.Item(t.FamilyCode, t.PartNumber); ok {
		if t.RequiresRepack && item.PickTimeRepackSeconds > 0 {
			base = item.PickTimeRepackSeconds / 60.0
		}
		if !t.RequiresRepack && item.PickTimeNoRepackSeconds > 0 {
			base = item.PickTimeNoRepackSeconds / 60.0
		}
	}

	total := clamp(base+additional, e.params.MinTaskDurationMinutes, e.params.MaxTaskDurationMinutes)
	return round2(total)
}

// ActualDuration turns the fixed estimate into an execution duration for a
// specific staff member. Skill level 3 is neutral; each level above or
// below shifts the factor by skill_impact_multiplier, clamped to
// [0.5, 1.5]. The random multiplier comes from the durations stream so
// identical seeds reproduce identical schedules.
func (e *Estimator) ActualDuration(t *Task, skill masterdata.StaffSkill, stream *sim.Stream) float64 {
	duration := t.EstimatedDuration

	factor := 1.0 - float64(skill.SkillLevel-3)*e.params.SkillImpactMultiplier
	factor = clamp(factor, 0.5, 1.5)
	capacity := skill.CapacityMultiplier
	if capacity <= 0 {
		capacity = 1.0
	}
	duration = duration * factor / capacity

	duration *= stream.Uniform(0.85, 1.15)

	return round2(clamp(duration, e.params.MinTaskDurationMinutes, e.params.MaxTaskDurationMinutes))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
