package core

import (
	"math"

	"github.com/signalsfoundry/coverage-planner/model"
)

// Score sums the finite per-point signal values of samples evaluated
// against the hypothetical antenna set. It returns 0 for no samples and
// -Inf when no sample produced a finite value. The sum is deliberately not
// averaged so that a larger illuminated area scores higher.
//
// The receiver's live antenna set is never touched: evaluation runs on a
// copy of the context whose antenna slice is replaced by hypothetical.
func (pc PlanningContext) Score(samples []model.Point, hypothetical []model.Antenna) float64 {
	if len(samples) == 0 {
		return 0
	}
	eval := pc.WithAntennas(hypothetical)
	eval.Select = Selection{}

	total := 0.0
	valid := 0
	for _, p := range samples {
		v := eval.ValueAt(p)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		total += v
		valid++
	}
	if valid == 0 {
		return math.Inf(-1)
	}
	return total
}
