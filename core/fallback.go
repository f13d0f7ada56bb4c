package core

import (
	"context"
	"math"

	"github.com/signalsfoundry/coverage-planner/model"
)

// fallback runs the greedy search over a single flat candidate pool
// covering the whole floor. When the pool is empty the lattice is made
// denser by fallbackShrinkFactor until the spacing drops to
// fallbackMinSpacing.
func (o *PlacementOptimizer) fallback(ctx context.Context, count int, samples []model.Point, minSpacing float64) ([]model.Point, int) {
	pool := o.fallbackPool()
	if len(pool) == 0 {
		return nil, 0
	}

	sess := newPlacementSession(o.pc, samples, minSpacing)
	for len(sess.selected) < count {
		if ctx.Err() != nil {
			break
		}
		best := pick{region: -1}
		bestScore := math.Inf(-1)
		found := false
		for _, p := range pool {
			if sess.tooClose(p) {
				continue
			}
			if v := sess.score(p); v > bestScore {
				bestScore = v
				best = pick{point: p, region: -1}
				found = true
			}
		}
		if !found {
			break
		}
		sess.commit(best)
	}
	return sess.selected, sess.scored
}

// fallbackPool enumerates [1,W-1)x[1,H-1) at the grid spacing, keeping
// points clear of obstacles and 2 m from live antennas.
func (o *PlacementOptimizer) fallbackPool() []model.Point {
	spacing := o.gridSpacing
	for {
		var pool []model.Point
		f := o.pc.Floor
		for x := regionInset; x < f.Width-regionInset; x += spacing {
			for y := regionInset; y < f.Height-regionInset; y += spacing {
				p := model.Point{X: x, Y: y}
				if o.pc.IsFree(p, candidateMinObstacle, fallbackMinAntenna) {
					pool = append(pool, p)
				}
			}
		}
		if len(pool) > 0 {
			return thin(pool, strideFor(len(pool), o.maxCandidates))
		}
		if spacing <= fallbackMinSpacing {
			return nil
		}
		spacing *= fallbackShrinkFactor
	}
}
