package core

import "github.com/signalsfoundry/coverage-planner/model"

// DefaultValidSpacing is the starting lattice pitch for ValidPositions.
const DefaultValidSpacing = 3.0

// ValidPositions returns up to count randomly ordered feasible positions
// (clear of obstacles and 2 m from live antennas) without scoring them.
// When the lattice at spacing is exhausted, denser lattices are tried
// while the spacing stays above 1 m.
func (o *PlacementOptimizer) ValidPositions(count int, spacing float64) []model.Point {
	if count <= 0 || !o.pc.Floor.Valid() {
		return nil
	}
	if spacing <= 0 {
		spacing = DefaultValidSpacing
	}

	var out []model.Point
	seen := make(map[model.Point]bool)
	for {
		var lattice []model.Point
		f := o.pc.Floor
		for x := regionInset; x < f.Width-regionInset; x += spacing {
			for y := regionInset; y < f.Height-regionInset; y += spacing {
				lattice = append(lattice, model.Point{X: x, Y: y})
			}
		}
		o.rng.Shuffle(len(lattice), func(i, j int) {
			lattice[i], lattice[j] = lattice[j], lattice[i]
		})

		for _, p := range lattice {
			if len(out) >= count {
				return out
			}
			if seen[p] || !o.pc.IsFree(p, candidateMinObstacle, fallbackMinAntenna) {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}

		if len(out) >= count || spacing <= fallbackMinSpacing {
			return out
		}
		spacing *= fallbackShrinkFactor
	}
}
