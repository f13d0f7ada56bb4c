package core

import "github.com/signalsfoundry/coverage-planner/model"

// IsFree reports whether p is a feasible antenna or sample location: at
// least BoundaryMargin inside the floor, clear of every obstacle by
// minObstacle plus half the obstacle's thickness, and at least
// minAntenna away from every enabled antenna.
func (pc PlanningContext) IsFree(p model.Point, minObstacle, minAntenna float64) bool {
	if p.X < BoundaryMargin || p.Y < BoundaryMargin ||
		p.X > pc.Floor.Width-BoundaryMargin || p.Y > pc.Floor.Height-BoundaryMargin {
		return false
	}

	for _, w := range pc.Walls {
		required := minObstacle + pc.Elements.Thickness(w)/2
		for _, seg := range w.Segments() {
			d, ok := pointSegmentDistance(p, seg[0], seg[1])
			if !ok {
				continue
			}
			if d < required {
				return false
			}
		}
	}

	for _, a := range pc.Antennas {
		if !a.Enabled {
			continue
		}
		if p.DistanceTo(a.Position()) < minAntenna {
			return false
		}
	}
	return true
}
