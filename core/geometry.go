package core

import (
	"math"

	"github.com/signalsfoundry/coverage-planner/model"
)

// BoundaryMargin is the clearance every feasible point keeps from the
// floor edges (metres).
const BoundaryMargin = 1.0

// closestPointOnSegment projects p onto the segment a-b and clamps the
// projection to the segment. ok is false for a zero-length segment.
func closestPointOnSegment(p, a, b model.Point) (closest model.Point, ok bool) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return model.Point{}, false
	}

	// t minimises |a + t(b-a) - p|^2 over t in [0,1].
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return model.Point{X: a.X + t*dx, Y: a.Y + t*dy}, true
}

// pointSegmentDistance returns the distance from p to segment a-b.
// ok is false for a degenerate segment.
func pointSegmentDistance(p, a, b model.Point) (float64, bool) {
	c, ok := closestPointOnSegment(p, a, b)
	if !ok {
		return 0, false
	}
	return p.DistanceTo(c), true
}

// orientation classifies the turn p->q->r: 0 collinear, 1 clockwise,
// 2 counter-clockwise.
func orientation(p, q, r model.Point) int {
	val := (q.Y-p.Y)*(r.X-q.X) - (q.X-p.X)*(r.Y-q.Y)
	switch {
	case val == 0:
		return 0
	case val > 0:
		return 1
	default:
		return 2
	}
}

// onSegment reports whether q lies in the bounding box of p-r. Only
// meaningful when p, q, r are collinear.
func onSegment(p, q, r model.Point) bool {
	return q.X <= math.Max(p.X, r.X) && q.X >= math.Min(p.X, r.X) &&
		q.Y <= math.Max(p.Y, r.Y) && q.Y >= math.Min(p.Y, r.Y)
}

// segmentsIntersect reports whether segment p1-q1 touches segment p2-q2.
func segmentsIntersect(p1, q1, p2, q2 model.Point) bool {
	o1 := orientation(p1, q1, p2)
	o2 := orientation(p1, q1, q2)
	o3 := orientation(p2, q2, p1)
	o4 := orientation(p2, q2, q1)

	if o1 != o2 && o3 != o4 {
		return true
	}
	if o1 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if o2 == 0 && onSegment(p1, q2, q1) {
		return true
	}
	if o3 == 0 && onSegment(p2, p1, q2) {
		return true
	}
	if o4 == 0 && onSegment(p2, q1, q2) {
		return true
	}
	return false
}

// latticeCount returns how many steps of size spacing fit in [0,extent]
// (inclusive of both ends), tolerating floating-point rounding.
func latticeCount(extent, spacing float64) int {
	if spacing <= 0 || extent < 0 {
		return 0
	}
	return int(math.Floor(extent/spacing+1e-9)) + 1
}
