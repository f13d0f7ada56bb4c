package core

import (
	"math"

	"github.com/signalsfoundry/coverage-planner/model"
)

const (
	layoutMargin     = 1.0
	layoutMinSpacing = 2.0
	layoutNudge      = 3.0
	perimeterInset   = 2.0
)

// nudgeOffsets are tried in order when a sub-grid point lands too close
// to the centre antenna of an odd layout.
var nudgeOffsets = []model.Point{
	{X: -layoutNudge, Y: 0}, {X: layoutNudge, Y: 0},
	{X: 0, Y: -layoutNudge}, {X: 0, Y: layoutNudge},
	{X: -layoutNudge, Y: -layoutNudge}, {X: layoutNudge, Y: layoutNudge},
	{X: -layoutNudge, Y: layoutNudge}, {X: layoutNudge, Y: -layoutNudge},
}

// conventionalGrids pins the row/column split of small even counts.
var conventionalGrids = map[int][2]int{
	2: {2, 1},
	4: {2, 2},
	6: {3, 2},
	8: {4, 2},
}

// GridLayoutPlanner spreads antennas evenly over the floor without any
// coverage evaluation.
type GridLayoutPlanner struct {
	pc PlanningContext
}

// NewGridLayoutPlanner builds a planner for the context's floor.
func NewGridLayoutPlanner(pc PlanningContext) *GridLayoutPlanner {
	return &GridLayoutPlanner{pc: pc}
}

type layoutBounds struct {
	minX, maxX, minY, maxY float64
	center                 model.Point
}

func (b layoutBounds) width() float64  { return b.maxX - b.minX }
func (b layoutBounds) height() float64 { return b.maxY - b.minY }

func (b layoutBounds) contains(p model.Point) bool {
	return p.X >= b.minX && p.X <= b.maxX && p.Y >= b.minY && p.Y <= b.maxY
}

// Layout returns exactly count positions (none for count <= 0). Odd counts
// put one antenna at the centre and arrange the rest around it. If the
// floor is too small to keep 2 m between points, points may overlap.
func (g *GridLayoutPlanner) Layout(count int) []model.Point {
	if count <= 0 {
		return nil
	}
	f := g.pc.Floor
	b := layoutBounds{
		minX:   layoutMargin,
		maxX:   f.Width - layoutMargin,
		minY:   layoutMargin,
		maxY:   f.Height - layoutMargin,
		center: f.Center(),
	}
	if count == 1 {
		return []model.Point{b.center}
	}

	var positions []model.Point
	if count%2 == 1 {
		positions = oddLayout(b, count)
	} else {
		cols, rows := gridShape(count)
		positions = gridPoints(b, cols, rows, count)
	}

	positions = fillShortfall(b, positions, count)
	return positions[:count]
}

// Blocked returns the indices of positions that fail the obstacle
// clearance check, so callers can warn about antennas drawn onto walls.
func (g *GridLayoutPlanner) Blocked(positions []model.Point) []int {
	var out []int
	for i, p := range positions {
		if !g.pc.IsFree(p, candidateMinObstacle, 0) {
			out = append(out, i)
		}
	}
	return out
}

// gridShape chooses cols x rows for an even count.
func gridShape(count int) (cols, rows int) {
	side := math.Sqrt(float64(count))
	if side == math.Floor(side) {
		return int(side), int(side)
	}

	cols = int(math.Round(side))
	rows = int(math.Ceil(float64(count) / float64(cols)))
	if cols*rows >= count {
		return cols, rows
	}
	return conventionalShape(count)
}

// conventionalShape is the square-ish split grown until it holds count,
// with fixed shapes for the small even counts.
func conventionalShape(count int) (cols, rows int) {
	if shape, ok := conventionalGrids[count]; ok {
		return shape[0], shape[1]
	}
	cols = int(math.Ceil(math.Sqrt(float64(count))))
	rows = int(math.Ceil(float64(count) / float64(cols)))
	for cols*rows < count {
		if cols <= rows {
			cols++
		} else {
			rows++
		}
	}
	return cols, rows
}

func gridPoints(b layoutBounds, cols, rows, limit int) []model.Point {
	dx := b.width() / float64(cols+1)
	dy := b.height() / float64(rows+1)
	out := make([]model.Point, 0, limit)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if len(out) >= limit {
				return out
			}
			out = append(out, model.Point{X: b.minX + dx*float64(c+1), Y: b.minY + dy*float64(r+1)})
		}
	}
	return out
}

func oddLayout(b layoutBounds, count int) []model.Point {
	positions := []model.Point{b.center}

	remaining := count - 1
	cols := int(math.Ceil(math.Sqrt(float64(remaining))))
	rows := int(math.Ceil(float64(remaining) / float64(cols)))
	if remaining == 2 {
		cols, rows = 2, 1
	}

	for _, p := range gridPoints(b, cols, rows, remaining) {
		if p.DistanceTo(b.center) >= layoutMinSpacing {
			positions = append(positions, p)
			continue
		}
		for _, off := range nudgeOffsets {
			q := model.Point{X: b.center.X + off.X, Y: b.center.Y + off.Y}
			if b.contains(q) && !nearAny(q, positions, layoutMinSpacing) {
				positions = append(positions, q)
				break
			}
		}
	}
	return positions
}

func perimeterPoints(b layoutBounds) []model.Point {
	return []model.Point{
		{X: b.minX + perimeterInset, Y: b.minY + perimeterInset},
		{X: b.maxX - perimeterInset, Y: b.minY + perimeterInset},
		{X: b.minX + perimeterInset, Y: b.maxY - perimeterInset},
		{X: b.maxX - perimeterInset, Y: b.maxY - perimeterInset},
		{X: b.center.X, Y: b.minY + perimeterInset},
		{X: b.center.X, Y: b.maxY - perimeterInset},
		{X: b.minX + perimeterInset, Y: b.center.Y},
		{X: b.maxX - perimeterInset, Y: b.center.Y},
	}
}

// fillShortfall tops positions up to count: first from the perimeter list
// honouring the spacing floor, then the centre, then by cycling the
// perimeter list regardless of spacing.
func fillShortfall(b layoutBounds, positions []model.Point, count int) []model.Point {
	if len(positions) >= count {
		return positions
	}
	perimeter := perimeterPoints(b)
	for _, p := range perimeter {
		if len(positions) >= count {
			return positions
		}
		if !nearAny(p, positions, layoutMinSpacing) {
			positions = append(positions, p)
		}
	}
	if len(positions) < count && !containsPoint(positions, b.center) {
		positions = append(positions, b.center)
	}
	for i := 0; len(positions) < count; i++ {
		positions = append(positions, perimeter[i%len(perimeter)])
	}
	return positions
}

func nearAny(p model.Point, pts []model.Point, d float64) bool {
	for _, q := range pts {
		if p.DistanceTo(q) < d {
			return true
		}
	}
	return false
}

func containsPoint(pts []model.Point, p model.Point) bool {
	for _, q := range pts {
		if q == p {
			return true
		}
	}
	return false
}
