package core

import "github.com/signalsfoundry/coverage-planner/model"

// DefaultSampleSpacing is the lattice pitch used for coverage scoring.
const DefaultSampleSpacing = 1.0

// Clearances used when sampling the floor for evaluation points.
const (
	sampleMinObstacle = 0.5
	sampleMinAntenna  = 0.0
)

// SampleFreeArea enumerates the lattice over [0,W]x[0,H] at spacing and
// keeps the points that pass IsFree(p, 0.5, 0). Antennas never block
// sampling. A non-positive spacing falls back to DefaultSampleSpacing.
func (pc PlanningContext) SampleFreeArea(spacing float64) []model.Point {
	if spacing <= 0 {
		spacing = DefaultSampleSpacing
	}
	nx := latticeCount(pc.Floor.Width, spacing)
	ny := latticeCount(pc.Floor.Height, spacing)

	points := make([]model.Point, 0, nx*ny)
	for i := 0; i < nx; i++ {
		x := float64(i) * spacing
		for j := 0; j < ny; j++ {
			p := model.Point{X: x, Y: float64(j) * spacing}
			if pc.IsFree(p, sampleMinObstacle, sampleMinAntenna) {
				points = append(points, p)
			}
		}
	}
	return points
}
