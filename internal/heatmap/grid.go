package heatmap

import (
	"math"

	"github.com/signalsfoundry/coverage-planner/model"
)

const (
	minCols = 20
	minRows = 14

	// DefaultResolution is the base cell pitch in metres.
	DefaultResolution = 0.2
	// DefaultHighResMultiplier scales the base lattice for the refined pass.
	DefaultHighResMultiplier = 1.5
)

// Grid is a row-major metric raster over the floor. Cells without a value
// hold NaN. Colour mapping is a separate step (see ColorMapper).
type Grid struct {
	Cols, Rows    int
	Width, Height float64
	Data          []float64
}

// NewGrid allocates a grid with every cell set to NaN.
func NewGrid(cols, rows int, width, height float64) *Grid {
	data := make([]float64, cols*rows)
	for i := range data {
		data[i] = math.NaN()
	}
	return &Grid{Cols: cols, Rows: rows, Width: width, Height: height, Data: data}
}

// Dimensions returns the lattice size for a pass: the base size derived
// from the resolution is scaled by mult and floored at 20x14.
func Dimensions(f model.Floor, resolution, mult float64) (cols, rows int) {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	if mult <= 0 {
		mult = 1
	}
	baseCols := max(minCols, int(math.Floor(f.Width/resolution)))
	baseRows := max(minRows, int(math.Floor(f.Height/resolution)))
	cols = max(minCols, int(math.Floor(float64(baseCols)*mult)))
	rows = max(minRows, int(math.Floor(float64(baseRows)*mult)))
	return cols, rows
}

// CellSize returns the cell pitch.
func (g *Grid) CellSize() (dx, dy float64) {
	return g.Width / float64(g.Cols), g.Height / float64(g.Rows)
}

// CellCenter returns the world position sampled for cell (c, r).
func (g *Grid) CellCenter(c, r int) model.Point {
	dx, dy := g.CellSize()
	return model.Point{X: (float64(c) + 0.5) * dx, Y: (float64(r) + 0.5) * dy}
}

func (g *Grid) At(c, r int) float64 { return g.Data[r*g.Cols+c] }

func (g *Grid) Set(c, r int, v float64) { g.Data[r*g.Cols+c] = v }

// Finite returns the finite cell values in row-major order.
func (g *Grid) Finite() []float64 {
	out := make([]float64, 0, len(g.Data))
	for _, v := range g.Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
