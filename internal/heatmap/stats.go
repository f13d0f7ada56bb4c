package heatmap

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the finite cells of a grid.
type Summary struct {
	Cells  int     `json:"cells"`
	Finite int     `json:"finite"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	// Compliance is the percentage of finite cells at or above the
	// threshold passed to Summarize.
	Compliance float64 `json:"compliance"`
}

// Summarize computes statistics over the finite cells of g.
func Summarize(g *Grid, threshold float64) Summary {
	if g == nil {
		return Summary{}
	}
	vals := g.Finite()
	s := Summary{Cells: len(g.Data), Finite: len(vals)}
	if len(vals) == 0 {
		s.Min, s.Max, s.Mean, s.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	s.Mean, s.StdDev = stat.PopMeanStdDev(vals, nil)

	above := 0
	for _, v := range vals {
		if v >= threshold {
			above++
		}
	}
	s.Compliance = 100 * float64(above) / float64(len(vals))
	return s
}

// Meets reports whether the compliance percentage reaches target.
func (s Summary) Meets(target float64) bool {
	return s.Finite > 0 && s.Compliance >= target
}
