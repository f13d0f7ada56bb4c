package heatmap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/signalsfoundry/coverage-planner/model"
)

var errEmptyGrid = errors.New("grid has no finite cells")

// gridXYZ adapts a Grid to plotter.GridXYZ.
type gridXYZ struct{ g *Grid }

func (a gridXYZ) Dims() (c, r int)   { return a.g.Cols, a.g.Rows }
func (a gridXYZ) Z(c, r int) float64 { return a.g.At(c, r) }
func (a gridXYZ) X(c int) float64    { return a.g.CellCenter(c, 0).X }
func (a gridXYZ) Y(r int) float64    { return a.g.CellCenter(0, r).Y }

// scaleFor returns the colour range for a frame. Categorical views span
// their data; numeric views use the legend.
func scaleFor(g *Grid, view model.ViewMode, legend model.Legend) (lo, hi float64, err error) {
	if !view.Categorical() && legend.Max > legend.Min {
		return legend.Min, legend.Max, nil
	}
	s := Summarize(g, math.Inf(1))
	if s.Finite == 0 {
		return 0, 0, errEmptyGrid
	}
	if s.Max == s.Min {
		return s.Min - 0.5, s.Max + 0.5, nil
	}
	return s.Min, s.Max, nil
}

// WritePNG renders the frame as a PNG heat map with metre axes.
func WritePNG(w io.Writer, f *Frame) error {
	if f == nil || f.Grid == nil {
		return fmt.Errorf("write png: %w", errEmptyGrid)
	}
	lo, hi, err := scaleFor(f.Grid, f.View, f.Legend)
	if err != nil {
		return fmt.Errorf("write png: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Coverage (%s)", f.View)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.X.Min, p.X.Max = 0, f.Grid.Width
	p.Y.Min, p.Y.Max = 0, f.Grid.Height

	hm := plotter.NewHeatMap(gridXYZ{f.Grid}, palette.Heat(64, 1))
	hm.Min, hm.Max = lo, hi
	p.Add(hm)

	width := 10 * vg.Inch
	height := vg.Length(float64(width) * f.Grid.Height / f.Grid.Width)
	height = max(height, 3*vg.Inch)
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// WriteHTML renders the frame as an interactive scatter chart with a
// continuous visual map.
func WriteHTML(w io.Writer, f *Frame) error {
	if f == nil || f.Grid == nil {
		return fmt.Errorf("write html: %w", errEmptyGrid)
	}
	lo, hi, err := scaleFor(f.Grid, f.View, f.Legend)
	if err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	g := f.Grid

	data := make([]opts.ScatterData, 0, len(g.Data))
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			v := g.At(c, r)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			p := g.CellCenter(c, r)
			data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, v}})
		}
	}

	dx, _ := g.CellSize()
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Coverage heatmap", Width: "1000px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Coverage", Subtitle: fmt.Sprintf("view=%s cells=%dx%d", f.View, g.Cols, g.Rows)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: g.Width, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: g.Height, Name: "Y (m)", NameLocation: "middle", NameGap: 30, Inverse: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#ff0000", "#ffff00", "#00ff00"}},
		}),
	)
	scatter.AddSeries(string(f.View), data, charts.WithScatterChartOpts(opts.ScatterChart{
		Symbol:     "rect",
		SymbolSize: max(2, int(math.Round(dx*20))),
	}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}
