package heatmap

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/signalsfoundry/coverage-planner/model"
)

const (
	numericAlpha     = 220
	categoricalAlpha = 230
	goldenAngle      = 137.508

	transparentBelow = 0.01
	zoneWeakMid      = 0.33
	zoneMidStrong    = 0.67
)

var noServerColor = color.NRGBA{R: 200, G: 200, B: 200, A: categoricalAlpha}

// Palette is the three-stop gradient for numeric views.
type Palette struct {
	Weak, Mid, Strong colorful.Color
}

// DefaultPalette is red, yellow, green.
func DefaultPalette() Palette {
	p, _ := ParsePalette("#ff0000", "#ffff00", "#00ff00")
	return p
}

// ParsePalette builds a palette from hex colours.
func ParsePalette(weak, mid, strong string) (Palette, error) {
	var p Palette
	var err error
	if p.Weak, err = colorful.Hex(weak); err != nil {
		return Palette{}, fmt.Errorf("weak colour: %w", err)
	}
	if p.Mid, err = colorful.Hex(mid); err != nil {
		return Palette{}, fmt.Errorf("mid colour: %w", err)
	}
	if p.Strong, err = colorful.Hex(strong); err != nil {
		return Palette{}, fmt.Errorf("strong colour: %w", err)
	}
	return p, nil
}

// ColorMapper turns grid values into colours for one view.
type ColorMapper struct {
	View     model.ViewMode
	Legend   model.Legend
	Palette  Palette
	Contours bool
}

// NewColorMapper uses the view's default legend and palette.
func NewColorMapper(v model.ViewMode) ColorMapper {
	return ColorMapper{View: v, Legend: model.DefaultLegend(v), Palette: DefaultPalette()}
}

// Color maps one cell value.
func (m ColorMapper) Color(v float64) color.NRGBA {
	switch m.View {
	case model.ViewBestServer:
		if math.IsNaN(v) || v < 0 {
			return noServerColor
		}
		return ServerColor(int(v))
	case model.ViewServingChannel:
		if math.IsNaN(v) || v <= 0 {
			return noServerColor
		}
		return ChannelColor(int(v))
	case model.ViewCCI:
		if math.IsNaN(v) {
			return color.NRGBA{}
		}
		return CountColor(int(math.Round(v)))
	}
	return m.numeric(v)
}

func (m ColorMapper) numeric(v float64) color.NRGBA {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return color.NRGBA{}
	}
	span := m.Legend.Max - m.Legend.Min
	if span == 0 {
		return color.NRGBA{}
	}
	t := math.Max(0, math.Min(1, (v-m.Legend.Min)/span))
	if t <= transparentBelow {
		return color.NRGBA{}
	}

	var c colorful.Color
	switch {
	case m.Contours && t < zoneWeakMid:
		c = colorful.Color{R: 1}
	case m.Contours && t < zoneMidStrong:
		c = colorful.Color{R: 1, G: 1}
	case m.Contours:
		c = colorful.Color{G: 1}
	case t <= 0.5:
		c = m.Palette.Weak.BlendRgb(m.Palette.Mid, t/0.5)
	default:
		c = m.Palette.Mid.BlendRgb(m.Palette.Strong, (t-0.5)/0.5)
	}
	return nrgba(c, numericAlpha)
}

// Image renders the grid into an image, one pixel per cell.
func (m ColorMapper) Image(g *Grid) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Cols, g.Rows))
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			img.SetNRGBA(c, r, m.Color(g.At(c, r)))
		}
	}
	return img
}

// ServerColor is the best-server colour of the antenna at index i.
func ServerColor(i int) color.NRGBA {
	return nrgba(colorful.Hsl(math.Mod(float64(i)*goldenAngle, 360), 0.75, 0.55), categoricalAlpha)
}

// CountColor colours an interferer count.
func CountColor(n int) color.NRGBA {
	return ServerColor(max(0, n))
}

// ChannelColor is a stable colour per channel number.
func ChannelColor(ch int) color.NRGBA {
	hue := float64(hashString(fmt.Sprintf("ch_color_%d", ch))%3600) / 10
	sat := 0.7 + 0.2*unit(hashString(fmt.Sprintf("ch_sat_%d", ch)))
	light := 0.5 + 0.1*unit(hashString(fmt.Sprintf("ch_light_%d", ch)))
	return nrgba(colorful.Hsl(hue, sat, light), categoricalAlpha)
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func unit(h uint32) float64 {
	return float64(h%1000) / 1000
}

func nrgba(c colorful.Color, alpha uint8) color.NRGBA {
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}
}
