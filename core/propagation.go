package core

import (
	"math"

	"github.com/signalsfoundry/coverage-planner/model"
)

// PropagationModel predicts received power from one antenna at a point.
// Implementations must be safe for concurrent use.
type PropagationModel interface {
	// RSSI returns the received signal strength in dBm at rx.
	RSSI(a model.Antenna, rx model.Point, walls []model.Wall, elements model.ElementCatalog) float64
}

// PropagationModelFunc adapts a plain function to PropagationModel.
type PropagationModelFunc func(a model.Antenna, rx model.Point, walls []model.Wall, elements model.ElementCatalog) float64

// RSSI implements PropagationModel.
func (f PropagationModelFunc) RSSI(a model.Antenna, rx model.Point, walls []model.Wall, elements model.ElementCatalog) float64 {
	return f(a, rx, walls, elements)
}

const (
	receiverHeight      = 1.5
	parabolicBeamwidth  = 60.0 * math.Pi / 180.0
	maxFrontToBackDB    = 25.0
	minVerticalAngleDeg = 0.1
)

// P25DModel is a 2.5D log-distance model: free-space reference loss at
// 1 m, a distance term N*log10(d), wall attenuation for every obstacle
// crossed, optional ground attenuation and a fixed vertical factor.
type P25DModel struct {
	FrequencyMHz    float64
	N               float64
	VerticalFactor  float64
	ShapeFactor     float64
	ReferenceOffset float64
	MinDistance     float64
	Ground          model.GroundPlane
}

// NewP25DModel returns the model with its usual defaults.
func NewP25DModel() *P25DModel {
	return &P25DModel{
		FrequencyMHz:   2400,
		N:              10,
		VerticalFactor: 2.0,
		ShapeFactor:    3.0,
		MinDistance:    0.5,
		Ground:         model.GroundPlane{Enabled: true, Attenuation: 3.0},
	}
}

func log10(x float64) float64 {
	return math.Log10(math.Max(x, 1e-10))
}

// FSPL returns free-space path loss in dB for freqMHz at d metres.
func FSPL(freqMHz, d float64) float64 {
	return 20*log10(freqMHz) + 20*log10(d) - 27.55
}

// GroundLoss is the ground-plane term for a link of length d.
func (m *P25DModel) GroundLoss(d float64) float64 {
	if !m.Ground.Enabled {
		return 0
	}
	att := m.Ground.Attenuation
	if att == 0 {
		att = 3.0
	}
	return att * (0.7 + 0.3*math.Min(1, d/10))
}

// WallsLoss sums the attenuation of every wall the tx-rx segment crosses.
// Each wall contributes at most once.
func (m *P25DModel) WallsLoss(tx, rx model.Point, walls []model.Wall, elements model.ElementCatalog) float64 {
	total := 0.0
	for _, w := range walls {
		for _, seg := range w.Segments() {
			if segmentsIntersect(tx, rx, seg[0], seg[1]) {
				total += elements.Loss(w)
				break
			}
		}
	}
	return total
}

// PathLoss returns the total loss between tx and rx in dB.
func (m *P25DModel) PathLoss(tx, rx model.Point, walls []model.Wall, elements model.ElementCatalog) float64 {
	d := math.Max(tx.DistanceTo(rx), m.MinDistance)
	base := FSPL(m.FrequencyMHz, 1.0) + m.N*log10(d)
	return base + m.WallsLoss(tx, rx, walls, elements) + m.GroundLoss(d) + m.VerticalFactor
}

// AngleGain returns the antenna gain toward rx in dBi, taking azimuth,
// tilt and the radiation pattern into account.
func (m *P25DModel) AngleGain(a model.Antenna, rx model.Point) float64 {
	if a.X == rx.X && a.Y == rx.Y {
		return a.GainDBi
	}

	angleToPoint := math.Atan2(rx.Y-a.Y, rx.X-a.X)
	// Azimuth is compass-style (0 = north, clockwise).
	apAngle := (-a.Azimuth - 90) * math.Pi / 180
	diff := angleToPoint - apAngle

	p := a.Pattern
	if p != nil && len(p.Horizontal) > 0 {
		diffDeg := normalizeDegrees(diff * 180 / math.Pi)
		elevation := 0.0
		horizontal := math.Hypot(rx.X-a.X, rx.Y-a.Y)
		if horizontal > 0.1 && len(p.Vertical) > 0 {
			fromHorizontal := math.Atan2(a.Height()-receiverHeight, horizontal)
			elevation = (fromHorizontal - a.Tilt*math.Pi/180) * 180 / math.Pi
			elevation = math.Max(-90, math.Min(90, elevation))
		}
		peak := p.PeakGain
		if peak == 0 {
			peak = a.GainDBi
		}
		return peak + patternGain(p, diffDeg, elevation)*m.ShapeFactor
	}

	// Parabolic main lobe, rotated to face away from the azimuth marker
	// when no pattern is assigned.
	diff += math.Pi
	for diff <= -math.Pi {
		diff += 2 * math.Pi
	}
	for diff > math.Pi {
		diff -= 2 * math.Pi
	}
	att := 12 * math.Pow(diff/parabolicBeamwidth, 2)
	return a.GainDBi - math.Min(att, maxFrontToBackDB)
}

// RSSI implements PropagationModel.
func (m *P25DModel) RSSI(a model.Antenna, rx model.Point, walls []model.Wall, elements model.ElementCatalog) float64 {
	loss := m.PathLoss(a.Position(), rx, walls, elements)
	return a.TxDBm + m.AngleGain(a, rx) - loss - m.ReferenceOffset
}

func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// patternGain returns the relative pattern gain (dB, <= 0 for normalised
// patterns) in the given direction. The vertical cut is folded in by a
// geometric mean once the elevation is significant.
func patternGain(p *model.AntennaPattern, horizontalDeg, elevationDeg float64) float64 {
	h := interpolateGain(p.Horizontal, normalizeDegrees(horizontalDeg))
	if len(p.Vertical) == 0 || math.Abs(elevationDeg) <= minVerticalAngleDeg {
		return h
	}
	// Positive elevation means the receiver sits below boresight, which the
	// vertical cut stores toward 270 degrees.
	v := interpolateGain(p.Vertical, normalizeDegrees(-elevationDeg))
	hLin := math.Max(1e-10, math.Pow(10, h/10))
	vLin := math.Max(1e-10, math.Pow(10, v/10))
	return 10 * log10(math.Sqrt(hLin*vLin))
}

// interpolateGain linearly interpolates a pattern cut sorted by angle,
// wrapping between the last and first samples.
func interpolateGain(data []model.PatternSample, angle float64) float64 {
	switch len(data) {
	case 0:
		return 0
	case 1:
		return data[0].Gain
	}

	upper := -1
	for i, s := range data {
		if s.Angle > angle {
			upper = i
			break
		}
	}

	var p1, p2 model.PatternSample
	if upper <= 0 {
		p1 = data[len(data)-1]
		p2 = model.PatternSample{Angle: data[0].Angle + 360, Gain: data[0].Gain}
		if upper == 0 && angle < p1.Angle {
			angle += 360
		}
	} else {
		p1 = data[upper-1]
		p2 = data[upper]
	}

	span := p2.Angle - p1.Angle
	if math.Abs(span) < 1e-9 {
		return p1.Gain
	}
	t := (angle - p1.Angle) / span
	return p1.Gain + t*(p2.Gain-p1.Gain)
}
