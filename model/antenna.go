package model

// PatternSample is one (angle, gain) entry of a radiation pattern cut.
// Angles are degrees in [0,360); gains are dB relative to peak (<= 0).
type PatternSample struct {
	Angle float64 `json:"angle"`
	Gain  float64 `json:"gain"`
}

// AntennaPattern is a parsed radiation pattern with horizontal and
// optional vertical cuts sorted by ascending angle.
type AntennaPattern struct {
	Name       string          `json:"name"`
	PeakGain   float64         `json:"peakGain"`
	Horizontal []PatternSample `json:"horizontal"`
	Vertical   []PatternSample `json:"vertical,omitempty"`
}

// Antenna is a single access point placed on the floor.
type Antenna struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	// Z is the mounting height in metres; 0 means the default 2.5 m.
	Z float64 `json:"z,omitempty"`

	TxDBm   float64 `json:"tx"`
	GainDBi float64 `json:"gt"`
	Channel int     `json:"ch"`

	// Azimuth in degrees, 0 = north, clockwise.
	Azimuth float64 `json:"azimuth"`
	Tilt    float64 `json:"tilt"`
	Enabled bool    `json:"enabled"`

	Pattern *AntennaPattern `json:"antennaPattern,omitempty"`
}

// Position returns the antenna's planar position.
func (a Antenna) Position() Point {
	return Point{X: a.X, Y: a.Y}
}

// Height returns the mounting height, applying the default when unset.
func (a Antenna) Height() float64 {
	if a.Z > 0 {
		return a.Z
	}
	return 2.5
}

// AntennaDefaults holds the parameters used when synthesising antennas
// (optimizer hypotheses, auto-placement results).
type AntennaDefaults struct {
	TxDBm   float64
	GainDBi float64
	Channel int
	// Height is the mounting height in metres; 0 leaves Z unset.
	Height  float64
	Pattern *AntennaPattern
}

// DefaultAntennaParameters mirrors the values new antennas are created with.
func DefaultAntennaParameters() AntennaDefaults {
	return AntennaDefaults{TxDBm: 15, GainDBi: 5, Channel: 1, Height: 2.5}
}

// NewAntenna synthesises an enabled antenna at p.
func (d AntennaDefaults) NewAntenna(id string, p Point) Antenna {
	return Antenna{
		ID:      id,
		X:       p.X,
		Y:       p.Y,
		Z:       d.Height,
		TxDBm:   d.TxDBm,
		GainDBi: d.GainDBi,
		Channel: d.Channel,
		Enabled: true,
		Pattern: d.Pattern,
	}
}
