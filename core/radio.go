package core

import (
	"math"

	"github.com/signalsfoundry/coverage-planner/model"
)

const (
	// NoServerRSSI is reported when no enabled antenna serves a point.
	NoServerRSSI = -1e9
	// NoInterferenceDBm is reported when no co-channel interferer exists.
	NoInterferenceDBm = -200.0
	// InterfererThresholdDBm is the level above which a co-channel antenna
	// counts as an interferer.
	InterfererThresholdDBm = -85.0

	interferenceFloorDBm = -150.0
)

// throughputSteps maps a minimum SINR (dB) to a PHY rate (Mbps).
var throughputSteps = []struct {
	minSINR float64
	rate    float64
}{
	{-5, 0},
	{0, 6.5},
	{5, 13},
	{10, 26},
	{15, 39},
	{20, 58.5},
	{25, 72.2},
}

// DBmToMilliwatts converts a power level from dBm to mW.
func DBmToMilliwatts(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

// MilliwattsToDBm converts mW to dBm, flooring the input at 1e-12 mW.
func MilliwattsToDBm(mw float64) float64 {
	return 10 * math.Log10(math.Max(mw, 1e-12))
}

// Throughput returns the rate supported at the given SINR.
func Throughput(sinr float64) float64 {
	rate := 0.0
	for _, s := range throughputSteps {
		if sinr >= s.minSINR {
			rate = s.rate
		}
	}
	return rate
}

// Server identifies the antenna serving a point.
type Server struct {
	// Index into PlanningContext.Antennas; -1 when nothing serves.
	Index   int
	RSSIDBm float64
}

// rssiFrom predicts the level from antenna a at p.
func (pc PlanningContext) rssiFrom(a model.Antenna, p model.Point) float64 {
	return pc.Model.RSSI(a, p, pc.Walls, pc.Elements)
}

// BestServer returns the strongest enabled antenna at p.
func (pc PlanningContext) BestServer(p model.Point) Server {
	best := Server{Index: -1, RSSIDBm: NoServerRSSI}
	for i, a := range pc.Antennas {
		if !a.Enabled {
			continue
		}
		if r := pc.rssiFrom(a, p); r > best.RSSIDBm {
			best = Server{Index: i, RSSIDBm: r}
		}
	}
	return best
}

// ServerAt applies the selection rules on top of BestServer: a highlighted
// enabled selection wins, then an enabled viewed antenna.
func (pc PlanningContext) ServerAt(p model.Point) Server {
	if idx := pc.pinnedAntenna(); idx >= 0 {
		return Server{Index: idx, RSSIDBm: pc.rssiFrom(pc.Antennas[idx], p)}
	}
	return pc.BestServer(p)
}

func (pc PlanningContext) pinnedAntenna() int {
	find := func(id string) int {
		if id == "" {
			return -1
		}
		for i, a := range pc.Antennas {
			if a.ID == id {
				if !a.Enabled {
					return -1
				}
				return i
			}
		}
		return -1
	}
	if pc.Select.Highlight {
		if idx := find(pc.Select.SelectedID); idx >= 0 {
			return idx
		}
	}
	return find(pc.Select.ViewedID)
}

// CCI returns the co-channel interference power in dBm at p, summed over
// enabled antennas other than the server that share its channel.
func (pc PlanningContext) CCI(p model.Point, serving int) float64 {
	if serving < 0 || serving >= len(pc.Antennas) {
		return NoInterferenceDBm
	}
	ch := pc.Antennas[serving].Channel
	sum := 0.0
	for i, a := range pc.Antennas {
		if i == serving || !a.Enabled || a.Channel != ch {
			continue
		}
		sum += DBmToMilliwatts(pc.rssiFrom(a, p))
	}
	if sum <= 0 {
		return NoInterferenceDBm
	}
	return MilliwattsToDBm(sum)
}

// InterfererCount counts enabled co-channel antennas, other than the
// server, received above InterfererThresholdDBm at p.
func (pc PlanningContext) InterfererCount(p model.Point, serving int) int {
	if serving < 0 || serving >= len(pc.Antennas) {
		return 0
	}
	ch := pc.Antennas[serving].Channel
	n := 0
	for i, a := range pc.Antennas {
		if i == serving || !a.Enabled || a.Channel != ch {
			continue
		}
		if pc.rssiFrom(a, p) > InterfererThresholdDBm {
			n++
		}
	}
	return n
}

// SNR returns the signal-to-noise ratio in dB.
func (pc PlanningContext) SNR(rssi float64) float64 {
	return rssi - pc.NoiseDBm
}

// SINR returns the signal-to-interference-plus-noise ratio in dB.
// Interference below -150 dBm is ignored.
func (pc PlanningContext) SINR(rssi, cci float64) float64 {
	i := 0.0
	if cci >= interferenceFloorDBm {
		i = DBmToMilliwatts(cci)
	}
	n := DBmToMilliwatts(pc.NoiseDBm)
	return 10 * math.Log10(DBmToMilliwatts(rssi)/math.Max(i+n, 1e-12))
}

// ValueAt evaluates the scalar signal value for the context's view at p.
// Categorical views (best server, serving channel) score by RSSI. Points
// no enabled antenna serves evaluate to NaN.
func (pc PlanningContext) ValueAt(p model.Point) float64 {
	s := pc.ServerAt(p)
	if s.Index < 0 {
		return math.NaN()
	}
	switch pc.View {
	case model.ViewSNR:
		return pc.SNR(s.RSSIDBm)
	case model.ViewSINR:
		return pc.SINR(s.RSSIDBm, pc.CCI(p, s.Index))
	case model.ViewCCI:
		return float64(pc.InterfererCount(p, s.Index))
	case model.ViewThroughput:
		return Throughput(pc.SINR(s.RSSIDBm, pc.CCI(p, s.Index)))
	default:
		return s.RSSIDBm
	}
}

// CellValue evaluates the value a heatmap cell shows for the context's
// view. Best-server cells hold the serving antenna index (NaN when none)
// and serving-channel cells the serving channel (0 when none).
func (pc PlanningContext) CellValue(p model.Point) float64 {
	switch pc.View {
	case model.ViewBestServer:
		s := pc.ServerAt(p)
		if s.Index < 0 {
			return math.NaN()
		}
		return float64(s.Index)
	case model.ViewServingChannel:
		s := pc.ServerAt(p)
		if s.Index < 0 {
			return 0
		}
		return float64(pc.Antennas[s.Index].Channel)
	default:
		return pc.ValueAt(p)
	}
}
