package model

import "fmt"

// ViewMode selects the metric a heatmap shows.
type ViewMode string

const (
	ViewRSSI           ViewMode = "rssi"
	ViewSNR            ViewMode = "snr"
	ViewSINR           ViewMode = "sinr"
	ViewCCI            ViewMode = "cci"
	ViewThroughput     ViewMode = "thr"
	ViewBestServer     ViewMode = "best"
	ViewServingChannel ViewMode = "servch"
)

// ParseViewMode validates a view mode name.
func ParseViewMode(s string) (ViewMode, error) {
	switch v := ViewMode(s); v {
	case ViewRSSI, ViewSNR, ViewSINR, ViewCCI, ViewThroughput, ViewBestServer, ViewServingChannel:
		return v, nil
	case "":
		return ViewRSSI, nil
	}
	return "", fmt.Errorf("unknown view mode %q", s)
}

// Categorical reports whether the view yields labels (antenna index,
// channel, interferer count) rather than a continuous quantity.
func (v ViewMode) Categorical() bool {
	return v == ViewBestServer || v == ViewServingChannel || v == ViewCCI
}

// Legend bounds the numeric range mapped onto the colour scale.
type Legend struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultLegend returns the legend bounds for a view.
func DefaultLegend(v ViewMode) Legend {
	switch v {
	case ViewSNR:
		return Legend{Min: 0, Max: 40}
	case ViewSINR, ViewCCI:
		return Legend{Min: -10, Max: 40}
	case ViewThroughput:
		return Legend{Min: 0, Max: 80}
	default:
		return Legend{Min: -100, Max: -30}
	}
}
