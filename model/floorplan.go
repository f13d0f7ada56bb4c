package model

import "math"

// Point is a world-space position in metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance between two points.
func (p Point) DistanceTo(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// ElementType identifies what kind of obstacle a wall entry represents.
type ElementType string

const (
	ElementWall       ElementType = "wall"
	ElementDoor       ElementType = "door"
	ElementDoubleDoor ElementType = "doubleDoor"
	ElementWindow     ElementType = "window"
)

// Wall is an obstacle on the floor plan. It is either a polyline (Points)
// or a single segment (P1, P2); Points wins when it has two or more entries.
type Wall struct {
	ID          string      `json:"id"`
	ElementType ElementType `json:"elementType,omitempty"`
	// Type is the wall sub-type (drywall, brick, concrete, ...).
	Type string `json:"type,omitempty"`

	Points []Point `json:"points,omitempty"`
	P1     *Point  `json:"p1,omitempty"`
	P2     *Point  `json:"p2,omitempty"`

	// Thickness in metres; 0 means "derive from element type".
	Thickness float64 `json:"thickness,omitempty"`
	// Loss in dB applied when a signal path crosses the wall; 0 means
	// "derive from the element-type catalog".
	Loss float64 `json:"loss,omitempty"`
}

// Segments decomposes the wall into consecutive point pairs.
func (w Wall) Segments() [][2]Point {
	if len(w.Points) >= 2 {
		segs := make([][2]Point, 0, len(w.Points)-1)
		for i := 0; i+1 < len(w.Points); i++ {
			segs = append(segs, [2]Point{w.Points[i], w.Points[i+1]})
		}
		return segs
	}
	if w.P1 != nil && w.P2 != nil {
		return [][2]Point{{*w.P1, *w.P2}}
	}
	return nil
}

// Floor describes the rectangular planning area [0,Width]x[0,Height].
type Floor struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the floor has a positive area.
func (f Floor) Valid() bool {
	return f.Width > 0 && f.Height > 0 &&
		!math.IsInf(f.Width, 0) && !math.IsInf(f.Height, 0)
}

// Center returns the floor midpoint.
func (f Floor) Center() Point {
	return Point{X: f.Width / 2, Y: f.Height / 2}
}

// Diagonal returns the length of the floor diagonal.
func (f Floor) Diagonal() float64 {
	return math.Hypot(f.Width, f.Height)
}

// GroundPlane configures the distance-dependent ground attenuation term.
type GroundPlane struct {
	Enabled     bool    `json:"enabled"`
	Attenuation float64 `json:"attenuation"`
}

// FloorPlan bundles everything loaded from a floor-plan document.
type FloorPlan struct {
	Floor    Floor       `json:"floor"`
	Walls    []Wall      `json:"walls"`
	Antennas []Antenna   `json:"antennas"`
	Ground   GroundPlane `json:"groundPlane"`
}
