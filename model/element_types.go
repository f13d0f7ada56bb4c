package model

// ElementSpec carries the radio and geometric properties of an obstacle class.
type ElementSpec struct {
	Name      string  `json:"name"`
	Loss      float64 `json:"loss"`
	Thickness float64 `json:"thickness"`
}

// ElementCatalog maps element types (door, window, ...) and wall sub-types
// (drywall, brick, ...) to their properties.
type ElementCatalog struct {
	Elements map[ElementType]ElementSpec `json:"elements"`
	Walls    map[string]ElementSpec      `json:"walls"`
}

// Default thicknesses used when neither the wall nor the catalog says otherwise.
const (
	DefaultWallThickness    = 0.15
	DefaultOpeningThickness = 0.05
)

// DefaultElementTypes returns the built-in catalog.
func DefaultElementTypes() ElementCatalog {
	return ElementCatalog{
		Elements: map[ElementType]ElementSpec{
			ElementDoor:       {Name: "Door", Loss: 10.3, Thickness: 0.05},
			ElementDoubleDoor: {Name: "Double Door", Loss: 10.3, Thickness: 0.05},
			ElementWindow:     {Name: "Window", Loss: 4.44, Thickness: 0.05},
		},
		Walls: map[string]ElementSpec{
			"drywall":  {Name: "Drywall", Loss: 3, Thickness: 0.15},
			"brick":    {Name: "Brick", Loss: 8, Thickness: 0.2},
			"concrete": {Name: "Concrete", Loss: 14.22, Thickness: 0.25},
			"metal":    {Name: "Metal", Loss: 20, Thickness: 0.1},
			"glass":    {Name: "Glass", Loss: 4.44, Thickness: 0.05},
			"wood":     {Name: "Wood", Loss: 10.3, Thickness: 0.1},
			"custom":   {Name: "Custom", Loss: 15, Thickness: 0.15},
		},
	}
}

// Thickness resolves the effective thickness of w. An explicit wall value
// wins, then a wall sub-type override, then the per-element default.
func (c ElementCatalog) Thickness(w Wall) float64 {
	if w.Thickness > 0 {
		return w.Thickness
	}
	switch w.ElementType {
	case ElementDoor, ElementDoubleDoor, ElementWindow:
		return DefaultOpeningThickness
	}
	if kind, ok := c.Walls[w.Type]; ok && kind.Thickness > 0 {
		return kind.Thickness
	}
	return DefaultWallThickness
}

// Loss resolves the attenuation applied when a path crosses w.
func (c ElementCatalog) Loss(w Wall) float64 {
	if w.Loss != 0 {
		return w.Loss
	}
	if w.ElementType != "" && w.ElementType != ElementWall {
		if kind, ok := c.Elements[w.ElementType]; ok {
			return kind.Loss
		}
	}
	if kind, ok := c.Walls[w.Type]; ok {
		return kind.Loss
	}
	return 0
}
