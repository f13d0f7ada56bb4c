// core/floorplan_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/signalsfoundry/coverage-planner/model"
)

// internal JSON shapes, unexported so the document can evolve freely.
type floorPlanJSON struct {
	Width    float64            `json:"width"`
	Height   float64            `json:"height"`
	Walls    []model.Wall       `json:"walls"`
	WallsWKT []wktWallJSON      `json:"wallsWKT"`
	Antennas []antennaJSON      `json:"antennas"`
	Ground   *model.GroundPlane `json:"groundPlane"`
}

type antennaJSON struct {
	model.Antenna
	Enabled *bool `json:"enabled"` // optional; defaults to true
}

type wktWallJSON struct {
	WKT         string            `json:"wkt"`
	ElementType model.ElementType `json:"elementType"`
	Type        string            `json:"type"`
	Thickness   float64           `json:"thickness"`
	Loss        float64           `json:"loss"`
}

// LoadFloorPlan decodes a floor-plan document. Walls may be given as
// explicit point lists or as WKT geometries; antennas without an ID get
// a generated one. Only structural problems are reported as errors.
func LoadFloorPlan(r io.Reader) (*model.FloorPlan, error) {
	var payload floorPlanJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadFloorPlan: decode failed: %w", err)
	}

	plan := &model.FloorPlan{
		Floor:  model.Floor{Width: payload.Width, Height: payload.Height},
		Walls:  make([]model.Wall, 0, len(payload.Walls)),
		Ground: model.GroundPlane{Enabled: true, Attenuation: 3.0},
	}
	if !plan.Floor.Valid() {
		return nil, fmt.Errorf("LoadFloorPlan: %w: %gx%g", ErrInvalidFloor, payload.Width, payload.Height)
	}
	if payload.Ground != nil {
		plan.Ground = *payload.Ground
	}

	for i, w := range payload.Walls {
		if len(w.Segments()) == 0 {
			return nil, fmt.Errorf("LoadFloorPlan: wall %d has no geometry", i)
		}
		if w.ID == "" {
			w.ID = fmt.Sprintf("wall-%d", i+1)
		}
		plan.Walls = append(plan.Walls, w)
	}

	for i, src := range payload.WallsWKT {
		tmpl := model.Wall{
			ElementType: src.ElementType,
			Type:        src.Type,
			Thickness:   src.Thickness,
			Loss:        src.Loss,
		}
		walls, err := model.ParseWallsWKT(src.WKT, tmpl, fmt.Sprintf("wkt-%d", i+1))
		if err != nil {
			return nil, fmt.Errorf("LoadFloorPlan: wallsWKT[%d]: %w", i, err)
		}
		plan.Walls = append(plan.Walls, walls...)
	}

	for _, aj := range payload.Antennas {
		a := aj.Antenna
		a.Enabled = aj.Enabled == nil || *aj.Enabled
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		plan.Antennas = append(plan.Antennas, a)
	}
	return plan, nil
}
