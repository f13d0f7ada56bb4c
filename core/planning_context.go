package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/coverage-planner/model"
)

var (
	// ErrInvalidFloor is returned when a planning context has no usable area.
	ErrInvalidFloor = errors.New("invalid floor")
	// ErrInvalidCount is returned for negative placement counts.
	ErrInvalidCount = errors.New("invalid antenna count")
)

// DefaultNoiseDBm is the thermal noise floor used for SNR and SINR.
const DefaultNoiseDBm = -92.0

// Selection narrows metric evaluation to a single antenna.
type Selection struct {
	// SelectedID is honoured only while Highlight is set.
	SelectedID string
	Highlight  bool
	// ViewedID is honoured when no highlighted selection applies.
	ViewedID string
}

// PlanningContext is an immutable snapshot of everything the planning
// algorithms read. Callers build one per operation; nothing in this
// package mutates it.
type PlanningContext struct {
	Floor    model.Floor
	Walls    []model.Wall
	Antennas []model.Antenna
	Elements model.ElementCatalog

	Model    PropagationModel
	NoiseDBm float64
	View     model.ViewMode
	Select   Selection

	// Defaults parameterise hypothetical antennas.
	Defaults model.AntennaDefaults
}

// NewPlanningContext builds a context with default catalog, noise, view
// and antenna parameters. Walls and antennas are copied.
func NewPlanningContext(floor model.Floor, walls []model.Wall, antennas []model.Antenna, pm PropagationModel) PlanningContext {
	return PlanningContext{
		Floor:    floor,
		Walls:    append([]model.Wall(nil), walls...),
		Antennas: append([]model.Antenna(nil), antennas...),
		Elements: model.DefaultElementTypes(),
		Model:    pm,
		NoiseDBm: DefaultNoiseDBm,
		View:     model.ViewRSSI,
		Defaults: model.DefaultAntennaParameters(),
	}
}

// Validate checks that the context can be planned against.
func (pc PlanningContext) Validate() error {
	if !pc.Floor.Valid() {
		return fmt.Errorf("%w: %gx%g", ErrInvalidFloor, pc.Floor.Width, pc.Floor.Height)
	}
	if pc.Model == nil {
		return fmt.Errorf("%w: propagation model is required", ErrInvalidFloor)
	}
	return nil
}

// WithAntennas returns a copy of pc evaluating against antennas instead of
// the live set. The slice is not copied.
func (pc PlanningContext) WithAntennas(antennas []model.Antenna) PlanningContext {
	pc.Antennas = antennas
	return pc
}
