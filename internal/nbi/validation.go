package nbi

import (
	"fmt"

	"github.com/signalsfoundry/coverage-planner/internal/nbi/types"
	"github.com/signalsfoundry/coverage-planner/model"
)

// maxPlacementCount bounds a single auto-placement request.
const maxPlacementCount = 256

// ValidateCount reads the required count field of a placement request.
func ValidateCount(in *types.Message) (int, error) {
	if in == nil {
		return 0, fmt.Errorf("%w: request is required", ErrInvalidRequest)
	}
	n, ok, err := types.Int(in, "count")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: count is required", ErrInvalidRequest)
	}
	if n < 0 || n > maxPlacementCount {
		return 0, fmt.Errorf("%w: count must be within [0,%d], got %d", ErrInvalidRequest, maxPlacementCount, n)
	}
	return n, nil
}

// ValidatePoint reads the required x and y fields of a query.
func ValidatePoint(in *types.Message) (model.Point, error) {
	x, okX, err := types.Number(in, "x")
	if err != nil {
		return model.Point{}, err
	}
	y, okY, err := types.Number(in, "y")
	if err != nil {
		return model.Point{}, err
	}
	if !okX || !okY {
		return model.Point{}, fmt.Errorf("%w: x and y are required", ErrInvalidRequest)
	}
	return model.Point{X: x, Y: y}, nil
}

// optionalDistance reads a non-negative distance, falling back to def.
func optionalDistance(in *types.Message, key string, def float64) (float64, error) {
	v, ok, err := types.Number(in, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidRequest, key)
	}
	return v, nil
}

// ValidateSpacing reads a strictly positive lattice spacing.
func ValidateSpacing(in *types.Message, key string, def float64) (float64, error) {
	v, err := optionalDistance(in, key, def)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidRequest, key)
	}
	return v, nil
}

// ValidateRequiredID reads a non-empty id field.
func ValidateRequiredID(in *types.Message) (string, error) {
	id, _, err := types.String(in, "id")
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	return id, nil
}
