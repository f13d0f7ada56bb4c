package heatmap

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrInvalidBackendGrid is returned for grids whose shape does not match
// their data.
var ErrInvalidBackendGrid = errors.New("invalid backend grid")

// BackendGrid is a coarse RSRP raster supplied by an external optimizer.
// Data is row-major; DX and DY are the cell pitch in metres.
type BackendGrid struct {
	Cols, Rows int
	DX, DY     float64
	Data       []float64
}

// NewBackendGrid validates the shape and copies data.
func NewBackendGrid(cols, rows int, dx, dy float64, data []float64) (*BackendGrid, error) {
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidBackendGrid, cols, rows)
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("%w: cell pitch %gx%g", ErrInvalidBackendGrid, dx, dy)
	}
	if len(data) != cols*rows {
		return nil, fmt.Errorf("%w: %d values for %dx%d cells", ErrInvalidBackendGrid, len(data), cols, rows)
	}
	return &BackendGrid{Cols: cols, Rows: rows, DX: dx, DY: dy, Data: append([]float64(nil), data...)}, nil
}

// BuildBackendGrid lays out a flat value list from the optimizer onto a
// floor of width x height metres. The optimizer emits one value per square
// metre, column-major with y running bottom-up, so values are rotated into
// the row-major top-down layout the engine samples.
func BuildBackendGrid(values []float64, width, height float64) (*BackendGrid, error) {
	total := len(values)
	if total == 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %d values over %gx%g", ErrInvalidBackendGrid, total, width, height)
	}
	cols := int(math.Round(width))
	rows := int(math.Round(height))
	if cols*rows != total {
		cols = int(math.Round(math.Sqrt(float64(total) * width / height)))
		if cols <= 0 {
			return nil, fmt.Errorf("%w: cannot fit %d values", ErrInvalidBackendGrid, total)
		}
		rows = int(math.Round(float64(total) / float64(cols)))
		if cols*rows != total {
			return nil, fmt.Errorf("%w: %d values do not fit a %gx%g floor", ErrInvalidBackendGrid, total, width, height)
		}
	}

	data := make([]float64, total)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			data[r*cols+c] = values[c*rows+(rows-1-r)]
		}
	}
	return &BackendGrid{
		Cols: cols,
		Rows: rows,
		DX:   width / float64(cols),
		DY:   height / float64(rows),
		Data: data,
	}, nil
}

// Sample bilinearly interpolates the grid at (x, y) using cell centres as
// knots. Positions outside the lattice clamp to the edge cells.
func (b *BackendGrid) Sample(x, y float64) (float64, bool) {
	if b == nil || len(b.Data) == 0 {
		return 0, false
	}
	bx := x/b.DX - 0.5
	by := y/b.DY - 0.5

	gx0 := clampIndex(int(math.Floor(bx)), b.Cols)
	gx1 := clampIndex(gx0+1, b.Cols)
	gy0 := clampIndex(int(math.Floor(by)), b.Rows)
	gy1 := clampIndex(gy0+1, b.Rows)

	tx := clampUnit(bx - float64(gx0))
	ty := clampUnit(by - float64(gy0))

	v00 := b.Data[gy0*b.Cols+gx0]
	v10 := b.Data[gy0*b.Cols+gx1]
	v01 := b.Data[gy1*b.Cols+gx0]
	v11 := b.Data[gy1*b.Cols+gx1]

	v := lerp(lerp(v00, v10, tx), lerp(v01, v11, tx), ty)
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func clampIndex(i, n int) int {
	return max(0, min(n-1, i))
}

// lerp skips the far knot at the ends so a NaN neighbour with zero
// weight does not poison the sample.
func lerp(a, b, t float64) float64 {
	switch t {
	case 0:
		return a
	case 1:
		return b
	}
	return a*(1-t) + b*t
}

// clampUnit keeps edge samples from extrapolating past the outer knots.
func clampUnit(t float64) float64 {
	return math.Max(0, math.Min(1, t))
}

// BackendUpdate is one progress message from an external optimizer.
type BackendUpdate struct {
	Status  string
	Message string
	// RSRP is the latest flat value list, nil when the update carried none.
	RSRP          []float64
	Compliance    float64
	HasCompliance bool
}

// Done reports whether the optimizer finished, successfully or not.
func (u BackendUpdate) Done() bool {
	switch u.Status {
	case "completed", "finished", "error":
		return true
	}
	return false
}

// DecodeBackendUpdate parses an optimizer progress document. Both the
// flat form ({"rsrp": [...], "compliance": n}) and the streaming form
// ({"new_bsrv_rsrp": [[...], ...], "new_compliance": [...]}) are accepted;
// for the streaming form the last step wins.
func DecodeBackendUpdate(doc []byte) (BackendUpdate, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(doc, &s); err != nil {
		return BackendUpdate{}, fmt.Errorf("decode backend update: %w", err)
	}
	fields := s.GetFields()

	var u BackendUpdate
	u.Status = fields["status"].GetStringValue()
	u.Message = fields["message"].GetStringValue()

	if v, ok := fields["rsrp"]; ok {
		vals, err := numberList(v)
		if err != nil {
			return BackendUpdate{}, fmt.Errorf("rsrp: %w", err)
		}
		u.RSRP = vals
	} else if v, ok := fields["new_bsrv_rsrp"]; ok {
		steps := v.GetListValue().GetValues()
		if len(steps) > 0 {
			vals, err := numberList(steps[len(steps)-1])
			if err != nil {
				return BackendUpdate{}, fmt.Errorf("new_bsrv_rsrp: %w", err)
			}
			u.RSRP = vals
		}
	}

	if v, ok := fields["compliance"]; ok {
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); isNum {
			u.Compliance, u.HasCompliance = v.GetNumberValue(), true
		}
	} else if v, ok := fields["new_compliance"]; ok {
		steps := v.GetListValue().GetValues()
		if len(steps) > 0 {
			u.Compliance, u.HasCompliance = steps[len(steps)-1].GetNumberValue(), true
		}
	}
	return u, nil
}

// numberList converts a list value; JSON nulls become NaN.
func numberList(v *structpb.Value) ([]float64, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: expected a list", ErrInvalidBackendGrid)
	}
	out := make([]float64, len(list.GetValues()))
	for i, item := range list.GetValues() {
		switch k := item.GetKind().(type) {
		case *structpb.Value_NumberValue:
			out[i] = k.NumberValue
		case *structpb.Value_NullValue:
			out[i] = math.NaN()
		default:
			return nil, fmt.Errorf("%w: element %d is not a number", ErrInvalidBackendGrid, i)
		}
	}
	return out, nil
}
