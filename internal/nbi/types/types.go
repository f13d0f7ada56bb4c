package types

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/coverage-planner/internal/heatmap"
	"github.com/signalsfoundry/coverage-planner/model"
)

// Message is the wire type of every PlannerService request and response.
// Keeping it a google.protobuf.Struct lets the service evolve its fields
// without regenerating code.
type Message = structpb.Struct

// ErrInvalidMessage indicates a field with the wrong type or value.
var ErrInvalidMessage = errors.New("invalid message")

// Number reads a numeric field. ok is false when the field is absent or
// null.
func Number(m *Message, key string) (v float64, ok bool, err error) {
	f, present := field(m, key)
	if !present {
		return 0, false, nil
	}
	n, isNum := f.GetKind().(*structpb.Value_NumberValue)
	if !isNum {
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidMessage, key)
	}
	if math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
		return 0, false, fmt.Errorf("%w: %s must be finite", ErrInvalidMessage, key)
	}
	return n.NumberValue, true, nil
}

// Int reads a numeric field that must hold a whole number.
func Int(m *Message, key string) (v int, ok bool, err error) {
	f, ok, err := Number(m, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false, fmt.Errorf("%w: %s must be an integer", ErrInvalidMessage, key)
	}
	return int(f), true, nil
}

// String reads a string field.
func String(m *Message, key string) (v string, ok bool, err error) {
	f, present := field(m, key)
	if !present {
		return "", false, nil
	}
	s, isStr := f.GetKind().(*structpb.Value_StringValue)
	if !isStr {
		return "", false, fmt.Errorf("%w: %s must be a string", ErrInvalidMessage, key)
	}
	return s.StringValue, true, nil
}

// Bool reads a boolean field.
func Bool(m *Message, key string) (v bool, ok bool, err error) {
	f, present := field(m, key)
	if !present {
		return false, false, nil
	}
	b, isBool := f.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return false, false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidMessage, key)
	}
	return b.BoolValue, true, nil
}

// Numbers reads a list of numbers; null entries become NaN.
func Numbers(m *Message, key string) ([]float64, bool, error) {
	f, present := field(m, key)
	if !present {
		return nil, false, nil
	}
	list := f.GetListValue()
	if list == nil {
		return nil, false, fmt.Errorf("%w: %s must be a list", ErrInvalidMessage, key)
	}
	out := make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		switch k := v.GetKind().(type) {
		case *structpb.Value_NumberValue:
			out[i] = k.NumberValue
		case *structpb.Value_NullValue:
			out[i] = math.NaN()
		default:
			return nil, false, fmt.Errorf("%w: %s[%d] must be a number", ErrInvalidMessage, key, i)
		}
	}
	return out, true, nil
}

func field(m *Message, key string) (*structpb.Value, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.GetFields()[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

// AntennaFromMessage decodes an antenna using the project file's field
// names. Absent fields keep the values of defaults.
func AntennaFromMessage(m *Message, defaults model.AntennaDefaults) (model.Antenna, error) {
	if m == nil {
		return model.Antenna{}, fmt.Errorf("%w: antenna is required", ErrInvalidMessage)
	}
	a := defaults.NewAntenna("", model.Point{})

	id, _, err := String(m, "id")
	if err != nil {
		return model.Antenna{}, err
	}
	a.ID = id

	for key, dst := range map[string]*float64{
		"x":       &a.X,
		"y":       &a.Y,
		"z":       &a.Z,
		"tx":      &a.TxDBm,
		"gt":      &a.GainDBi,
		"azimuth": &a.Azimuth,
		"tilt":    &a.Tilt,
	} {
		v, ok, err := Number(m, key)
		if err != nil {
			return model.Antenna{}, err
		}
		if ok {
			*dst = v
		}
	}
	if ch, ok, err := Int(m, "ch"); err != nil {
		return model.Antenna{}, err
	} else if ok {
		a.Channel = ch
	}
	if on, ok, err := Bool(m, "enabled"); err != nil {
		return model.Antenna{}, err
	} else if ok {
		a.Enabled = on
	}
	return a, nil
}

// AntennaToMessage encodes an antenna with the project file's field names.
// Radiation patterns are not carried over the wire.
func AntennaToMessage(a model.Antenna) *Message {
	return &Message{Fields: map[string]*structpb.Value{
		"id":      structpb.NewStringValue(a.ID),
		"x":       structpb.NewNumberValue(a.X),
		"y":       structpb.NewNumberValue(a.Y),
		"z":       structpb.NewNumberValue(a.Height()),
		"tx":      structpb.NewNumberValue(a.TxDBm),
		"gt":      structpb.NewNumberValue(a.GainDBi),
		"ch":      structpb.NewNumberValue(float64(a.Channel)),
		"azimuth": structpb.NewNumberValue(a.Azimuth),
		"tilt":    structpb.NewNumberValue(a.Tilt),
		"enabled": structpb.NewBoolValue(a.Enabled),
	}}
}

// PointsToValue encodes points as a list of {x, y} objects.
func PointsToValue(pts []model.Point) *structpb.Value {
	vals := make([]*structpb.Value, len(pts))
	for i, p := range pts {
		vals[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"x": structpb.NewNumberValue(p.X),
			"y": structpb.NewNumberValue(p.Y),
		}})
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

// PointsFromValue decodes a list written by PointsToValue.
func PointsFromValue(v *structpb.Value) ([]model.Point, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: points must be a list", ErrInvalidMessage)
	}
	pts := make([]model.Point, len(list.GetValues()))
	for i, item := range list.GetValues() {
		obj := item.GetStructValue()
		x, okX, errX := Number(obj, "x")
		y, okY, errY := Number(obj, "y")
		if err := errors.Join(errX, errY); err != nil {
			return nil, err
		}
		if !okX || !okY {
			return nil, fmt.Errorf("%w: point %d needs x and y", ErrInvalidMessage, i)
		}
		pts[i] = model.Point{X: x, Y: y}
	}
	return pts, nil
}

// SummaryToValue encodes heatmap statistics. Non-finite statistics are
// omitted since they have no JSON form.
func SummaryToValue(s heatmap.Summary) *structpb.Value {
	fields := map[string]*structpb.Value{
		"cells":      structpb.NewNumberValue(float64(s.Cells)),
		"finite":     structpb.NewNumberValue(float64(s.Finite)),
		"compliance": structpb.NewNumberValue(s.Compliance),
	}
	for key, v := range map[string]float64{"min": s.Min, "max": s.Max, "mean": s.Mean, "stddev": s.StdDev} {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			fields[key] = structpb.NewNumberValue(v)
		}
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}
