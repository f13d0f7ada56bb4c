package nbi

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/heatmap"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/nbi/types"
	"github.com/signalsfoundry/coverage-planner/internal/state"
	"github.com/signalsfoundry/coverage-planner/model"
)

// PlannerServiceName is the fully qualified gRPC service name.
const PlannerServiceName = "coverage.planner.v1.PlannerService"

const (
	defaultMinObstacle = 0.5
	defaultMinAntenna  = 2.0
)

// PlannerServiceServer is the server API for PlannerService. Every method
// takes and returns a google.protobuf.Struct.
type PlannerServiceServer interface {
	Optimize(context.Context, *types.Message) (*types.Message, error)
	Layout(context.Context, *types.Message) (*types.Message, error)
	IsFree(context.Context, *types.Message) (*types.Message, error)
	SampleFreeArea(context.Context, *types.Message) (*types.Message, error)
	ValidPositions(context.Context, *types.Message) (*types.Message, error)
	Coverage(context.Context, *types.Message) (*types.Message, error)
	AddAntenna(context.Context, *types.Message) (*types.Message, error)
	ListAntennas(context.Context, *types.Message) (*types.Message, error)
	RemoveAntenna(context.Context, *types.Message) (*types.Message, error)
	Heatmap(context.Context, *types.Message) (*types.Message, error)
	SetBackendGrid(context.Context, *types.Message) (*types.Message, error)
	ClearBackendGrid(context.Context, *types.Message) (*types.Message, error)
	ApplyBackendUpdate(context.Context, *types.Message) (*types.Message, error)
}

type plannerCall func(PlannerServiceServer, context.Context, *types.Message) (*types.Message, error)

func unaryMethod(name string, call plannerCall) grpc.MethodDesc {
	fullMethod := "/" + PlannerServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(types.Message)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PlannerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PlannerServiceServer), ctx, req.(*types.Message))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// PlannerServiceDesc describes PlannerService for grpc.Server.
var PlannerServiceDesc = grpc.ServiceDesc{
	ServiceName: PlannerServiceName,
	HandlerType: (*PlannerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Optimize", PlannerServiceServer.Optimize),
		unaryMethod("Layout", PlannerServiceServer.Layout),
		unaryMethod("IsFree", PlannerServiceServer.IsFree),
		unaryMethod("SampleFreeArea", PlannerServiceServer.SampleFreeArea),
		unaryMethod("ValidPositions", PlannerServiceServer.ValidPositions),
		unaryMethod("Coverage", PlannerServiceServer.Coverage),
		unaryMethod("AddAntenna", PlannerServiceServer.AddAntenna),
		unaryMethod("ListAntennas", PlannerServiceServer.ListAntennas),
		unaryMethod("RemoveAntenna", PlannerServiceServer.RemoveAntenna),
		unaryMethod("Heatmap", PlannerServiceServer.Heatmap),
		unaryMethod("SetBackendGrid", PlannerServiceServer.SetBackendGrid),
		unaryMethod("ClearBackendGrid", PlannerServiceServer.ClearBackendGrid),
		unaryMethod("ApplyBackendUpdate", PlannerServiceServer.ApplyBackendUpdate),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coverage/planner/v1/planner.proto",
}

// RegisterPlannerServiceServer registers srv on s.
func RegisterPlannerServiceServer(s grpc.ServiceRegistrar, srv PlannerServiceServer) {
	s.RegisterService(&PlannerServiceDesc, srv)
}

// PlannerClient calls PlannerService methods by name.
type PlannerClient struct {
	cc grpc.ClientConnInterface
}

func NewPlannerClient(cc grpc.ClientConnInterface) *PlannerClient {
	return &PlannerClient{cc: cc}
}

// Call invokes method with in and returns the decoded response.
func (c *PlannerClient) Call(ctx context.Context, method string, in *types.Message, opts ...grpc.CallOption) (*types.Message, error) {
	if in == nil {
		in = &types.Message{}
	}
	out := new(types.Message)
	if err := c.cc.Invoke(ctx, "/"+PlannerServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PlannerService implements PlannerServiceServer on top of a ProjectState.
type PlannerService struct {
	state *state.ProjectState
	log   logging.Logger

	threshold float64
	target    float64
}

// ServiceOption customises a PlannerService.
type ServiceOption func(*PlannerService)

// WithCompliance sets the RSSI threshold and the percentage of the floor
// that must meet it for heatmap summaries.
func WithCompliance(thresholdDBm, percentage float64) ServiceOption {
	return func(s *PlannerService) {
		s.threshold = thresholdDBm
		s.target = percentage
	}
}

// NewPlannerService wires the service to the shared project state.
func NewPlannerService(st *state.ProjectState, log logging.Logger, opts ...ServiceOption) *PlannerService {
	if log == nil {
		log = logging.Noop()
	}
	s := &PlannerService{state: st, log: log, threshold: -85, target: 80}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ PlannerServiceServer = (*PlannerService)(nil)

func (s *PlannerService) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

func (s *PlannerService) Optimize(ctx context.Context, in *types.Message) (*types.Message, error) {
	count, err := ValidateCount(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	modeName, _, err := types.String(in, "mode")
	if err != nil {
		return nil, ToStatusError(err)
	}
	mode, err := state.ParsePlacementMode(modeName)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := startPlannerSpan(ctx, "Planner/AutoPlace",
		attribute.Int("placement.count", count),
		attribute.String("placement.mode", string(mode)),
	)
	defer span.End()

	res, err := s.state.AutoPlace(ctx, count, mode)
	if err != nil {
		span.RecordError(err)
		s.logger(ctx).Warn(ctx, "auto-placement failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return placementMessage(res), nil
}

func placementMessage(res core.PlacementResult) *types.Message {
	return &types.Message{Fields: map[string]*structpb.Value{
		"strategy":    structpb.NewStringValue(string(res.Strategy)),
		"requested":   structpb.NewNumberValue(float64(res.Requested)),
		"placed":      structpb.NewNumberValue(float64(len(res.Positions))),
		"partial":     structpb.NewBoolValue(res.Partial()),
		"min_spacing": structpb.NewNumberValue(res.MinSpacing),
		"scored":      structpb.NewNumberValue(float64(res.Scored)),
		"duration_ms": structpb.NewNumberValue(float64(res.Duration.Milliseconds())),
		"positions":   types.PointsToValue(res.Positions),
	}}
}

// Layout previews the uniform grid layout without touching the project.
func (s *PlannerService) Layout(ctx context.Context, in *types.Message) (*types.Message, error) {
	count, err := ValidateCount(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	pc := s.state.PlanningContext().WithAntennas(nil)
	if err := pc.Validate(); err != nil {
		return nil, ToStatusError(err)
	}
	planner := core.NewGridLayoutPlanner(pc)
	positions := planner.Layout(count)

	blocked := planner.Blocked(positions)
	idx := make([]*structpb.Value, len(blocked))
	for i, b := range blocked {
		idx[i] = structpb.NewNumberValue(float64(b))
	}
	if len(blocked) > 0 {
		s.logger(ctx).Warn(ctx, "layout positions overlap obstacles", logging.Int("blocked", len(blocked)))
	}
	return &types.Message{Fields: map[string]*structpb.Value{
		"positions": types.PointsToValue(positions),
		"blocked":   structpb.NewListValue(&structpb.ListValue{Values: idx}),
	}}, nil
}

func (s *PlannerService) IsFree(ctx context.Context, in *types.Message) (*types.Message, error) {
	p, err := ValidatePoint(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	minObstacle, err := optionalDistance(in, "min_obstacle", defaultMinObstacle)
	if err != nil {
		return nil, ToStatusError(err)
	}
	minAntenna, err := optionalDistance(in, "min_antenna", defaultMinAntenna)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &types.Message{Fields: map[string]*structpb.Value{
		"free": structpb.NewBoolValue(s.state.IsFree(p, minObstacle, minAntenna)),
	}}, nil
}

func (s *PlannerService) SampleFreeArea(ctx context.Context, in *types.Message) (*types.Message, error) {
	spacing, err := ValidateSpacing(in, "spacing", core.DefaultSampleSpacing)
	if err != nil {
		return nil, ToStatusError(err)
	}
	pts := s.state.SampleFreeArea(spacing)
	return &types.Message{Fields: map[string]*structpb.Value{
		"count":  structpb.NewNumberValue(float64(len(pts))),
		"points": types.PointsToValue(pts),
	}}, nil
}

func (s *PlannerService) ValidPositions(ctx context.Context, in *types.Message) (*types.Message, error) {
	count, err := ValidateCount(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	spacing, err := ValidateSpacing(in, "spacing", core.DefaultValidSpacing)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &types.Message{Fields: map[string]*structpb.Value{
		"positions": types.PointsToValue(s.state.ValidPositions(count, spacing)),
	}}, nil
}

func (s *PlannerService) Coverage(ctx context.Context, in *types.Message) (*types.Message, error) {
	spacing, err := ValidateSpacing(in, "sample_spacing", core.DefaultSampleSpacing)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &types.Message{Fields: map[string]*structpb.Value{
		"score": structpb.NewNumberValue(s.state.Coverage(spacing)),
	}}, nil
}

func (s *PlannerService) AddAntenna(ctx context.Context, in *types.Message) (*types.Message, error) {
	a, err := types.AntennaFromMessage(in, s.state.AntennaDefaults())
	if err != nil {
		return nil, ToStatusError(err)
	}
	stored, err := s.state.AddAntenna(a)
	if err != nil {
		return nil, ToStatusError(err)
	}
	s.logger(ctx).Info(ctx, "antenna added",
		logging.String("antenna_id", stored.ID),
		logging.Float64("x", stored.X),
		logging.Float64("y", stored.Y),
	)
	return types.AntennaToMessage(stored), nil
}

func (s *PlannerService) ListAntennas(ctx context.Context, _ *types.Message) (*types.Message, error) {
	ants := s.state.Store().ListAntennas()
	vals := make([]*structpb.Value, len(ants))
	for i, a := range ants {
		vals[i] = structpb.NewStructValue(types.AntennaToMessage(a))
	}
	return &types.Message{Fields: map[string]*structpb.Value{
		"antennas": structpb.NewListValue(&structpb.ListValue{Values: vals}),
	}}, nil
}

func (s *PlannerService) RemoveAntenna(ctx context.Context, in *types.Message) (*types.Message, error) {
	id, err := ValidateRequiredID(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.state.Store().RemoveAntenna(id); err != nil {
		return nil, ToStatusError(err)
	}
	s.logger(ctx).Info(ctx, "antenna removed", logging.String("antenna_id", id))
	return &types.Message{}, nil
}

// Heatmap renders a high-resolution frame and returns its statistics. An
// optional view switches the metric; an optional antenna id isolates the
// metric to that antenna, and an empty id clears the isolation.
func (s *PlannerService) Heatmap(ctx context.Context, in *types.Message) (*types.Message, error) {
	viewName, ok, err := types.String(in, "view")
	if err != nil {
		return nil, ToStatusError(err)
	}
	if ok {
		view, err := model.ParseViewMode(viewName)
		if err != nil {
			return nil, ToStatusError(fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		}
		if view != s.state.View() {
			s.state.SetView(view)
		}
	}
	if antenna, ok, err := types.String(in, "antenna"); err != nil {
		return nil, ToStatusError(err)
	} else if ok {
		if err := s.state.ViewAntenna(antenna); err != nil {
			return nil, ToStatusError(err)
		}
	}

	ctx, span := startPlannerSpan(ctx, "Planner/Render", attribute.String("heatmap.view", string(s.state.View())))
	defer span.End()
	f, err := s.state.Render(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, ToStatusError(err)
	}

	sum := heatmap.Summarize(f.Grid, s.threshold)
	meets := f.View == model.ViewRSSI && sum.Meets(s.target)
	return &types.Message{Fields: map[string]*structpb.Value{
		"view":         structpb.NewStringValue(string(f.View)),
		"cols":         structpb.NewNumberValue(float64(f.Grid.Cols)),
		"rows":         structpb.NewNumberValue(float64(f.Grid.Rows)),
		"path":         structpb.NewStringValue(f.Path),
		"summary":      types.SummaryToValue(sum),
		"meets_target": structpb.NewBoolValue(meets),
		"antenna":      structpb.NewStringValue(s.state.Selection().ViewedID),
	}}, nil
}

// SetBackendGrid installs an externally computed RSSI grid. With cols and
// rows omitted the data is laid out from the floor's aspect ratio.
func (s *PlannerService) SetBackendGrid(ctx context.Context, in *types.Message) (*types.Message, error) {
	data, ok, err := types.Numbers(in, "data")
	if err != nil {
		return nil, ToStatusError(err)
	}
	if !ok {
		return nil, ToStatusError(fmt.Errorf("%w: data is required", ErrInvalidRequest))
	}

	cols, hasCols, errC := types.Int(in, "cols")
	rows, hasRows, errR := types.Int(in, "rows")
	dx, _, errX := types.Number(in, "dx")
	dy, _, errY := types.Number(in, "dy")
	for _, e := range []error{errC, errR, errX, errY} {
		if e != nil {
			return nil, ToStatusError(e)
		}
	}

	var g *heatmap.BackendGrid
	if hasCols && hasRows {
		g, err = heatmap.NewBackendGrid(cols, rows, dx, dy, data)
	} else {
		f := s.state.Store().Floor()
		g, err = heatmap.BuildBackendGrid(data, f.Width, f.Height)
	}
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.state.SetBackendGrid(g); err != nil {
		return nil, ToStatusError(err)
	}
	return &types.Message{Fields: map[string]*structpb.Value{
		"cols": structpb.NewNumberValue(float64(g.Cols)),
		"rows": structpb.NewNumberValue(float64(g.Rows)),
	}}, nil
}

func (s *PlannerService) ClearBackendGrid(ctx context.Context, _ *types.Message) (*types.Message, error) {
	s.state.ClearBackendGrid()
	return &types.Message{}, nil
}

// ApplyBackendUpdate ingests one optimizer progress document; the request
// is the document itself.
func (s *PlannerService) ApplyBackendUpdate(ctx context.Context, in *types.Message) (*types.Message, error) {
	doc, err := protojson.Marshal(in)
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}
	u, err := s.state.ApplyBackendUpdate(doc)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out := &types.Message{Fields: map[string]*structpb.Value{
		"status": structpb.NewStringValue(u.Status),
		"done":   structpb.NewBoolValue(u.Done()),
	}}
	if u.HasCompliance {
		out.Fields["compliance"] = structpb.NewNumberValue(u.Compliance)
	}
	return out, nil
}
