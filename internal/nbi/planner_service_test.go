package nbi

import (
	"context"
	"math/rand"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/heatmap"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/nbi/types"
	"github.com/signalsfoundry/coverage-planner/internal/observability"
	"github.com/signalsfoundry/coverage-planner/internal/state"
	"github.com/signalsfoundry/coverage-planner/kb"
	"github.com/signalsfoundry/coverage-planner/model"
	"github.com/signalsfoundry/coverage-planner/timectrl"
)

type plannerTestEnv struct {
	ctx    context.Context
	state  *state.ProjectState
	client *PlannerClient
}

func newProjectStateForTest(t *testing.T) *state.ProjectState {
	t.Helper()
	st := state.NewProjectState(
		kb.NewProjectStore(model.Floor{Width: 20, Height: 10}),
		core.NewP25DModel(),
		state.WithHeatmapOptions(heatmap.Options{
			Scheduler:  timectrl.NewFrameClock(0, timectrl.Accelerated),
			Resolution: 0.5,
		}),
		state.WithOptimizerOptions(core.WithRand(rand.New(rand.NewSource(11)))),
	)
	t.Cleanup(st.Close)
	return st
}

func newPlannerTestEnv(t *testing.T) *plannerTestEnv {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)

	st := newProjectStateForTest(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		cancel()
		t.Fatalf("net.Listen: %v", err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(logging.Noop()),
			TracingUnaryServerInterceptor(),
		),
	)
	RegisterPlannerServiceServer(grpcServer, NewPlannerService(st, logging.Noop()))

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	conn, err := grpc.DialContext(ctx, lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		cancel()
		t.Fatalf("grpc.DialContext: %v", err)
	}

	t.Cleanup(func() {
		grpcServer.GracefulStop()
		_ = conn.Close()
		cancel()
	})

	return &plannerTestEnv{ctx: ctx, state: st, client: NewPlannerClient(conn)}
}

func (e *plannerTestEnv) call(t *testing.T, method string, in map[string]any) (*types.Message, error) {
	t.Helper()
	msg, err := structpb.NewStruct(in)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return e.client.Call(e.ctx, method, msg)
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := status.Code(err); got != code {
		t.Fatalf("status code = %v (%v), want %v", got, err, code)
	}
}

func TestOptimizeOverGRPC(t *testing.T) {
	env := newPlannerTestEnv(t)

	resp, err := env.call(t, "Optimize", map[string]any{"count": 3, "mode": "uniform"})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	f := resp.GetFields()
	if f["strategy"].GetStringValue() != string(core.StrategyLayout) || f["placed"].GetNumberValue() != 3 || f["partial"].GetBoolValue() {
		t.Fatalf("unexpected placement response: %v", resp)
	}
	pts, err := types.PointsFromValue(f["positions"])
	if err != nil || len(pts) != 3 {
		t.Fatalf("positions = %v, %v", pts, err)
	}

	list, err := env.call(t, "ListAntennas", nil)
	if err != nil {
		t.Fatalf("ListAntennas: %v", err)
	}
	ants := list.GetFields()["antennas"].GetListValue().GetValues()
	if len(ants) != 3 {
		t.Fatalf("expected 3 antennas after placement, got %d", len(ants))
	}
	for i, v := range ants {
		want := []string{"ANT1", "ANT2", "ANT3"}[i]
		if id := v.GetStructValue().GetFields()["id"].GetStringValue(); id != want {
			t.Fatalf("antenna %d id = %q, want %q", i, id, want)
		}
	}
}

func TestOptimizeValidation(t *testing.T) {
	env := newPlannerTestEnv(t)

	tests := []struct {
		name string
		in   map[string]any
	}{
		{name: "missing count", in: map[string]any{}},
		{name: "fractional count", in: map[string]any{"count": 1.5}},
		{name: "negative count", in: map[string]any{"count": -2}},
		{name: "oversized count", in: map[string]any{"count": 10000}},
		{name: "unknown mode", in: map[string]any{"count": 2, "mode": "spiral"}},
		{name: "mode type", in: map[string]any{"count": 2, "mode": 7}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.call(t, "Optimize", tc.in)
			wantCode(t, err, codes.InvalidArgument)
		})
	}
	if n := env.state.Store().AntennaCount(); n != 0 {
		t.Fatalf("rejected requests stored %d antennas", n)
	}
}

func TestAntennaLifecycle(t *testing.T) {
	env := newPlannerTestEnv(t)

	resp, err := env.call(t, "AddAntenna", map[string]any{"x": 4, "y": 5, "ch": 6})
	if err != nil {
		t.Fatalf("AddAntenna: %v", err)
	}
	got, err := types.AntennaFromMessage(resp, model.AntennaDefaults{})
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "ANT1" || got.Channel != 6 || !got.Enabled || got.TxDBm != 15 {
		t.Fatalf("stored antenna = %+v", got)
	}

	_, err = env.call(t, "AddAntenna", map[string]any{"id": "ANT1", "x": 1, "y": 1})
	wantCode(t, err, codes.AlreadyExists)

	_, err = env.call(t, "RemoveAntenna", map[string]any{"id": "missing"})
	wantCode(t, err, codes.NotFound)

	_, err = env.call(t, "RemoveAntenna", map[string]any{})
	wantCode(t, err, codes.InvalidArgument)

	if _, err := env.call(t, "RemoveAntenna", map[string]any{"id": "ANT1"}); err != nil {
		t.Fatalf("RemoveAntenna: %v", err)
	}
	if n := env.state.Store().AntennaCount(); n != 0 {
		t.Fatalf("antenna count after remove = %d", n)
	}
}

func TestGeometryQueries(t *testing.T) {
	env := newPlannerTestEnv(t)

	free, err := env.call(t, "IsFree", map[string]any{"x": 10, "y": 5})
	if err != nil {
		t.Fatalf("IsFree: %v", err)
	}
	if !free.GetFields()["free"].GetBoolValue() {
		t.Fatalf("centre of an empty floor reported occupied")
	}
	_, err = env.call(t, "IsFree", map[string]any{"x": 10})
	wantCode(t, err, codes.InvalidArgument)
	_, err = env.call(t, "IsFree", map[string]any{"x": 10, "y": 5, "min_obstacle": -1})
	wantCode(t, err, codes.InvalidArgument)

	samples, err := env.call(t, "SampleFreeArea", map[string]any{"spacing": 2})
	if err != nil {
		t.Fatalf("SampleFreeArea: %v", err)
	}
	if samples.GetFields()["count"].GetNumberValue() == 0 {
		t.Fatalf("no free samples on an empty floor")
	}
	_, err = env.call(t, "SampleFreeArea", map[string]any{"spacing": 0})
	wantCode(t, err, codes.InvalidArgument)

	valid, err := env.call(t, "ValidPositions", map[string]any{"count": 4})
	if err != nil {
		t.Fatalf("ValidPositions: %v", err)
	}
	if pts, _ := types.PointsFromValue(valid.GetFields()["positions"]); len(pts) != 4 {
		t.Fatalf("ValidPositions returned %d points", len(pts))
	}

	layout, err := env.call(t, "Layout", map[string]any{"count": 2})
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if pts, _ := types.PointsFromValue(layout.GetFields()["positions"]); len(pts) != 2 {
		t.Fatalf("Layout returned %d points", len(pts))
	}
	if env.state.Store().AntennaCount() != 0 {
		t.Fatalf("Layout modified the project")
	}
}

func TestHeatmapRPC(t *testing.T) {
	env := newPlannerTestEnv(t)
	added, err := env.call(t, "AddAntenna", map[string]any{"x": 10, "y": 5})
	if err != nil {
		t.Fatalf("AddAntenna: %v", err)
	}
	id := added.GetFields()["id"].GetStringValue()

	resp, err := env.call(t, "Heatmap", map[string]any{"view": "rssi"})
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}
	f := resp.GetFields()
	if f["view"].GetStringValue() != "rssi" || f["cols"].GetNumberValue() != 60 || f["rows"].GetNumberValue() != 30 {
		t.Fatalf("unexpected heatmap response: %v", resp)
	}
	sum := f["summary"].GetStructValue().GetFields()
	if sum["cells"].GetNumberValue() != 1800 || sum["finite"].GetNumberValue() == 0 {
		t.Fatalf("unexpected summary: %v", sum)
	}

	snr, err := env.call(t, "Heatmap", map[string]any{"view": "snr"})
	if err != nil {
		t.Fatalf("Heatmap(snr): %v", err)
	}
	if snr.GetFields()["view"].GetStringValue() != "snr" || snr.GetFields()["meets_target"].GetBoolValue() {
		t.Fatalf("unexpected snr response: %v", snr)
	}
	if env.state.View() != model.ViewSNR {
		t.Fatalf("view not switched")
	}

	_, err = env.call(t, "Heatmap", map[string]any{"view": "bogus"})
	wantCode(t, err, codes.InvalidArgument)

	_, err = env.call(t, "Heatmap", map[string]any{"antenna": "ghost"})
	wantCode(t, err, codes.NotFound)

	isolated, err := env.call(t, "Heatmap", map[string]any{"view": "rssi", "antenna": id})
	if err != nil {
		t.Fatalf("Heatmap(antenna): %v", err)
	}
	if got := isolated.GetFields()["antenna"].GetStringValue(); got != id || env.state.Selection().ViewedID != id {
		t.Fatalf("isolated antenna = %q, want %q", got, id)
	}
	if _, err := env.call(t, "Heatmap", map[string]any{"antenna": ""}); err != nil {
		t.Fatalf("Heatmap(clear): %v", err)
	}
	if env.state.Selection().ViewedID != "" {
		t.Fatalf("selection not cleared")
	}
}

func TestBackendGridRPC(t *testing.T) {
	env := newPlannerTestEnv(t)

	resp, err := env.call(t, "SetBackendGrid", map[string]any{
		"cols": 2, "rows": 2, "dx": 10, "dy": 5,
		"data": []any{-50, -50, -50, -50},
	})
	if err != nil {
		t.Fatalf("SetBackendGrid: %v", err)
	}
	if resp.GetFields()["cols"].GetNumberValue() != 2 {
		t.Fatalf("unexpected response: %v", resp)
	}

	hm, err := env.call(t, "Heatmap", map[string]any{"view": "rssi"})
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}
	if path := hm.GetFields()["path"].GetStringValue(); path != observability.PathBackend {
		t.Fatalf("heatmap path = %q, want %q", path, observability.PathBackend)
	}

	_, err = env.call(t, "SetBackendGrid", map[string]any{"data": []any{1, 2, 3}})
	wantCode(t, err, codes.InvalidArgument)
	_, err = env.call(t, "SetBackendGrid", map[string]any{})
	wantCode(t, err, codes.InvalidArgument)

	if _, err := env.call(t, "ClearBackendGrid", nil); err != nil {
		t.Fatalf("ClearBackendGrid: %v", err)
	}
	if env.state.Heatmap().BackendGrid() != nil {
		t.Fatalf("backend grid still installed")
	}
}

func TestApplyBackendUpdateRPC(t *testing.T) {
	env := newPlannerTestEnv(t)

	resp, err := env.call(t, "ApplyBackendUpdate", map[string]any{"status": "completed", "compliance": 91.5})
	if err != nil {
		t.Fatalf("ApplyBackendUpdate: %v", err)
	}
	f := resp.GetFields()
	if !f["done"].GetBoolValue() || f["compliance"].GetNumberValue() != 91.5 || f["status"].GetStringValue() != "completed" {
		t.Fatalf("unexpected response: %v", resp)
	}

	_, err = env.call(t, "ApplyBackendUpdate", map[string]any{"status": "running", "rsrp": []any{"x"}})
	wantCode(t, err, codes.InvalidArgument)
}

func TestCoverageRPC(t *testing.T) {
	env := newPlannerTestEnv(t)
	if _, err := env.call(t, "AddAntenna", map[string]any{"x": 10, "y": 5}); err != nil {
		t.Fatalf("AddAntenna: %v", err)
	}
	resp, err := env.call(t, "Coverage", nil)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if resp.GetFields()["score"].GetNumberValue() == 0 {
		t.Fatalf("coverage score is zero with one antenna")
	}
}
