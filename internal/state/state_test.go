package state

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/heatmap"
	"github.com/signalsfoundry/coverage-planner/kb"
	"github.com/signalsfoundry/coverage-planner/model"
	"github.com/signalsfoundry/coverage-planner/timectrl"
)

type recordingMetrics struct {
	mu         sync.Mutex
	antennas   int
	walls      int
	strategies []string
}

func (m *recordingMetrics) SetProjectCounts(antennas, walls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.antennas, m.walls = antennas, walls
}

func (m *recordingMetrics) ObservePlacement(strategy string, _, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies = append(m.strategies, strategy)
}

func newTestState(t *testing.T, floor model.Floor, opts ...Option) (*ProjectState, *timectrl.ManualScheduler, *recordingMetrics) {
	t.Helper()
	sched := &timectrl.ManualScheduler{}
	metrics := &recordingMetrics{}
	base := []Option{
		WithHeatmapOptions(heatmap.Options{Scheduler: sched, Resolution: 0.5}),
		WithMetricsRecorder(metrics),
		WithOptimizerOptions(core.WithRand(rand.New(rand.NewSource(3)))),
	}
	s := NewProjectState(kb.NewProjectStore(floor), core.NewP25DModel(), append(base, opts...)...)
	t.Cleanup(s.Close)
	return s, sched, metrics
}

func TestStoreChangesRefreshHeatmap(t *testing.T) {
	s, sched, metrics := newTestState(t, model.Floor{Width: 20, Height: 10})

	if _, err := s.AddAntenna(model.Antenna{X: 5, Y: 5, TxDBm: 15, Channel: 1, Enabled: true}); err != nil {
		t.Fatalf("AddAntenna: %v", err)
	}
	if !s.Heatmap().Pending() {
		t.Fatalf("adding an antenna did not start a heatmap pass")
	}
	sched.Drain(1000)

	f, ok := s.Heatmap().Cached(1)
	if !ok || f.LowRes {
		t.Fatalf("no high-res frame after draining")
	}
	if f.AntennaCount != 1 {
		t.Fatalf("frame antenna count = %d", f.AntennaCount)
	}
	if metrics.antennas != 1 {
		t.Fatalf("antenna gauge = %d", metrics.antennas)
	}

	if err := s.Store().AddWall(model.Wall{ID: "w1", Points: []model.Point{{X: 10, Y: 0}, {X: 10, Y: 10}}}); err != nil {
		t.Fatalf("AddWall: %v", err)
	}
	if _, ok := s.Heatmap().Cached(1); ok {
		t.Fatalf("wall change left the heatmap cache valid")
	}
	if metrics.walls != 1 {
		t.Fatalf("wall gauge = %d", metrics.walls)
	}
}

func TestAddAntennaAssignsIDs(t *testing.T) {
	s, _, _ := newTestState(t, model.Floor{Width: 20, Height: 10})

	a, err := s.AddAntenna(model.Antenna{X: 3, Y: 3, Enabled: true})
	if err != nil {
		t.Fatalf("AddAntenna: %v", err)
	}
	b, err := s.AddAntenna(model.Antenna{X: 8, Y: 3, Enabled: true})
	if err != nil {
		t.Fatalf("AddAntenna: %v", err)
	}
	if a.ID != "ANT1" || b.ID != "ANT2" {
		t.Fatalf("ids = %q, %q", a.ID, b.ID)
	}
	if _, err := s.AddAntenna(model.Antenna{ID: "ANT1"}); !errors.Is(err, ErrAntennaExists) {
		t.Fatalf("duplicate id: err = %v", err)
	}
}

func TestAutoPlaceUniform(t *testing.T) {
	s, _, metrics := newTestState(t, model.Floor{Width: 20, Height: 10})
	if _, err := s.AddAntenna(model.Antenna{X: 1.5, Y: 1.5, Enabled: true}); err != nil {
		t.Fatal(err)
	}

	res, err := s.AutoPlace(context.Background(), 4, ModeUniform)
	if err != nil {
		t.Fatalf("AutoPlace: %v", err)
	}
	if res.Strategy != core.StrategyLayout || len(res.Positions) != 4 || res.Partial() {
		t.Fatalf("result = %+v", res)
	}

	want := core.NewGridLayoutPlanner(s.PlanningContext().WithAntennas(nil)).Layout(4)
	if diff := cmp.Diff(want, res.Positions); diff != "" {
		t.Fatalf("positions mismatch (-want +got):\n%s", diff)
	}

	got := s.Store().ListAntennas()
	if len(got) != 4 {
		t.Fatalf("store holds %d antennas, want 4 (placement replaces)", len(got))
	}
	for i, a := range got {
		if a.ID != []string{"ANT1", "ANT2", "ANT3", "ANT4"}[i] || !a.Enabled || a.TxDBm != 15 || a.Z != 2.5 {
			t.Fatalf("antenna %d = %+v", i, a)
		}
	}
	if diff := cmp.Diff([]string{"layout"}, metrics.strategies); diff != "" {
		t.Fatalf("strategies mismatch (-want +got):\n%s", diff)
	}
}

func TestAutoPlaceOptimize(t *testing.T) {
	s, _, metrics := newTestState(t, model.Floor{Width: 20, Height: 10})

	res, err := s.AutoPlace(context.Background(), 3, ModeOptimize)
	if err != nil {
		t.Fatalf("AutoPlace: %v", err)
	}
	if res.Strategy != core.StrategyRegional || len(res.Positions) != 3 {
		t.Fatalf("result = %+v", res)
	}
	ants := s.Store().ListAntennas()
	if len(ants) != 3 {
		t.Fatalf("store holds %d antennas", len(ants))
	}
	for i := range ants {
		for j := i + 1; j < len(ants); j++ {
			d := ants[i].Position().DistanceTo(ants[j].Position())
			if d < res.MinSpacing {
				t.Fatalf("antennas %d and %d are %.2f apart, min %.2f", i, j, d, res.MinSpacing)
			}
		}
	}
	if diff := cmp.Diff([]string{"regional"}, metrics.strategies); diff != "" {
		t.Fatalf("strategies mismatch (-want +got):\n%s", diff)
	}
}

func TestAutoPlaceOptimizeKeepsLastFrame(t *testing.T) {
	s, sched, _ := newTestState(t, model.Floor{Width: 20, Height: 10})
	if _, err := s.AddAntenna(model.Antenna{X: 5, Y: 5, TxDBm: 15, Channel: 1, Enabled: true}); err != nil {
		t.Fatal(err)
	}
	sched.Drain(1000)
	before := s.Heatmap().Last()
	if before == nil {
		t.Fatalf("no frame before placement")
	}

	if _, err := s.AutoPlace(context.Background(), 2, ModeOptimize); err != nil {
		t.Fatalf("AutoPlace: %v", err)
	}
	if !s.Heatmap().Pending() {
		t.Fatalf("placement did not start a refresh")
	}
	if got := s.Heatmap().Last(); got != before {
		t.Fatalf("previous frame dropped while the placed antennas refresh")
	}
	if _, ok := s.Heatmap().Cached(2); ok {
		t.Fatalf("preserved frame served as current")
	}

	sched.Drain(1000)
	if f := s.Heatmap().Last(); f == before || f.AntennaCount != 2 {
		t.Fatalf("frame after refresh = %+v", f)
	}
}

func TestAutoPlaceValidation(t *testing.T) {
	s, _, _ := newTestState(t, model.Floor{Width: 20, Height: 10})

	if _, err := s.AutoPlace(context.Background(), -1, ModeUniform); !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("negative count: err = %v", err)
	}
	if _, err := s.AutoPlace(context.Background(), 2, PlacementMode("spiral")); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("bad mode: err = %v", err)
	}
	res, err := s.AutoPlace(context.Background(), 0, "")
	if err != nil || len(res.Positions) != 0 {
		t.Fatalf("zero count = %+v, %v", res, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.AutoPlace(ctx, 3, ModeOptimize); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled context: err = %v", err)
	}
	if n := s.Store().AntennaCount(); n != 0 {
		t.Fatalf("cancelled run stored %d antennas", n)
	}
}

func TestParsePlacementMode(t *testing.T) {
	for in, want := range map[string]PlacementMode{"": ModeOptimize, "optimize": ModeOptimize, "uniform": ModeUniform} {
		got, err := ParsePlacementMode(in)
		if err != nil || got != want {
			t.Errorf("ParsePlacementMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePlacementMode("grid"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("unknown mode: err = %v", err)
	}
}

func TestSetViewRecomputes(t *testing.T) {
	s, sched, _ := newTestState(t, model.Floor{Width: 20, Height: 10})
	if _, err := s.AddAntenna(model.Antenna{X: 5, Y: 5, TxDBm: 15, Channel: 1, Enabled: true}); err != nil {
		t.Fatal(err)
	}
	sched.Drain(1000)

	s.SetView(model.ViewSNR)
	sched.Drain(1000)
	f := s.Heatmap().Last()
	if f == nil || f.View != model.ViewSNR || f.Legend != model.DefaultLegend(model.ViewSNR) {
		t.Fatalf("frame after SetView = %+v", f)
	}

	sum, ok := s.Summary(20)
	if !ok || sum.Finite == 0 {
		t.Fatalf("summary = %+v, %v", sum, ok)
	}
}

func TestViewAntennaIsolatesMetric(t *testing.T) {
	s, sched, _ := newTestState(t, model.Floor{Width: 20, Height: 10})
	for _, a := range []model.Antenna{
		{ID: "A", X: 4, Y: 5, TxDBm: 15, Channel: 1, Enabled: true},
		{ID: "B", X: 16, Y: 5, TxDBm: 15, Channel: 6, Enabled: true},
	} {
		if _, err := s.AddAntenna(a); err != nil {
			t.Fatal(err)
		}
	}
	sched.Drain(1000)
	all, ok := s.Summary(-85)
	if !ok {
		t.Fatalf("no frame before isolation")
	}

	if err := s.ViewAntenna("missing"); !errors.Is(err, ErrAntennaNotFound) {
		t.Fatalf("ViewAntenna(missing) = %v, want ErrAntennaNotFound", err)
	}
	if err := s.ViewAntenna("B"); err != nil {
		t.Fatalf("ViewAntenna: %v", err)
	}
	sched.Drain(1000)
	only, ok := s.Summary(-85)
	if !ok || only.Mean >= all.Mean {
		t.Fatalf("isolated mean %.2f should be below combined mean %.2f", only.Mean, all.Mean)
	}

	if err := s.ViewAntenna("B"); err != nil {
		t.Fatal(err)
	}
	if n := sched.Pending(); n != 0 {
		t.Fatalf("unchanged selection scheduled %d frames", n)
	}

	if err := s.ViewAntenna(""); err != nil {
		t.Fatal(err)
	}
	sched.Drain(1000)
	if s.Selection().ViewedID != "" {
		t.Fatalf("selection not cleared")
	}
}

func TestApplyBackendUpdate(t *testing.T) {
	s, sched, _ := newTestState(t, model.Floor{Width: 3, Height: 2})

	u, err := s.ApplyBackendUpdate([]byte(`{"status":"running","rsrp":[-50,-50,-50,-50,-50,-50]}`))
	if err != nil {
		t.Fatalf("ApplyBackendUpdate: %v", err)
	}
	if u.Done() || s.Heatmap().BackendGrid() == nil {
		t.Fatalf("backend grid not installed")
	}
	sched.Drain(1000)
	if f := s.Heatmap().Last(); f == nil || f.Grid.Data[0] != -50 {
		t.Fatalf("frame not driven by backend grid")
	}

	if _, err := s.ApplyBackendUpdate([]byte(`{"status":"running","rsrp":[1,2,3]}`)); !errors.Is(err, heatmap.ErrInvalidBackendGrid) {
		t.Fatalf("misshapen rsrp: err = %v", err)
	}

	u, err = s.ApplyBackendUpdate([]byte(`{"status":"completed","compliance":88}`))
	if err != nil || !u.Done() {
		t.Fatalf("completed update = %+v, %v", u, err)
	}

	s.ClearBackendGrid()
	if s.Heatmap().BackendGrid() != nil {
		t.Fatalf("backend grid still active")
	}
}

func TestCloseDetachesFromStore(t *testing.T) {
	s, sched, _ := newTestState(t, model.Floor{Width: 20, Height: 10})
	s.Close()
	sched.Drain(1000)

	if err := s.Store().AddAntenna(model.Antenna{ID: "x", X: 5, Y: 5, Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if sched.Pending() != 0 {
		t.Fatalf("closed state still reacts to store events")
	}
}

func TestQueriesUseLiveProject(t *testing.T) {
	s, _, _ := newTestState(t, model.Floor{Width: 20, Height: 10})
	if !s.IsFree(model.Point{X: 10, Y: 5}, 0.5, 2) {
		t.Fatalf("centre of an empty floor is not free")
	}
	if _, err := s.AddAntenna(model.Antenna{X: 10, Y: 5, Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if s.IsFree(model.Point{X: 10.5, Y: 5}, 0.5, 2) {
		t.Fatalf("point next to an antenna reported free")
	}
	if n := len(s.SampleFreeArea(1)); n == 0 {
		t.Fatalf("no free samples")
	}
	if got := s.ValidPositions(5, 2); len(got) != 5 {
		t.Fatalf("ValidPositions = %d points", len(got))
	}
	if score := s.Coverage(1); score == 0 {
		t.Fatalf("coverage score is zero with one antenna")
	}
}

func TestRenderReturnsHighResFrame(t *testing.T) {
	s := NewProjectState(kb.NewProjectStore(model.Floor{Width: 10, Height: 6}), core.NewP25DModel(),
		WithHeatmapOptions(heatmap.Options{
			Scheduler:  timectrl.NewFrameClock(0, timectrl.Accelerated),
			Resolution: 0.5,
		}),
	)
	defer s.Close()
	if _, err := s.AddAntenna(model.Antenna{X: 5, Y: 3, TxDBm: 15, Channel: 1, Enabled: true}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f, err := s.Render(ctx)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if f.LowRes || f.AntennaCount != 1 || f.View != model.ViewRSSI {
		t.Fatalf("frame = %+v", f)
	}

	again, err := s.Render(ctx)
	if err != nil || again != f {
		t.Fatalf("second Render did not reuse the cached frame: %v", err)
	}
}

func TestRenderFollowsSupersedingPass(t *testing.T) {
	s, sched, _ := newTestState(t, model.Floor{Width: 20, Height: 10})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		frame *heatmap.Frame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		f, err := s.Render(ctx)
		done <- result{f, err}
	}()

	for !s.Heatmap().Pending() {
		if ctx.Err() != nil {
			t.Fatalf("Render never started a pass")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := s.AddAntenna(model.Antenna{X: 5, Y: 5, TxDBm: 15, Channel: 1, Enabled: true}); err != nil {
		t.Fatal(err)
	}

	for {
		sched.Drain(1000)
		select {
		case r := <-done:
			if r.err != nil {
				t.Fatalf("Render: %v", r.err)
			}
			if r.frame.LowRes || r.frame.AntennaCount != 1 {
				t.Fatalf("frame = low:%v antennas:%d, want the high-res frame for the new antenna", r.frame.LowRes, r.frame.AntennaCount)
			}
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRenderHonoursContext(t *testing.T) {
	s, _, _ := newTestState(t, model.Floor{Width: 20, Height: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Render(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
