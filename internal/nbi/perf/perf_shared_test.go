//go:build perf || perf_large

package perf

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/heatmap"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/nbi"
	"github.com/signalsfoundry/coverage-planner/internal/state"
	"github.com/signalsfoundry/coverage-planner/kb"
	"github.com/signalsfoundry/coverage-planner/model"
	"github.com/signalsfoundry/coverage-planner/timectrl"
)

type perfConfig struct {
	Width, Height float64
	// Walls are interior partitions spaced evenly along the width.
	Walls    int
	Antennas int
	Workers  int
}

func newProject(cfg perfConfig) *kb.ProjectStore {
	store := kb.NewProjectStore(model.Floor{Width: cfg.Width, Height: cfg.Height})
	for i := 1; i <= cfg.Walls; i++ {
		x := cfg.Width * float64(i) / float64(cfg.Walls+1)
		_ = store.AddWall(model.Wall{
			ID:     fmt.Sprintf("wall-%d", i),
			Points: []model.Point{{X: x, Y: 0}, {X: x, Y: cfg.Height * 0.7}},
		})
	}
	return store
}

func newService(b *testing.B, cfg perfConfig) (*nbi.PlannerService, *state.ProjectState) {
	b.Helper()
	opts := heatmap.Options{Scheduler: timectrl.NewFrameClock(0, timectrl.Accelerated)}
	if cfg.Workers > 0 {
		opts.Pool = heatmap.NewWorkerPool(cfg.Workers)
	}
	st := state.NewProjectState(newProject(cfg), core.NewP25DModel(),
		state.WithHeatmapOptions(opts),
		state.WithOptimizerOptions(core.WithRand(rand.New(rand.NewSource(1)))),
	)
	b.Cleanup(st.Close)
	return nbi.NewPlannerService(st, logging.Noop()), st
}

func countRequest(b *testing.B, n int, mode string) *structpb.Struct {
	b.Helper()
	s, err := structpb.NewStruct(map[string]any{"count": n, "mode": mode})
	if err != nil {
		b.Fatalf("NewStruct: %v", err)
	}
	return s
}

func benchmarkOptimize(b *testing.B, cfg perfConfig) {
	ctx := context.Background()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		svc, _ := newService(b, cfg)
		req := countRequest(b, cfg.Antennas, "optimize")

		b.ResetTimer()
		if _, err := svc.Optimize(ctx, req); err != nil {
			b.Fatalf("Optimize: %v", err)
		}
		b.StopTimer()
	}
}

func benchmarkLayout(b *testing.B, cfg perfConfig) {
	ctx := context.Background()
	svc, _ := newService(b, cfg)
	req := countRequest(b, cfg.Antennas, "uniform")
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := svc.Layout(ctx, req); err != nil {
			b.Fatalf("Layout: %v", err)
		}
	}
}

func benchmarkHeatmap(b *testing.B, cfg perfConfig) {
	ctx := context.Background()
	svc, st := newService(b, cfg)
	if _, err := st.AutoPlace(ctx, cfg.Antennas, state.ModeUniform); err != nil {
		b.Fatalf("AutoPlace: %v", err)
	}
	req := &structpb.Struct{}
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		// Invalidate so every iteration renders a fresh frame.
		st.Heatmap().Invalidate()
		if _, err := svc.Heatmap(ctx, req); err != nil {
			b.Fatalf("Heatmap: %v", err)
		}
	}
}
