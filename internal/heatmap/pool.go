package heatmap

import (
	"context"
	"fmt"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/observability"
	"github.com/signalsfoundry/coverage-planner/model"
)

// Job is the self-contained input of one off-thread heatmap pass.
type Job struct {
	Context    core.PlanningContext
	Cols, Rows int
}

// Pool computes whole grids away from the engine's frame loop.
type Pool interface {
	Compute(ctx context.Context, job Job) (*Grid, error)
}

// WorkerPool splits the lattice into row bands and evaluates them in
// parallel. A panic in any band fails the whole pass.
type WorkerPool struct {
	Workers int
}

// NewWorkerPool returns a pool; workers <= 0 uses GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &WorkerPool{Workers: workers}
}

// Compute implements Pool.
func (p *WorkerPool) Compute(ctx context.Context, job Job) (*Grid, error) {
	if job.Cols <= 0 || job.Rows <= 0 {
		return nil, fmt.Errorf("heatmap job has no cells: %dx%d", job.Cols, job.Rows)
	}
	ctx, span := observability.StartSpan(ctx, "heatmap.WorkerPool.Compute",
		attribute.Int("heatmap.cols", job.Cols),
		attribute.Int("heatmap.rows", job.Rows),
		attribute.String("heatmap.view", string(job.Context.View)),
	)
	defer span.End()

	grid := NewGrid(job.Cols, job.Rows, job.Context.Floor.Width, job.Context.Floor.Height)
	workers := max(1, min(p.Workers, job.Rows))
	band := (job.Rows + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for r0 := 0; r0 < job.Rows; r0 += band {
		r1 := min(r0+band, job.Rows)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("heatmap worker panic in rows %d-%d: %v", r0, r1, r)
				}
			}()
			for r := r0; r < r1; r++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				computeRow(job.Context, grid, nil, r)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return grid, nil
}

// computeRow fills one row of g. When backend is set and the view is RSSI,
// cells it covers are interpolated from it instead of evaluated locally.
func computeRow(pc core.PlanningContext, g *Grid, backend *BackendGrid, r int) {
	useBackend := backend != nil && pc.View == model.ViewRSSI
	for c := 0; c < g.Cols; c++ {
		p := g.CellCenter(c, r)
		if useBackend {
			if v, ok := backend.Sample(p.X, p.Y); ok {
				g.Set(c, r, v)
				continue
			}
		}
		g.Set(c, r, pc.CellValue(p))
	}
}
