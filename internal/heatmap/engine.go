package heatmap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/observability"
	"github.com/signalsfoundry/coverage-planner/model"
	"github.com/signalsfoundry/coverage-planner/timectrl"
)

// DefaultChunkRows is the number of rows evaluated per cooperative frame.
const DefaultChunkRows = 50

// State is the engine's position in a progressive refresh cycle.
type State int

const (
	StateIdle State = iota
	StateLowResInFlight
	StateHighResInFlight
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLowResInFlight:
		return "low-res in flight"
	case StateHighResInFlight:
		return "high-res in flight"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Frame is one completed heatmap pass.
type Frame struct {
	Grid   *Grid
	View   model.ViewMode
	Legend model.Legend
	LowRes bool
	// AntennaCount is the size of the antenna set the frame was computed
	// for; a frame is only valid while the live set has the same size.
	AntennaCount int
	Generation   uint64
	// Path is the execution path that produced the frame.
	Path string
}

// Recorder receives engine metrics. *observability.PlannerCollector
// satisfies it.
type Recorder interface {
	ObserveHeatmapPass(lowRes bool, path string, d time.Duration)
	IncHeatmapInvalidations()
	IncHeatmapWorkerFailures()
	ObserveHeatmapCacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveHeatmapPass(bool, string, time.Duration) {}
func (nopRecorder) IncHeatmapInvalidations()                       {}
func (nopRecorder) IncHeatmapWorkerFailures()                      {}
func (nopRecorder) ObserveHeatmapCacheLookup(bool)                 {}

// Options configures an Engine. Zero values pick defaults.
type Options struct {
	Resolution        float64
	HighResMultiplier float64
	ChunkRows         int
	Scheduler         timectrl.FrameScheduler
	// Pool is optional; without it every pass runs cooperatively.
	Pool    Pool
	Logger  logging.Logger
	Metrics Recorder
}

// Engine computes heatmaps progressively: a low-resolution pass followed by
// a high-resolution one. Starting a pass supersedes any pass in flight, and
// a superseded pass never reaches the cache.
type Engine struct {
	snapshot func() core.PlanningContext

	resolution float64
	mult       float64
	chunkRows  int
	sched      timectrl.FrameScheduler
	pool       Pool
	log        logging.Logger
	metrics    Recorder

	mu           sync.Mutex
	gen          uint64
	state        State
	cancelFrame  func()
	cancelWorker context.CancelFunc
	cache        *Frame
	cacheValid   bool
	optimizing   bool
	dragging     bool
	backend      *BackendGrid
	poolDisabled bool
	// updated is closed and replaced whenever the cache or state changes.
	updated chan struct{}
}

// NewEngine builds an engine reading its inputs from snapshot at the start
// of every pass.
func NewEngine(snapshot func() core.PlanningContext, opts Options) *Engine {
	e := &Engine{
		snapshot:   snapshot,
		resolution: opts.Resolution,
		mult:       opts.HighResMultiplier,
		chunkRows:  opts.ChunkRows,
		sched:      opts.Scheduler,
		pool:       opts.Pool,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		updated:    make(chan struct{}),
	}
	if e.resolution <= 0 {
		e.resolution = DefaultResolution
	}
	if e.mult < 1 {
		e.mult = DefaultHighResMultiplier
	}
	if e.chunkRows <= 0 {
		e.chunkRows = DefaultChunkRows
	}
	if e.sched == nil {
		e.sched = timectrl.NewFrameClock(timectrl.DefaultFrameInterval, timectrl.RealTime)
	}
	if e.log == nil {
		e.log = logging.Noop()
	}
	if e.metrics == nil {
		e.metrics = nopRecorder{}
	}
	return e
}

// Invalidate cancels any pass in flight and marks the cache stale. The
// cached frame itself is kept while an optimization is running so the
// last picture stays on screen.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.invalidateLocked()
	e.mu.Unlock()
	e.metrics.IncHeatmapInvalidations()
}

func (e *Engine) invalidateLocked() {
	e.gen++
	e.stopLocked()
	e.state = StateIdle
	e.cacheValid = false
	if !e.optimizing {
		e.cache = nil
	}
	e.notifyLocked()
}

func (e *Engine) notifyLocked() {
	close(e.updated)
	e.updated = make(chan struct{})
}

// Updated returns a channel closed at the next cache or state change:
// a stored frame, a failed pass or an invalidation.
func (e *Engine) Updated() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updated
}

func (e *Engine) stopLocked() {
	if e.cancelFrame != nil {
		e.cancelFrame()
		e.cancelFrame = nil
	}
	if e.cancelWorker != nil {
		e.cancelWorker()
		e.cancelWorker = nil
	}
}

// Refresh invalidates and starts a progressive low then high resolution
// pass. onComplete may be nil.
func (e *Engine) Refresh(onComplete func(*Frame, error)) {
	e.Invalidate()
	e.ComputeAsync(true, onComplete)
}

// ComputeAsync starts a pass and returns immediately. onComplete runs once
// per stored frame; after a low-resolution frame the engine chains to a
// high-resolution pass. It is also called with an error when a pass fails
// outright.
func (e *Engine) ComputeAsync(lowRes bool, onComplete func(*Frame, error)) {
	if onComplete == nil {
		onComplete = func(*Frame, error) {}
	}
	pc := e.snapshot()
	if err := pc.Validate(); err != nil {
		e.mu.Lock()
		e.gen++
		e.stopLocked()
		e.state = StateIdle
		e.mu.Unlock()
		onComplete(nil, err)
		e.notify()
		return
	}
	mult := 1.0
	if !lowRes {
		mult = e.mult
	}
	cols, rows := Dimensions(pc.Floor, e.resolution, mult)

	e.mu.Lock()
	e.gen++
	e.stopLocked()
	gen := e.gen
	if lowRes {
		e.state = StateLowResInFlight
	} else {
		e.state = StateHighResInFlight
	}
	useWorker := e.pool != nil && !e.poolDisabled && !e.dragging && e.backend == nil
	backend := e.backend
	e.mu.Unlock()

	p := &pass{
		gen:        gen,
		lowRes:     lowRes,
		pc:         pc,
		cols:       cols,
		rows:       rows,
		backend:    backend,
		onComplete: onComplete,
		started:    time.Now(),
	}
	if useWorker {
		e.runWorker(p)
		return
	}
	e.runCooperative(p)
}

type pass struct {
	gen        uint64
	lowRes     bool
	pc         core.PlanningContext
	cols, rows int
	backend    *BackendGrid
	onComplete func(*Frame, error)
	started    time.Time
}

func (e *Engine) runWorker(p *pass) {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if e.gen != p.gen {
		e.mu.Unlock()
		cancel()
		return
	}
	e.cancelWorker = cancel
	e.mu.Unlock()

	go func() {
		defer cancel()
		grid, err := e.pool.Compute(ctx, Job{Context: p.pc, Cols: p.cols, Rows: p.rows})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.workerFailed(p, err)
			return
		}
		e.finish(p, grid, observability.PathWorker)
	}()
}

// workerFailed disables the pool for the rest of the engine's life and
// reruns the pass cooperatively.
func (e *Engine) workerFailed(p *pass, err error) {
	e.mu.Lock()
	if e.gen != p.gen {
		e.mu.Unlock()
		return
	}
	first := !e.poolDisabled
	e.poolDisabled = true
	e.cancelWorker = nil
	e.mu.Unlock()

	if first {
		e.log.Warn(context.Background(), "heatmap worker failed, falling back to cooperative rendering",
			logging.Err(err),
			logging.Bool("low_res", p.lowRes),
		)
		e.metrics.IncHeatmapWorkerFailures()
	}
	p.started = time.Now()
	e.runCooperative(p)
}

func (e *Engine) runCooperative(p *pass) {
	grid := NewGrid(p.cols, p.rows, p.pc.Floor.Width, p.pc.Floor.Height)
	row := 0

	var step func()
	step = func() {
		e.mu.Lock()
		current := e.gen == p.gen
		e.mu.Unlock()
		if !current {
			return
		}

		end := min(row+e.chunkRows, p.rows)
		if err := computeRows(p.pc, grid, p.backend, row, end); err != nil {
			e.fail(p, err)
			return
		}
		row = end
		if row < p.rows {
			e.schedule(p.gen, step)
			return
		}
		e.finish(p, grid, observability.PathCooperative)
	}
	e.schedule(p.gen, step)
}

func computeRows(pc core.PlanningContext, g *Grid, backend *BackendGrid, r0, r1 int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("heatmap rows %d-%d: %v", r0, r1, r)
		}
	}()
	for r := r0; r < r1; r++ {
		computeRow(pc, g, backend, r)
	}
	return nil
}

// schedule requests fn on the next frame if gen is still current.
func (e *Engine) schedule(gen uint64, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return
	}
	e.cancelFrame = e.sched.RequestFrame(fn)
}

func (e *Engine) fail(p *pass, err error) {
	e.mu.Lock()
	if e.gen != p.gen {
		e.mu.Unlock()
		return
	}
	e.state = StateIdle
	e.cancelFrame = nil
	e.mu.Unlock()

	e.log.Error(context.Background(), "heatmap pass failed", logging.Err(err), logging.Bool("low_res", p.lowRes))
	p.onComplete(nil, err)
	e.notify()
}

func (e *Engine) notify() {
	e.mu.Lock()
	e.notifyLocked()
	e.mu.Unlock()
}

func (e *Engine) finish(p *pass, grid *Grid, path string) {
	frame := &Frame{
		Grid:         grid,
		View:         p.pc.View,
		Legend:       model.DefaultLegend(p.pc.View),
		LowRes:       p.lowRes,
		AntennaCount: len(p.pc.Antennas),
		Generation:   p.gen,
		Path:         path,
	}
	if p.backend != nil && p.pc.View == model.ViewRSSI {
		frame.Path = observability.PathBackend
	}

	e.mu.Lock()
	if e.gen != p.gen {
		e.mu.Unlock()
		return
	}
	e.cache = frame
	e.cacheValid = true
	e.cancelFrame = nil
	e.cancelWorker = nil
	if p.lowRes {
		e.state = StateHighResInFlight
	} else {
		e.state = StateDone
	}
	e.notifyLocked()
	e.mu.Unlock()

	elapsed := time.Since(p.started)
	e.metrics.ObserveHeatmapPass(p.lowRes, frame.Path, elapsed)
	_, span := observability.StartSpan(context.Background(), "heatmap.Engine.pass",
		attribute.Bool("heatmap.low_res", p.lowRes),
		attribute.String("heatmap.path", frame.Path),
		attribute.Int("heatmap.cols", grid.Cols),
		attribute.Int("heatmap.rows", grid.Rows),
	)
	span.End()
	e.log.Debug(context.Background(), "heatmap pass complete",
		logging.Bool("low_res", p.lowRes),
		logging.String("path", frame.Path),
		logging.Int("cols", grid.Cols),
		logging.Int("rows", grid.Rows),
		logging.Duration("elapsed", elapsed),
	)

	p.onComplete(frame, nil)

	if p.lowRes {
		e.schedule(p.gen, func() {
			e.mu.Lock()
			current := e.gen == p.gen
			e.mu.Unlock()
			if current {
				e.ComputeAsync(false, p.onComplete)
			}
		})
	}
}

// Cached returns the stored frame if it was computed for liveAntennas
// antennas and nothing has invalidated it since.
func (e *Engine) Cached(liveAntennas int) (*Frame, bool) {
	e.mu.Lock()
	f := e.cache
	ok := f != nil && e.cacheValid && f.AntennaCount == liveAntennas
	e.mu.Unlock()
	e.metrics.ObserveHeatmapCacheLookup(ok)
	if !ok {
		return nil, false
	}
	return f, true
}

// Last returns the most recent frame even if stale, e.g. the frame kept
// on screen during an optimization.
func (e *Engine) Last() *Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache
}

// Pending reports whether a pass is in flight.
func (e *Engine) Pending() bool {
	s := e.State()
	return s == StateLowResInFlight || s == StateHighResInFlight
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// WorkerDisabled reports whether a worker failure downgraded the engine.
func (e *Engine) WorkerDisabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.poolDisabled
}

// SetOptimizing toggles cache preservation during batch optimization.
func (e *Engine) SetOptimizing(on bool) {
	e.mu.Lock()
	e.optimizing = on
	e.mu.Unlock()
}

// SetDragging keeps passes on the cooperative path while an antenna is
// being moved.
func (e *Engine) SetDragging(on bool) {
	e.mu.Lock()
	e.dragging = on
	e.mu.Unlock()
}

// SetBackendGrid installs an externally computed RSRP grid. RSSI passes
// interpolate it instead of evaluating the propagation model.
func (e *Engine) SetBackendGrid(b *BackendGrid) error {
	if b == nil {
		return fmt.Errorf("%w: nil grid", ErrInvalidBackendGrid)
	}
	if _, err := NewBackendGrid(b.Cols, b.Rows, b.DX, b.DY, b.Data); err != nil {
		return err
	}
	e.mu.Lock()
	e.backend = b
	e.mu.Unlock()
	return nil
}

// ClearBackendGrid returns RSSI passes to local evaluation.
func (e *Engine) ClearBackendGrid() {
	e.mu.Lock()
	e.backend = nil
	e.mu.Unlock()
}

// BackendGrid returns the active backend grid, if any.
func (e *Engine) BackendGrid() *BackendGrid {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend
}
