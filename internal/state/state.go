package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/heatmap"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/observability"
	"github.com/signalsfoundry/coverage-planner/kb"
	"github.com/signalsfoundry/coverage-planner/model"
)

// Re-export store sentinels so callers can depend on state.* only.
var (
	ErrAntennaExists   = kb.ErrAntennaExists
	ErrAntennaNotFound = kb.ErrAntennaNotFound
	ErrWallExists      = kb.ErrWallExists
	ErrWallNotFound    = kb.ErrWallNotFound
	ErrInvalidCount    = core.ErrInvalidCount
	// ErrInvalidMode indicates an unknown auto-placement mode.
	ErrInvalidMode = errors.New("invalid placement mode")
)

// PlacementMode selects the auto-placement algorithm.
type PlacementMode string

const (
	// ModeOptimize runs the coverage-driven optimizer.
	ModeOptimize PlacementMode = "optimize"
	// ModeUniform runs the deterministic grid layout.
	ModeUniform PlacementMode = "uniform"
)

// ParsePlacementMode validates a mode name; empty means optimize.
func ParsePlacementMode(s string) (PlacementMode, error) {
	switch m := PlacementMode(s); m {
	case ModeOptimize, ModeUniform:
		return m, nil
	case "":
		return ModeOptimize, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// MetricsRecorder receives project gauges and optimizer statistics.
type MetricsRecorder interface {
	core.PlacementRecorder
	SetProjectCounts(antennas, walls int)
}

// ProjectState ties the project store to the planning algorithms and the
// heatmap engine. Every store change invalidates the heatmap and starts a
// progressive refresh.
type ProjectState struct {
	store    *kb.ProjectStore
	model    core.PropagationModel
	defaults model.AntennaDefaults
	noiseDBm float64
	optOpts  []core.OptimizerOption
	heatOpts heatmap.Options

	log     logging.Logger
	metrics MetricsRecorder
	engine  *heatmap.Engine

	// mu guards the presentation fields below; it is never held while
	// calling into the store or the engine.
	mu        sync.RWMutex
	view      model.ViewMode
	selection core.Selection
	onFrame   func(*heatmap.Frame, error)

	unsubscribe func()
}

// Option customises ProjectState construction.
type Option func(*ProjectState)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *ProjectState) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *ProjectState) {
		s.metrics = m
	}
}

// WithOptimizerOptions passes options to every optimizer run.
func WithOptimizerOptions(opts ...core.OptimizerOption) Option {
	return func(s *ProjectState) {
		s.optOpts = append(s.optOpts, opts...)
	}
}

// WithHeatmapOptions configures the heatmap engine. Logger and Metrics are
// filled from the state when left empty.
func WithHeatmapOptions(o heatmap.Options) Option {
	return func(s *ProjectState) {
		s.heatOpts = o
	}
}

// WithAntennaDefaults sets the parameters of synthesised antennas.
func WithAntennaDefaults(d model.AntennaDefaults) Option {
	return func(s *ProjectState) {
		s.defaults = d
	}
}

// WithNoiseFloor overrides the thermal noise floor in dBm.
func WithNoiseFloor(dbm float64) Option {
	return func(s *ProjectState) {
		s.noiseDBm = dbm
	}
}

// WithView sets the initial heatmap view.
func WithView(v model.ViewMode) Option {
	return func(s *ProjectState) {
		s.view = v
	}
}

// WithFrameHandler registers a callback for every completed heatmap frame.
func WithFrameHandler(fn func(*heatmap.Frame, error)) Option {
	return func(s *ProjectState) {
		s.onFrame = fn
	}
}

// NewProjectState wires store, propagation model and heatmap engine. The
// caller owns store and must call Close to detach from it.
func NewProjectState(store *kb.ProjectStore, pm core.PropagationModel, opts ...Option) *ProjectState {
	s := &ProjectState{
		store:    store,
		model:    pm,
		defaults: model.DefaultAntennaParameters(),
		noiseDBm: core.DefaultNoiseDBm,
		view:     model.ViewRSSI,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	ho := s.heatOpts
	if ho.Logger == nil {
		ho.Logger = s.log
	}
	if ho.Metrics == nil {
		if r, ok := s.metrics.(heatmap.Recorder); ok {
			ho.Metrics = r
		}
	}
	s.engine = heatmap.NewEngine(s.PlanningContext, ho)
	s.unsubscribe = store.Subscribe(s.handleEvent)
	s.updateMetrics()
	return s
}

// Close detaches from the store and cancels any heatmap pass in flight.
func (s *ProjectState) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.engine.Invalidate()
}

// Store exposes the underlying project store.
func (s *ProjectState) Store() *kb.ProjectStore {
	return s.store
}

// Heatmap exposes the heatmap engine.
func (s *ProjectState) Heatmap() *heatmap.Engine {
	return s.engine
}

func (s *ProjectState) handleEvent(e kb.Event) {
	s.log.Debug(context.Background(), "project changed",
		logging.String("event", e.Type.String()),
		logging.Int("antennas", e.AntennaCount),
	)
	s.updateMetrics()
	s.Refresh()
}

func (s *ProjectState) updateMetrics() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetProjectCounts(s.store.AntennaCount(), len(s.store.ListWalls()))
}

// PlanningContext builds an immutable snapshot of the current project.
func (s *ProjectState) PlanningContext() core.PlanningContext {
	plan := s.store.Snapshot()
	pc := core.NewPlanningContext(plan.Floor, plan.Walls, plan.Antennas, s.model)
	pc.NoiseDBm = s.noiseDBm
	pc.Defaults = s.defaults

	s.mu.RLock()
	pc.View = s.view
	pc.Select = s.selection
	s.mu.RUnlock()
	return pc
}

// Refresh invalidates the heatmap and starts a low then high resolution pass.
func (s *ProjectState) Refresh() {
	s.mu.RLock()
	cb := s.onFrame
	s.mu.RUnlock()
	s.engine.Refresh(cb)
}

// AntennaDefaults returns the parameters used for synthesised antennas.
func (s *ProjectState) AntennaDefaults() model.AntennaDefaults {
	return s.defaults
}

// View returns the current heatmap view.
func (s *ProjectState) View() model.ViewMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// SetView switches the heatmap metric and refreshes.
func (s *ProjectState) SetView(v model.ViewMode) {
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	s.Refresh()
}

// SetSelection isolates metrics to one antenna and refreshes.
func (s *ProjectState) SetSelection(sel core.Selection) {
	s.mu.Lock()
	s.selection = sel
	s.mu.Unlock()
	s.Refresh()
}

// Selection returns the current antenna isolation.
func (s *ProjectState) Selection() core.Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// ViewAntenna restricts heatmap metrics to antenna id; an empty id shows
// every antenna again. The heatmap refreshes only when the view changes.
func (s *ProjectState) ViewAntenna(id string) error {
	if id != "" {
		if _, err := s.store.GetAntenna(id); err != nil {
			return err
		}
	}
	sel := s.Selection()
	if sel.ViewedID == id && !sel.Highlight {
		return nil
	}
	s.SetSelection(core.Selection{ViewedID: id})
	return nil
}

// SetOptimizing marks a batch optimization as running so the last frame
// stays visible while the project changes underneath it.
func (s *ProjectState) SetOptimizing(on bool) {
	s.engine.SetOptimizing(on)
}

// SetBackendGrid installs an externally computed RSRP grid and refreshes.
func (s *ProjectState) SetBackendGrid(g *heatmap.BackendGrid) error {
	if err := s.engine.SetBackendGrid(g); err != nil {
		return err
	}
	s.Refresh()
	return nil
}

// ClearBackendGrid returns to local evaluation and refreshes.
func (s *ProjectState) ClearBackendGrid() {
	s.engine.ClearBackendGrid()
	s.Refresh()
}

// ApplyBackendUpdate ingests one optimizer progress document. RSRP values
// replace the backend grid; a terminal status ends optimization mode.
func (s *ProjectState) ApplyBackendUpdate(doc []byte) (heatmap.BackendUpdate, error) {
	u, err := heatmap.DecodeBackendUpdate(doc)
	if err != nil {
		return heatmap.BackendUpdate{}, err
	}
	if u.RSRP != nil {
		f := s.store.Floor()
		g, err := heatmap.BuildBackendGrid(u.RSRP, f.Width, f.Height)
		if err != nil {
			return u, err
		}
		if err := s.engine.SetBackendGrid(g); err != nil {
			return u, err
		}
	}
	switch {
	case u.Done():
		s.engine.SetOptimizing(false)
	case u.Status != "":
		s.engine.SetOptimizing(true)
	}
	if u.RSRP != nil || u.Done() {
		s.Refresh()
	}
	s.log.Info(context.Background(), "backend optimization update",
		logging.String("status", u.Status),
		logging.Int("rsrp_values", len(u.RSRP)),
		logging.Float64("compliance", u.Compliance),
	)
	return u, nil
}

// AutoPlace computes count positions with the selected algorithm and
// replaces the project's antennas with new ones at those positions. The
// optimizer plans against an empty antenna set, matching a fresh layout.
// Fewer positions than requested is not an error; see PlacementResult.
func (s *ProjectState) AutoPlace(ctx context.Context, count int, mode PlacementMode) (core.PlacementResult, error) {
	if count < 0 {
		return core.PlacementResult{}, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	if mode == "" {
		mode = ModeOptimize
	}
	if mode != ModeOptimize && mode != ModeUniform {
		return core.PlacementResult{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	ctx, log := logging.WithRequestLogger(ctx, s.log)
	ctx, span := observability.StartSpan(ctx, "state.AutoPlace",
		attribute.Int("placement.count", count),
		attribute.String("placement.mode", string(mode)),
	)
	defer span.End()

	pc := s.PlanningContext().WithAntennas(nil)
	if err := pc.Validate(); err != nil {
		return core.PlacementResult{}, err
	}

	var res core.PlacementResult
	switch mode {
	case ModeUniform:
		start := time.Now()
		res = core.PlacementResult{
			Requested: count,
			Positions: core.NewGridLayoutPlanner(pc).Layout(count),
			Strategy:  core.StrategyLayout,
		}
		res.Duration = time.Since(start)
		if s.metrics != nil {
			s.metrics.ObservePlacement(string(res.Strategy), len(res.Positions), 0, res.Duration)
		}
	default:
		opts := append([]core.OptimizerOption(nil), s.optOpts...)
		if s.metrics != nil {
			opts = append(opts, core.WithPlacementRecorder(s.metrics))
		}
		// Held until the placed antennas are stored so the refresh they
		// trigger keeps the previous frame on screen.
		s.engine.SetOptimizing(true)
		defer s.engine.SetOptimizing(false)
		res = core.NewPlacementOptimizer(pc, opts...).Plan(ctx, count)
	}
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return res, err
	}

	antennas := make([]model.Antenna, len(res.Positions))
	for i, p := range res.Positions {
		antennas[i] = s.defaults.NewAntenna(fmt.Sprintf("ANT%d", i+1), p)
	}
	if err := s.store.ReplaceAntennas(antennas); err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("store placed antennas: %w", err)
	}

	span.SetAttributes(
		attribute.Int("placement.placed", len(res.Positions)),
		attribute.String("placement.strategy", string(res.Strategy)),
	)
	fields := []logging.Field{
		logging.String("mode", string(mode)),
		logging.String("strategy", string(res.Strategy)),
		logging.Int("requested", count),
		logging.Int("placed", len(res.Positions)),
		logging.Int("scored", res.Scored),
		logging.Duration("elapsed", res.Duration),
	}
	switch {
	case len(res.Positions) == 0 && count > 0:
		log.Warn(ctx, "could not find any free area to place antennas", fields...)
	case res.Partial():
		log.Warn(ctx, "placed fewer antennas than requested", fields...)
	default:
		log.Info(ctx, "auto-placement complete", fields...)
	}
	return res, nil
}

// AddAntenna adds an antenna; an empty ID is assigned the next ANTn name.
func (s *ProjectState) AddAntenna(a model.Antenna) (model.Antenna, error) {
	if a.ID == "" {
		a.ID = s.nextAntennaID()
	}
	if err := s.store.AddAntenna(a); err != nil {
		return model.Antenna{}, err
	}
	return a, nil
}

func (s *ProjectState) nextAntennaID() string {
	taken := make(map[string]bool)
	for _, a := range s.store.ListAntennas() {
		taken[a.ID] = true
	}
	for i := len(taken) + 1; ; i++ {
		id := fmt.Sprintf("ANT%d", i)
		if !taken[id] {
			return id
		}
	}
}

// IsFree reports whether p may host an antenna given the current project.
func (s *ProjectState) IsFree(p model.Point, minObstacle, minAntenna float64) bool {
	return s.PlanningContext().IsFree(p, minObstacle, minAntenna)
}

// SampleFreeArea returns the free lattice points of the current project.
func (s *ProjectState) SampleFreeArea(spacing float64) []model.Point {
	return s.PlanningContext().SampleFreeArea(spacing)
}

// ValidPositions lists up to count feasible antenna positions.
func (s *ProjectState) ValidPositions(count int, spacing float64) []model.Point {
	return core.NewPlacementOptimizer(s.PlanningContext(), s.optOpts...).ValidPositions(count, spacing)
}

// Coverage scores the current antenna set over the free area.
func (s *ProjectState) Coverage(sampleSpacing float64) float64 {
	pc := s.PlanningContext()
	return pc.Score(pc.SampleFreeArea(sampleSpacing), pc.Antennas)
}

// Summary reports statistics for the freshest valid heatmap frame.
func (s *ProjectState) Summary(threshold float64) (heatmap.Summary, bool) {
	f, ok := s.engine.Cached(s.store.AntennaCount())
	if !ok {
		return heatmap.Summary{}, false
	}
	return heatmap.Summarize(f.Grid, threshold), true
}

// Render returns a high-resolution frame of the current project, computing
// one if the cache is stale. It blocks until a high-resolution frame for the
// live project is stored or ctx ends. A project change during the pass
// supersedes it and Render waits on the pass that replaces it.
func (s *ProjectState) Render(ctx context.Context) (*heatmap.Frame, error) {
	s.mu.RLock()
	onFrame := s.onFrame
	s.mu.RUnlock()

	failed := make(chan error, 1)
	handler := func(f *heatmap.Frame, err error) {
		if onFrame != nil {
			onFrame(f, err)
		}
		if err != nil {
			select {
			case failed <- err:
			default:
			}
		}
	}

	for {
		updated := s.engine.Updated()
		if f, ok := s.engine.Cached(s.store.AntennaCount()); ok && !f.LowRes && f.View == s.View() {
			return f, nil
		}
		select {
		case err := <-failed:
			return nil, err
		default:
		}
		if !s.engine.Pending() {
			s.engine.ComputeAsync(false, handler)
		}

		select {
		case err := <-failed:
			return nil, err
		case <-updated:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

var _ MetricsRecorder = (*observability.PlannerCollector)(nil)
