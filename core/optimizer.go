package core

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/signalsfoundry/coverage-planner/model"
)

// Defaults for the placement search.
const (
	DefaultGridSpacing   = 2.0
	DefaultMaxCandidates = 4000

	candidateMinObstacle  = 0.5
	fallbackMinAntenna    = 2.0
	regionInset           = 1.0
	usedRegionPenalty     = 0.2
	fallbackShrinkFactor  = 0.7
	fallbackMinSpacing    = 1.0
	minAntennaSeparation  = 3.0
	hypotheticalAntennaID = "candidate"
)

// Strategy names how a placement result was produced.
type Strategy string

const (
	StrategyNone     Strategy = "none"
	StrategyRegional Strategy = "regional"
	StrategyFallback Strategy = "fallback"
	// StrategyLayout marks positions from the deterministic grid layout.
	StrategyLayout Strategy = "layout"
)

// CandidatePosition is a feasible point tagged with the region it was
// generated in.
type CandidatePosition struct {
	Point  model.Point
	Region int
}

// PlacementResult describes one optimizer run.
type PlacementResult struct {
	Requested  int
	Positions  []model.Point
	Strategy   Strategy
	MinSpacing float64
	// Scored counts coverage evaluations performed.
	Scored   int
	Duration time.Duration
}

// Partial reports whether fewer positions than requested were found.
func (r PlacementResult) Partial() bool {
	return len(r.Positions) < r.Requested
}

// PlacementRecorder receives per-run optimizer statistics.
type PlacementRecorder interface {
	ObservePlacement(strategy string, placed, scored int, d time.Duration)
}

// OptimizerOption customises a PlacementOptimizer.
type OptimizerOption func(*PlacementOptimizer)

// WithGridSpacing sets the candidate lattice pitch.
func WithGridSpacing(s float64) OptimizerOption {
	return func(o *PlacementOptimizer) {
		if s > 0 {
			o.gridSpacing = s
		}
	}
}

// WithSampleSpacing sets the coverage sample lattice pitch.
func WithSampleSpacing(s float64) OptimizerOption {
	return func(o *PlacementOptimizer) {
		if s > 0 {
			o.sampleSpacing = s
		}
	}
}

// WithMaxCandidates caps the number of candidates scored per pass.
func WithMaxCandidates(n int) OptimizerOption {
	return func(o *PlacementOptimizer) {
		if n > 0 {
			o.maxCandidates = n
		}
	}
}

// WithRand injects the random source used to shuffle region order.
func WithRand(r *rand.Rand) OptimizerOption {
	return func(o *PlacementOptimizer) {
		if r != nil {
			o.rng = r
		}
	}
}

// WithPlacementRecorder attaches a metrics recorder.
func WithPlacementRecorder(rec PlacementRecorder) OptimizerOption {
	return func(o *PlacementOptimizer) {
		o.recorder = rec
	}
}

// PlacementOptimizer greedily builds an antenna set that maximises the
// coverage score, spreading antennas over distinct regions first.
type PlacementOptimizer struct {
	pc PlanningContext

	gridSpacing   float64
	sampleSpacing float64
	maxCandidates int
	rng           *rand.Rand
	recorder      PlacementRecorder
}

// NewPlacementOptimizer prepares an optimizer over the given snapshot.
func NewPlacementOptimizer(pc PlanningContext, opts ...OptimizerOption) *PlacementOptimizer {
	o := &PlacementOptimizer{
		pc:            pc,
		gridSpacing:   DefaultGridSpacing,
		sampleSpacing: DefaultSampleSpacing,
		maxCandidates: DefaultMaxCandidates,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

// MinSeparation is the spacing floor enforced between placed antennas for
// a run of count antennas.
func MinSeparation(f model.Floor, count int) float64 {
	return math.Max(
		math.Max(f.Diagonal()/float64(count+1)*0.7, math.Min(f.Width, f.Height)/float64(max(count, 2))*0.8),
		minAntennaSeparation,
	)
}

// Optimize returns up to count positions. It never fails; fewer positions
// than requested means the floor could not accommodate more.
func (o *PlacementOptimizer) Optimize(ctx context.Context, count int) []model.Point {
	return o.Plan(ctx, count).Positions
}

// Plan runs the search and reports how the positions were obtained.
func (o *PlacementOptimizer) Plan(ctx context.Context, count int) (res PlacementResult) {
	start := time.Now()
	res = PlacementResult{Requested: count, Strategy: StrategyNone}
	defer func() {
		res.Duration = time.Since(start)
		if o.recorder != nil {
			o.recorder.ObservePlacement(string(res.Strategy), len(res.Positions), res.Scored, res.Duration)
		}
	}()

	if count <= 0 || o.pc.Validate() != nil {
		return res
	}
	res.MinSpacing = MinSeparation(o.pc.Floor, count)

	samples := o.pc.SampleFreeArea(o.sampleSpacing)
	if len(samples) == 0 {
		return res
	}

	regions := o.regionCandidates(count)
	if len(regions) == 0 {
		o.runFallback(ctx, &res, samples)
		return res
	}

	sess := newPlacementSession(o.pc, samples, res.MinSpacing)
	order := o.shuffledOrder(len(regions))

	for len(sess.selected) < count {
		if ctx.Err() != nil {
			break
		}
		cand, ok := sess.bestInUnusedRegion(regions, order)
		if !ok {
			cand, ok = sess.bestAnyRegion(regions)
		}
		if !ok {
			if len(sess.selected) == 0 {
				res.Scored += sess.scored
				o.runFallback(ctx, &res, samples)
				return res
			}
			break
		}
		sess.commit(cand)
	}

	res.Positions = sess.selected
	res.Scored += sess.scored
	res.Strategy = StrategyRegional
	return res
}

func (o *PlacementOptimizer) runFallback(ctx context.Context, res *PlacementResult, samples []model.Point) {
	positions, scored := o.fallback(ctx, res.Requested, samples, res.MinSpacing)
	res.Positions = positions
	res.Scored += scored
	res.Strategy = StrategyFallback
}

// regionCandidates partitions the floor into an aspect-aware grid of
// regions and enumerates feasible candidates inside each. Only regions
// with at least one candidate are returned.
func (o *PlacementOptimizer) regionCandidates(count int) [][]CandidatePosition {
	f := o.pc.Floor
	cols := int(math.Ceil(math.Sqrt(float64(count) * (f.Width / f.Height))))
	if cols < 1 {
		cols = 1
	}
	rows := int(math.Ceil(float64(count) / float64(cols)))
	regionW := f.Width / float64(cols)
	regionH := f.Height / float64(rows)

	var regions [][]CandidatePosition
	total := 0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			minX, maxX := float64(c)*regionW, float64(c+1)*regionW
			minY, maxY := float64(r)*regionH, float64(r+1)*regionH

			var cands []CandidatePosition
			for x := minX + regionInset; x < maxX-regionInset; x += o.gridSpacing {
				for y := minY + regionInset; y < maxY-regionInset; y += o.gridSpacing {
					p := model.Point{X: x, Y: y}
					if o.pc.IsFree(p, candidateMinObstacle, 0) {
						cands = append(cands, CandidatePosition{Point: p, Region: r*cols + c})
					}
				}
			}
			if len(cands) > 0 {
				regions = append(regions, cands)
				total += len(cands)
			}
		}
	}

	if stride := strideFor(total, o.maxCandidates); stride > 1 {
		for i, cands := range regions {
			regions[i] = thin(cands, stride)
		}
	}
	return regions
}

// shuffledOrder returns a Fisher-Yates permutation of [0,n).
func (o *PlacementOptimizer) shuffledOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := o.rng.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}

func strideFor(total, limit int) int {
	if limit <= 0 || total <= limit {
		return 1
	}
	return int(math.Ceil(float64(total) / float64(limit)))
}

func thin[T any](in []T, stride int) []T {
	out := make([]T, 0, (len(in)+stride-1)/stride)
	for i := 0; i < len(in); i += stride {
		out = append(out, in[i])
	}
	return out
}

// penalize lowers a score by a fixed fraction of its magnitude so that
// reused regions lose ground for negative (dBm sum) scores too. A plain
// multiply by 0.8 would raise a negative sum instead.
func penalize(score float64) float64 {
	return score - usedRegionPenalty*math.Abs(score)
}
