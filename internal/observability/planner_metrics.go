package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Heatmap pass labels.
const (
	ResolutionLow  = "low"
	ResolutionHigh = "high"

	PathWorker      = "worker"
	PathCooperative = "cooperative"
	PathBackend     = "backend"
)

func (c *PlannerCollector) registerPlanning(reg prometheus.Registerer) error {
	var err error
	if c.OptimizerRuns, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_optimizer_runs_total",
		Help: "Placement optimizer runs, labeled by the strategy that produced the result.",
	}, []string{"strategy"}), "planner_optimizer_runs_total"); err != nil {
		return err
	}
	if c.OptimizerDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_optimizer_duration_seconds",
		Help:    "Wall-clock duration of placement optimizer runs.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}), "planner_optimizer_duration_seconds"); err != nil {
		return err
	}
	if c.CandidatesScored, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_candidates_scored_total",
		Help: "Coverage evaluations performed by the optimizer.",
	}), "planner_candidates_scored_total"); err != nil {
		return err
	}
	if c.AntennasPlaced, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_antennas_placed",
		Help:    "Antennas placed per optimizer run.",
		Buckets: prometheus.LinearBuckets(0, 2, 11),
	}), "planner_antennas_placed"); err != nil {
		return err
	}
	if c.HeatmapPassDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_heatmap_pass_duration_seconds",
		Help:    "Duration of completed heatmap passes.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"resolution", "path"}), "planner_heatmap_pass_duration_seconds"); err != nil {
		return err
	}
	if c.HeatmapInvalidations, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_heatmap_invalidations_total",
		Help: "Heatmap cache invalidations.",
	}), "planner_heatmap_invalidations_total"); err != nil {
		return err
	}
	if c.HeatmapWorkerFailures, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_heatmap_worker_failures_total",
		Help: "Worker pool failures that downgraded the engine to cooperative computation.",
	}), "planner_heatmap_worker_failures_total"); err != nil {
		return err
	}
	if c.HeatmapCacheLookups, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_heatmap_cache_lookups_total",
		Help: "Renderer reads of the cached heatmap, labeled hit or stale.",
	}, []string{"result"}), "planner_heatmap_cache_lookups_total"); err != nil {
		return err
	}
	return nil
}

// ObservePlacement records one optimizer run. An empty result is labeled
// "empty" whatever strategy was attempted.
func (c *PlannerCollector) ObservePlacement(strategy string, placed, scored int, d time.Duration) {
	if c == nil {
		return
	}
	if placed == 0 {
		strategy = "empty"
	}
	if c.OptimizerRuns != nil {
		c.OptimizerRuns.WithLabelValues(strategy).Inc()
	}
	if c.OptimizerDuration != nil {
		c.OptimizerDuration.Observe(d.Seconds())
	}
	if c.CandidatesScored != nil {
		c.CandidatesScored.Add(float64(scored))
	}
	if c.AntennasPlaced != nil {
		c.AntennasPlaced.Observe(float64(placed))
	}
}

// ObserveHeatmapPass records a completed heatmap pass.
func (c *PlannerCollector) ObserveHeatmapPass(lowRes bool, path string, d time.Duration) {
	if c == nil || c.HeatmapPassDuration == nil {
		return
	}
	res := ResolutionHigh
	if lowRes {
		res = ResolutionLow
	}
	c.HeatmapPassDuration.WithLabelValues(res, path).Observe(d.Seconds())
}

// IncHeatmapInvalidations increments the invalidation counter.
func (c *PlannerCollector) IncHeatmapInvalidations() {
	if c == nil || c.HeatmapInvalidations == nil {
		return
	}
	c.HeatmapInvalidations.Inc()
}

// IncHeatmapWorkerFailures increments the worker failure counter.
func (c *PlannerCollector) IncHeatmapWorkerFailures() {
	if c == nil || c.HeatmapWorkerFailures == nil {
		return
	}
	c.HeatmapWorkerFailures.Inc()
}

// ObserveHeatmapCacheLookup counts a renderer cache read.
func (c *PlannerCollector) ObserveHeatmapCacheLookup(hit bool) {
	if c == nil || c.HeatmapCacheLookups == nil {
		return
	}
	result := "stale"
	if hit {
		result = "hit"
	}
	c.HeatmapCacheLookups.WithLabelValues(result).Inc()
}
