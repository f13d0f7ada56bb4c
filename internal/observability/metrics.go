package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// PlannerCollector bundles the Prometheus metrics of the planner: the gRPC
// surface, the optimizer, the heatmap engine and project gauges. A nil
// collector is a valid no-op.
type PlannerCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	OptimizerRuns     *prometheus.CounterVec
	OptimizerDuration prometheus.Histogram
	CandidatesScored  prometheus.Counter
	AntennasPlaced    prometheus.Histogram

	HeatmapPassDuration   *prometheus.HistogramVec
	HeatmapInvalidations  prometheus.Counter
	HeatmapWorkerFailures prometheus.Counter
	HeatmapCacheLookups   *prometheus.CounterVec

	ProjectAntennas prometheus.Gauge
	ProjectWalls    prometheus.Gauge
}

// NewPlannerCollector registers planner metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPlannerCollector(reg prometheus.Registerer) (*PlannerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &PlannerCollector{gatherer: gatherer}
	var err error

	if c.RPCRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_requests_total",
		Help: "Total number of handled planner RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "planner_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_request_duration_seconds",
		Help:    "Planner RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "planner_request_duration_seconds"); err != nil {
		return nil, err
	}
	if err := c.registerPlanning(reg); err != nil {
		return nil, err
	}
	if c.ProjectAntennas, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_antennas",
		Help: "Current number of antennas in the project.",
	}), "planner_antennas"); err != nil {
		return nil, err
	}
	if c.ProjectWalls, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_walls",
		Help: "Current number of walls in the project.",
	}), "planner_walls"); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PlannerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *PlannerCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PlannerCollector) Handler() http.Handler {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetProjectCounts drives the project gauges from store events.
func (c *PlannerCollector) SetProjectCounts(antennas, walls int) {
	if c == nil {
		return
	}
	if c.ProjectAntennas != nil {
		c.ProjectAntennas.Set(float64(antennas))
	}
	if c.ProjectWalls != nil {
		c.ProjectWalls.Set(float64(walls))
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if fullMethod == "" || len(parts) < 2 {
		return "unknown", "unknown"
	}
	service, method := parts[len(parts)-2], parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds c to reg, reusing an already registered collector of the
// same type.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
