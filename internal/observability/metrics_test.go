package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestCollector(t *testing.T) (*PlannerCollector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}
	return collector, reg
}

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	collector, reg := newTestCollector(t)

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/coverage.planner.v1.PlannerService/Optimize"}

	_, err := interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("PlannerService", "Optimize", "OK")); got != 1 {
		t.Fatalf("planner_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "planner_request_duration_seconds", map[string]string{
		"service": "PlannerService",
		"method":  "Optimize",
	}); count != 1 {
		t.Fatalf("planner_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	collector, _ := newTestCollector(t)

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/coverage.planner.v1.PlannerService/RemoveAntenna"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("PlannerService", "RemoveAntenna", "NotFound")); got != 1 {
		t.Fatalf("planner_requests_total error label = %v, want 1", got)
	}
}

func TestObservePlacement(t *testing.T) {
	collector, reg := newTestCollector(t)

	collector.ObservePlacement("regional", 3, 120, 40*time.Millisecond)
	collector.ObservePlacement("fallback", 0, 8, time.Millisecond)

	if got := testutil.ToFloat64(collector.OptimizerRuns.WithLabelValues("regional")); got != 1 {
		t.Fatalf("regional runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.OptimizerRuns.WithLabelValues("empty")); got != 1 {
		t.Fatalf("empty runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.CandidatesScored); got != 128 {
		t.Fatalf("candidates scored = %v, want 128", got)
	}
	if count := histogramSampleCount(t, reg, "planner_optimizer_duration_seconds", nil); count != 2 {
		t.Fatalf("optimizer duration samples = %d, want 2", count)
	}
}

func TestHeatmapMetrics(t *testing.T) {
	collector, reg := newTestCollector(t)

	collector.ObserveHeatmapPass(true, PathCooperative, 10*time.Millisecond)
	collector.ObserveHeatmapPass(false, PathWorker, 20*time.Millisecond)
	collector.IncHeatmapInvalidations()
	collector.IncHeatmapWorkerFailures()
	collector.ObserveHeatmapCacheLookup(true)
	collector.ObserveHeatmapCacheLookup(false)
	collector.ObserveHeatmapCacheLookup(false)

	if count := histogramSampleCount(t, reg, "planner_heatmap_pass_duration_seconds", map[string]string{
		"resolution": ResolutionLow,
		"path":       PathCooperative,
	}); count != 1 {
		t.Fatalf("low-res cooperative samples = %d, want 1", count)
	}
	if got := testutil.ToFloat64(collector.HeatmapInvalidations); got != 1 {
		t.Fatalf("invalidations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.HeatmapWorkerFailures); got != 1 {
		t.Fatalf("worker failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.HeatmapCacheLookups.WithLabelValues("stale")); got != 2 {
		t.Fatalf("stale lookups = %v, want 2", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *PlannerCollector
	c.ObservePlacement("regional", 1, 1, time.Second)
	c.ObserveHeatmapPass(true, PathWorker, time.Second)
	c.IncHeatmapInvalidations()
	c.IncHeatmapWorkerFailures()
	c.ObserveHeatmapCacheLookup(true)
	c.SetProjectCounts(1, 2)
	if c.Gatherer() != nil {
		t.Fatalf("nil collector returned a gatherer")
	}
}

func TestRegistrationReusesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("first NewPlannerCollector: %v", err)
	}
	second, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("second NewPlannerCollector: %v", err)
	}
	second.IncHeatmapInvalidations()
	if got := testutil.ToFloat64(first.HeatmapInvalidations); got != 1 {
		t.Fatalf("collectors not shared: %v", got)
	}
}

func TestMetricsHandlerExposesProjectGauges(t *testing.T) {
	collector, _ := newTestCollector(t)
	collector.SetProjectCounts(7, 12)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, line := range []string{
		"planner_antennas 7",
		"planner_walls 12",
		"planner_requests_total",
		"planner_request_duration_seconds",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in /metrics output", line)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct{ in, service, method string }{
		{"/coverage.planner.v1.PlannerService/Heatmap", "PlannerService", "Heatmap"},
		{"PlannerService/Layout", "PlannerService", "Layout"},
		{"", "unknown", "unknown"},
		{"/nomethod", "unknown", "unknown"},
	}
	for _, tc := range cases {
		s, m := SplitMethod(tc.in)
		if s != tc.service || m != tc.method {
			t.Errorf("SplitMethod(%q) = %q, %q; want %q, %q", tc.in, s, m, tc.service, tc.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
