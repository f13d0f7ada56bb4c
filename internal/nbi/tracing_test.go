package nbi

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/coverage-planner/internal/logging"
)

func TestTracingInterceptorNamesSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	ic := TracingUnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/" + PlannerServiceName + "/Optimize"}
	ctx := logging.ContextWithRequestID(context.Background(), "req-7")

	req, err := structpb.NewStruct(map[string]any{"count": 3, "mode": "uniform", "extra": "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	denied := status.Error(codes.InvalidArgument, "count too large")
	_, err = ic(ctx, req, info, func(ctx context.Context, _ any) (any, error) {
		_, child := startPlannerSpan(ctx, "Planner/AutoPlace", attribute.Int("placement.count", 3))
		child.End()
		return nil, denied
	})
	if !errors.Is(err, denied) {
		t.Fatalf("err = %v, want the handler error", err)
	}

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	server := spans[1]
	if server.Name() != "Planner/PlannerService/Optimize" {
		t.Fatalf("server span name = %q", server.Name())
	}
	if spans[0].Parent().SpanID() != server.SpanContext().SpanID() {
		t.Fatalf("child span is not parented to the server span")
	}

	attrs := map[attribute.Key]string{}
	for _, kv := range server.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	want := map[attribute.Key]string{
		"rpc.method":           "Optimize",
		"request_id":           "req-7",
		"planner.count":        "3",
		"planner.mode":         "uniform",
		"rpc.grpc.status_code": "3",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
	if _, ok := attrs["planner.extra"]; ok {
		t.Errorf("unexpected planner.extra attribute")
	}
	if server.Status().Code != otelcodes.Error {
		t.Errorf("span status = %v, want Error", server.Status())
	}
	if len(server.Events()) == 0 {
		t.Fatalf("error was not recorded on the server span")
	}
}

func TestTracingInterceptorReusesExistingSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, outer := tp.Tracer("test").Start(context.Background(), "grpc.server")
	ic := TracingUnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/" + PlannerServiceName + "/Heatmap"}
	if _, err := ic(ctx, nil, info, func(context.Context, any) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got := len(rec.Ended()); got != 0 {
		t.Fatalf("interceptor ended %d spans it does not own", got)
	}
	outer.End()

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "Planner/PlannerService/Heatmap" {
		t.Fatalf("spans = %v, want the renamed outer span", spans)
	}
}
