package nbi

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/nbi/types"
	"github.com/signalsfoundry/coverage-planner/internal/observability"
)

const tracerName = "github.com/signalsfoundry/coverage-planner/internal/nbi"

// requestFields are the request fields copied onto spans (as planner.<key>)
// and request loggers.
var requestFields = []string{"count", "mode", "view", "id"}

func spanName(service, method string) string {
	return "Planner/" + service + "/" + method
}

// TracingUnaryServerInterceptor names the server span Planner/<service>/<method>,
// starting one when no otelgrpc handler has. The span carries the gRPC status
// code and the request's count, mode, view and id fields when present.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		span := trace.SpanFromContext(ctx)
		owned := !span.SpanContext().IsValid()
		if owned {
			ctx, span = otel.Tracer(tracerName).Start(ctx, spanName(service, method), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		} else {
			span.SetName(spanName(service, method))
		}

		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
		}
		if id := logging.RequestIDFromContext(ctx); id != "" {
			attrs = append(attrs, attribute.String("request_id", id))
		}
		if msg, ok := req.(*types.Message); ok {
			attrs = append(attrs, requestAttributes(msg)...)
		}
		span.SetAttributes(attrs...)

		resp, err := handler(ctx, req)
		code := status.Code(err)
		span.SetAttributes(attribute.Int("rpc.grpc.status_code", int(code)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, code.String())
		}
		return resp, err
	}
}

func requestAttributes(msg *types.Message) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, key := range requestFields {
		switch k := msg.GetFields()[key].GetKind().(type) {
		case *structpb.Value_NumberValue:
			attrs = append(attrs, attribute.Float64("planner."+key, k.NumberValue))
		case *structpb.Value_StringValue:
			if k.StringValue != "" {
				attrs = append(attrs, attribute.String("planner."+key, k.StringValue))
			}
		}
	}
	return attrs
}

// startPlannerSpan opens a span for work done under an RPC.
func startPlannerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}
