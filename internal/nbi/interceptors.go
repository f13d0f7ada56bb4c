package nbi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/nbi/types"
	"github.com/signalsfoundry/coverage-planner/internal/observability"
)

const requestIDMetadataKey = "x-request-id"

// RequestIDUnaryServerInterceptor honours an inbound x-request-id header,
// mints one otherwise, and echoes it back as a response header. Handlers
// get a logger tagged with request_id, the RPC and the planner request
// fields (count, mode, view, id), and every call ends with a debug line
// carrying its status code.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		if incoming := firstHeader(md, requestIDMetadataKey); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}

		_, method := observability.SplitMethod(info.FullMethod)
		fields := []logging.Field{logging.String("rpc", method)}
		if msg, ok := req.(*types.Message); ok {
			fields = append(fields, requestLogFields(msg)...)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(fields...))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		// No transport stream outside a real server; the header is best effort.
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, logging.RequestIDFromContext(ctx)))

		start := time.Now()
		resp, err := handler(ctx, req)
		done := []logging.Field{
			logging.String("code", status.Code(err).String()),
			logging.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			done = append(done, logging.Err(err))
		}
		reqLog.Debug(ctx, "rpc finished", done...)
		return resp, err
	}
}

func requestLogFields(msg *types.Message) []logging.Field {
	var fields []logging.Field
	for _, key := range requestFields {
		switch k := msg.GetFields()[key].GetKind().(type) {
		case *structpb.Value_NumberValue:
			fields = append(fields, logging.Float64(key, k.NumberValue))
		case *structpb.Value_StringValue:
			if k.StringValue != "" {
				fields = append(fields, logging.String(key, k.StringValue))
			}
		}
	}
	return fields
}

func firstHeader(md metadata.MD, key string) string {
	for _, v := range md.Get(key) {
		if v != "" {
			return v
		}
	}
	return ""
}
