package rpcserver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDKey is the metadata key carrying a caller-supplied request id.
const RequestIDKey = "x-request-id"

// unaryLogger logs one line per RPC and echoes the request id back in the
// response header.
func unaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		requestID := incomingRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, requestID))

		resp, err := handler(ctx, req)

		fields := []any{
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
		}
		if err != nil {
			logger.Warn("grpc request failed", append(fields, "error", status.Convert(err).Message())...)
			return resp, err
		}
		logger.Info("grpc request", fields...)
		return resp, nil
	}
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, v := range md.Get(RequestIDKey) {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return uuid.NewString()
}
