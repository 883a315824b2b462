package grpc

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	grpcgo "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"minigolf/engine/internal/logging"
)

// SharedSecretMetadataKey carries the pre-shared key on incoming calls.
const SharedSecretMetadataKey = "x-golf-shared-secret"

// traceMetadataKey mirrors the HTTP trace header for RPC callers.
const traceMetadataKey = "x-trace-id"

// ServerOptions assembles the interceptors every simulation server installs. An empty
// secret leaves the service unauthenticated.
func ServerOptions(secret string, logger *logging.Logger) []grpcgo.ServerOption {
	if logger == nil {
		logger = logging.L()
	}
	unary := []grpcgo.UnaryServerInterceptor{unaryTraceInterceptor(logger)}
	stream := []grpcgo.StreamServerInterceptor{streamTraceInterceptor(logger)}
	if normalized := strings.TrimSpace(secret); normalized != "" {
		unary = append(unary, unarySecretInterceptor(normalized))
		stream = append(stream, streamSecretInterceptor(normalized))
		logger.Info("gRPC shared-secret authentication enabled")
	}
	return []grpcgo.ServerOption{
		grpcgo.ChainUnaryInterceptor(unary...),
		grpcgo.ChainStreamInterceptor(stream...),
	}
}

func unarySecretInterceptor(secret string) grpcgo.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpcgo.UnaryServerInfo, handler grpcgo.UnaryHandler) (any, error) {
		if err := authorize(ctx, secret); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func streamSecretInterceptor(secret string) grpcgo.StreamServerInterceptor {
	return func(srv any, ss grpcgo.ServerStream, _ *grpcgo.StreamServerInfo, handler grpcgo.StreamHandler) error {
		if err := authorize(ss.Context(), secret); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func authorize(ctx context.Context, secret string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	candidate := extractSharedSecret(md)
	if candidate == "" {
		return status.Error(codes.Unauthenticated, "missing shared secret")
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid shared secret")
	}
	return nil
}

func extractSharedSecret(md metadata.MD) string {
	for _, value := range md.Get(SharedSecretMetadataKey) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	for _, value := range md.Get("authorization") {
		if strings.HasPrefix(strings.ToLower(value), "bearer ") {
			if token := strings.TrimSpace(value[7:]); token != "" {
				return token
			}
		}
	}
	return ""
}

func incomingTraceID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(traceMetadataKey) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func unaryTraceInterceptor(base *logging.Logger) grpcgo.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpcgo.UnaryServerInfo, handler grpcgo.UnaryHandler) (any, error) {
		ctx, logger, _ := logging.WithTrace(ctx, base, incomingTraceID(ctx))
		started := time.Now()
		resp, err := handler(ctx, req)
		logCall(logger, info.FullMethod, started, err)
		return resp, err
	}
}

func streamTraceInterceptor(base *logging.Logger) grpcgo.StreamServerInterceptor {
	return func(srv any, ss grpcgo.ServerStream, info *grpcgo.StreamServerInfo, handler grpcgo.StreamHandler) error {
		ctx, logger, _ := logging.WithTrace(ss.Context(), base, incomingTraceID(ss.Context()))
		started := time.Now()
		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		logCall(logger, info.FullMethod, started, err)
		return err
	}
}

func logCall(logger *logging.Logger, method string, started time.Time, err error) {
	fields := []logging.Field{
		logging.String("method", method),
		logging.String("code", status.Code(err).String()),
		logging.Duration("elapsed", time.Since(started)),
	}
	if err != nil {
		logger.Warn("rpc failed", append(fields, logging.Error(err))...)
		return
	}
	logger.Debug("rpc served", fields...)
}

// tracedStream swaps in the context carrying the trace identifier.
type tracedStream struct {
	grpcgo.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context {
	return s.ctx
}
