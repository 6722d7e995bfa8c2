package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// processService names the empty health service in logs.
const processService = "(process)"

func checkedService(req any) (string, bool) {
	r, ok := req.(*healthpb.HealthCheckRequest)
	if !ok {
		return "", false
	}
	if r.GetService() == "" {
		return processService, true
	}
	return r.GetService(), true
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// LogChecks logs each call with the health service asked about and the answer given.
// SERVING answers go to debug; a degraded sync answer carries the failure that caused it.
func LogChecks(h *Health) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", peerAddr(ctx)),
		}
		level := zap.InfoLevel
		if svc, ok := checkedService(req); ok {
			fields = append(fields, zap.String("service", svc))
			if out, ok := resp.(*healthpb.HealthCheckResponse); ok {
				fields = append(fields, zap.String("answer", out.GetStatus().String()))
				if out.GetStatus() == healthpb.HealthCheckResponse_SERVING {
					level = zap.DebugLevel
				}
			}
			if svc == SyncService {
				if last := h.LastFailure(); last != "" {
					fields = append(fields, zap.String("last_failure", last))
				}
			}
		}
		if err != nil {
			level = zap.WarnLevel
		}
		h.log.Log(level, "grpc", fields...)
		return resp, err
	}
}

// RecoverChecks turns a panicking call into codes.Internal.
func RecoverChecks(h *Health) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				svc, _ := checkedService(req)
				h.log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
					zap.String("service", svc),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}
