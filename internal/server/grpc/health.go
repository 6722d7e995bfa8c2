package grpcserver

import (
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SyncService is the health service name that tracks the outcome of sync runs.
const SyncService = "accessgov.sync"

// Health reports process liveness ("") and the last sync outcome (SyncService).
type Health struct {
	srv *health.Server
	log *zap.Logger

	mu          sync.Mutex
	lastFailure string
}

// NewHealth returns a health server with both services SERVING.
func NewHealth(log *zap.Logger) *Health {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Health{srv: health.NewServer(), log: log}
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.srv.SetServingStatus(SyncService, healthpb.HealthCheckResponse_SERVING)
	return h
}

// Observe records a finished run. Failed runs flip SyncService to NOT_SERVING
// until the next successful run.
func (h *Health) Observe(err error) {
	st := healthpb.HealthCheckResponse_SERVING
	failure := ""
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		failure = err.Error()
		h.log.Warn("sync health degraded", zap.Error(err))
	}
	h.mu.Lock()
	h.lastFailure = failure
	h.mu.Unlock()
	h.srv.SetServingStatus(SyncService, st)
}

// LastFailure returns the error of the last run if it failed, or "".
func (h *Health) LastFailure() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastFailure
}

// Shutdown marks every service NOT_SERVING.
func (h *Health) Shutdown() { h.srv.Shutdown() }

// New builds a gRPC server serving h, with panic recovery and per-check logging.
func New(h *Health, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		RecoverChecks(h),
		LogChecks(h),
	))
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.srv)
	return s
}
