package grpcserver

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const checkMethod = "/grpc.health.v1.Health/Check"

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "10.0.0.7:4711" }

func observedHealth() (*Health, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewHealth(zap.New(core)), logs
}

func answer(st healthpb.HealthCheckResponse_ServingStatus) grpc.UnaryHandler {
	return func(context.Context, any) (any, error) {
		return &healthpb.HealthCheckResponse{Status: st}, nil
	}
}

func TestLogChecks_DegradedSyncCarriesLastFailure(t *testing.T) {
	h, logs := observedHealth()
	h.Observe(errors.New("jumpcloud_sync: list users: 503"))
	ic := LogChecks(h)

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	req := &healthpb.HealthCheckRequest{Service: SyncService}
	if _, err := ic(ctx, req, &grpc.UnaryServerInfo{FullMethod: checkMethod}, answer(healthpb.HealthCheckResponse_NOT_SERVING)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	entries := logs.FilterMessage("grpc").All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.InfoLevel {
		t.Fatalf("level=%v", e.Level)
	}
	got := e.ContextMap()
	if got["service"] != SyncService || got["answer"] != "NOT_SERVING" || got["peer"] != "10.0.0.7:4711" {
		t.Fatalf("fields=%v", got)
	}
	if got["last_failure"] != "jumpcloud_sync: list users: 503" {
		t.Fatalf("last_failure=%v", got["last_failure"])
	}
}

func TestLogChecks_ServingProcessCheckIsDebug(t *testing.T) {
	h, logs := observedHealth()
	ic := LogChecks(h)

	req := &healthpb.HealthCheckRequest{}
	if _, err := ic(context.Background(), req, &grpc.UnaryServerInfo{FullMethod: checkMethod}, answer(healthpb.HealthCheckResponse_SERVING)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	e := logs.FilterMessage("grpc").All()[0]
	if e.Level != zapcore.DebugLevel {
		t.Fatalf("level=%v", e.Level)
	}
	got := e.ContextMap()
	if got["service"] != processService || got["answer"] != "SERVING" {
		t.Fatalf("fields=%v", got)
	}
	if _, ok := got["last_failure"]; ok {
		t.Fatalf("process check must not carry sync failure: %v", got)
	}
}

func TestLogChecks_RecoveredSyncDropsFailureAndErrorsWarn(t *testing.T) {
	h, logs := observedHealth()
	h.Observe(errors.New("reconciliation failed"))
	h.Observe(nil)
	ic := LogChecks(h)

	wantErr := status.Error(codes.NotFound, "unknown service")
	fail := func(context.Context, any) (any, error) { return nil, wantErr }
	req := &healthpb.HealthCheckRequest{Service: SyncService}
	if _, err := ic(context.Background(), req, &grpc.UnaryServerInfo{FullMethod: checkMethod}, fail); !errors.Is(err, wantErr) {
		t.Fatalf("want original error, got: %v", err)
	}

	e := logs.FilterMessage("grpc").All()[0]
	if e.Level != zapcore.WarnLevel {
		t.Fatalf("level=%v", e.Level)
	}
	got := e.ContextMap()
	if got["code"] != codes.NotFound.String() {
		t.Fatalf("code=%v", got["code"])
	}
	if _, ok := got["last_failure"]; ok {
		t.Fatalf("recovered sync must not report a failure: %v", got)
	}
}

func TestRecoverChecks_PanicBecomesInternal(t *testing.T) {
	h, logs := observedHealth()
	ic := RecoverChecks(h)

	boom := func(context.Context, any) (any, error) { panic("status map corrupted") }
	req := &healthpb.HealthCheckRequest{Service: SyncService}
	_, err := ic(context.Background(), req, &grpc.UnaryServerInfo{FullMethod: checkMethod}, boom)
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("want codes.Internal, got: %v", err)
	}
	panics := logs.FilterMessage("panic").All()
	if len(panics) != 1 || panics[0].ContextMap()["service"] != SyncService {
		t.Fatalf("panic log=%v", panics)
	}
}

func TestRecoverChecks_PassesAnswerThrough(t *testing.T) {
	h, _ := observedHealth()
	ic := RecoverChecks(h)

	resp, err := ic(context.Background(), &healthpb.HealthCheckRequest{}, &grpc.UnaryServerInfo{FullMethod: checkMethod}, answer(healthpb.HealthCheckResponse_SERVING))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.(*healthpb.HealthCheckResponse).GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("resp mismatch: %v", resp)
	}
}

func TestHealth_LastFailureFollowsObserve(t *testing.T) {
	h, _ := observedHealth()
	if h.LastFailure() != "" {
		t.Fatalf("fresh health must have no failure")
	}
	h.Observe(errors.New("google_sync failed"))
	if h.LastFailure() != "google_sync failed" {
		t.Fatalf("last=%q", h.LastFailure())
	}
	h.Observe(nil)
	if h.LastFailure() != "" {
		t.Fatalf("last=%q after success", h.LastFailure())
	}
}
