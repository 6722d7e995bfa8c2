package grpcserver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func dialHealth(t *testing.T, h *Health) healthpb.HealthClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := New(h)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, svc string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
	if err != nil {
		t.Fatalf("check %q: %v", svc, err)
	}
	return resp.GetStatus()
}

func TestHealth_ReflectsSyncOutcome(t *testing.T) {
	h := NewHealth(zaptest.NewLogger(t))
	c := dialHealth(t, h)

	if got := check(t, c, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("process: %v", got)
	}
	if got := check(t, c, SyncService); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("initial sync: %v", got)
	}

	h.Observe(errors.New("slack_user_sync failed"))
	if got := check(t, c, SyncService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after failure: %v", got)
	}
	if got := check(t, c, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("process must stay serving: %v", got)
	}

	h.Observe(nil)
	if got := check(t, c, SyncService); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("after recovery: %v", got)
	}
}

func TestHealth_Shutdown(t *testing.T) {
	h := NewHealth(zaptest.NewLogger(t))
	c := dialHealth(t, h)

	h.Shutdown()
	if got := check(t, c, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after shutdown: %v", got)
	}
}
