package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"corpsite.org/internal/monitor"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, srv *HealthGRPCServer) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, srv)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err, "dial bufnet")

	t.Cleanup(func() {
		_ = conn.Close()
		server.GracefulStop()
		_ = listener.Close()
	})
	return conn
}

func memReader(heap uint64) monitor.MemReader {
	return func() monitor.MemoryStats { return monitor.MemoryStats{HeapUsed: heap} }
}

func TestHealthGRPCServing(t *testing.T) {
	agg := monitor.NewAggregator(monitor.WithMemReader(memReader(600 << 20)))
	srv := NewHealthGRPCServer(monitor.NewEvaluator(agg, monitor.DefaultThresholds()))
	client := healthpb.NewHealthClient(startBufGRPC(t, srv))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus(), "warning must still serve")

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "other"})
	require.Equal(t, codes.NotFound, status.Code(err), "unknown service")
}

func TestHealthGRPCNotServing(t *testing.T) {
	agg := monitor.NewAggregator(monitor.WithMemReader(memReader(1)))
	for i := 0; i < 10; i++ {
		agg.Observe(monitor.RequestSample{Status: 500})
	}
	srv := NewHealthGRPCServer(monitor.NewEvaluator(agg, monitor.DefaultThresholds()))
	client := healthpb.NewHealthClient(startBufGRPC(t, srv))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
