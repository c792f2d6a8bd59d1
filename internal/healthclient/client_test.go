package healthclient

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestMapStatusError(t *testing.T) {
	t.Parallel()

	internal := status.Error(codes.Internal, "internal")
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found", err: status.Error(codes.NotFound, "unknown service"), want: ErrUnknownService},
		{name: "unavailable", err: status.Error(codes.Unavailable, "connection refused"), want: ErrUnreachable},
		{name: "deadline", err: status.Error(codes.DeadlineExceeded, "deadline"), want: ErrUnreachable},
		{name: "pass through", err: internal, want: internal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapStatusError(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapStatusError() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckAgainstHealthServer(t *testing.T) {
	listener := bufconn.Listen(1 << 20)
	hs := health.NewServer()
	hs.SetServingStatus("up", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("down", healthpb.HealthCheckResponse_NOT_SERVING)
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Check(ctx, "up"); err != nil {
		t.Fatalf("Check(up) = %v", err)
	}
	if err := c.Check(ctx, "down"); !errors.Is(err, ErrNotServing) {
		t.Fatalf("Check(down) = %v, want ErrNotServing", err)
	}
	if err := c.Check(ctx, "missing"); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("Check(missing) = %v, want ErrUnknownService", err)
	}
}
