// Package healthclient queries the gRPC health service exposed by the API.
package healthclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

var (
	ErrUnknownService = errors.New("healthclient: unknown service")
	ErrUnreachable    = errors.New("healthclient: server unreachable")
	ErrNotServing     = errors.New("healthclient: not serving")
)

// Client wraps a health connection.
type Client struct {
	conn *grpc.ClientConn
	svc  healthpb.HealthClient
}

// Dial connects with insecure transport unless opts are given.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

func New(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, svc: healthpb.NewHealthClient(conn)}
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Check returns nil only when service reports SERVING. An empty service name
// asks about the server as a whole.
func (c *Client) Check(ctx context.Context, service string) error {
	resp, err := c.svc.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return mapStatusError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, resp.GetStatus())
	}
	return nil
}

func mapStatusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrUnknownService, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnreachable, st.Message())
	default:
		return err
	}
}

// WithTimeout returns a context with a default timeout for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
