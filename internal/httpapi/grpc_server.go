package httpapi

import (
	"context"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"corpsite.org/internal/monitor"
)

// ServiceName is the gRPC health service name this server answers for, besides "".
const ServiceName = "corpsite.api"

// HealthGRPCServer answers grpc.health.v1 checks from the Health Evaluator.
type HealthGRPCServer struct {
	healthpb.UnimplementedHealthServer

	evaluator *monitor.Evaluator
}

func NewHealthGRPCServer(e *monitor.Evaluator) *HealthGRPCServer {
	return &HealthGRPCServer{evaluator: e}
}

// Check reports SERVING unless the evaluator says unhealthy. Warnings still serve.
func (s *HealthGRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", ServiceName:
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	st := healthpb.HealthCheckResponse_SERVING
	if !s.evaluator.Evaluate().Healthy() {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	return &healthpb.HealthCheckResponse{Status: st}, nil
}
