package server

import (
	"chat-relay/auth"
	"log/slog"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer exposes grpc.health.v1 behind the signed-request
// interceptor. Methods listed in public skip the signature check.
func NewGRPCServer(log *slog.Logger, authn *auth.Authenticator, healthServer *health.Server, public ...string) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			sdkgrpc.UnaryLoggingInterceptor(log),
			auth.UnaryInterceptor(authn, public...),
		))
	healthpb.RegisterHealthServer(s, healthServer)
	return s
}
