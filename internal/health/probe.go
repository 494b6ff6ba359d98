package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ErrUnknownService is returned when the server does not track the service.
var ErrUnknownService = errors.New("health service unknown")

// Probe dials target and checks service, returning its serving status.
func Probe(ctx context.Context, target, service string, timeout time.Duration, opts ...grpc.DialOption) (healthpb.HealthCheckResponse_ServingStatus, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return healthpb.HealthCheckResponse_UNKNOWN, errors.New("health target is empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial health %q: %w", target, err)
	}
	defer conn.Close()

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(probeCtx, conn); err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("wait for health readiness: %w", err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(probeCtx, &healthpb.HealthCheckRequest{Service: service})
	if status.Code(err) == codes.NotFound {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check %q: %w", service, err)
	}
	return resp.GetStatus(), nil
}

// waitForReady blocks until the connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
