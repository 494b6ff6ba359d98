// Package health publishes daemon and per-source readiness over the standard
// gRPC health checking protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/livesub/internal/domain"
)

// DaemonService is the service name reported for the daemon as a whole.
const DaemonService = "livesub"

// SourceService returns the health service name for one source.
func SourceService(id domain.SourceID) string {
	return "source/" + string(id)
}

// Reporter tracks serving status and is also a relay sink: a source is
// SERVING from its Started event until it stops or fails.
type Reporter struct {
	logger *slog.Logger
	health *grpchealth.Server
	server *grpc.Server
}

// NewReporter constructs a reporter with the daemon service marked SERVING.
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hs := grpchealth.NewServer()
	hs.SetServingStatus(DaemonService, healthpb.HealthCheckResponse_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &Reporter{
		logger: logger.With("component", "health"),
		health: hs,
		server: srv,
	}
}

// Serve blocks serving the health API on listener until Stop.
func (r *Reporter) Serve(listener net.Listener) error {
	r.logger.Info("health server listening", "address", listener.Addr().String())
	if err := r.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve health: %w", err)
	}
	return nil
}

// Start listens on addr and serves in the background until ctx is cancelled.
func (r *Reporter) Start(ctx context.Context, addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("health listen: %w", err)
	}
	go func() {
		if err := r.Serve(listener); err != nil {
			r.logger.Error("health server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return listener.Addr(), nil
}

// Stop marks everything NOT_SERVING and stops the server.
func (r *Reporter) Stop() {
	r.health.Shutdown()
	r.server.GracefulStop()
}

// SetSource sets a source's serving status directly.
func (r *Reporter) SetSource(id domain.SourceID, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.health.SetServingStatus(SourceService(id), status)
}

// Status implements relay.Relay.
func (r *Reporter) Status(_ context.Context, ev domain.StatusEvent) {
	switch ev.Kind {
	case domain.StatusStarted:
		r.SetSource(ev.SourceID, true)
	case domain.StatusStopped, domain.StatusError:
		r.SetSource(ev.SourceID, false)
	}
}

// SourceRemoved implements relay.Remover; an unplugged source stops serving.
func (r *Reporter) SourceRemoved(_ context.Context, id domain.SourceID) {
	r.SetSource(id, false)
}

// Subtitle implements relay.Relay; subtitles do not affect health.
func (r *Reporter) Subtitle(context.Context, domain.SubtitleEvent) {}
