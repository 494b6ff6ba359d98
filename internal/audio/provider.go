package audio

import (
	"context"
	"fmt"
	"log/slog"
)

// PulseProvider hands out capture handles for Pulse source ids.
type PulseProvider struct {
	logger *slog.Logger
	list   func(context.Context) ([]Device, error)
	start  func(context.Context, Device) (Handle, error)
}

// NewPulseProvider returns a provider backed by the live Pulse server.
func NewPulseProvider(logger *slog.Logger) *PulseProvider {
	return &PulseProvider{
		logger: logger,
		list:   ListDevices,
		start: func(ctx context.Context, dev Device) (Handle, error) {
			return StartCapture(ctx, dev)
		},
	}
}

// Acquire resolves sourceID against live sources and starts capturing it. The
// handle stays open until Stop or until ctx ends.
func (p *PulseProvider) Acquire(ctx context.Context, sourceID string) (Handle, error) {
	devices, err := p.list(ctx)
	if err != nil {
		return nil, err
	}
	dev, err := ResolveDevice(devices, sourceID)
	if err != nil {
		return nil, err
	}
	handle, err := p.start(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("start capture %q: %w", dev.ID, err)
	}
	if p.logger != nil {
		p.logger.Info("audio handle acquired", "source", sourceID, "device", dev.ID, "monitor", dev.Monitor)
	}
	return handle, nil
}
