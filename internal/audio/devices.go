// Package audio discovers PulseAudio sources and turns one into a PCM handle.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Device describes one Pulse source surfaced to livesub.
type Device struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	State       string `json:"state"`
	Available   bool   `json:"available"`
	Muted       bool   `json:"muted"`
	Default     bool   `json:"default"`
	Monitor     bool   `json:"monitor"`
}

// ErrNoDevice is returned when a source id or term matches nothing.
var ErrNoDevice = errors.New("no matching audio source")

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("livesub"),
		pulse.ClientApplicationIconName("media-record"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns Pulse sources, monitors of playback sinks included.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
			Monitor:     strings.HasSuffix(source.SourceName, ".monitor"),
		})
	}
	return devices, nil
}

// ResolveDevice finds the source for an exact id, a search term, or "default".
func ResolveDevice(devices []Device, query string) (Device, error) {
	query = strings.TrimSpace(query)
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("%w: no sources reported", ErrNoDevice)
	}

	if query == "" || strings.EqualFold(query, "default") {
		for _, dev := range devices {
			if dev.Default {
				return usable(dev)
			}
		}
		return Device{}, fmt.Errorf("%w: default source is unavailable", ErrNoDevice)
	}

	for _, dev := range devices {
		if dev.ID == query {
			return usable(dev)
		}
	}

	term := strings.ToLower(query)
	for _, dev := range devices {
		if deviceMatches(dev, term) {
			return usable(dev)
		}
	}
	return Device{}, fmt.Errorf("%w: %q", ErrNoDevice, query)
}

func usable(dev Device) (Device, error) {
	if !dev.Available {
		return Device{}, fmt.Errorf("audio source %q is not available", dev.ID)
	}
	if dev.Muted {
		return Device{}, fmt.Errorf("audio source %q is muted", dev.ID)
	}
	return dev, nil
}

// deviceMatches reports whether a lowercase search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
