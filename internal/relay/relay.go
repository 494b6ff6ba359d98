// Package relay delivers subtitle and status events to downstream consumers.
package relay

import (
	"context"
	"log/slog"

	"github.com/rbright/livesub/internal/domain"
)

// Relay receives events in emission order for each source. Implementations must
// not block for long; sessions deliver from their own event loop.
type Relay interface {
	Status(ctx context.Context, ev domain.StatusEvent)
	Subtitle(ctx context.Context, ev domain.SubtitleEvent)
}

// Remover is implemented by relays that keep per-source state and must drop
// it when a source disappears. Removal emits no Stopped event.
type Remover interface {
	SourceRemoved(ctx context.Context, id domain.SourceID)
}

// NotifyRemoved tells r that a source is gone when r implements Remover.
func NotifyRemoved(ctx context.Context, r Relay, id domain.SourceID) {
	if rm, ok := r.(Remover); ok {
		rm.SourceRemoved(ctx, id)
	}
}

// Fanout delivers every event to each relay in order.
type Fanout []Relay

// Status implements Relay.
func (f Fanout) Status(ctx context.Context, ev domain.StatusEvent) {
	for _, r := range f {
		if r != nil {
			r.Status(ctx, ev)
		}
	}
}

// Subtitle implements Relay.
func (f Fanout) Subtitle(ctx context.Context, ev domain.SubtitleEvent) {
	for _, r := range f {
		if r != nil {
			r.Subtitle(ctx, ev)
		}
	}
}

// SourceRemoved implements Remover for members that support it.
func (f Fanout) SourceRemoved(ctx context.Context, id domain.SourceID) {
	for _, r := range f {
		if r != nil {
			NotifyRemoved(ctx, r, id)
		}
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Status(context.Context, domain.StatusEvent)     {}
func (Nop) Subtitle(context.Context, domain.SubtitleEvent) {}

// Log writes events to a structured logger. Interim subtitles log at debug.
type Log struct {
	Logger *slog.Logger
}

// Status implements Relay.
func (l Log) Status(_ context.Context, ev domain.StatusEvent) {
	if l.Logger == nil {
		return
	}
	level := slog.LevelInfo
	if ev.Kind == domain.StatusError || ev.Kind == domain.StatusTranscriptionError {
		level = slog.LevelWarn
	}
	l.Logger.Log(context.Background(), level, "session status",
		"source", ev.SourceID,
		"run_id", ev.RunID,
		"kind", ev.Kind,
		"message", ev.Message,
	)
}

// SourceRemoved implements Remover.
func (l Log) SourceRemoved(_ context.Context, id domain.SourceID) {
	if l.Logger != nil {
		l.Logger.Info("source removed", "source", id)
	}
}

// Subtitle implements Relay.
func (l Log) Subtitle(_ context.Context, ev domain.SubtitleEvent) {
	if l.Logger == nil {
		return
	}
	level := slog.LevelInfo
	if ev.Interim {
		level = slog.LevelDebug
	}
	l.Logger.Log(context.Background(), level, "subtitle",
		"source", ev.SourceID,
		"run_id", ev.RunID,
		"sequence", ev.Sequence,
		"interim", ev.Interim,
		"original", ev.Original,
		"translated", ev.Translated,
	)
}

// Funcs adapts plain functions into a Relay; nil funcs are skipped.
type Funcs struct {
	OnStatus   func(context.Context, domain.StatusEvent)
	OnSubtitle func(context.Context, domain.SubtitleEvent)
}

// Status implements Relay.
func (f Funcs) Status(ctx context.Context, ev domain.StatusEvent) {
	if f.OnStatus != nil {
		f.OnStatus(ctx, ev)
	}
}

// Subtitle implements Relay.
func (f Funcs) Subtitle(ctx context.Context, ev domain.SubtitleEvent) {
	if f.OnSubtitle != nil {
		f.OnSubtitle(ctx, ev)
	}
}
