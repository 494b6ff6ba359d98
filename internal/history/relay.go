package history

import (
	"context"
	"log/slog"

	"github.com/rbright/livesub/internal/domain"
)

// Relay records final subtitles as they are emitted.
type Relay struct {
	Store  *Store
	Logger *slog.Logger
}

// Status implements relay.Relay; statuses are not stored.
func (r Relay) Status(context.Context, domain.StatusEvent) {}

// Subtitle implements relay.Relay.
func (r Relay) Subtitle(ctx context.Context, ev domain.SubtitleEvent) {
	if ev.Interim || r.Store == nil {
		return
	}
	if err := r.Store.Record(ctx, ev); err != nil && r.Logger != nil {
		r.Logger.Warn("history write failed", "source", ev.SourceID, "sequence", ev.Sequence, "error", err)
	}
}
