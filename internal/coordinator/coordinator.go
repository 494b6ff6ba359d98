// Package coordinator owns the source-id to session map and serves lifecycle
// commands for it.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/fsm"
	"github.com/rbright/livesub/internal/ipc"
	"github.com/rbright/livesub/internal/recognizer"
	"github.com/rbright/livesub/internal/relay"
	"github.com/rbright/livesub/internal/session"
	"github.com/rbright/livesub/internal/translate"
)

var (
	// ErrAlreadyActive is returned when a non-terminal session exists for the source.
	ErrAlreadyActive = errors.New("session already active for source")
	// ErrHandleAcquisitionFailed is returned when no audio handle could be obtained.
	ErrHandleAcquisitionFailed = errors.New("audio handle acquisition failed")
	// ErrNotFound is returned for sources that never had a session.
	ErrNotFound = errors.New("no session for source")
)

const retiredCapacity = 256

// SettingsStore persists the global settings record.
type SettingsStore interface {
	SaveSettings(ctx context.Context, settings domain.Settings) error
}

// Options wires the coordinator.
type Options struct {
	Logger      *slog.Logger
	Handles     session.HandleProvider
	Recognizers recognizer.Factory
	Translator  translate.Provider
	Relay       relay.Relay
	Settings    domain.Settings
	Store       SettingsStore
	Timing      session.Timing
	HighpassHz  float64
	Gain        float64
	// Stats, when set, adds translation counters to status payloads.
	Stats func() translate.Stats
	// StopTimeout bounds each session teardown during Shutdown.
	StopTimeout time.Duration
}

// Coordinator keeps at most one live session per source.
type Coordinator struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[domain.SourceID]*session.Session
	settings domain.Settings
	retired  *lru.Cache[domain.SourceID, string]
}

// New constructs a coordinator with no sessions.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Relay == nil {
		opts.Relay = relay.Nop{}
	}
	if opts.Translator == nil {
		opts.Translator = translate.PassThrough{}
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 3 * time.Second
	}
	retired, _ := lru.New[domain.SourceID, string](retiredCapacity)

	return &Coordinator{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[domain.SourceID]*session.Session),
		settings: opts.Settings,
		retired:  retired,
	}
}

// Settings returns the global settings new sessions start with.
func (c *Coordinator) Settings() domain.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// StartSession creates, registers, and starts a session for sourceID. The slot is
// reserved before the handle is acquired so concurrent starts for one source
// cannot both succeed.
func (c *Coordinator) StartSession(
	ctx context.Context,
	sourceID domain.SourceID,
	handles session.HandleProvider,
	settings domain.Settings,
) (*session.Session, error) {
	if sourceID == "" {
		return nil, errors.New("source id is required")
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if handles == nil {
		handles = c.opts.Handles
	}

	sess := session.New(session.Config{
		SourceID:    sourceID,
		Settings:    settings,
		Handles:     handles,
		Recognizers: c.opts.Recognizers,
		Translator:  c.opts.Translator,
		Relay:       c.opts.Relay,
		Logger:      c.logger,
		Timing:      c.opts.Timing,
		HighpassHz:  c.opts.HighpassHz,
		Gain:        c.opts.Gain,
		OnTerminal:  c.onTerminal,
	})

	c.mu.Lock()
	previous, exists := c.sessions[sourceID]
	if exists && !finished(previous) {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (state %s)", ErrAlreadyActive, sourceID, previous.State())
	}
	c.sessions[sourceID] = sess
	c.retired.Remove(sourceID)
	c.mu.Unlock()

	if exists {
		// Replacing a Failed session acknowledges it.
		_ = previous.Stop(ctx, false)
	}

	if err := sess.Start(ctx); err != nil {
		c.mu.Lock()
		if c.sessions[sourceID] == sess {
			delete(c.sessions, sourceID)
		}
		c.mu.Unlock()
		if errors.Is(err, session.ErrHandleUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrHandleAcquisitionFailed, err)
		}
		return nil, err
	}

	c.logger.Info("session started", "source", sourceID, "run_id", sess.RunID())
	return sess, nil
}

// StopSession stops the session for sourceID. Stopping a source that was
// already stopped succeeds; ErrNotFound means no session ever ran for it.
func (c *Coordinator) StopSession(ctx context.Context, sourceID domain.SourceID) error {
	c.mu.Lock()
	sess, ok := c.sessions[sourceID]
	if !ok {
		_, wasRetired := c.retired.Get(sourceID)
		c.mu.Unlock()
		if wasRetired {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}
	c.mu.Unlock()

	if err := sess.Stop(ctx, true); err != nil {
		return err
	}
	c.retire(sess)
	c.logger.Info("session stopped", "source", sourceID, "run_id", sess.RunID())
	return nil
}

// OnSourceRemoved tears the session down without a graceful Stopped
// notification and tells relays that track sources to forget it.
func (c *Coordinator) OnSourceRemoved(ctx context.Context, sourceID domain.SourceID) {
	c.mu.Lock()
	sess, ok := c.sessions[sourceID]
	c.mu.Unlock()
	if !ok {
		return
	}

	if err := sess.Stop(ctx, false); err != nil {
		c.logger.Warn("forced teardown incomplete", "source", sourceID, "error", err)
	}
	c.retire(sess)
	relay.NotifyRemoved(ctx, c.opts.Relay, sourceID)
	c.logger.Info("source removed; session discarded", "source", sourceID, "run_id", sess.RunID())
}

// UpdateSettings merges patch into one source's settings, or into the global
// settings and every session when target is empty.
func (c *Coordinator) UpdateSettings(ctx context.Context, target domain.SourceID, patch domain.SettingsPatch) (domain.Settings, error) {
	if target != "" {
		c.mu.Lock()
		sess, ok := c.sessions[target]
		c.mu.Unlock()
		if !ok {
			return domain.Settings{}, fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		next := patch.Apply(sess.Settings())
		if err := next.Validate(); err != nil {
			return domain.Settings{}, fmt.Errorf("invalid settings: %w", err)
		}
		sess.UpdateSettings(next)
		return next, nil
	}

	c.mu.Lock()
	next := patch.Apply(c.settings)
	if err := next.Validate(); err != nil {
		c.mu.Unlock()
		return domain.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	c.settings = next
	live := make([]*session.Session, 0, len(c.sessions))
	for _, sess := range c.sessions {
		live = append(live, sess)
	}
	c.mu.Unlock()

	for _, sess := range live {
		sess.UpdateSettings(patch.Apply(sess.Settings()))
	}
	if c.opts.Store != nil {
		if err := c.opts.Store.SaveSettings(ctx, next); err != nil {
			return next, fmt.Errorf("persist settings: %w", err)
		}
	}
	return next, nil
}

// Status reports on sourceID; an unknown source reports not capturing.
func (c *Coordinator) Status(sourceID domain.SourceID) ipc.SourceStatus {
	c.mu.Lock()
	sess, ok := c.sessions[sourceID]
	settings := c.settings
	c.mu.Unlock()

	if ok {
		return c.describe(sess.Snapshot())
	}
	redacted := settings.Redacted()
	return ipc.SourceStatus{
		SourceID:      string(sourceID),
		HasCredential: settings.HasCredential(),
		Supported:     c.opts.Recognizers != nil,
		State:         string(fsm.StateIdle),
		Settings:      &redacted,
		Translation:   c.translationStats(),
	}
}

func (c *Coordinator) describe(snap session.Snapshot) ipc.SourceStatus {
	settings := snap.Settings
	return ipc.SourceStatus{
		SourceID:        string(snap.SourceID),
		Capturing:       capturing(snap.State),
		HasCredential:   settings.HasCredential(),
		Supported:       c.opts.Recognizers != nil,
		State:           string(snap.State),
		RunID:           snap.RunID,
		RestartAttempts: snap.RestartAttempts,
		Paused:          snap.Paused,
		Device:          snap.Device,
		LastActivityAt:  snap.LastActivityAt,
		Settings:        &settings,
		Translation:     c.translationStats(),
	}
}

func (c *Coordinator) translationStats() *translate.Stats {
	if c.opts.Stats == nil {
		return nil
	}
	stats := c.opts.Stats()
	return &stats
}

func capturing(state fsm.State) bool {
	switch state {
	case fsm.StateStarting, fsm.StateActive, fsm.StateRestarting:
		return true
	default:
		return false
	}
}

// Sessions returns snapshots of every registered session, ordered by source id.
func (c *Coordinator) Sessions() []session.Snapshot {
	c.mu.Lock()
	out := make([]session.Snapshot, 0, len(c.sessions))
	for _, sess := range c.sessions {
		out = append(out, sess.Snapshot())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// ActiveSources lists sources with a registered session.
func (c *Coordinator) ActiveSources() []domain.SourceID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.SourceID, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Shutdown stops every session gracefully.
func (c *Coordinator) Shutdown(ctx context.Context) {
	for _, id := range c.ActiveSources() {
		stopCtx, cancel := context.WithTimeout(ctx, c.opts.StopTimeout)
		if err := c.StopSession(stopCtx, id); err != nil && !errors.Is(err, ErrNotFound) {
			c.logger.Warn("session stop during shutdown failed", "source", id, "error", err)
		}
		cancel()
	}
}

// onTerminal runs on a session goroutine. Idle sessions leave the map; Failed
// ones stay until acknowledged by stop or replaced by start.
func (c *Coordinator) onTerminal(sess *session.Session) {
	if sess.State() == fsm.StateIdle {
		c.retire(sess)
	}
}

// finished reports whether a registered session's run is over. A session that
// is registered but not yet started counts as live.
func finished(sess *session.Session) bool {
	if sess.State() == fsm.StateFailed {
		return true
	}
	select {
	case <-sess.Done():
		return fsm.Terminal(sess.State())
	default:
		return false
	}
}

func (c *Coordinator) retire(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := sess.SourceID()
	if c.sessions[id] == sess {
		delete(c.sessions, id)
	}
	c.retired.Add(id, sess.RunID())
}
