// Package indicator turns session status into desktop notifications and audio cues.
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/livesub/internal/config"
	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/hypr"
)

const (
	queueSize       = 16
	dispatchTimeout = 400 * time.Millisecond
	subtitleTimeout = 4000
	activeTimeout   = 300000

	colorActive   = "rgb(89b4fa)"
	colorSubtitle = "rgb(cba6f7)"
	colorError    = "rgb(f38ba8)"
)

// Notifier is a relay that mirrors session status onto the configured
// notification backend (hypr or desktop). Dispatch runs on one worker so the
// session loop never waits on hyprctl or busctl.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	jobs   chan func(context.Context)
	done   chan struct{}
	qmu    sync.RWMutex
	closed bool

	mu         sync.Mutex
	desktopIDs map[domain.SourceID]uint32
	soundMu    sync.Mutex
	cues       sync.WaitGroup
}

// NewNotifier creates a notifier from config and starts its dispatch worker.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	n := &Notifier{
		cfg:        cfg,
		logger:     logger,
		messages:   indicatorMessagesFromEnv(),
		jobs:       make(chan func(context.Context), queueSize),
		done:       make(chan struct{}),
		desktopIDs: make(map[domain.SourceID]uint32),
	}
	if !n.desktop() && !hypr.Available() {
		logger.Warn("hyprctl not found; notifications will fail", "backend", cfg.Backend)
	}
	go n.worker()
	return n
}

// Status implements relay.Relay.
func (n *Notifier) Status(_ context.Context, ev domain.StatusEvent) {
	switch ev.Kind {
	case domain.StatusStarted:
		n.playCue(cueStart)
		n.enqueue(func(ctx context.Context) error {
			return n.notify(ctx, ev.SourceID, 1, activeTimeout, colorActive, urgencyNormal, fmt.Sprintf("%s: %s", n.messages.active, ev.SourceID))
		})
	case domain.StatusStopped:
		n.playCue(cueStop)
		n.enqueue(func(ctx context.Context) error {
			return n.dismiss(ctx, ev.SourceID)
		})
	case domain.StatusError:
		n.playCue(cueError)
		n.enqueue(func(ctx context.Context) error {
			return n.notify(ctx, ev.SourceID, 3, n.errorTimeout(), colorError, urgencyCritical, n.errorText(n.messages.errorText, ev))
		})
	case domain.StatusTranscriptionError:
		n.enqueue(func(ctx context.Context) error {
			return n.notify(ctx, ev.SourceID, 0, n.errorTimeout(), colorError, urgencyNormal, n.errorText(n.messages.transcription, ev))
		})
	}
}

// Subtitle implements relay.Relay. Only finals are shown, and only when
// show_subtitles is set.
func (n *Notifier) Subtitle(_ context.Context, ev domain.SubtitleEvent) {
	if !n.cfg.ShowSubtitles || ev.Interim {
		return
	}
	text := strings.TrimSpace(ev.Translated)
	if text == "" {
		text = strings.TrimSpace(ev.Original)
	}
	if text == "" {
		return
	}
	n.enqueue(func(ctx context.Context) error {
		return n.notify(ctx, ev.SourceID, 5, subtitleTimeout, colorSubtitle, urgencyLow, text)
	})
}

// Close drains queued notifications and waits for pending cues.
func (n *Notifier) Close() {
	n.qmu.Lock()
	if !n.closed {
		n.closed = true
		close(n.jobs)
	}
	n.qmu.Unlock()
	<-n.done
	n.cues.Wait()
}

func (n *Notifier) enqueue(fn func(context.Context) error) {
	if !n.cfg.Enable {
		return
	}
	n.qmu.RLock()
	defer n.qmu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.jobs <- func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			n.log("indicator dispatch failed", err)
		}
	}:
	default:
		n.logger.Debug("indicator queue full; dropping notification")
	}
}

func (n *Notifier) worker() {
	defer close(n.done)
	for job := range n.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		job(ctx)
		cancel()
	}
}

func (n *Notifier) errorTimeout() int {
	if n.cfg.ErrorTimeoutMS <= 0 {
		return 1200
	}
	return n.cfg.ErrorTimeoutMS
}

func (n *Notifier) errorText(fallback string, ev domain.StatusEvent) string {
	message := strings.TrimSpace(ev.Message)
	if message == "" {
		return fallback
	}
	return fmt.Sprintf("%s: %s", fallback, message)
}

// notify dispatches indicator output through the configured backend.
func (n *Notifier) notify(ctx context.Context, source domain.SourceID, icon int, timeoutMS int, color string, urgency byte, text string) error {
	if n.desktop() {
		return n.notifyDesktop(ctx, source, timeoutMS, urgency, text)
	}
	return hypr.Notify(ctx, icon, timeoutMS, color, text)
}

// dismiss removes indicator output from the configured backend.
func (n *Notifier) dismiss(ctx context.Context, source domain.SourceID) error {
	if n.desktop() {
		return n.dismissDesktop(ctx, source)
	}
	return hypr.DismissNotify(ctx)
}

func (n *Notifier) desktop() bool {
	return strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop")
}

// notifyDesktop sends a replaceable desktop notification and stores its ID per source.
func (n *Notifier) notifyDesktop(ctx context.Context, source domain.SourceID, timeoutMS int, urgency byte, text string) error {
	n.mu.Lock()
	replaceID := n.desktopIDs[source]
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "livesub"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS, urgency)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopIDs[source] = id
	n.mu.Unlock()
	return nil
}

// dismissDesktop closes the source's desktop notification when present.
func (n *Notifier) dismissDesktop(ctx context.Context, source domain.SourceID) error {
	n.mu.Lock()
	id := n.desktopIDs[source]
	delete(n.desktopIDs, source)
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := emitCue(ctx, kind, n.cfg); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
