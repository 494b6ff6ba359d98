// Package session runs one continuous recognition session per audio source and
// keeps the recognizer alive through restarts and backoff.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/livesub/internal/audio"
	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/fsm"
	"github.com/rbright/livesub/internal/recognizer"
	"github.com/rbright/livesub/internal/relay"
	"github.com/rbright/livesub/internal/transcript"
	"github.com/rbright/livesub/internal/translate"
)

// HandleProvider obtains an already-authorized audio handle for a source.
type HandleProvider interface {
	Acquire(ctx context.Context, sourceID string) (audio.Handle, error)
}

// HandleProviderFunc adapts a function into a HandleProvider.
type HandleProviderFunc func(context.Context, string) (audio.Handle, error)

// Acquire implements HandleProvider.
func (f HandleProviderFunc) Acquire(ctx context.Context, sourceID string) (audio.Handle, error) {
	return f(ctx, sourceID)
}

// ErrHandleUnavailable wraps audio acquisition failures.
var ErrHandleUnavailable = errors.New("audio handle unavailable")

// Config wires one session's collaborators.
type Config struct {
	SourceID    domain.SourceID
	Settings    domain.Settings
	Handles     HandleProvider
	Recognizers recognizer.Factory
	Translator  translate.Provider
	Relay       relay.Relay
	Logger      *slog.Logger
	Timing      Timing

	// Enhancement chain parameters; zero selects defaults.
	HighpassHz float64
	Gain       float64

	// OnTerminal runs on the session goroutine when the session reaches Idle
	// or Failed without a Stop call.
	OnTerminal func(*Session)
}

// Snapshot is a point-in-time view for status reporting.
type Snapshot struct {
	SourceID        domain.SourceID `json:"source_id"`
	RunID           string          `json:"run_id"`
	State           fsm.State       `json:"state"`
	RestartAttempts int             `json:"restart_attempts"`
	LastActivityAt  time.Time       `json:"last_activity_at,omitzero"`
	Paused          bool            `json:"paused"`
	Device          string          `json:"device,omitempty"`
	Settings        domain.Settings `json:"settings"`
}

type stopCommand struct {
	graceful bool
	reply    chan error
}

// Session is one recognition run bound to one audio handle. All state changes
// after Start happen on a single event-loop goroutine.
type Session struct {
	cfg    Config
	timing Timing
	logger *slog.Logger
	runID  string

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.RWMutex
	state           fsm.State
	settings        domain.Settings
	restartAttempts int
	lastActivityAt  time.Time
	paused          bool
	device          string

	stops     chan stopCommand
	timerFire chan uint64
	done      chan struct{}
	doneOnce  sync.Once

	// owned by the event loop
	handle    *audio.Processed
	rec       recognizer.Recognizer
	applied   domain.Settings
	backoff   *backoff
	timer     *time.Timer
	timerTok  uint64
	lastFinal int
	announced bool
}

// New constructs an Idle session.
func New(cfg Config) *Session {
	if cfg.Translator == nil {
		cfg.Translator = translate.PassThrough{}
	}
	if cfg.Relay == nil {
		cfg.Relay = relay.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	timing := cfg.Timing.withDefaults()
	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		cfg:       cfg,
		timing:    timing,
		logger:    cfg.Logger.With("source", cfg.SourceID, "run_id", runID),
		runID:     runID,
		ctx:       ctx,
		cancel:    cancel,
		state:     fsm.StateIdle,
		settings:  cfg.Settings,
		stops:     make(chan stopCommand),
		timerFire: make(chan uint64),
		done:      make(chan struct{}),
		backoff:   newBackoff(timing.RestartDelays, timing.MaxRestartFailures),
		lastFinal: -1,
	}
}

// SourceID returns the session key.
func (s *Session) SourceID() domain.SourceID { return s.cfg.SourceID }

// RunID identifies this run in logs and history.
func (s *Session) RunID() string { return s.runID }

// Done is closed once the session has released everything and stopped its loop.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current FSM state.
func (s *Session) State() fsm.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Settings returns the stored settings, which may be ahead of the running recognizer.
func (s *Session) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings stores new settings; the recognizer picks them up on its next restart.
func (s *Session) UpdateSettings(settings domain.Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// Snapshot returns the status view.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		SourceID:        s.cfg.SourceID,
		RunID:           s.runID,
		State:           s.state,
		RestartAttempts: s.restartAttempts,
		LastActivityAt:  s.lastActivityAt,
		Paused:          s.paused,
		Device:          s.device,
		Settings:        s.settings.Redacted(),
	}
}

func (s *Session) transition(event fsm.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fsm.Transition(s.state, event)
	if err != nil {
		return err
	}
	s.logger.Debug("session transition", "from", s.state, "event", event, "to", next)
	s.state = next
	return nil
}

// Start acquires the audio handle, attaches the recognizer, and schedules the
// first recognizer start. It returns once the handle is held or acquisition failed.
func (s *Session) Start(ctx context.Context) error {
	if s.cfg.Handles == nil || s.cfg.Recognizers == nil {
		return errors.New("session: handle provider and recognizer factory are required")
	}
	if err := s.transition(fsm.EventStart); err != nil {
		return err
	}

	stopWatching := context.AfterFunc(ctx, s.cancel)
	handle, err := s.cfg.Handles.Acquire(s.ctx, string(s.cfg.SourceID))
	stopWatching()

	if err == nil && s.ctx.Err() != nil {
		_ = handle.Stop()
		err = s.ctx.Err()
	}
	if err != nil {
		if s.ctx.Err() != nil {
			_ = s.transition(fsm.EventStop)
			_ = s.transition(fsm.EventCleanupDone)
		} else {
			_ = s.transition(fsm.EventHandleFailure)
			s.logger.Error("audio handle acquisition failed", "error", err)
			s.emitStatus(domain.StatusError, fmt.Sprintf("audio source unavailable: %v", err))
		}
		s.cancel()
		s.closeDone()
		return fmt.Errorf("%w: %w", ErrHandleUnavailable, err)
	}

	s.applied = s.Settings()
	s.handle = audio.Process(handle, s.chain(s.applied))
	s.rec = s.cfg.Recognizers(s.handle, s.logger)
	s.mu.Lock()
	s.device = handle.Device().ID
	s.mu.Unlock()

	s.arm(s.timing.StartDelay)
	go s.loop()
	return nil
}

// Stop tears the session down. A non-graceful stop skips the Stopped notification.
// Stopping an already stopped session is a no-op.
func (s *Session) Stop(ctx context.Context, graceful bool) error {
	s.cancel()

	cmd := stopCommand{graceful: graceful, reply: make(chan error, 1)}
	select {
	case s.stops <- cmd:
	case <-s.done:
		s.acknowledge()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acknowledge clears a Failed session whose loop has already exited.
func (s *Session) acknowledge() {
	if s.State() == fsm.StateFailed {
		_ = s.transition(fsm.EventAcknowledge)
	}
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) loop() {
	defer s.closeDone()
	events := s.rec.Events()

	for {
		// Pending stops win over queued recognizer work.
		select {
		case cmd := <-s.stops:
			if s.onStop(cmd) {
				return
			}
			continue
		default:
		}

		select {
		case cmd := <-s.stops:
			if s.onStop(cmd) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if s.onRecognizerEvent(ev) {
				return
			}
		case tok := <-s.timerFire:
			if tok != s.timerTok || s.timer == nil {
				continue
			}
			s.timer = nil
			s.attemptStart()
		}
	}
}

func (s *Session) arm(delay time.Duration) {
	s.disarm()
	s.timerTok++
	tok := s.timerTok
	s.timer = time.AfterFunc(delay, func() {
		select {
		case s.timerFire <- tok:
		case <-s.done:
		}
	})
}

func (s *Session) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) chain(settings domain.Settings) audio.Chain {
	return audio.NewChain(settings.Enhance, s.cfg.HighpassHz, s.cfg.Gain)
}

// reapply adopts stored settings at a restart boundary. The enhancement chain
// is swapped only when its toggle changed so filter state survives restarts.
func (s *Session) reapply(next domain.Settings) {
	if next.Enhance != s.applied.Enhance {
		s.handle.SetChain(s.chain(next))
		s.logger.Info("audio enhancement toggled", "enhance", next.Enhance)
	}
	s.applied = next
}

func (s *Session) attemptStart() {
	if s.State() == fsm.StateRestarting {
		if err := s.transition(fsm.EventBackoffElapsed); err != nil {
			s.logger.Warn("restart skipped", "error", err)
			return
		}
		s.reapply(s.Settings())
	}
	if s.State() != fsm.StateStarting {
		return
	}

	err := s.rec.Start(s.ctx, recognizer.ConfigFromSettings(s.applied))
	if err == nil {
		_ = s.transition(fsm.EventHandleReady)
		s.backoff.reset()
		s.mu.Lock()
		s.restartAttempts = 0
		s.paused = false
		s.lastActivityAt = time.Now()
		s.mu.Unlock()
		s.logger.Info("recognizer active", "language", s.applied.SourceLanguage, "continuous", s.applied.Continuous)
		if !s.announced {
			s.announced = true
			s.emitStatus(domain.StatusStarted, "")
		}
		return
	}

	if s.ctx.Err() != nil {
		return
	}

	code := recognizer.CodeOf(err)
	if recognizer.Classify(code) == recognizer.ClassFatal {
		s.fail(fmt.Sprintf("recognizer start failed: %v", err))
		return
	}

	exhausted := s.backoff.fail()
	s.mu.Lock()
	s.restartAttempts = s.backoff.failures
	s.mu.Unlock()
	if exhausted {
		s.fail(fmt.Sprintf("recognizer failed to restart after %d attempts: %v", s.backoff.failures, err))
		return
	}

	delay := s.backoff.delay()
	s.logger.Warn("recognizer start failed; retrying", "error", err, "attempt", s.backoff.failures, "delay", delay)
	_ = s.transition(fsm.EventStartFailed)
	s.arm(delay)
}

// onRecognizerEvent reports whether the loop should exit.
func (s *Session) onRecognizerEvent(ev recognizer.Event) bool {
	state := s.State()
	if state != fsm.StateActive && state != fsm.StateRestarting {
		return false
	}

	switch ev.Kind {
	case recognizer.EventResult:
		s.mu.Lock()
		s.lastActivityAt = time.Now()
		s.mu.Unlock()
		s.processResults(ev.Fragments)
	case recognizer.EventEnd:
		return s.onEnd(state)
	case recognizer.EventError:
		s.onError(state, ev)
	}
	return false
}

func (s *Session) onEnd(state fsm.State) bool {
	switch state {
	case fsm.StateActive:
		if !s.applied.Continuous {
			s.finishSingleShot()
			return true
		}
		_ = s.transition(fsm.EventRecognizerEnd)
		s.arm(s.backoff.delay())
	case fsm.StateRestarting:
		s.rearmPendingRestart()
	}
	return false
}

// rearmPendingRestart debounces repeated end/recoverable signals into one restart.
func (s *Session) rearmPendingRestart() {
	if s.backoff.failures > 0 {
		return
	}
	s.arm(s.backoff.delay())
}

func (s *Session) onError(state fsm.State, ev recognizer.Event) {
	class := recognizer.Classify(ev.Code)
	switch class {
	case recognizer.ClassRecoverable:
		if !s.applied.Continuous {
			// Single-utterance runs end on the recognizer's End instead of restarting.
			s.logger.Info("recognizer reported recoverable error; awaiting end", "code", ev.Code)
			return
		}
		s.logger.Info("recognizer reported recoverable error", "code", ev.Code)
		if state == fsm.StateActive {
			_ = s.transition(fsm.EventRecoverable)
			s.arm(s.backoff.delay())
			return
		}
		s.rearmPendingRestart()
	case recognizer.ClassPause:
		s.logger.Warn("audio capture lost; session paused", "code", ev.Code, "message", ev.Message)
		s.mu.Lock()
		s.paused = true
		s.mu.Unlock()
	case recognizer.ClassFatal:
		s.fail(fmt.Sprintf("recognizer error: %s", describe(ev)))
	default:
		s.logger.Warn("recognizer error", "code", ev.Code, "message", ev.Message)
		s.emitStatus(domain.StatusTranscriptionError, fmt.Sprintf("recognizer error: %s", describe(ev)))
	}
}

func describe(ev recognizer.Event) string {
	if strings.TrimSpace(ev.Message) == "" {
		return string(ev.Code)
	}
	return fmt.Sprintf("%s (%s)", ev.Code, strings.TrimSpace(ev.Message))
}

func (s *Session) processResults(fragments []domain.Fragment) {
	if s.ctx.Err() != nil {
		return
	}

	batch := transcript.Split(fragments, s.lastFinal)
	if batch.Stale > 0 {
		s.logger.Debug("dropped stale fragments", "count", batch.Stale, "last_final", s.lastFinal)
	}

	if len(batch.Finals) > 0 {
		s.lastFinal = transcript.MaxSequence(batch.Finals)
		if original := transcript.Join(batch.Finals); original != "" {
			translated := s.translate(original)
			if s.ctx.Err() != nil {
				return
			}
			s.emitSubtitle(original, translated, false, s.lastFinal)
		}
	}

	if len(batch.Interims) > 0 && s.applied.InterimResults {
		if text := transcript.Join(batch.Interims); text != "" {
			s.emitSubtitle(text, domain.InterimPlaceholder, true, transcript.MaxSequence(batch.Interims))
		}
	}
}

// translate never fails: errors degrade to the original text plus a
// transcription-error notification.
func (s *Session) translate(text string) string {
	ctx, cancel := context.WithTimeout(s.ctx, s.timing.TranslateTimeout)
	defer cancel()

	out, err := s.cfg.Translator.Translate(ctx, text, s.applied)
	if err != nil {
		if s.ctx.Err() != nil {
			return text
		}
		s.logger.Warn("translation failed; using original text", "error", err, "kind", translate.KindOf(err))
		s.emitStatus(domain.StatusTranscriptionError, fmt.Sprintf("translation failed: %v", err))
		return text
	}
	if strings.TrimSpace(out) == "" {
		return text
	}
	return out
}

// onStop reports whether the loop should exit.
func (s *Session) onStop(cmd stopCommand) bool {
	if s.State() == fsm.StateFailed {
		_ = s.transition(fsm.EventStop)
		cmd.reply <- nil
		return true
	}

	if err := s.transition(fsm.EventStop); err != nil {
		cmd.reply <- err
		return false
	}
	s.teardown()
	_ = s.transition(fsm.EventCleanupDone)
	s.logger.Info("session stopped", "graceful", cmd.graceful)
	if cmd.graceful {
		s.emitStatus(domain.StatusStopped, "")
	}
	cmd.reply <- nil
	return true
}

func (s *Session) finishSingleShot() {
	_ = s.transition(fsm.EventSingleShotDone)
	s.cancel()
	s.teardown()
	_ = s.transition(fsm.EventCleanupDone)
	s.logger.Info("single-utterance session finished")
	s.emitStatus(domain.StatusStopped, "")
	s.notifyTerminal()
}

func (s *Session) fail(message string) {
	if err := s.transition(fsm.EventFatal); err != nil {
		s.logger.Warn("fail ignored", "error", err)
		return
	}
	s.cancel()
	s.teardown()
	s.logger.Error("session failed", "reason", message)
	s.emitStatus(domain.StatusError, message)
	s.notifyTerminal()
}

func (s *Session) teardown() {
	s.disarm()
	if s.rec != nil {
		if err := s.rec.Stop(); err != nil {
			s.logger.Warn("recognizer stop failed", "error", err)
		}
	}
	if s.handle != nil {
		if err := s.handle.Stop(); err != nil {
			s.logger.Warn("audio handle release failed", "error", err)
		}
		s.handle = nil
	}
}

func (s *Session) notifyTerminal() {
	if s.cfg.OnTerminal != nil {
		s.cfg.OnTerminal(s)
	}
}

func (s *Session) emitStatus(kind domain.StatusKind, message string) {
	s.cfg.Relay.Status(context.Background(), domain.NewStatus(s.cfg.SourceID, s.runID, kind, message))
}

func (s *Session) emitSubtitle(original, translated string, interim bool, sequence int) {
	s.cfg.Relay.Subtitle(context.Background(), domain.SubtitleEvent{
		SourceID:   s.cfg.SourceID,
		RunID:      s.runID,
		Original:   original,
		Translated: translated,
		Timestamp:  time.Now().UnixMilli(),
		Interim:    interim,
		Sequence:   sequence,
	})
}
