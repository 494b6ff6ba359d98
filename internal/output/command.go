// Package output hands final subtitles to an external command.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rbright/livesub/internal/domain"
)

const (
	defaultQueueSize = 32
	defaultTimeout   = 2 * time.Second
)

// CommandSink runs argv once per final subtitle with the translated text on
// stdin. Runs happen on one worker goroutine so subtitles reach the command in
// emission order; when the queue is full new subtitles are dropped.
type CommandSink struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger

	queue  chan domain.SubtitleEvent
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewCommandSink starts the worker. timeout <= 0 selects the default.
func NewCommandSink(argv []string, timeout time.Duration, logger *slog.Logger) (*CommandSink, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("command argv cannot be empty")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &CommandSink{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		logger:  logger.With("component", "subtitle-cmd"),
		queue:   make(chan domain.SubtitleEvent, defaultQueueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Status implements relay.Relay; statuses are not forwarded.
func (s *CommandSink) Status(context.Context, domain.StatusEvent) {}

// Subtitle implements relay.Relay.
func (s *CommandSink) Subtitle(_ context.Context, ev domain.SubtitleEvent) {
	if ev.Interim {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn("subtitle command backlog full; dropping subtitle", "source", ev.SourceID, "sequence", ev.Sequence)
	}
}

// Close stops accepting subtitles and waits for queued runs to finish.
func (s *CommandSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *CommandSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := runCommandWithInput(ctx, s.argv, ev.Translated+"\n", subtitleEnv(ev))
		cancel()
		if err != nil {
			s.logger.Error("subtitle command failed", "source", ev.SourceID, "sequence", ev.Sequence, "error", err.Error())
		}
	}
}

func subtitleEnv(ev domain.SubtitleEvent) []string {
	return []string{
		"LIVESUB_SOURCE=" + string(ev.SourceID),
		"LIVESUB_RUN_ID=" + ev.RunID,
		"LIVESUB_SEQUENCE=" + strconv.Itoa(ev.Sequence),
		"LIVESUB_TIMESTAMP=" + strconv.FormatInt(ev.Timestamp, 10),
		"LIVESUB_ORIGINAL=" + ev.Original,
	}
}

// runCommandWithInput executes argv with extra environment and writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string, env []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
