package session

import "time"

// Timing controls start and restart pacing.
type Timing struct {
	// StartDelay elapses between handle acquisition and the first recognizer start.
	StartDelay time.Duration
	// RestartDelays is indexed by consecutive failures; the last entry repeats.
	RestartDelays []time.Duration
	// MaxRestartFailures consecutive start failures move the session to Failed.
	MaxRestartFailures int
	// TranslateTimeout bounds one translation call.
	TranslateTimeout time.Duration
}

// DefaultTiming returns the production pacing.
func DefaultTiming() Timing {
	return Timing{
		StartDelay:         100 * time.Millisecond,
		RestartDelays:      []time.Duration{200 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond},
		MaxRestartFailures: 3,
		TranslateTimeout:   10 * time.Second,
	}
}

func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	if t.StartDelay < 0 {
		t.StartDelay = 0
	}
	if len(t.RestartDelays) == 0 {
		t.RestartDelays = def.RestartDelays
	}
	if t.MaxRestartFailures <= 0 {
		t.MaxRestartFailures = def.MaxRestartFailures
	}
	if t.TranslateTimeout <= 0 {
		t.TranslateTimeout = def.TranslateTimeout
	}
	return t
}

// backoff tracks consecutive recognizer start failures.
type backoff struct {
	delays   []time.Duration
	limit    int
	failures int
}

func newBackoff(delays []time.Duration, limit int) *backoff {
	return &backoff{delays: delays, limit: limit}
}

// delay returns the wait before the next start attempt.
func (b *backoff) delay() time.Duration {
	idx := b.failures
	if idx >= len(b.delays) {
		idx = len(b.delays) - 1
	}
	return b.delays[idx]
}

// fail records one failed attempt and reports whether the budget is spent.
func (b *backoff) fail() bool {
	b.failures++
	return b.failures >= b.limit
}

func (b *backoff) reset() {
	b.failures = 0
}
