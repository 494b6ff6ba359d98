package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffEscalatesAndCaps(t *testing.T) {
	b := newBackoff([]time.Duration{200 * time.Millisecond, time.Second}, 3)
	require.Equal(t, 200*time.Millisecond, b.delay())

	require.False(t, b.fail())
	require.Equal(t, time.Second, b.delay())

	require.False(t, b.fail())
	require.Equal(t, time.Second, b.delay())

	require.True(t, b.fail())

	b.reset()
	require.Equal(t, 200*time.Millisecond, b.delay())
}

func TestTimingWithDefaults(t *testing.T) {
	got := Timing{}.withDefaults()
	require.Zero(t, got.StartDelay)
	require.Equal(t, DefaultTiming().RestartDelays, got.RestartDelays)
	require.Equal(t, 3, got.MaxRestartFailures)
	require.Equal(t, 10*time.Second, got.TranslateTimeout)

	custom := Timing{StartDelay: time.Millisecond, RestartDelays: []time.Duration{time.Millisecond}, MaxRestartFailures: 5}.withDefaults()
	require.Equal(t, time.Millisecond, custom.StartDelay)
	require.Equal(t, 5, custom.MaxRestartFailures)
}
