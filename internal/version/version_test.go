package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func stamp(t *testing.T, version, commit, date string) {
	t.Helper()
	saved := [3]string{Version, Commit, Date}
	t.Cleanup(func() { Version, Commit, Date = saved[0], saved[1], saved[2] })
	Version, Commit, Date = version, commit, date
}

func TestStringRendersStampedBuild(t *testing.T) {
	stamp(t, "0.4.0", "9f2c1e7", "2026-10-01")

	got := String()
	require.Regexp(t, `^livesub 0\.4\.0 \(commit=9f2c1e7, date=2026-10-01, go=[^)]+\)$`, got)
}

func TestCommitFallsBackWhenUnstamped(t *testing.T) {
	for _, unstamped := range []string{"none", ""} {
		stamp(t, "dev", unstamped, "unknown")

		got := commit()
		if got != unstamped {
			require.NotEmpty(t, got)
			require.LessOrEqual(t, len(got), 12, "vcs revision is shortened")
		}
	}
}
