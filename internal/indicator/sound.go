package indicator

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/livesub/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueError
)

const (
	cueSampleRate = 16000
	cueVolume     = 0.18
	cueGap        = 22 * time.Millisecond
	cueRamp       = 5 * time.Millisecond
	cueFileLimit  = 4 * time.Second
)

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

func tone(hz float64, ms int) toneSpec {
	return toneSpec{frequencyHz: hz, duration: time.Duration(ms) * time.Millisecond, volume: cueVolume}
}

// cuePCM holds the synthesized fallback for each cue: a rising pair when a
// session goes live, one low tone when it stops and a falling pair on failure.
var cuePCM = map[cueKind][]int16{
	cueStart: synthesizeCue(tone(880, 70), tone(1175, 70)),
	cueStop:  synthesizeCue(tone(620, 120)),
	cueError: synthesizeCue(tone(480, 75), tone(360, 90)),
}

// emitCue plays the configured cue file and falls back to the synthesized tone.
func emitCue(ctx context.Context, kind cueKind, cfg config.IndicatorConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path := cuePath(kind, cfg); path != "" && playCueFile(ctx, path) == nil {
		return nil
	}
	if samples := cueSamples(kind); len(samples) > 0 {
		return playSynthCue(samples)
	}
	return nil
}

func cueSamples(kind cueKind) []int16 {
	return cuePCM[kind]
}

func cuePath(kind cueKind, cfg config.IndicatorConfig) string {
	files := map[cueKind]string{
		cueStart: cfg.SoundStartFile,
		cueStop:  cfg.SoundStopFile,
		cueError: cfg.SoundErrorFile,
	}
	return expandUserPath(files[kind])
}

// expandUserPath resolves a leading ~ against the home directory.
func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "~")
	if !ok || (rest != "" && rest[0] != '/') {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, rest)
}

func playCueFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cueFileLimit)
	defer cancel()
	if err := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path).Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

func playSynthCue(samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("livesub"),
		pulse.ClientApplicationIconName("media-record"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	remaining := samples
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		n := copy(buf, remaining)
		remaining = remaining[n:]
		if len(remaining) == 0 {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("livesub status cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

// synthesizeCue joins tones with a short silence between them.
func synthesizeCue(parts ...toneSpec) []int16 {
	var pcm []int16
	gap := make([]int16, samplesForDuration(cueGap))
	for i, part := range parts {
		if i > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, synthesizeTone(part)...)
	}
	return pcm
}

// synthesizeTone renders a sine with linear attack and release ramps so the
// cue does not click.
func synthesizeTone(t toneSpec) []int16 {
	n := samplesForDuration(t.duration)
	if n <= 0 || t.frequencyHz <= 0 || t.volume <= 0 {
		return nil
	}

	ramp := max(min(n/10, samplesForDuration(cueRamp)), 1)
	step := 2 * math.Pi * t.frequencyHz / cueSampleRate
	pcm := make([]int16, n)
	for i := range pcm {
		edge := min(i, n-1-i)
		envelope := min(float64(edge)/float64(ramp), 1)
		pcm[i] = int16(math.Round(math.Sin(step*float64(i)) * t.volume * envelope * math.MaxInt16))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
