package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTOMLConfig(t *testing.T) {
	input := `
# livesub daemon
subtitle_cmd = "tee -a '/tmp/live subs.txt'"

[recognizer]
model = "nova-3"
smart_format = false

[audio]
default_source = "alsa_input.usb-mic"
autostart = ["alsa_input.usb-mic"]
highpass_hz = 120.0

[overlay]
listen = "127.0.0.1:9100"

[indicator]
backend = "hypr"
sound_enable = false
`

	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, "nova-3", cfg.Recognizer.Model)
	require.False(t, cfg.Recognizer.SmartFormat)
	require.Equal(t, "alsa_input.usb-mic", cfg.Audio.DefaultSource)
	require.Equal(t, []string{"alsa_input.usb-mic"}, cfg.Audio.Autostart)
	require.InDelta(t, 120.0, cfg.Audio.HighpassHz, 1e-9)
	require.Equal(t, "127.0.0.1:9100", cfg.Overlay.Listen)
	require.Equal(t, "hypr", cfg.Indicator.Backend)
	require.False(t, cfg.Indicator.SoundEnable)
	require.Equal(t, "tee|-a|/tmp/live subs.txt", strings.Join(cfg.SubtitleCmd.Argv, "|"))
}

func TestParseTOMLUnknownKeyFails(t *testing.T) {
	_, _, err := Parse("[overlay]\nport = 1\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown key")
	require.Contains(t, err.Error(), "line 2")
}

func TestParseTOMLSyntaxErrorIncludesLine(t *testing.T) {
	_, _, err := Parse("\n\nthis is bad", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 3")
}

func TestParseTOMLRunsValidation(t *testing.T) {
	_, _, err := Parse("[indicator]\nbackend = \"tray\"\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "indicator.backend")
}

func TestParseEmptyContentKeepsBase(t *testing.T) {
	cfg, warnings, err := Parse("   \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}
