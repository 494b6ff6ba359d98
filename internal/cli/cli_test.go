package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/livesub/internal/domain"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/livesub.conf", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/livesub.conf", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantErr    string
		wantCmd    Command
		wantHelp   bool
		wantPath   string
		wantSource string
	}{
		{name: "help short flag", args: []string{"-h"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help long flag", args: []string{"--help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help command", args: []string{"help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "version flag", args: []string{"--version"}, wantCmd: CommandVersion},
		{name: "config after command", args: []string{"status", "--config", "/tmp/cfg"}, wantCmd: CommandStatus, wantPath: "/tmp/cfg"},
		{name: "missing config path", args: []string{"--config"}, wantErr: "needs an argument"},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: "unknown flag"},
		{name: "unknown command", args: []string{"bogus"}, wantErr: "unknown command"},
		{name: "extra args after command", args: []string{"doctor", "extra"}, wantErr: "unknown command"},
		{name: "stop requires source", args: []string{"stop"}, wantErr: "accepts 1 arg"},
		{name: "stop with source", args: []string{"stop", "alsa_input.usb"}, wantCmd: CommandStop, wantSource: "alsa_input.usb"},
		{name: "start without source", args: []string{"start"}, wantCmd: CommandStart},
		{name: "status for source", args: []string{"--config", "/tmp/cfg", "status", "42"}, wantCmd: CommandStatus, wantPath: "/tmp/cfg", wantSource: "42"},
		{name: "blank source", args: []string{"stop", " "}, wantErr: "source must not be empty"},
		{name: "run", args: []string{"run"}, wantCmd: CommandRun},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
			require.Equal(t, tc.wantSource, parsed.Source)
		})
	}
}

func TestParseSettingsBuildsPatchFromChangedFlags(t *testing.T) {
	parsed, err := Parse([]string{"settings", "--service", "keyed", "--target-language", "ja", "--interim=false"})
	require.NoError(t, err)
	require.Equal(t, CommandSettings, parsed.Command)
	require.Empty(t, parsed.Source)

	patch := parsed.Patch
	require.NotNil(t, patch.TranslationService)
	require.Equal(t, domain.ServiceKeyed, *patch.TranslationService)
	require.NotNil(t, patch.TargetLanguage)
	require.Equal(t, "ja", *patch.TargetLanguage)
	require.NotNil(t, patch.InterimResults)
	require.False(t, *patch.InterimResults)
	require.Nil(t, patch.SourceLanguage)
	require.Nil(t, patch.Sensitivity)
	require.Nil(t, patch.Continuous)

	parsed, err = Parse([]string{"settings", "mic"})
	require.NoError(t, err)
	require.Equal(t, "mic", parsed.Source)
	require.True(t, parsed.Patch.Empty())
}

func TestParseDisplayAppliesOnlyChangedFields(t *testing.T) {
	parsed, err := Parse([]string{"display", "--font-size", "28", "--position", "top", "--show-interim=false"})
	require.NoError(t, err)
	require.Equal(t, CommandDisplay, parsed.Command)
	require.ElementsMatch(t, []string{"font-size", "position", "show-interim"}, parsed.DisplayFields)

	base := domain.DefaultDisplay()
	got := parsed.ApplyDisplay(base)
	require.Equal(t, 28, got.FontSize)
	require.Equal(t, "top", got.Position)
	require.False(t, got.ShowInterim)
	require.Equal(t, base.FontColor, got.FontColor)
	require.Equal(t, base.AutoHide, got.AutoHide)
}

func TestParseHistoryLimit(t *testing.T) {
	parsed, err := Parse([]string{"history", "mic", "--limit", "5"})
	require.NoError(t, err)
	require.Equal(t, CommandHistory, parsed.Command)
	require.Equal(t, "mic", parsed.Source)
	require.Equal(t, 5, parsed.Limit)

	_, err = Parse([]string{"history", "--limit", "0"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--limit")
}

func TestParseGlobalFlags(t *testing.T) {
	parsed, err := Parse([]string{"sessions", "--json", "--log-level", "debug"})
	require.NoError(t, err)
	require.Equal(t, CommandSessions, parsed.Command)
	require.True(t, parsed.JSON)
	require.Equal(t, "debug", parsed.LogLevel)
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("livesub")
	require.Contains(t, text, "Usage:")
	for _, name := range []string{"run", "start", "stop", "status", "sessions", "settings", "display", "devices", "history", "doctor"} {
		require.Contains(t, text, name)
	}
	require.Contains(t, text, "--config")
}
