package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/livesub/internal/domain"
)

func TestLoadReturnsDefaultsWhenMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	settings, err := store.LoadSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.DefaultSettings(), settings)

	display, err := store.LoadDisplay(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.DefaultDisplay(), display)
}

func TestSettingsRoundTripAndPermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	settings := domain.DefaultSettings()
	settings.TranslationService = domain.ServiceKeyed
	settings.APIKey = "sk-test"
	settings.TargetLanguage = "ja-JP"
	require.NoError(t, store.SaveSettings(ctx, settings))

	got, err := store.LoadSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, settings, got)

	info, err := os.Stat(filepath.Join(dir, settingsFile))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFile), []byte(`{"target_language":"fr"}`), 0o600))

	store, err := Open(dir)
	require.NoError(t, err)
	got, err := store.LoadSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fr", got.TargetLanguage)
	require.Equal(t, "ko-KR", got.SourceLanguage)
	require.True(t, got.Continuous)
}

func TestSaveRejectsInvalidRecords(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	settings := domain.DefaultSettings()
	settings.Sensitivity = -1
	require.Error(t, store.SaveSettings(ctx, settings))

	display := domain.DefaultDisplay()
	display.Position = "left"
	require.Error(t, store.SaveDisplay(ctx, display))
}

func TestDisplayRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	display := domain.DefaultDisplay()
	display.FontSize = 24
	display.ShowOriginal = true
	require.NoError(t, store.SaveDisplay(ctx, display))

	got, err := store.LoadDisplay(ctx)
	require.NoError(t, err)
	require.Equal(t, display, got)
}

func TestCorruptFileReportsDecodeError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, displayFile), []byte("{"), 0o600))

	store, err := Open(dir)
	require.NoError(t, err)
	_, err = store.LoadDisplay(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode display.json")
}

func TestDefaultDirUsesConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/cfg")
	dir, err := DefaultDir()
	require.NoError(t, err)
	require.Equal(t, "/tmp/cfg/livesub", dir)
}
