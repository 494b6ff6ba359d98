package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/livesub/internal/domain"
)

func TestRunCommandWithInputWritesStdin(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	outputPath := filepath.Join(t.TempDir(), "stdin.txt")

	err := runCommandWithInput(context.Background(), []string{scriptPath, outputPath}, "hello from livesub", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, "hello from livesub", string(data))
}

func TestRunCommandWithInputRejectsEmptyArgv(t *testing.T) {
	err := runCommandWithInput(context.Background(), nil, "payload", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "argv cannot be empty")
}

func TestRunCommandWithInputReportsFailure(t *testing.T) {
	err := runCommandWithInput(context.Background(), []string{writeFailScript(t, "nope")}, "payload", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "wait for")
}

func TestCommandSinkAppendsFinalsInOrder(t *testing.T) {
	script := writeAppendScript(t)
	outputPath := filepath.Join(t.TempDir(), "subtitles.txt")

	sink, err := NewCommandSink([]string{script, outputPath}, 0, nil)
	require.NoError(t, err)

	ctx := context.Background()
	sink.Subtitle(ctx, domain.SubtitleEvent{SourceID: "42", Original: "안녕", Translated: "hello", Sequence: 0})
	sink.Subtitle(ctx, domain.SubtitleEvent{SourceID: "42", Original: "hel", Translated: domain.InterimPlaceholder, Interim: true})
	sink.Subtitle(ctx, domain.SubtitleEvent{SourceID: "42", Original: "감사", Translated: "thanks", Sequence: 1})
	sink.Status(ctx, domain.NewStatus("42", "run", domain.StatusStopped, ""))
	sink.Close()

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, "42:안녕:hello\n42:감사:thanks\n", string(data))
}

func TestNewCommandSinkRequiresArgv(t *testing.T) {
	_, err := NewCommandSink(nil, 0, nil)
	require.Error(t, err)
}

func writeStdinCaptureScript(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "capture-stdin.sh")
	script := `#!/usr/bin/env bash
set -euo pipefail
cat > "$1"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeAppendScript(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "append.sh")
	script := `#!/usr/bin/env bash
set -euo pipefail
read -r line
printf '%s:%s:%s\n' "$LIVESUB_SOURCE" "$LIVESUB_ORIGINAL" "$line" >> "$1"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeFailScript(t *testing.T, message string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "fail.sh")
	script := "#!/usr/bin/env bash\nset -euo pipefail\necho " + "\"" + message + "\"" + " >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}
