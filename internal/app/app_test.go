package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/livesub/internal/audio"
	"github.com/rbright/livesub/internal/config"
	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/history"
	"github.com/rbright/livesub/internal/ipc"
	"github.com/rbright/livesub/internal/session"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "livesub")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestRunnerStatusWhenDaemonNotRunning(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "not running\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerStopFailsWithoutDaemon(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "stop", "mic"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "daemon is not running")
}

func TestRunnerForwardsCommandsToDaemon(t *testing.T) {
	paths := setupRunnerEnv(t, "[audio]\ndefault_source = \"alsa_input.usb\"\n")
	requests := make(chan ipc.Request, 8)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath, func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		switch req.Command {
		case ipc.CommandStart, ipc.CommandStop:
			return ipc.Response{OK: true, Message: req.Command + " " + req.SourceID}
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: "running"}
		case ipc.CommandSessions:
			return ipc.Response{OK: true, Sessions: []ipc.SourceStatus{{SourceID: "mic", State: "active", RunID: "run-1"}}}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	tests := []struct {
		args       []string
		wantStdout string
		wantReq    ipc.Request
	}{
		{args: []string{"start"}, wantStdout: "start alsa_input.usb", wantReq: ipc.Request{Command: ipc.CommandStart, SourceID: "alsa_input.usb"}},
		{args: []string{"start", "mic"}, wantStdout: "start mic", wantReq: ipc.Request{Command: ipc.CommandStart, SourceID: "mic"}},
		{args: []string{"stop", "mic"}, wantStdout: "stop mic", wantReq: ipc.Request{Command: ipc.CommandStop, SourceID: "mic"}},
		{args: []string{"status"}, wantStdout: "daemon: running", wantReq: ipc.Request{Command: ipc.CommandStatus}},
		{args: []string{"sessions"}, wantStdout: "run-1", wantReq: ipc.Request{Command: ipc.CommandSessions}},
	}

	for _, tc := range tests {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			var stdout bytes.Buffer
			var stderr bytes.Buffer
			runner := Runner{Stdout: &stdout, Stderr: &stderr}

			exitCode := runner.Execute(context.Background(), append([]string{"--config", paths.configPath}, tc.args...))
			require.Equal(t, 0, exitCode, stderr.String())
			require.Empty(t, stderr.String())
			require.Contains(t, stdout.String(), tc.wantStdout)
			require.Equal(t, tc.wantReq, <-requests)
		})
	}
}

func TestRunnerSettingsSendsPatch(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	requests := make(chan ipc.Request, 2)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath, func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		settings := domain.DefaultSettings()
		if req.Patch != nil {
			settings = req.Patch.Apply(settings)
		}
		return ipc.Response{OK: true, Settings: &settings}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "settings", "--target-language", "ja", "--api-key", "sk-secret"})
	require.Equal(t, 0, exitCode, stderr.String())

	req := <-requests
	require.Equal(t, ipc.CommandUpdateSettings, req.Command)
	require.NotNil(t, req.Patch)
	require.Equal(t, "ja", *req.Patch.TargetLanguage)
	require.Contains(t, stdout.String(), "ja")
	require.NotContains(t, stdout.String(), "sk-secret")
}

func TestRunnerDisplayMergesChangedFields(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	requests := make(chan ipc.Request, 2)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath, func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		if req.Display == nil {
			current := domain.DefaultDisplay()
			return ipc.Response{OK: true, Display: &current}
		}
		return ipc.Response{OK: true, Display: req.Display}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "display", "--font-size", "30", "--json"})
	require.Equal(t, 0, exitCode, stderr.String())

	require.Nil(t, (<-requests).Display)
	update := <-requests
	require.NotNil(t, update.Display)
	require.Equal(t, 30, update.Display.FontSize)
	require.Equal(t, domain.DefaultDisplay().Position, update.Display.Position)
	require.Contains(t, stdout.String(), `"font_size": 30`)
}

func TestRunnerDisplayRejectsInvalidValuesBeforeSending(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	var mu sync.Mutex
	var updates int

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath, func(_ context.Context, req ipc.Request) ipc.Response {
		if req.Display != nil {
			mu.Lock()
			updates++
			mu.Unlock()
		}
		current := domain.DefaultDisplay()
		return ipc.Response{OK: true, Display: &current}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "display", "--font-size", "500"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "font_size")

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, updates)
}

func TestRunnerHistoryReadsLocalStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	paths := setupRunnerEnv(t, "[history]\npath = \""+dbPath+"\"\n")

	store, err := history.Open(context.Background(), dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), domain.SubtitleEvent{
		SourceID:   "mic",
		RunID:      "run-1",
		Sequence:   1,
		Original:   "안녕하세요",
		Translated: "hello",
		Timestamp:  time.Now().UnixMilli(),
	}))
	require.NoError(t, store.Close())

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "history", "mic", "--json"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), `"translated": "hello"`)

	stdout.Reset()
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "history", "other"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "no subtitles recorded\n", stdout.String())
}

func TestTryForwardSuccessAndFailureResponses(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "livesub.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	serverCtx, cancelServer := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- ipc.Serve(serverCtx, listener, ipc.HandlerFunc(func(_ context.Context, req ipc.Request) ipc.Response {
			switch req.Command {
			case ipc.CommandStatus:
				return ipc.Response{OK: true, State: "running"}
			default:
				return ipc.Response{OK: false, Error: "unsupported"}
			}
		}))
	}()

	resp, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: ipc.CommandStatus})
	require.True(t, handled)
	require.NoError(t, err)
	require.Equal(t, "running", resp.State)

	_, handled, err = tryForward(context.Background(), socketPath, ipc.Request{Command: "bogus"})
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")

	cancelServer()
	require.NoError(t, <-serverDone)
}

func TestTryForwardDoesNotRemoveStaleSocketPath(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "livesub.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	_, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: ipc.CommandStatus})
	require.False(t, handled)
	require.NoError(t, err)

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
}

func TestTryForwardTreatsReadFailuresAsHandledErrors(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "livesub.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, acceptErr := listener.Accept()
		if acceptErr == nil {
			_ = conn.Close()
		}
	}()

	_, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: ipc.CommandStatus})
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), `forward command "status":`)

	<-done
	require.NoError(t, listener.Close())
}

func TestRunnerDoctorCommandPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	t.Setenv(config.APIKeyEnv, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "[FAIL]")
}

func TestRunnerDevicesCommandReportsPulseErrors(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunDaemonServesCommandsUntilCancelled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	paths := setupRunnerEnv(t, strings.Join([]string{
		"[overlay]",
		"enable = false",
		"[history]",
		"path = \"" + dbPath + "\"",
		"[hotplug]",
		"enable = false",
		"[indicator]",
		"enable = false",
		"",
	}, "\n"))

	loaded, err := config.Load(paths.configPath)
	require.NoError(t, err)

	unavailable := session.HandleProviderFunc(func(context.Context, string) (audio.Handle, error) {
		return nil, errors.New("no such source")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &lockedBuffer{buf: &stdout}, Stderr: &lockedBuffer{buf: &stderr}}
	exitCh := make(chan int, 1)
	go func() {
		exitCh <- runner.runDaemon(ctx, invocation{cfg: loaded.Config, loaded: loaded, logger: discardLogger()}, daemonDeps{handles: unavailable})
	}()

	require.Eventually(t, func() bool {
		alive, _ := ipc.Probe(context.Background(), paths.socketPath, 100*time.Millisecond)
		return alive
	}, 3*time.Second, 20*time.Millisecond)

	resp, err := ipc.Send(ctx, paths.socketPath, ipc.Request{Command: ipc.CommandStatus}, time.Second)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.NotNil(t, resp.Settings)

	resp, err = ipc.Send(ctx, paths.socketPath, ipc.Request{Command: ipc.CommandStart, SourceID: "mic"}, time.Second)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "audio handle acquisition failed")

	next := domain.DefaultDisplay()
	next.FontSize = 24
	resp, err = ipc.Send(ctx, paths.socketPath, ipc.Request{Command: ipc.CommandDisplay, Display: &next}, time.Second)
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Error)

	resp, err = ipc.Send(ctx, paths.socketPath, ipc.Request{Command: ipc.CommandDisplay}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp.Display)
	require.Equal(t, 24, resp.Display.FontSize)

	invalid := next
	invalid.Position = "middle"
	resp, err = ipc.Send(ctx, paths.socketPath, ipc.Request{Command: ipc.CommandDisplay, Display: &invalid}, time.Second)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "invalid display")

	cancel()
	select {
	case code := <-exitCh:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, statErr := os.Stat(paths.socketPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
	_, statErr = os.Stat(filepath.Join(paths.configHome, "livesub", "display.json"))
	require.NoError(t, statErr)
}

func TestRunDaemonRefusesSecondInstance(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath, func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "running"}
	})
	defer shutdown()

	loaded, err := config.Load(paths.configPath)
	require.NoError(t, err)

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}
	code := runner.runDaemon(context.Background(), invocation{cfg: loaded.Config, loaded: loaded, logger: discardLogger()}, daemonDeps{})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), ipc.ErrAlreadyRunning.Error())
}

func TestSessionTimingFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Session.StartDelayMS = 50
	cfg.Session.RestartDelaysMS = []int{10, 20}
	cfg.Session.MaxRestartFailures = 5

	timing := sessionTiming(cfg, 3*time.Second)
	require.Equal(t, 50*time.Millisecond, timing.StartDelay)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, timing.RestartDelays)
	require.Equal(t, 5, timing.MaxRestartFailures)
	require.Equal(t, 3*time.Second, timing.TranslateTimeout)
}

type runnerPaths struct {
	configPath string
	configHome string
	socketPath string
}

func setupRunnerEnv(t *testing.T, configBody string) runnerPaths {
	t.Helper()

	configHome := t.TempDir()
	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	configPath := filepath.Join(t.TempDir(), "config.conf")
	require.NoError(t, os.WriteFile(configPath, []byte(configBody+"\n"), 0o600))

	return runnerPaths{
		configPath: configPath,
		configHome: configHome,
		socketPath: filepath.Join(runtimeDir, "livesub.sock"),
	}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
