package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/livesub/internal/audio"
	"github.com/rbright/livesub/internal/cli"
	"github.com/rbright/livesub/internal/config"
	"github.com/rbright/livesub/internal/doctor"
	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/history"
	"github.com/rbright/livesub/internal/ipc"
	"github.com/rbright/livesub/internal/logging"
	"github.com/rbright/livesub/internal/version"
)

const (
	binaryName     = "livesub"
	forwardTimeout = 2 * time.Second
)

// Runner executes one livesub invocation against injectable writers.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Execute runs args with a default Runner and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// invocation carries what every command handler needs.
type invocation struct {
	parsed cli.Parsed
	cfg    config.Config
	loaded config.Loaded
	logger *slog.Logger
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New(parsed.LogLevel)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		// Client commands stay quiet about a missing file; the daemon and doctor report it.
		if !cfgLoaded.Exists && parsed.Command != cli.CommandRun && parsed.Command != cli.CommandDoctor {
			logger.Debug("config warning", "message", w.Message)
			continue
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	inv := invocation{parsed: parsed, cfg: cfgLoaded.Config, loaded: cfgLoaded, logger: logger}

	switch parsed.Command {
	case cli.CommandRun:
		return r.commandRun(ctx, inv)
	case cli.CommandStart:
		return r.commandStart(ctx, inv)
	case cli.CommandStop:
		return r.commandStop(ctx, inv)
	case cli.CommandStatus:
		return r.commandStatus(ctx, inv)
	case cli.CommandSessions:
		return r.commandSessions(ctx, inv)
	case cli.CommandSettings:
		return r.commandSettings(ctx, inv)
	case cli.CommandDisplay:
		return r.commandDisplay(ctx, inv)
	case cli.CommandDevices:
		return r.commandDevices(ctx, inv)
	case cli.CommandHistory:
		return r.commandHistory(ctx, inv)
	case cli.CommandDoctor:
		return r.commandDoctor(ctx, inv)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandStart(ctx context.Context, inv invocation) int {
	source := inv.parsed.Source
	if source == "" {
		source = inv.cfg.Audio.DefaultSource
	}
	resp, ok := r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandStart, SourceID: source})
	if !ok {
		return 1
	}
	if inv.parsed.JSON {
		return r.printJSON(resp)
	}
	fmt.Fprintln(r.Stdout, resp.Message)
	return 0
}

func (r Runner) commandStop(ctx context.Context, inv invocation) int {
	resp, ok := r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandStop, SourceID: inv.parsed.Source})
	if !ok {
		return 1
	}
	if inv.parsed.JSON {
		return r.printJSON(resp)
	}
	fmt.Fprintln(r.Stdout, resp.Message)
	return 0
}

func (r Runner) commandStatus(ctx context.Context, inv invocation) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus, SourceID: inv.parsed.Source})
	if !handled {
		if inv.parsed.JSON {
			return r.printJSON(ipc.Response{OK: true, State: "not running"})
		}
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if inv.parsed.JSON {
		return r.printJSON(resp)
	}

	colorize := shouldColorize(r.Stdout)
	if resp.Status != nil {
		fmt.Fprintln(r.Stdout, renderSourceStatus(*resp.Status, colorize))
		return 0
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintf(r.Stdout, "daemon: %s\n", colorState(resp.State, colorize))
	if len(resp.Sessions) > 0 {
		fmt.Fprintln(r.Stdout, renderSessions(resp.Sessions, colorize))
	}
	return 0
}

func (r Runner) commandSessions(ctx context.Context, inv invocation) int {
	resp, ok := r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandSessions})
	if !ok {
		return 1
	}
	if inv.parsed.JSON {
		return r.printJSON(resp.Sessions)
	}
	if len(resp.Sessions) == 0 {
		fmt.Fprintln(r.Stdout, "no sessions")
		return 0
	}
	fmt.Fprintln(r.Stdout, renderSessions(resp.Sessions, shouldColorize(r.Stdout)))
	return 0
}

func (r Runner) commandSettings(ctx context.Context, inv invocation) int {
	req := ipc.Request{Command: ipc.CommandStatus, SourceID: inv.parsed.Source}
	if !inv.parsed.Patch.Empty() {
		patch := inv.parsed.Patch
		req = ipc.Request{Command: ipc.CommandUpdateSettings, SourceID: inv.parsed.Source, Patch: &patch}
	}

	resp, ok := r.forwardOrFail(ctx, req)
	if !ok {
		return 1
	}

	settings := resp.Settings
	if settings == nil && resp.Status != nil {
		settings = resp.Status.Settings
	}
	if settings == nil {
		fmt.Fprintln(r.Stderr, "error: daemon returned no settings")
		return 1
	}
	if inv.parsed.JSON {
		return r.printJSON(settings)
	}
	fmt.Fprintln(r.Stdout, renderSettings(settings.Redacted()))
	return 0
}

func (r Runner) commandDisplay(ctx context.Context, inv invocation) int {
	resp, ok := r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandDisplay})
	if !ok {
		return 1
	}
	if resp.Display == nil {
		fmt.Fprintln(r.Stderr, "error: daemon returned no display record")
		return 1
	}

	if len(inv.parsed.DisplayFields) > 0 {
		next := inv.parsed.ApplyDisplay(*resp.Display)
		if err := next.Validate(); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		resp, ok = r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandDisplay, Display: &next})
		if !ok {
			return 1
		}
		if resp.Display == nil {
			resp.Display = &next
		}
	}

	if inv.parsed.JSON {
		return r.printJSON(resp.Display)
	}
	fmt.Fprintln(r.Stdout, renderDisplay(*resp.Display))
	return 0
}

func (r Runner) commandDevices(ctx context.Context, inv invocation) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if inv.parsed.JSON {
		return r.printJSON(devices)
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}
	fmt.Fprintln(r.Stdout, renderDevices(devices))
	return 0
}

func (r Runner) commandHistory(ctx context.Context, inv invocation) int {
	path, err := historyPath(inv.cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	entries, err := store.List(ctx, domain.SourceID(inv.parsed.Source), inv.parsed.Limit)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if inv.parsed.JSON {
		return r.printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.Stdout, "no subtitles recorded")
		return 0
	}
	fmt.Fprintln(r.Stdout, renderHistory(entries))
	return 0
}

func (r Runner) commandDoctor(ctx context.Context, inv invocation) int {
	report := doctor.Run(ctx, inv.loaded)
	if inv.parsed.JSON {
		_ = writeJSON(r.Stdout, report)
	} else {
		fmt.Fprintln(r.Stdout, renderDoctor(report, shouldColorize(r.Stdout)))
	}
	if report.OK() {
		return 0
	}
	return 1
}

func (r Runner) printJSON(v any) int {
	if err := writeJSON(r.Stdout, v); err != nil {
		fmt.Fprintf(r.Stderr, "error: encode json: %v\n", err)
		return 1
	}
	return 0
}

// forwardOrFail sends req to the daemon, reporting failures on stderr.
func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) (ipc.Response, bool) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, false
	}

	resp, handled, err := tryForward(ctx, socketPath, req)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: livesub daemon is not running (start it with `livesub run`)")
		return ipc.Response{}, false
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, false
	}
	return resp, true
}

// tryForward reports handled=false when no daemon owns the socket.
func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, forwardTimeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.IsNoListener(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func historyPath(cfg config.Config) (string, error) {
	if path := strings.TrimSpace(cfg.History.Path); path != "" {
		return path, nil
	}
	return history.DefaultPath()
}
