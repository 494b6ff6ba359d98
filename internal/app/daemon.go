package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rbright/livesub/internal/audio"
	"github.com/rbright/livesub/internal/config"
	"github.com/rbright/livesub/internal/coordinator"
	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/health"
	"github.com/rbright/livesub/internal/history"
	"github.com/rbright/livesub/internal/hotplug"
	"github.com/rbright/livesub/internal/indicator"
	"github.com/rbright/livesub/internal/ipc"
	"github.com/rbright/livesub/internal/output"
	"github.com/rbright/livesub/internal/overlay"
	"github.com/rbright/livesub/internal/prefs"
	"github.com/rbright/livesub/internal/recognizer"
	"github.com/rbright/livesub/internal/relay"
	"github.com/rbright/livesub/internal/session"
	"github.com/rbright/livesub/internal/translate"
)

const (
	socketProbeTimeout = 180 * time.Millisecond
	socketRetries      = 8
	stopTimeout        = 3 * time.Second
)

// daemonDeps are the collaborators tests replace.
type daemonDeps struct {
	handles     session.HandleProvider
	recognizers recognizer.Factory
	listSources hotplug.Lister
}

// daemon owns every long-lived component of `livesub run`.
type daemon struct {
	cfg    config.Config
	logger *slog.Logger

	prefs    *prefs.Store
	hub      *overlay.Hub
	overlay  *overlay.Server
	history  *history.Store
	sink     *output.CommandSink
	notifier *indicator.Notifier
	reporter *health.Reporter
	router   *translate.Router
	coord    *coordinator.Coordinator
	monitor  *hotplug.Monitor

	closers []func()
}

func (r Runner) commandRun(ctx context.Context, inv invocation) int {
	return r.runDaemon(ctx, inv, daemonDeps{})
}

func (r Runner) runDaemon(ctx context.Context, inv invocation, deps daemonDeps) int {
	logger := inv.logger
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: socketProbeTimeout,
		Retries:      socketRetries,
		OnStale: func(path string) {
			logger.Warn("removed stale daemon socket", "socket", path)
		},
	})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "error: %v (socket %s)\n", err, socketPath)
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	d, err := newDaemon(ctx, inv.cfg, logger, deps)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon setup failed", "error", err.Error())
		return 1
	}
	defer d.close()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, ipc.HandlerFunc(d.handle))
	}()

	logger.Info("daemon ready", "socket", socketPath, "overlay", d.overlayAddr())
	fmt.Fprintf(r.Stdout, "livesub daemon listening on %s\n", socketPath)

	d.autostart(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serverErrCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout*2)
	d.coord.Shutdown(shutdownCtx)
	cancel()

	serverCancel()
	if serveErr == nil {
		serveErr = <-serverErrCh
	}
	if serveErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serveErr)
		return 1
	}

	logger.Info("daemon stopped")
	return 0
}

func newDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger, deps daemonDeps) (*daemon, error) {
	d := &daemon{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			d.close()
		}
	}()

	prefsDir, err := prefs.DefaultDir()
	if err != nil {
		return nil, err
	}
	d.prefs, err = prefs.Open(prefsDir)
	if err != nil {
		return nil, err
	}
	settings, err := d.prefs.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	display, err := d.prefs.LoadDisplay(ctx)
	if err != nil {
		return nil, fmt.Errorf("load display: %w", err)
	}

	sinks := relay.Fanout{relay.Log{Logger: logger}}

	d.hub = overlay.NewHub(display, logger)
	sinks = append(sinks, d.hub)

	if cfg.History.Enable {
		path, err := historyPath(cfg)
		if err != nil {
			return nil, err
		}
		d.history, err = history.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = d.history.Close() })
		if cfg.History.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.History.RetentionDays)
			if pruned, err := d.history.Prune(ctx, cutoff); err != nil {
				logger.Warn("history prune failed", "error", err)
			} else if pruned > 0 {
				logger.Info("history pruned", "rows", pruned, "retention_days", cfg.History.RetentionDays)
			}
		}
		sinks = append(sinks, history.Relay{Store: d.history, Logger: logger})
	}

	if cfg.Overlay.Enable {
		var lister overlay.HistoryLister
		if d.history != nil {
			lister = d.history
		}
		d.overlay = overlay.NewServer(d.hub, lister, logger)
		if err := d.overlay.Start(ctx, cfg.Overlay.Listen); err != nil {
			return nil, err
		}
		d.closers = append(d.closers, d.overlay.Stop)
	}

	if len(cfg.SubtitleCmd.Argv) > 0 {
		d.sink, err = output.NewCommandSink(cfg.SubtitleCmd.Argv, 0, logger)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, d.sink.Close)
		sinks = append(sinks, d.sink)
	}

	if cfg.Indicator.Enable {
		d.notifier = indicator.NewNotifier(cfg.Indicator, logger)
		d.closers = append(d.closers, d.notifier.Close)
		sinks = append(sinks, d.notifier)
	}

	if cfg.Health.Enable {
		d.reporter = health.NewReporter(logger)
		if _, err := d.reporter.Start(ctx, cfg.Health.Listen); err != nil {
			return nil, err
		}
		d.closers = append(d.closers, d.reporter.Stop)
		sinks = append(sinks, d.reporter)
	}

	translateTimeout := time.Duration(cfg.Translation.TimeoutMS) * time.Millisecond
	client := &http.Client{Timeout: translateTimeout}
	d.router, err = translate.NewRouter(
		translate.NewFreeEndpoint(cfg.Translation.FreeEndpoint, client),
		translate.NewKeyedLLM(cfg.Translation.LLMEndpoint, client),
		cfg.Translation.CacheSize,
	)
	if err != nil {
		return nil, err
	}

	handles := deps.handles
	if handles == nil {
		handles = audio.NewPulseProvider(logger)
	}
	recognizers := deps.recognizers
	if recognizers == nil {
		recognizers = recognizer.NewDeepgramFactory(recognizer.DeepgramConfig{
			APIKey:      cfg.Recognizer.APIKey,
			APIBaseURL:  cfg.Recognizer.Endpoint,
			Model:       cfg.Recognizer.Model,
			SmartFormat: cfg.Recognizer.SmartFormat,
		})
	}

	d.coord = coordinator.New(coordinator.Options{
		Logger:      logger,
		Handles:     handles,
		Recognizers: recognizers,
		Translator:  d.router,
		Relay:       sinks,
		Settings:    settings,
		Store:       d.prefs,
		Timing:      sessionTiming(cfg, translateTimeout),
		HighpassHz:  cfg.Audio.HighpassHz,
		Gain:        cfg.Audio.Gain,
		Stats:       d.router.Stats,
		StopTimeout: stopTimeout,
	})

	if cfg.Hotplug.Enable {
		interval := time.Duration(cfg.Hotplug.PollIntervalMS) * time.Millisecond
		d.monitor = hotplug.NewMonitor(d.coord, deps.listSources, interval, logger)
		if err := d.monitor.Start(ctx); err != nil {
			return nil, err
		}
		d.closers = append(d.closers, d.monitor.Stop)
	}

	ok = true
	return d, nil
}

func sessionTiming(cfg config.Config, translateTimeout time.Duration) session.Timing {
	timing := session.DefaultTiming()
	timing.StartDelay = time.Duration(cfg.Session.StartDelayMS) * time.Millisecond
	if len(cfg.Session.RestartDelaysMS) > 0 {
		delays := make([]time.Duration, 0, len(cfg.Session.RestartDelaysMS))
		for _, ms := range cfg.Session.RestartDelaysMS {
			delays = append(delays, time.Duration(ms)*time.Millisecond)
		}
		timing.RestartDelays = delays
	}
	if cfg.Session.MaxRestartFailures > 0 {
		timing.MaxRestartFailures = cfg.Session.MaxRestartFailures
	}
	if translateTimeout > 0 {
		timing.TranslateTimeout = translateTimeout
	}
	return timing
}

// handle serves display commands locally and everything else through the coordinator.
func (d *daemon) handle(ctx context.Context, req ipc.Request) ipc.Response {
	if req.Command != ipc.CommandDisplay {
		return d.coord.Handle(ctx, req)
	}

	if req.Display == nil {
		current := d.hub.Display()
		return ipc.Response{OK: true, Display: &current}
	}

	next := *req.Display
	if err := next.Validate(); err != nil {
		return ipc.Response{OK: false, Error: fmt.Sprintf("invalid display: %v", err)}
	}
	if err := d.prefs.SaveDisplay(ctx, next); err != nil {
		return ipc.Response{OK: false, Error: fmt.Sprintf("persist display: %v", err)}
	}
	d.hub.SetDisplay(next)
	return ipc.Response{OK: true, Message: "display updated", Display: &next}
}

// autostart starts every configured source; failures are logged and skipped.
func (d *daemon) autostart(ctx context.Context) {
	for _, raw := range d.cfg.Audio.Autostart {
		source := domain.SourceID(strings.TrimSpace(raw))
		if source == "" {
			continue
		}
		if _, err := d.coord.StartSession(ctx, source, nil, d.coord.Settings()); err != nil {
			d.logger.Warn("autostart failed", "source", source, "error", err)
		}
	}
}

func (d *daemon) overlayAddr() string {
	if d.overlay == nil {
		return ""
	}
	return d.overlay.Addr()
}

// close releases components in reverse setup order.
func (d *daemon) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
