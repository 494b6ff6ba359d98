// Package doctor runs readiness diagnostics for config, credentials, audio, and the daemon.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/livesub/internal/audio"
	"github.com/rbright/livesub/internal/config"
	"github.com/rbright/livesub/internal/health"
	"github.com/rbright/livesub/internal/history"
	"github.com/rbright/livesub/internal/ipc"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string `json:"name"`
	Pass    bool   `json:"pass"`
	Message string `json:"message"`
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check `json:"checks"`
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkAPIKey(cfg.Recognizer))
	checks = append(checks, checkEndpoint(ctx, "recognizer.endpoint", cfg.Recognizer.Endpoint))
	checks = append(checks, checkAudioSource(ctx, cfg.Audio.DefaultSource))

	if cfg.Indicator.Enable {
		if strings.EqualFold(cfg.Indicator.Backend, "hypr") {
			checks = append(checks, checkBinary("hyprctl", "hypr indicator backend requires hyprctl"))
		} else {
			checks = append(checks, checkBinary("busctl", "desktop indicator backend requires busctl"))
		}
	}
	if len(cfg.SubtitleCmd.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.SubtitleCmd.Argv, "subtitle_cmd"))
	}
	if cfg.History.Enable {
		checks = append(checks, checkHistory(ctx, cfg.History.Path))
	}

	daemon := checkDaemon(ctx)
	checks = append(checks, daemon)
	if cfg.Health.Enable && strings.HasPrefix(daemon.Message, "running") {
		checks = append(checks, checkHealth(ctx, cfg.Health.Listen))
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("no file at %q; using defaults", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 && loaded.Exists {
		message = fmt.Sprintf("%s (%d warnings)", message, n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkAPIKey confirms a recognizer credential is configured without printing it.
func checkAPIKey(cfg config.RecognizerConfig) Check {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return Check{Name: "recognizer.api_key", Pass: false, Message: fmt.Sprintf("no key in config or %s", config.APIKeyEnv)}
	}
	return Check{Name: "recognizer.api_key", Pass: true, Message: fmt.Sprintf("configured (%d chars)", len(key))}
}

// checkEndpoint treats any HTTP response as reachable; only transport failures fail.
func checkEndpoint(ctx context.Context, name, raw string) Check {
	target, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || target.Host == "" {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("invalid endpoint %q", raw)}
	}
	switch target.Scheme {
	case "ws":
		target.Scheme = "http"
	case "wss":
		target.Scheme = "https"
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.String(), nil)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	return Check{Name: name, Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, target.Host)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSource resolves the default source against the live Pulse server.
func checkAudioSource(ctx context.Context, source string) Check {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	dev, err := audio.ResolveDevice(devices, source)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	return Check{Name: "audio.device", Pass: true, Message: fmt.Sprintf("selected %q (%d sources)", dev.ID, len(devices))}
}

// checkHistory opens the subtitle database, creating it when missing.
func checkHistory(ctx context.Context, path string) Check {
	if strings.TrimSpace(path) == "" {
		resolved, err := history.DefaultPath()
		if err != nil {
			return Check{Name: "history", Pass: false, Message: err.Error()}
		}
		path = resolved
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		return Check{Name: "history", Pass: false, Message: err.Error()}
	}
	defer store.Close()
	return Check{Name: "history", Pass: true, Message: fmt.Sprintf("writable at %s", path)}
}

// checkDaemon reports whether a daemon answers on the runtime socket. A
// stopped daemon is not a failure.
func checkDaemon(ctx context.Context) Check {
	path, err := ipc.RuntimeSocketPath()
	if err != nil {
		return Check{Name: "daemon", Pass: false, Message: err.Error()}
	}
	alive, err := ipc.Probe(ctx, path, probeTimeout)
	if err != nil && !ipc.IsNoListener(err) {
		return Check{Name: "daemon", Pass: false, Message: fmt.Sprintf("probe %s: %v", path, err)}
	}
	if !alive {
		return Check{Name: "daemon", Pass: true, Message: fmt.Sprintf("not running (%s)", path)}
	}
	return Check{Name: "daemon", Pass: true, Message: fmt.Sprintf("running at %s", path)}
}

func checkHealth(ctx context.Context, target string) Check {
	status, err := health.Probe(ctx, target, health.DaemonService, probeTimeout)
	if err != nil {
		return Check{Name: "health", Pass: false, Message: err.Error()}
	}
	return Check{Name: "health", Pass: true, Message: fmt.Sprintf("%s reports %s", target, status)}
}
