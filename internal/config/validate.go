package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	for name, raw := range map[string]string{
		"recognizer.endpoint":       cfg.Recognizer.Endpoint,
		"translation.free_endpoint": cfg.Translation.FreeEndpoint,
		"translation.llm_endpoint":  cfg.Translation.LLMEndpoint,
	} {
		if err := validateEndpoint(name, raw); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.Recognizer.Model) == "" {
		return nil, fmt.Errorf("recognizer.model must not be empty")
	}
	if cfg.Translation.TimeoutMS <= 0 {
		return nil, fmt.Errorf("translation.timeout_ms must be > 0")
	}
	if cfg.Translation.CacheSize < 0 {
		return nil, fmt.Errorf("translation.cache_size must be >= 0")
	}
	if cfg.Translation.CacheSize == 0 {
		warnings = append(warnings, Warning{Message: "translation.cache_size=0 disables the translation cache"})
	}

	if cfg.Audio.HighpassHz < 0 {
		return nil, fmt.Errorf("audio.highpass_hz must be >= 0")
	}
	if cfg.Audio.Gain <= 0 {
		return nil, fmt.Errorf("audio.gain must be > 0")
	}
	seen := make(map[string]struct{}, len(cfg.Audio.Autostart))
	for _, source := range cfg.Audio.Autostart {
		if _, dup := seen[source]; dup {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("audio.autostart lists %q more than once", source)})
		}
		seen[source] = struct{}{}
	}

	if cfg.Session.StartDelayMS < 0 {
		return nil, fmt.Errorf("session.start_delay_ms must be >= 0")
	}
	if len(cfg.Session.RestartDelaysMS) == 0 {
		return nil, fmt.Errorf("session.restart_delays_ms must not be empty")
	}
	for i, delay := range cfg.Session.RestartDelaysMS {
		if delay < 0 {
			return nil, fmt.Errorf("session.restart_delays_ms[%d] must be >= 0", i)
		}
	}
	if cfg.Session.MaxRestartFailures <= 0 {
		return nil, fmt.Errorf("session.max_restart_failures must be > 0")
	}

	if cfg.Overlay.Enable {
		if err := validateListen("overlay.listen", cfg.Overlay.Listen); err != nil {
			return nil, err
		}
	}
	if cfg.Health.Enable {
		if err := validateListen("health.listen", cfg.Health.Listen); err != nil {
			return nil, err
		}
	}
	if cfg.History.RetentionDays < 0 {
		return nil, fmt.Errorf("history.retention_days must be >= 0")
	}
	if cfg.Hotplug.PollIntervalMS <= 0 {
		return nil, fmt.Errorf("hotplug.poll_interval_ms must be > 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if cfg.SubtitleCmd.Raw != "" && len(cfg.SubtitleCmd.Argv) == 0 {
		return nil, fmt.Errorf("subtitle_cmd is configured but empty")
	}

	return warnings, nil
}

func validateEndpoint(name, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	switch parsed.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("%s must be an http(s) or ws(s) URL (got %q)", name, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

func validateListen(name, addr string) error {
	if _, _, err := net.SplitHostPort(strings.TrimSpace(addr)); err != nil {
		return fmt.Errorf("%s must be host:port: %w", name, err)
	}
	return nil
}
