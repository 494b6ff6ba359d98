package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fileConfig is the on-disk shape shared by the JSONC and TOML formats. Nil
// fields keep the base value.
type fileConfig struct {
	Recognizer  *fileRecognizer  `json:"recognizer" toml:"recognizer"`
	Translation *fileTranslation `json:"translation" toml:"translation"`
	Audio       *fileAudio       `json:"audio" toml:"audio"`
	Session     *fileSession     `json:"session" toml:"session"`
	Overlay     *fileListener    `json:"overlay" toml:"overlay"`
	History     *fileHistory     `json:"history" toml:"history"`
	Health      *fileListener    `json:"health" toml:"health"`
	Hotplug     *fileHotplug     `json:"hotplug" toml:"hotplug"`
	Indicator   *fileIndicator   `json:"indicator" toml:"indicator"`

	SubtitleCmd *string `json:"subtitle_cmd" toml:"subtitle_cmd"`
}

type fileRecognizer struct {
	Endpoint    *string `json:"endpoint" toml:"endpoint"`
	APIKey      *string `json:"api_key" toml:"api_key"`
	Model       *string `json:"model" toml:"model"`
	SmartFormat *bool   `json:"smart_format" toml:"smart_format"`
}

type fileTranslation struct {
	FreeEndpoint *string `json:"free_endpoint" toml:"free_endpoint"`
	LLMEndpoint  *string `json:"llm_endpoint" toml:"llm_endpoint"`
	TimeoutMS    *int    `json:"timeout_ms" toml:"timeout_ms"`
	CacheSize    *int    `json:"cache_size" toml:"cache_size"`
}

type fileAudio struct {
	DefaultSource *string     `json:"default_source" toml:"default_source"`
	Autostart     *stringList `json:"autostart" toml:"autostart"`
	HighpassHz    *float64    `json:"highpass_hz" toml:"highpass_hz"`
	Gain          *float64    `json:"gain" toml:"gain"`
}

type fileSession struct {
	StartDelayMS       *int  `json:"start_delay_ms" toml:"start_delay_ms"`
	RestartDelaysMS    []int `json:"restart_delays_ms" toml:"restart_delays_ms"`
	MaxRestartFailures *int  `json:"max_restart_failures" toml:"max_restart_failures"`
}

type fileListener struct {
	Enable *bool   `json:"enable" toml:"enable"`
	Listen *string `json:"listen" toml:"listen"`
}

type fileHistory struct {
	Enable        *bool   `json:"enable" toml:"enable"`
	Path          *string `json:"path" toml:"path"`
	RetentionDays *int    `json:"retention_days" toml:"retention_days"`
}

type fileHotplug struct {
	Enable         *bool `json:"enable" toml:"enable"`
	PollIntervalMS *int  `json:"poll_interval_ms" toml:"poll_interval_ms"`
}

type fileIndicator struct {
	Enable         *bool   `json:"enable" toml:"enable"`
	Backend        *string `json:"backend" toml:"backend"`
	DesktopAppName *string `json:"desktop_app_name" toml:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable" toml:"sound_enable"`
	SoundStartFile *string `json:"sound_start_file" toml:"sound_start_file"`
	SoundStopFile  *string `json:"sound_stop_file" toml:"sound_stop_file"`
	SoundErrorFile *string `json:"sound_error_file" toml:"sound_error_file"`
	ShowSubtitles  *bool   `json:"show_subtitles" toml:"show_subtitles"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms" toml:"error_timeout_ms"`
}

// stringList accepts a JSON array or a comma-delimited string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = splitList(single)
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (payload fileConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if r := payload.Recognizer; r != nil {
		if r.Endpoint != nil {
			cfg.Recognizer.Endpoint = strings.TrimSpace(*r.Endpoint)
		}
		if r.APIKey != nil {
			cfg.Recognizer.APIKey = strings.TrimSpace(*r.APIKey)
			if cfg.Recognizer.APIKey != "" {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("recognizer.api_key stored in config; prefer %s", APIKeyEnv)})
			}
		}
		if r.Model != nil {
			cfg.Recognizer.Model = strings.TrimSpace(*r.Model)
		}
		if r.SmartFormat != nil {
			cfg.Recognizer.SmartFormat = *r.SmartFormat
		}
	}

	if t := payload.Translation; t != nil {
		if t.FreeEndpoint != nil {
			cfg.Translation.FreeEndpoint = strings.TrimSpace(*t.FreeEndpoint)
		}
		if t.LLMEndpoint != nil {
			cfg.Translation.LLMEndpoint = strings.TrimSpace(*t.LLMEndpoint)
		}
		if t.TimeoutMS != nil {
			cfg.Translation.TimeoutMS = *t.TimeoutMS
		}
		if t.CacheSize != nil {
			cfg.Translation.CacheSize = *t.CacheSize
		}
	}

	if a := payload.Audio; a != nil {
		if a.DefaultSource != nil {
			cfg.Audio.DefaultSource = strings.TrimSpace(*a.DefaultSource)
		}
		if a.Autostart != nil {
			cfg.Audio.Autostart = cfg.Audio.Autostart[:0]
			for _, source := range *a.Autostart {
				source = strings.TrimSpace(source)
				if source == "" {
					continue
				}
				cfg.Audio.Autostart = append(cfg.Audio.Autostart, source)
			}
		}
		if a.HighpassHz != nil {
			cfg.Audio.HighpassHz = *a.HighpassHz
		}
		if a.Gain != nil {
			cfg.Audio.Gain = *a.Gain
		}
	}

	if s := payload.Session; s != nil {
		if s.StartDelayMS != nil {
			cfg.Session.StartDelayMS = *s.StartDelayMS
		}
		if s.RestartDelaysMS != nil {
			cfg.Session.RestartDelaysMS = append([]int(nil), s.RestartDelaysMS...)
		}
		if s.MaxRestartFailures != nil {
			cfg.Session.MaxRestartFailures = *s.MaxRestartFailures
		}
	}

	if o := payload.Overlay; o != nil {
		if o.Enable != nil {
			cfg.Overlay.Enable = *o.Enable
		}
		if o.Listen != nil {
			cfg.Overlay.Listen = strings.TrimSpace(*o.Listen)
		}
	}

	if h := payload.History; h != nil {
		if h.Enable != nil {
			cfg.History.Enable = *h.Enable
		}
		if h.Path != nil {
			cfg.History.Path = strings.TrimSpace(*h.Path)
		}
		if h.RetentionDays != nil {
			cfg.History.RetentionDays = *h.RetentionDays
		}
	}

	if h := payload.Health; h != nil {
		if h.Enable != nil {
			cfg.Health.Enable = *h.Enable
		}
		if h.Listen != nil {
			cfg.Health.Listen = strings.TrimSpace(*h.Listen)
		}
	}

	if h := payload.Hotplug; h != nil {
		if h.Enable != nil {
			cfg.Hotplug.Enable = *h.Enable
		}
		if h.PollIntervalMS != nil {
			cfg.Hotplug.PollIntervalMS = *h.PollIntervalMS
		}
	}

	if i := payload.Indicator; i != nil {
		if i.Enable != nil {
			cfg.Indicator.Enable = *i.Enable
		}
		if i.Backend != nil {
			cfg.Indicator.Backend = strings.TrimSpace(*i.Backend)
		}
		if i.DesktopAppName != nil {
			cfg.Indicator.DesktopAppName = strings.TrimSpace(*i.DesktopAppName)
		}
		if i.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *i.SoundEnable
		}
		if i.SoundStartFile != nil {
			cfg.Indicator.SoundStartFile = strings.TrimSpace(*i.SoundStartFile)
		}
		if i.SoundStopFile != nil {
			cfg.Indicator.SoundStopFile = strings.TrimSpace(*i.SoundStopFile)
		}
		if i.SoundErrorFile != nil {
			cfg.Indicator.SoundErrorFile = strings.TrimSpace(*i.SoundErrorFile)
		}
		if i.ShowSubtitles != nil {
			cfg.Indicator.ShowSubtitles = *i.ShowSubtitles
		}
		if i.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *i.ErrorTimeoutMS
		}
	}

	if payload.SubtitleCmd != nil {
		raw := *payload.SubtitleCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid subtitle_cmd: %w", err)
		}
		cfg.SubtitleCmd = CommandConfig{Raw: raw, Argv: argv}
	}

	return warnings, nil
}
