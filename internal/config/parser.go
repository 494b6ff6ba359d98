package config

import (
	"fmt"
	"strings"
)

// Parse reads configuration content as JSONC or TOML.
//
// JSONC is selected when the first non-whitespace character is `{`.
func Parse(content string, base Config) (Config, []Warning, error) {
	return ParseFormat(content, FormatAuto, base)
}

// ParseFormat reads content with the given decoder; FormatAuto sniffs it.
func ParseFormat(content string, format Format, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	var (
		payload fileConfig
		err     error
	)
	if format == FormatAuto {
		format = FormatTOML
		if strings.HasPrefix(trimmed, "{") {
			format = FormatJSONC
		}
	}
	switch format {
	case FormatJSONC:
		payload, err = decodeJSONC(content)
	case FormatTOML:
		payload, err = decodeTOML(content)
	default:
		err = fmt.Errorf("unknown config format %q", format)
	}
	if err != nil {
		return Config{}, nil, err
	}

	cfg := cloneConfig(base)
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Audio.Autostart = append([]string(nil), cfg.Audio.Autostart...)
	out.Session.RestartDelaysMS = append([]int(nil), cfg.Session.RestartDelaysMS...)
	out.SubtitleCmd.Argv = append([]string(nil), cfg.SubtitleCmd.Argv...)
	return out
}
