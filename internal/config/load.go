package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// APIKeyEnv supplies the recognizer key when the config file leaves it empty.
const APIKeyEnv = "DEEPGRAM_API_KEY"

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&base)
			return Loaded{
				Path:   resolvedPath,
				Config: base,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists: false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := ParseFormat(string(content), FormatFor(resolvedPath), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}
	applyEnv(&cfg)

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

func applyEnv(cfg *Config) {
	if strings.TrimSpace(cfg.Recognizer.APIKey) != "" {
		return
	}
	cfg.Recognizer.APIKey = strings.TrimSpace(os.Getenv(APIKeyEnv))
}
