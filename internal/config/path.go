package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Format selects the decoder for a config file.
type Format string

const (
	// FormatAuto picks JSONC when the document starts with '{' and TOML otherwise.
	FormatAuto  Format = ""
	FormatTOML  Format = "toml"
	FormatJSONC Format = "jsonc"
)

// fallbackName is returned when no candidate exists yet; it is sniffed on read.
const fallbackName = "config.conf"

// candidateNames are probed in order inside the config directory.
var candidateNames = []string{"config.toml", "config.jsonc", fallbackName}

// Dir returns the livesub config directory under XDG_CONFIG_HOME or ~/.config.
func Dir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "livesub"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "livesub"), nil
}

// ResolvePath returns explicit when set. Otherwise it returns the first of
// config.toml, config.jsonc and config.conf present in Dir, defaulting to
// config.conf.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	for _, name := range candidateNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return filepath.Join(dir, fallbackName), nil
}

// FormatFor maps a file extension to its decoder.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json", ".jsonc":
		return FormatJSONC
	default:
		return FormatAuto
	}
}
