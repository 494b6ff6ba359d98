// Package prefs persists the Settings record and the overlay display record as
// JSON files guarded by an advisory lock.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/rbright/livesub/internal/domain"
)

const (
	settingsFile = "settings.json"
	displayFile  = "display.json"
	lockFile     = "prefs.lock"

	lockRetryDelay = 20 * time.Millisecond
)

// Store reads and writes the preference records under one directory.
type Store struct {
	dir  string
	lock *flock.Flock
}

// DefaultDir resolves $XDG_CONFIG_HOME/livesub.
func DefaultDir() (string, error) {
	configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "livesub"), nil
}

// Open prepares a store rooted at dir.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("prefs dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	return &Store{dir: dir, lock: flock.New(filepath.Join(dir, lockFile))}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// LoadSettings returns the stored Settings, or defaults when none were saved.
// Fields missing from the file keep their default values.
func (s *Store) LoadSettings(ctx context.Context) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	found, err := s.read(ctx, settingsFile, &settings)
	if err != nil {
		return domain.Settings{}, err
	}
	if !found {
		return domain.DefaultSettings(), nil
	}
	if err := settings.Validate(); err != nil {
		return domain.Settings{}, fmt.Errorf("stored settings invalid: %w", err)
	}
	return settings, nil
}

// SaveSettings replaces the stored Settings.
func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return s.write(ctx, settingsFile, settings)
}

// LoadDisplay returns the stored display record, or defaults.
func (s *Store) LoadDisplay(ctx context.Context) (domain.Display, error) {
	display := domain.DefaultDisplay()
	found, err := s.read(ctx, displayFile, &display)
	if err != nil {
		return domain.Display{}, err
	}
	if !found {
		return domain.DefaultDisplay(), nil
	}
	if err := display.Validate(); err != nil {
		return domain.Display{}, fmt.Errorf("stored display settings invalid: %w", err)
	}
	return display, nil
}

// SaveDisplay replaces the stored display record.
func (s *Store) SaveDisplay(ctx context.Context, display domain.Display) error {
	if err := display.Validate(); err != nil {
		return fmt.Errorf("invalid display settings: %w", err)
	}
	return s.write(ctx, displayFile, display)
}

func (s *Store) read(ctx context.Context, name string, dst any) (bool, error) {
	locked, err := s.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return false, fmt.Errorf("lock prefs: %w", err)
	}
	if !locked {
		return false, errors.New("lock prefs: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) write(ctx context.Context, name string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data = append(data, '\n')

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock prefs: %w", err)
	}
	if !locked {
		return errors.New("lock prefs: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
