package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned when a live daemon already owns the socket.
var ErrAlreadyRunning = errors.New("livesub daemon already running")

const socketName = "livesub.sock"

// RuntimeSocketPath returns the daemon socket under XDG_RUNTIME_DIR.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, socketName), nil
}

// AcquireOptions tune how Acquire treats a socket path that is already bound.
type AcquireOptions struct {
	// ProbeTimeout bounds the status request sent to an existing owner.
	ProbeTimeout time.Duration
	// Retries is the number of extra listen attempts after a stale socket is removed.
	Retries int
	// OnStale runs after a dead socket file has been unlinked.
	OnStale func(path string)
}

// Acquire listens on path. A socket left by a crashed daemon is removed and
// the listen retried; a socket whose owner still answers yields ErrAlreadyRunning.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(25*attempt)*time.Millisecond); err != nil {
				return nil, err
			}
		}

		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, unix.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}
		lastErr = err

		if err := reclaimStale(ctx, path, opts); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("acquire socket %s after %d retries: %w", path, opts.Retries, lastErr)
}

// reclaimStale unlinks path only when nothing answers on it. An owner that
// accepts but never replies leaves the file in place.
func reclaimStale(ctx context.Context, path string, opts AcquireOptions) error {
	alive, err := Probe(ctx, path, opts.ProbeTimeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	if opts.OnStale != nil {
		opts.OnStale(path)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
