// Package hotplug tears down sessions whose audio source disappeared.
package hotplug

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"github.com/rbright/livesub/internal/audio"
	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/session"
)

const defaultInterval = 5 * time.Second

// Target is the coordinator surface the monitor needs.
type Target interface {
	Sessions() []session.Snapshot
	OnSourceRemoved(ctx context.Context, sourceID domain.SourceID)
}

// Lister returns the audio sources currently present.
type Lister func(ctx context.Context) ([]audio.Device, error)

// Monitor reconciles live sessions against present audio sources on udev
// sound events and on a fixed interval.
type Monitor struct {
	target   Target
	list     Lister
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor constructs a monitor; interval <= 0 selects the default.
func NewMonitor(target Target, list Lister, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if list == nil {
		list = audio.ListDevices
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		target:   target,
		list:     list,
		logger:   logger.With("component", "hotplug"),
		interval: interval,
	}
}

// Start begins listening. A netlink failure is logged and the monitor falls
// back to interval polling.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("netlink unavailable; source removal relies on polling", "error", err)
		conn = nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	go m.loop(ctx, conn, m.quit)

	m.logger.Info("hotplug monitor started", "interval", m.interval, "netlink", conn != nil)
	return nil
}

// Stop shuts the monitor down.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	var (
		queue       chan netlink.UEvent
		errs        chan error
		monitorQuit chan struct{}
	)
	if conn != nil {
		queue = make(chan netlink.UEvent)
		errs = make(chan error)
		monitorQuit = conn.Monitor(queue, errs, soundMatcher())
		defer close(monitorQuit)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case ev := <-queue:
			m.logger.Debug("sound device event", "action", string(ev.Action), "kobj", ev.KObj)
			m.Reconcile(ctx)
		case err := <-errs:
			m.logger.Warn("netlink monitor error", "error", err)
		case <-ticker.C:
			m.Reconcile(ctx)
		}
	}
}

func soundMatcher() netlink.Matcher {
	action := "remove|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	})
	return rules
}

// Reconcile discards sessions whose device is no longer listed and returns
// the affected sources.
func (m *Monitor) Reconcile(ctx context.Context) []domain.SourceID {
	snaps := m.target.Sessions()
	if len(snaps) == 0 {
		return nil
	}

	devices, err := m.list(ctx)
	if err != nil {
		m.logger.Warn("source rescan failed", "error", err)
		return nil
	}
	present := make(map[string]struct{}, len(devices))
	for _, dev := range devices {
		present[dev.ID] = struct{}{}
	}

	var removed []domain.SourceID
	for _, snap := range snaps {
		if snap.Device == "" {
			continue
		}
		if _, ok := present[snap.Device]; ok {
			continue
		}
		m.logger.Info("audio source disappeared", "source", snap.SourceID, "device", snap.Device)
		m.target.OnSourceRemoved(ctx, snap.SourceID)
		removed = append(removed, snap.SourceID)
	}
	return removed
}
