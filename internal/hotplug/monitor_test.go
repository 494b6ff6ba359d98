package hotplug

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/require"

	"github.com/rbright/livesub/internal/audio"
	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/session"
)

type fakeTarget struct {
	mu      sync.Mutex
	snaps   []session.Snapshot
	removed []domain.SourceID
}

func (f *fakeTarget) Sessions() []session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Snapshot(nil), f.snaps...)
}

func (f *fakeTarget) OnSourceRemoved(_ context.Context, id domain.SourceID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
}

func TestReconcileRemovesMissingDevices(t *testing.T) {
	target := &fakeTarget{snaps: []session.Snapshot{
		{SourceID: "42", Device: "firefox.monitor"},
		{SourceID: "7", Device: "mpv.monitor"},
		{SourceID: "9"},
	}}
	list := func(context.Context) ([]audio.Device, error) {
		return []audio.Device{{ID: "mpv.monitor"}}, nil
	}

	m := NewMonitor(target, list, 0, nil)
	removed := m.Reconcile(context.Background())

	require.Equal(t, []domain.SourceID{"42"}, removed)
	require.Equal(t, []domain.SourceID{"42"}, target.removed)
}

func TestReconcileKeepsSessionsWhenListingFails(t *testing.T) {
	target := &fakeTarget{snaps: []session.Snapshot{{SourceID: "42", Device: "firefox.monitor"}}}
	list := func(context.Context) ([]audio.Device, error) {
		return nil, errors.New("pulse down")
	}

	m := NewMonitor(target, list, 0, nil)
	require.Empty(t, m.Reconcile(context.Background()))
	require.Empty(t, target.removed)
}

func TestReconcileSkipsListingWithoutSessions(t *testing.T) {
	called := false
	list := func(context.Context) ([]audio.Device, error) {
		called = true
		return nil, nil
	}
	m := NewMonitor(&fakeTarget{}, list, 0, nil)
	require.Empty(t, m.Reconcile(context.Background()))
	require.False(t, called)
}

func TestSoundMatcherMatchesRemoveOnly(t *testing.T) {
	matcher := soundMatcher()

	require.True(t, matcher.Evaluate(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "sound"},
	}))
	require.False(t, matcher.Evaluate(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "sound"},
	}))
	require.False(t, matcher.Evaluate(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "block"},
	}))
}

func TestStopOnUnstartedMonitorIsSafe(t *testing.T) {
	m := NewMonitor(&fakeTarget{}, nil, 0, nil)
	m.Stop()
	require.False(t, m.Running())
}
