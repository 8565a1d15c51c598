package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BassRhombus/PoTRconBot/internal/rcon"
)

type fakeRegistry struct {
	mu       sync.Mutex
	statuses []rcon.Status
	failOn   map[rcon.Key]error
	probes   map[rcon.Key]int
}

func newFakeRegistry(statuses ...rcon.Status) *fakeRegistry {
	return &fakeRegistry{
		statuses: statuses,
		failOn:   make(map[rcon.Key]error),
		probes:   make(map[rcon.Key]int),
	}
}

func (f *fakeRegistry) All() []rcon.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rcon.Status(nil), f.statuses...)
}

func (f *fakeRegistry) Execute(key rcon.Key, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes[key]++
	if err := f.failOn[key]; err != nil {
		return "", err
	}
	return "ok", nil
}

func (f *fakeRegistry) probeCount(key rcon.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes[key]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMonitorProbesAuthenticatedSessions(t *testing.T) {
	live := rcon.Key{GuildID: "g1", Server: "main"}
	down := rcon.Key{GuildID: "g1", Server: "events"}
	registry := newFakeRegistry(
		rcon.Status{Key: live, State: rcon.StateAuthenticated},
		rcon.Status{Key: down, State: rcon.StateDisconnected},
	)

	m := New(registry, 10*time.Millisecond)
	go m.Start(context.Background())
	defer m.Stop()

	waitFor(t, func() bool { return registry.probeCount(live) >= 2 })
	assert.Zero(t, registry.probeCount(down), "disconnected sessions are not probed")
}

func TestMonitorSurvivesProbeFailure(t *testing.T) {
	bad := rcon.Key{GuildID: "g1", Server: "flaky"}
	good := rcon.Key{GuildID: "g1", Server: "main"}
	registry := newFakeRegistry(
		rcon.Status{Key: bad, State: rcon.StateAuthenticated},
		rcon.Status{Key: good, State: rcon.StateAuthenticated},
	)
	registry.failOn[bad] = errors.New("connection reset")

	m := New(registry, 10*time.Millisecond)
	go m.Start(context.Background())
	defer m.Stop()

	// The failing probe must not stop the loop or the other key
	waitFor(t, func() bool {
		return registry.probeCount(bad) >= 3 && registry.probeCount(good) >= 3
	})
}

func TestMonitorStops(t *testing.T) {
	registry := newFakeRegistry(
		rcon.Status{Key: rcon.Key{GuildID: "g1", Server: "main"}, State: rcon.StateAuthenticated},
	)

	m := New(registry, 5*time.Millisecond)
	done := make(chan struct{})
	go func() {
		m.Start(context.Background())
		close(done)
	}()

	waitFor(t, func() bool { return registry.probeCount(rcon.Key{GuildID: "g1", Server: "main"}) >= 1 })
	m.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitorHonorsContext(t *testing.T) {
	registry := newFakeRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	m := New(registry, 5*time.Millisecond)
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not honor context cancellation")
	}
	require.NotPanics(t, func() { m.Stop() })
}
