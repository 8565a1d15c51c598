// Package health periodically probes live RCON sessions.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BassRhombus/PoTRconBot/internal/rcon"
)

// probeCommand is a cheap no-op the game server always answers.
const probeCommand = "listplayers"

// Registry is the slice of the connection registry the monitor needs.
type Registry interface {
	All() []rcon.Status
	Execute(key rcon.Key, command string) (string, error)
}

// Monitor probes every authenticated session on a fixed period. A probe
// failure runs the registry's usual reconnect-once path; if that also
// fails the session is left down until the next cycle or an on-demand
// execute.
type Monitor struct {
	registry Registry
	interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new Monitor
func New(registry Registry, interval time.Duration) *Monitor {
	return &Monitor{
		registry: registry,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the probe loop
func (m *Monitor) Start(ctx context.Context) {
	slog.Info("Starting health monitor", "interval", m.interval)

	m.wg.Add(1)
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Health monitor stopped (context cancelled)")
			return
		case <-m.stopChan:
			slog.Info("Health monitor stopped")
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

// Stop signals the monitor to stop
func (m *Monitor) Stop() {
	close(m.stopChan)
	m.wg.Wait()
}

// probe checks every authenticated session once
func (m *Monitor) probe() {
	statuses := m.registry.All()
	if len(statuses) == 0 {
		return
	}

	slog.Debug("Probing sessions", "count", len(statuses))

	var wg sync.WaitGroup
	for _, st := range statuses {
		if st.State != rcon.StateAuthenticated {
			continue
		}
		wg.Add(1)
		go func(key rcon.Key) {
			defer wg.Done()
			if _, err := m.registry.Execute(key, probeCommand); err != nil {
				slog.Warn("Connection check failed", "server", key, "error", err)
			}
		}(st.Key)
	}
	wg.Wait()
}
