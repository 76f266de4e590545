// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package ledgrsync

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ProbeFunc reports whether the network currently looks reachable.
type ProbeFunc func(ctx context.Context) bool

// MonitorConfig configures the connectivity monitor.
type MonitorConfig struct {
	// Probe checks reachability. When nil the monitor never polls; state
	// changes only through SetOnline (useful for tests and for hosts where
	// the caller has a better signal).
	Probe ProbeFunc
	// Interval between probes.
	Interval time.Duration
	// InitialOnline is the best-effort state before the first probe runs.
	InitialOnline bool
	Logger        *slog.Logger
}

// DefaultMonitorConfig probes a well-known endpoint over TCP every 15 seconds
// and assumes online until told otherwise, matching typical app behavior of
// attempting the first upload optimistically.
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		Probe:         DialProbe("1.1.1.1:443", 5*time.Second),
		Interval:      15 * time.Second,
		InitialOnline: true,
	}
}

// DialProbe returns a probe that attempts a TCP connection to addr.
func DialProbe(addr string, timeout time.Duration) ProbeFunc {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// Monitor observes network reachability and notifies subscribers on each
// online/offline transition. Unchanged states produce no events; going
// offline is a value, not an error.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	online bool
	subs   []func(online bool)
}

// NewMonitor creates a monitor from the given config (nil means defaults).
func NewMonitor(config *MonitorConfig) *Monitor {
	if config == nil {
		config = DefaultMonitorConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		probe:    config.Probe,
		interval: config.Interval,
		logger:   logger,
		online:   config.InitialOnline,
	}
}

// Online returns the last observed reachability state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback invoked on every state transition. The
// callback runs on the monitor's goroutine and must not block.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline overrides the observed state, notifying subscribers if it
// changed. The next probe (if any) may override it again.
func (m *Monitor) SetOnline(online bool) {
	m.transition(online)
}

// Start begins probing until ctx is cancelled. It performs one synchronous
// probe first so callers observe a settled initial state. A monitor without a
// probe func returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	if m.probe == nil {
		return
	}
	m.transition(m.probe(ctx))

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.transition(m.probe(ctx))
			}
		}
	}()
}

func (m *Monitor) transition(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)
	for _, fn := range subs {
		fn(online)
	}
}
