// Package netmon tracks the process-wide online/offline state.
//
// The monitor is constructed and injected where needed; nothing reads it from
// ambient global state. Only the monitor itself writes the state and the
// last-online timestamp; everybody else reads.
package netmon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ProbeFunc reports whether the remote side is reachable right now.
type ProbeFunc func(ctx context.Context) bool

// HTTPProbe probes the hub's liveness endpoint.
func HTTPProbe(baseURL string) ProbeFunc {
	client := &http.Client{Timeout: 3 * time.Second}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health/live", nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}
}

// Monitor polls a probe and fans out online/offline transitions to
// subscribers. LastOnlineAt records when connectivity was last known good,
// i.e. the moment of the most recent transition to offline.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	logger   *slog.Logger

	mu           sync.RWMutex
	online       bool
	lastOnlineAt time.Time
	subs         []func(online bool)
}

// New creates a monitor. The probe runs every interval once Run is called.
func New(probe ProbeFunc, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{probe: probe, interval: interval, logger: logger}
}

// Subscribe registers a transition callback. Callbacks run on the monitor's
// polling goroutine; long work must be detached by the subscriber.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// IsOnline reports the current connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// LastOnlineAt returns when the monitor last transitioned to offline, and
// whether that has ever happened. A zero history means no resync is needed.
func (m *Monitor) LastOnlineAt() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastOnlineAt, !m.lastOnlineAt.IsZero()
}

// SetOnline forces a state, firing transitions exactly as a probe result
// would. Exposed for callers that learn about connectivity out of band
// (e.g. a failed websocket read) and for tests.
func (m *Monitor) SetOnline(online bool) {
	m.apply(online)
}

func (m *Monitor) apply(online bool) {
	m.mu.Lock()
	if online == m.online {
		m.mu.Unlock()
		return
	}
	m.online = online
	if !online {
		m.lastOnlineAt = time.Now().UTC()
	}
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", slog.Bool("online", online))
	for _, fn := range subs {
		fn(online)
	}
}

// Run polls until the context ends. The first probe fires immediately so the
// initial state settles fast.
func (m *Monitor) Run(ctx context.Context) error {
	m.apply(m.probe(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.apply(m.probe(ctx))
		}
	}
}
