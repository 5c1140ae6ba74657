// Package liveness closes WebSocket connections that stopped sending heartbeats.
package liveness

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono"
)

// Connections is the view of the connection hub the sweep needs.
type Connections interface {
	Stale(threshold time.Duration) []string
	Kick(clientID string)
}

// Config holds the sweep timing.
type Config struct {
	Interval time.Duration
	Stale    time.Duration
}

// DefaultConfig sweeps every 30 seconds and closes connections silent for over a minute.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, Stale: 60 * time.Second}
}

// Module periodically kicks stale connections. Kicking closes the socket, so the
// reader of that connection runs the usual disconnect cleanup.
type Module struct {
	config   Config
	conns    Connections
	clock    clock.Clock
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	kicked   int
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the liveness monitor. A nil clock uses the wall clock.
func NewModule(cfg Config, conns Connections, clk clock.Clock) *Module {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Stale <= 0 {
		cfg.Stale = DefaultConfig().Stale
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Module{config: cfg, conns: conns, clock: clk}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "liveness"
}

// Start launches the sweep loop.
func (m *Module) Start(_ context.Context) error {
	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})

	ticker := m.clock.Ticker(m.config.Interval)
	go m.run(ticker)

	log.Printf("[liveness] Sweeping every %s, stale after %s", m.config.Interval, m.config.Stale)
	return nil
}

func (m *Module) run(ticker *clock.Ticker) {
	defer ticker.Stop()
	defer close(m.doneChan)

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Module) sweep() {
	stale := m.conns.Stale(m.config.Stale)
	for _, id := range stale {
		log.Printf("[liveness] Closing stale connection %s", id)
		m.conns.Kick(id)
	}

	m.mu.Lock()
	m.kicked += len(stale)
	m.mu.Unlock()
}

// Stop ends the sweep loop.
func (m *Module) Stop(ctx context.Context) error {
	if m.stopChan == nil {
		return nil
	}

	m.stopOnce.Do(func() {
		close(m.stopChan)
	})

	select {
	case <-m.doneChan:
		log.Println("[liveness] Stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Kicked returns how many connections the monitor has closed.
func (m *Module) Kicked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kicked
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"interval":           m.config.Interval.String(),
			"stale_after":        m.config.Stale.String(),
			"connections_kicked": m.Kicked(),
		},
	}
}
