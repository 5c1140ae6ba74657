// Package lobby owns the live game rooms and their lifecycle.
package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Amit00008/solana-chess/events"
	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// SettlerProvider yields the settler once its module has started.
type SettlerProvider func() Settler

// Module exposes the room registry as a mono module.
type Module struct {
	config        Config
	sessionSecret string
	settlers      SettlerProvider
	notifier      Notifier
	clock         clock.Clock
	eventBus      mono.EventBus
	logger        types.Logger
	registry      *Registry
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new lobby module.
func NewModule(cfg Config, sessionSecret string, settlers SettlerProvider, logger types.Logger) *Module {
	cfg.GameTimeout = timeoutOrDefault(cfg.GameTimeout)
	return &Module{
		config:        cfg,
		sessionSecret: sessionSecret,
		settlers:      settlers,
		clock:         clock.New(),
		logger:        logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "lobby"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"settlement"}
}

// SetDependencyServiceContainer is required by mono.DependentModule; the settler is
// used in-process.
func (m *Module) SetDependencyServiceContainer(_ string, _ mono.ServiceContainer) {}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// SetNotifier sets the connection notifier (called from main.go).
func (m *Module) SetNotifier(n Notifier) {
	m.notifier = n
}

// SetClock replaces the clock used for room timers. Used by tests.
func (m *Module) SetClock(clk clock.Clock) {
	m.clock = clk
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.LobbyChangedV1.ToBase(),
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListGames, json.Unmarshal, json.Marshal, m.listGames,
	); err != nil {
		return fmt.Errorf("failed to register list service: %w", err)
	}
	m.logger.Info("Registered services", "services", "services.lobby.list")
	return nil
}

// Start builds the registry.
func (m *Module) Start(_ context.Context) error {
	if m.notifier == nil {
		return fmt.Errorf("notifier dependency not set")
	}
	var settler Settler
	if m.settlers != nil {
		settler = m.settlers()
	}
	if settler == nil {
		return fmt.Errorf("settler not available")
	}

	sessions, err := NewSessionManager(m.sessionSecret, m.config.GameTimeout+m.config.ReconnectGrace, m.clock)
	if err != nil {
		return err
	}

	m.registry = NewRegistry(m.config, settler, m.notifier, sessions, m.clock, m.logger)
	m.registry.OnChange(m.publishChange)

	m.logger.Info("Lobby module started",
		"gameTimeout", m.config.GameTimeout, "reconnectGrace", m.config.ReconnectGrace)
	return nil
}

// Stop cancels every live room so that all escrowed stakes are owed back.
func (m *Module) Stop(ctx context.Context) error {
	if m.registry == nil {
		return nil
	}
	live := m.registry.Len()
	if err := m.registry.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down rooms: %w", err)
	}
	m.logger.Info("Lobby module stopped", "cancelledRooms", live)
	return nil
}

// Health reports live room counts.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.registry == nil {
		return mono.HealthStatus{Healthy: false, Message: "registry not initialized"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"rooms":    m.registry.Len(),
			"joinable": len(m.registry.ListJoinable()),
		},
	}
}

// Registry returns the room registry for in-process callers. It is nil before Start.
func (m *Module) Registry() *Registry {
	return m.registry
}

func (m *Module) publishChange(roomID, reason string) {
	if m.eventBus == nil {
		return
	}
	event := events.LobbyChangedEvent{
		RoomID:    roomID,
		Reason:    reason,
		Timestamp: m.clock.Now(),
	}
	if err := events.LobbyChangedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish LobbyChanged event", "roomID", roomID, "error", err)
	}
}

// timeoutOrDefault keeps a zero lifetime from expiring rooms immediately.
func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultConfig().GameTimeout
	}
	return d
}
