// Package broadcast fans server messages out to the connected WebSocket clients.
package broadcast

import (
	"context"
	"fmt"
	"log"

	"github.com/Amit00008/solana-chess/domain/protocol"
	"github.com/Amit00008/solana-chess/events"
	"github.com/Amit00008/solana-chess/modules/lobby"
	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// BroadcastModule owns the connection hub and pushes lobby changes to every client.
type BroadcastModule struct {
	hub       *Hub
	lobby     lobby.LobbyPort
	cancelHub context.CancelFunc
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.DependentModule = (*BroadcastModule)(nil)
var _ mono.EventConsumerModule = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule. A nil clock uses the wall clock.
func NewModule(clk clock.Clock) *BroadcastModule {
	return &BroadcastModule{
		hub: NewHub(clk),
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Dependencies returns the list of module dependencies.
func (m *BroadcastModule) Dependencies() []string {
	return []string{"lobby"}
}

// SetDependencyServiceContainer receives the lobby service container.
func (m *BroadcastModule) SetDependencyServiceContainer(dep string, container mono.ServiceContainer) {
	if dep == "lobby" {
		m.lobby = lobby.NewLobbyAdapter(container)
	}
}

// Start starts the hub.
func (m *BroadcastModule) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	log.Println("[broadcast] Module started - WebSocket hub running")
	return nil
}

// Stop closes every connection and waits for the hub.
func (m *BroadcastModule) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	log.Printf("[broadcast] Module stopped - %d clients were connected", clientCount)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *BroadcastModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.LobbyChangedV1, m.handleLobbyChanged, m,
	); err != nil {
		return fmt.Errorf("failed to register LobbyChanged consumer: %w", err)
	}

	log.Println("[broadcast] Registered event consumers: LobbyChanged")
	return nil
}

func (m *BroadcastModule) handleLobbyChanged(ctx context.Context, event events.LobbyChangedEvent, _ *mono.Msg) error {
	if m.lobby == nil {
		return fmt.Errorf("lobby service not available")
	}
	games, err := m.lobby.ListGames(ctx)
	if err != nil {
		return err
	}

	log.Printf("[broadcast] Lobby %s (%s): pushing %d games", event.Reason, event.RoomID, len(games))
	m.hub.BroadcastAll(protocol.ListGames{Type: protocol.TypeListGames, Games: games})
	return nil
}

// GetHub returns the WebSocket hub for the API and liveness modules.
func (m *BroadcastModule) GetHub() *Hub {
	return m.hub
}
