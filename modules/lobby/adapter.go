package lobby

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Amit00008/solana-chess/domain/protocol"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// LobbyPort defines the read operations other modules use on the lobby.
type LobbyPort interface {
	ListGames(ctx context.Context) ([]protocol.GameListing, error)
}

// LobbyAdapter implements LobbyPort using the service container.
type LobbyAdapter struct {
	container mono.ServiceContainer
}

// NewLobbyAdapter creates a new LobbyAdapter.
func NewLobbyAdapter(container mono.ServiceContainer) LobbyPort {
	if container == nil {
		panic("lobby: ServiceContainer is nil")
	}
	return &LobbyAdapter{container: container}
}

// ListGames returns the joinable rooms.
func (a *LobbyAdapter) ListGames(ctx context.Context) ([]protocol.GameListing, error) {
	req := ListGamesRequest{}
	var resp ListGamesResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListGames,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	if resp.Games == nil {
		resp.Games = []protocol.GameListing{}
	}
	return resp.Games, nil
}
