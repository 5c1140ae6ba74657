package lobby

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
)

// listGames handles the lobby.list service request.
func (m *Module) listGames(_ context.Context, _ ListGamesRequest, _ *mono.Msg) (ListGamesResponse, error) {
	if m.registry == nil {
		return ListGamesResponse{}, fmt.Errorf("lobby not started")
	}
	return ListGamesResponse{Games: ToListings(m.registry.ListJoinable())}, nil
}
