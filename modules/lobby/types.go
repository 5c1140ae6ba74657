package lobby

import (
	"strconv"

	"github.com/Amit00008/solana-chess/domain/protocol"
	"github.com/Amit00008/solana-chess/domain/room"
	"github.com/Amit00008/solana-chess/modules/treasury"
)

// ServiceListGames is the request-reply service returning the joinable rooms.
const ServiceListGames = "list"

// ListGamesRequest is the request for listing joinable rooms.
type ListGamesRequest struct{}

// ListGamesResponse carries the joinable rooms in wire form.
type ListGamesResponse struct {
	Games []protocol.GameListing `json:"games"`
}

// ToListing converts a room summary into its wire form.
func ToListing(s room.Summary) protocol.GameListing {
	return protocol.GameListing{
		RoomID:      s.RoomID,
		Players:     s.Players,
		Status:      string(s.Status),
		BetAmount:   treasury.ToSOL(s.Stake),
		RequiredBet: strconv.FormatUint(s.Stake, 10),
	}
}

// ToListings converts summaries, never returning nil.
func ToListings(summaries []room.Summary) []protocol.GameListing {
	games := make([]protocol.GameListing, 0, len(summaries))
	for _, s := range summaries {
		games = append(games, ToListing(s))
	}
	return games
}
