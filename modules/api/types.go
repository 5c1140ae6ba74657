package api

import (
	"github.com/Amit00008/solana-chess/domain/protocol"
	"github.com/Amit00008/solana-chess/modules/ledger"
)

// GameListResponse is the REST view of the lobby.
type GameListResponse struct {
	Games []protocol.GameListing `json:"games"`
	Total int                    `json:"total"`
}

// TransferListResponse is the REST view of the settlement ledger.
type TransferListResponse struct {
	Transfers []*ledger.Transfer `json:"transfers"`
	Total     int                `json:"total"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
