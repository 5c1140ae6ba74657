package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/Amit00008/solana-chess/domain/protocol"
	"github.com/Amit00008/solana-chess/modules/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLobbyPort struct {
	games []protocol.GameListing
}

func (f *fakeLobbyPort) ListGames(_ context.Context) ([]protocol.GameListing, error) {
	return f.games, nil
}

type fakeLedgerPort struct {
	transfers map[string]*ledger.Transfer
	lastQuery ledger.TransferStatus
}

func (f *fakeLedgerPort) ListTransfers(_ context.Context, status ledger.TransferStatus) ([]*ledger.Transfer, error) {
	f.lastQuery = status
	var out []*ledger.Transfer
	for _, t := range f.transfers {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeLedgerPort) GetTransfer(_ context.Context, id string) (*ledger.Transfer, error) {
	t, ok := f.transfers[id]
	if !ok {
		return nil, fmt.Errorf("failed to get transfer: %w", ledger.ErrNotFound)
	}
	return t, nil
}

type fakeSettlementPort struct {
	ledger *fakeLedgerPort
}

func (f *fakeSettlementPort) RetryTransfer(_ context.Context, id string) (*ledger.Transfer, error) {
	t, ok := f.ledger.transfers[id]
	if !ok {
		return nil, fmt.Errorf("failed to retry transfer: %w", ledger.ErrNotFound)
	}
	if t.Status != ledger.StatusDeadLetter && t.Status != ledger.StatusFailed {
		return nil, fmt.Errorf("failed to retry transfer: %w", ledger.ErrNotRetryable)
	}
	t.Status = ledger.StatusPending
	t.Attempts = 0
	return t, nil
}

func newRESTHarness(t *testing.T) (*harness, *fakeLedgerPort) {
	t.Helper()
	h := newHarness(t)
	ledgerPort := &fakeLedgerPort{transfers: map[string]*ledger.Transfer{
		"t-1": {ID: "t-1", Kind: "payout", Recipient: "alice", Amount: 1_960_000_000, Status: ledger.StatusCompleted},
		"t-2": {ID: "t-2", Kind: "refund", Recipient: "bob", Amount: stake, Status: ledger.StatusDeadLetter, Attempts: 8},
	}}
	h.api.lobbyAdapter = &fakeLobbyPort{games: []protocol.GameListing{
		{RoomID: "game-3", Players: 1, Status: "WAITING", BetAmount: 0.5, RequiredBet: "500000000"},
	}}
	h.api.ledgerAdapter = ledgerPort
	h.api.settlementAdapter = &fakeSettlementPort{ledger: ledgerPort}
	return h, ledgerPort
}

func doRequest(t *testing.T, h *harness, method, path string) (int, []byte) {
	t.Helper()
	resp, err := h.api.app.Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestRoutes_Health(t *testing.T) {
	h, _ := newRESTHarness(t)

	code, body := doRequest(t, h, "GET", "/health")
	assert.Equal(t, 200, code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.EqualValues(t, 0, resp.Details["rooms"])
}

func TestRoutes_Metrics(t *testing.T) {
	h, _ := newRESTHarness(t)

	code, body := doRequest(t, h, "GET", "/metrics")
	assert.Equal(t, 200, code)
	assert.Contains(t, string(body), "chess_connected_clients")
}

func TestRoutes_WebSocketRequiresUpgrade(t *testing.T) {
	h, _ := newRESTHarness(t)

	code, _ := doRequest(t, h, "GET", "/ws")
	assert.Equal(t, 426, code)
}

func TestRoutes_ListGames(t *testing.T) {
	h, _ := newRESTHarness(t)

	code, body := doRequest(t, h, "GET", "/api/v1/games")
	require.Equal(t, 200, code)

	var resp GameListResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "game-3", resp.Games[0].RoomID)
}

func TestRoutes_Settlements(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"list all", "GET", "/api/v1/settlements", 200},
		{"list by status", "GET", "/api/v1/settlements?status=dead_letter", 200},
		{"list unknown status", "GET", "/api/v1/settlements?status=lost", 400},
		{"get", "GET", "/api/v1/settlements/t-1", 200},
		{"get missing", "GET", "/api/v1/settlements/t-9", 404},
		{"retry dead letter", "POST", "/api/v1/settlements/t-2/retry", 202},
		{"retry completed", "POST", "/api/v1/settlements/t-1/retry", 409},
		{"retry missing", "POST", "/api/v1/settlements/t-9/retry", 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newRESTHarness(t)
			code, body := doRequest(t, h, tt.method, tt.path)
			if code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d (body %s)", tt.method, tt.path, code, tt.wantStatus, body)
			}
		})
	}
}

func TestRoutes_ListSettlementsFilters(t *testing.T) {
	h, ledgerPort := newRESTHarness(t)

	code, body := doRequest(t, h, "GET", "/api/v1/settlements?status=dead_letter")
	require.Equal(t, 200, code)

	var resp TransferListResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, ledger.StatusDeadLetter, ledgerPort.lastQuery)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "t-2", resp.Transfers[0].ID)
}
