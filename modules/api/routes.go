package api

import (
	"errors"

	"github.com/Amit00008/solana-chess/modules/ledger"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes() {
	m.app.Get("/health", m.healthHandler)
	m.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket endpoint
	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.handleWebSocket))

	api := m.app.Group("/api/v1")
	api.Get("/games", m.listGames)
	api.Get("/settlements", m.listSettlements)
	api.Get("/settlements/:id", m.getSettlement)
	api.Post("/settlements/:id/retry", m.retrySettlement)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.hub.ClientCount(),
			"rooms":             m.registry.Len(),
		},
	})
}

// listGames handles GET /api/v1/games.
func (m *APIModule) listGames(c *fiber.Ctx) error {
	if m.lobbyAdapter == nil {
		return fiber.ErrServiceUnavailable
	}
	games, err := m.lobbyAdapter.ListGames(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list games",
		})
	}
	return c.JSON(GameListResponse{Games: games, Total: len(games)})
}

// listSettlements handles GET /api/v1/settlements?status=.
func (m *APIModule) listSettlements(c *fiber.Ctx) error {
	if m.ledgerAdapter == nil {
		return fiber.ErrServiceUnavailable
	}
	status := ledger.TransferStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "Unknown transfer status",
		})
	}

	transfers, err := m.ledgerAdapter.ListTransfers(c.UserContext(), status)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list settlements",
		})
	}
	if transfers == nil {
		transfers = []*ledger.Transfer{}
	}
	return c.JSON(TransferListResponse{Transfers: transfers, Total: len(transfers)})
}

// getSettlement handles GET /api/v1/settlements/:id.
func (m *APIModule) getSettlement(c *fiber.Ctx) error {
	if m.ledgerAdapter == nil {
		return fiber.ErrServiceUnavailable
	}
	transfer, err := m.ledgerAdapter.GetTransfer(c.UserContext(), c.Params("id"))
	if err != nil {
		return transferError(c, err)
	}
	return c.JSON(transfer)
}

// retrySettlement handles POST /api/v1/settlements/:id/retry.
func (m *APIModule) retrySettlement(c *fiber.Ctx) error {
	if m.settlementAdapter == nil {
		return fiber.ErrServiceUnavailable
	}
	transfer, err := m.settlementAdapter.RetryTransfer(c.UserContext(), c.Params("id"))
	if err != nil {
		return transferError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(transfer)
}

func transferError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Settlement not found",
		})
	case errors.Is(err, ledger.ErrNotRetryable):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "not_retryable",
			Message: "Only failed or dead-lettered settlements can be retried",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "settlement_error",
			Message: err.Error(),
		})
	}
}
