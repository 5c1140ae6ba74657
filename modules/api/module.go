// Package api serves the game WebSocket and the operator REST endpoints.
package api

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Amit00008/solana-chess/domain/ratelimit"
	"github.com/Amit00008/solana-chess/modules/broadcast"
	"github.com/Amit00008/solana-chess/modules/ledger"
	"github.com/Amit00008/solana-chess/modules/lobby"
	"github.com/Amit00008/solana-chess/modules/settlement"
	"github.com/Amit00008/solana-chess/modules/treasury"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Limiter decides whether an action may proceed.
type Limiter interface {
	Check(ctx context.Context, kind ratelimit.Kind, key string) bool
}

// Cashier claims deposit signatures and owes refunds that fall outside a room settlement.
type Cashier interface {
	ClaimDeposit(signature, wallet string, amount uint64, purpose, roomID string) error
	Refund(roomID, wallet string, amount uint64, reason string) error
}

// Config holds the HTTP settings.
type Config struct {
	Port           string
	AllowedOrigins string
	VerifyTimeout  time.Duration
}

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	config Config
	app    *fiber.App

	hub      *broadcast.Hub
	limiter  Limiter
	gateway  treasury.Gateway
	bounds   treasury.Bounds
	rooms    func() *lobby.Registry
	cashiers func() Cashier

	registry *lobby.Registry
	cashier  Cashier

	lobbyAdapter      lobby.LobbyPort
	ledgerAdapter     ledger.LedgerPort
	settlementAdapter settlement.SettlementPort
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(cfg Config, bounds treasury.Bounds) *APIModule {
	if cfg.Port == "" {
		cfg.Port = "3001"
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 30 * time.Second
	}
	return &APIModule{
		config: cfg,
		bounds: bounds,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"lobby", "ledger", "settlement"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "lobby":
		m.lobbyAdapter = lobby.NewLobbyAdapter(container)
	case "ledger":
		m.ledgerAdapter = ledger.NewLedgerAdapter(container)
	case "settlement":
		m.settlementAdapter = settlement.NewSettlementAdapter(container)
	}
}

// SetHub sets the broadcast hub (called from main.go).
func (m *APIModule) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// SetLimiter sets the action rate limiter (called from main.go).
func (m *APIModule) SetLimiter(l Limiter) {
	m.limiter = l
}

// SetGateway sets the deposit verifier (called from main.go).
func (m *APIModule) SetGateway(gw treasury.Gateway) {
	m.gateway = gw
}

// SetRooms sets the provider of the room registry, resolved on Start.
func (m *APIModule) SetRooms(rooms func() *lobby.Registry) {
	m.rooms = rooms
}

// SetCashier sets the provider of the deposit cashier, resolved on Start.
func (m *APIModule) SetCashier(cashiers func() Cashier) {
	m.cashiers = cashiers
}

// resolve checks the injected collaborators and builds the Fiber app.
func (m *APIModule) resolve() error {
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}
	if m.limiter == nil {
		return fmt.Errorf("rate limiter dependency not set")
	}
	if m.gateway == nil {
		return fmt.Errorf("treasury gateway dependency not set")
	}
	if m.rooms != nil {
		m.registry = m.rooms()
	}
	if m.registry == nil {
		return fmt.Errorf("room registry not available")
	}
	if m.cashiers != nil {
		m.cashier = m.cashiers()
	}
	if m.cashier == nil {
		return fmt.Errorf("cashier not available")
	}

	m.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	m.app.Use(recover.New())
	m.app.Use(cors.New(cors.Config{AllowOrigins: m.allowedOrigins()}))
	m.app.Use(loggerMiddleware())

	m.setupRoutes()
	return nil
}

func (m *APIModule) allowedOrigins() string {
	if m.config.AllowedOrigins == "" {
		return "*"
	}
	return m.config.AllowedOrigins
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if err := m.resolve(); err != nil {
		return err
	}

	go func() {
		if err := m.app.Listen(":" + m.config.Port); err != nil {
			log.Printf("[api] HTTP server error: %v", err)
		}
	}()

	log.Printf("[api] HTTP server started on :%s", m.config.Port)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(_ context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	return m.app.Shutdown()
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"port": m.config.Port}
	if m.hub != nil {
		details["connected_clients"] = m.hub.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// loggerMiddleware returns a Fiber middleware for request logging.
func loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		err := c.Next()
		log.Printf("[api] %s %s %d", c.Method(), c.Path(), c.Response().StatusCode())
		return err
	}
}
