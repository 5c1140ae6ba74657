package treasury

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
)

// Module owns the custodial key and exposes the Gateway to the rest of the server.
type Module struct {
	config  SolanaConfig
	gateway *SolanaGateway
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule decodes the custodial key and builds the gateway. A missing key is
// an error so that main can refuse to start.
func NewModule(cfg SolanaConfig) (*Module, error) {
	gw, err := NewSolanaGateway(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create treasury: %w", err)
	}
	return &Module{config: cfg, gateway: gw}, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "treasury"
}

// Start logs the escrow account in use.
func (m *Module) Start(_ context.Context) error {
	log.Printf("[treasury] Escrow account %s on %s", m.gateway.Escrow(), m.config.Endpoint)
	return nil
}

// Stop is a no-op; the RPC client holds no long-lived connection.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[treasury] Module stopped")
	return nil
}

// Health pings the RPC node.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if err := m.gateway.Health(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("rpc health check failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"endpoint": m.config.Endpoint,
			"escrow":   m.gateway.Escrow(),
		},
	}
}

// Gateway returns the Solana gateway.
func (m *Module) Gateway() Gateway {
	return m.gateway
}
