package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/Amit00008/solana-chess/modules/ledger"
	"github.com/Amit00008/solana-chess/modules/treasury"
	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Module provides the settlement worker pool as a mono module.
type Module struct {
	config     PoolConfig
	feePercent uint64
	gateway    treasury.Gateway
	ledger     *ledger.Module
	clock      clock.Clock
	pool       *Pool
	dispatcher *Dispatcher
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.DependentModule = (*Module)(nil)
var _ mono.ServiceProviderModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new settlement module.
func NewModule(cfg PoolConfig, feePercent uint64, gateway treasury.Gateway, ledgerModule *ledger.Module) *Module {
	return &Module{
		config:     cfg,
		feePercent: feePercent,
		gateway:    gateway,
		ledger:     ledgerModule,
		clock:      clock.New(),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "settlement"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"ledger"}
}

// SetDependencyServiceContainer is required by mono.DependentModule. The ledger
// repository is used in-process, so the container is not kept.
func (m *Module) SetDependencyServiceContainer(_ string, _ mono.ServiceContainer) {}

// SetClock replaces the clock used for retry timers. Used by tests.
func (m *Module) SetClock(clk clock.Clock) {
	m.clock = clk
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRetryTransfer, json.Unmarshal, json.Marshal, m.retryTransfer,
	); err != nil {
		return fmt.Errorf("failed to register retry service: %w", err)
	}
	log.Printf("[settlement] Registered services: services.settlement.retry")
	return nil
}

// Start builds the pool over the started ledger and resumes unfinished transfers.
func (m *Module) Start(ctx context.Context) error {
	repo := m.ledger.Repository()
	if repo == nil {
		return fmt.Errorf("ledger repository not available")
	}
	if m.gateway == nil {
		return fmt.Errorf("treasury gateway not set")
	}

	m.pool = NewPool(m.config, repo, m.gateway, m.clock)
	m.dispatcher = NewDispatcher(repo, m.pool, m.feePercent)

	// Workers outlive Start's context.
	if err := m.pool.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	n, err := m.dispatcher.Resume()
	if err != nil {
		return fmt.Errorf("failed to resume transfers: %w", err)
	}
	if n > 0 {
		log.Printf("[settlement] Resumed %d unfinished transfer(s)", n)
	}

	log.Println("[settlement] Module started")
	return nil
}

// Stop stops the worker pool.
func (m *Module) Stop(ctx context.Context) error {
	if m.pool == nil {
		return nil
	}
	if err := m.pool.Stop(ctx); err != nil {
		return err
	}
	log.Println("[settlement] Module stopped")
	return nil
}

// Health reports pool state.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.pool == nil || !m.pool.IsRunning() {
		return mono.HealthStatus{Healthy: false, Message: "worker pool not running"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"workers":         m.config.NumWorkers,
			"pending_retries": m.pool.PendingRetries(),
		},
	}
}

// Dispatcher returns the dispatcher for in-process callers. It is nil before Start.
func (m *Module) Dispatcher() *Dispatcher {
	return m.dispatcher
}
