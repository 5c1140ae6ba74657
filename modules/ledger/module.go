// Package ledger persists owed transfers, consumed deposits and forfeited stakes.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Module provides the settlement ledger via GORM + SQLite.
type Module struct {
	db     *gorm.DB
	repo   *Repository
	dbPath string
	debug  bool
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.ServiceProviderModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new ledger module.
func NewModule(dbPath string, debug bool) *Module {
	if dbPath == "" {
		dbPath = "settlements.db"
	}
	return &Module{
		dbPath: dbPath,
		debug:  debug,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ledger"
}

// Health performs a health check on the ledger database.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get sql.DB: %v", err),
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	details := map[string]any{
		"driver": "sqlite",
		"path":   m.dbPath,
	}
	if counts, err := m.repo.CountByStatus(); err == nil {
		details["dead_letter"] = counts[StatusDeadLetter]
		details["pending"] = counts[StatusPending] + counts[StatusFailed]
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

// RegisterServices registers request-reply services in the service container.
// Names are prefixed by the framework, so "list" becomes "services.ledger.list".
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListTransfers, json.Unmarshal, json.Marshal, m.listTransfers,
	); err != nil {
		return fmt.Errorf("failed to register list service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetTransfer, json.Unmarshal, json.Marshal, m.getTransfer,
	); err != nil {
		return fmt.Errorf("failed to register get service: %w", err)
	}

	log.Printf("[ledger] Registered services: services.ledger.{list,get}")
	return nil
}

// Start opens the database and runs migrations.
func (m *Module) Start(_ context.Context) error {
	log.Printf("[ledger] Connecting to SQLite database: %s", m.dbPath)

	logLevel := logger.Silent
	if m.debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db

	if err := m.db.AutoMigrate(&Transfer{}, &Deposit{}, &Forfeit{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.repo = NewRepository(m.db)

	log.Println("[ledger] Module started successfully")
	return nil
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	log.Println("[ledger] Database connection closed")
	return nil
}

// Repository returns the repository for in-process writers. It is nil before Start.
func (m *Module) Repository() *Repository {
	return m.repo
}
