// Package config loads the server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full server configuration.
type Config struct {
	Port           string `env:"PORT"                 envDefault:"3001"`
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`

	RPCHost          string `env:"SOLANA_RPC_HOST"    envDefault:"https://api.devnet.solana.com"`
	EscrowPrivateKey string `env:"ESCROW_PRIVATE_KEY"`
	HouseFeePercent  uint64 `env:"HOUSE_FEE_PERCENT"  envDefault:"2"`
	MinBetLamports   uint64 `env:"MIN_BET_LAMPORTS"   envDefault:"10000000"`
	MaxBetLamports   uint64 `env:"MAX_BET_LAMPORTS"   envDefault:"10000000000"`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1s"`
	RateLimitCreate int           `env:"RATE_LIMIT_CREATE" envDefault:"2"`
	RateLimitMove   int           `env:"RATE_LIMIT_MOVE"   envDefault:"3"`
	RateLimitList   int           `env:"RATE_LIMIT_LIST"   envDefault:"5"`
	RedisAddr       string        `env:"REDIS_ADDR"`

	GameTimeout    time.Duration `env:"GAME_TIMEOUT"    envDefault:"30m"`
	HeartbeatSweep time.Duration `env:"HEARTBEAT_SWEEP" envDefault:"30s"`
	HeartbeatStale time.Duration `env:"HEARTBEAT_STALE" envDefault:"60s"`
	ReconnectGrace time.Duration `env:"RECONNECT_GRACE" envDefault:"5m"`
	SessionSecret  string        `env:"SESSION_SECRET"`

	DBPath               string `env:"DB_PATH"                envDefault:"settlements.db"`
	DBDebug              bool   `env:"DB_DEBUG"`
	SettlementWorkers    int    `env:"SETTLEMENT_WORKERS"     envDefault:"2"`
	SettlementMaxRetries int    `env:"SETTLEMENT_MAX_RETRIES" envDefault:"8"`
}

// Load parses the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MinBetLamports > cfg.MaxBetLamports {
		return nil, fmt.Errorf("MIN_BET_LAMPORTS (%d) exceeds MAX_BET_LAMPORTS (%d)", cfg.MinBetLamports, cfg.MaxBetLamports)
	}
	if cfg.HouseFeePercent > 100 {
		return nil, fmt.Errorf("HOUSE_FEE_PERCENT must be at most 100, got %d", cfg.HouseFeePercent)
	}
	return &cfg, nil
}
