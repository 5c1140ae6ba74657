package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/Amit00008/solana-chess/config"
	"github.com/Amit00008/solana-chess/domain/ratelimit"
	"github.com/Amit00008/solana-chess/modules/api"
	"github.com/Amit00008/solana-chess/modules/broadcast"
	"github.com/Amit00008/solana-chess/modules/ledger"
	"github.com/Amit00008/solana-chess/modules/liveness"
	"github.com/Amit00008/solana-chess/modules/lobby"
	ratelimitmod "github.com/Amit00008/solana-chess/modules/ratelimit"
	"github.com/Amit00008/solana-chess/modules/settlement"
	"github.com/Amit00008/solana-chess/modules/treasury"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Solana Chess - wagered games over WebSocket ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// The custodial key is decoded up front; without it the server must not start.
	treasuryModule, err := treasury.NewModule(treasury.DefaultSolanaConfig(cfg.RPCHost, cfg.EscrowPrivateKey))
	if err != nil {
		log.Fatalf("Failed to create treasury: %v", err)
	}

	poolConfig := settlement.DefaultPoolConfig()
	if cfg.SettlementWorkers > 0 {
		poolConfig.NumWorkers = cfg.SettlementWorkers
	}
	if cfg.SettlementMaxRetries > 0 {
		poolConfig.MaxRetries = cfg.SettlementMaxRetries
	}

	ledgerModule := ledger.NewModule(cfg.DBPath, cfg.DBDebug)
	settlementModule := settlement.NewModule(poolConfig, cfg.HouseFeePercent, treasuryModule.Gateway(), ledgerModule)
	rateLimitModule := ratelimitmod.NewModule(
		ratelimit.NewPolicy(cfg.RateLimitWindow, cfg.RateLimitCreate, cfg.RateLimitMove, cfg.RateLimitList),
		cfg.RedisAddr,
	)
	lobbyModule := lobby.NewModule(
		lobby.Config{GameTimeout: cfg.GameTimeout, ReconnectGrace: cfg.ReconnectGrace},
		cfg.SessionSecret,
		func() lobby.Settler {
			if d := settlementModule.Dispatcher(); d != nil {
				return d
			}
			return nil
		},
		app.Logger(),
	)
	broadcastModule := broadcast.NewModule(nil)
	livenessModule := liveness.NewModule(
		liveness.Config{Interval: cfg.HeartbeatSweep, Stale: cfg.HeartbeatStale},
		broadcastModule.GetHub(),
		nil,
	)
	apiModule := api.NewModule(
		api.Config{Port: cfg.Port, AllowedOrigins: cfg.AllowedOrigins},
		treasury.Bounds{Min: cfg.MinBetLamports, Max: cfg.MaxBetLamports},
	)

	// In-process wiring that does not go through the ServiceContainer.
	lobbyModule.SetNotifier(broadcastModule.GetHub())
	apiModule.SetHub(broadcastModule.GetHub())
	apiModule.SetLimiter(rateLimitModule)
	apiModule.SetGateway(treasuryModule.Gateway())
	apiModule.SetRooms(lobbyModule.Registry)
	apiModule.SetCashier(func() api.Cashier {
		if d := settlementModule.Dispatcher(); d != nil {
			return d
		}
		return nil
	})

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - ledger: settlement rows and consumed deposits (sqlite)
	// - treasury: Solana gateway holding the custodial key
	// - rate-limiter: per-wallet action windows
	// - settlement: durable transfer worker pool (depends on ledger)
	// - lobby: room registry (depends on settlement, emits LobbyChanged)
	// - broadcast: WebSocket hub (depends on lobby, consumes LobbyChanged)
	// - liveness: stale connection sweep
	// - api: Fiber HTTP/WebSocket server
	app.Register(ledgerModule)
	app.Register(treasuryModule)
	app.Register(rateLimitModule)
	app.Register(settlementModule)
	app.Register(lobbyModule)
	app.Register(broadcastModule)
	app.Register(livenessModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg *config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("  Solana RPC:     %s", cfg.RPCHost)
	log.Printf("  Stake bounds:   %s - %s SOL", treasury.FormatSOL(cfg.MinBetLamports), treasury.FormatSOL(cfg.MaxBetLamports))
	log.Printf("  House fee:      %d%%", cfg.HouseFeePercent)
	log.Printf("  Game timeout:   %s", cfg.GameTimeout)
	log.Printf("  Reconnect grace: %s", cfg.ReconnectGrace)
	log.Printf("  Settlement db:  %s", cfg.DBPath)
	if cfg.RedisAddr != "" {
		log.Printf("  Rate limits:    Redis at %s", cfg.RedisAddr)
	} else {
		log.Println("  Rate limits:    in-memory")
	}
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /health                        - Health check")
	log.Println("  GET    /metrics                       - Prometheus metrics")
	log.Println("  GET    /api/v1/games                  - Joinable games")
	log.Println("  GET    /api/v1/settlements?status=    - Settlement transfers")
	log.Println("  GET    /api/v1/settlements/:id        - One transfer")
	log.Println("  POST   /api/v1/settlements/:id/retry  - Retry a failed transfer")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", cfg.Port)
	log.Println("  Message types: listGames, createGame, joinGame, move, leaveGame, resumeGame, ping")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
