package ratelimit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Amit00008/solana-chess/domain/ratelimit"
	"github.com/Amit00008/solana-chess/metrics"
	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
)

const sweepInterval = time.Minute

// Module provides per-user action rate limiting as a mono module. With a Redis
// address it shares windows through Redis; otherwise it keeps them in memory.
type Module struct {
	policy    ratelimit.Policy
	redisAddr string
	client    *redis.Client
	limiter   ratelimit.Limiter
	memory    *MemoryLimiter

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new rate limiting module.
func NewModule(policy ratelimit.Policy, redisAddr string) *Module {
	return &Module{
		policy:    policy,
		redisAddr: redisAddr,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "rate-limiter"
}

// Start selects the backend and, for the in-memory one, starts the idle window sweeper.
func (m *Module) Start(ctx context.Context) error {
	if m.redisAddr != "" {
		m.client = redis.NewClient(&redis.Options{Addr: m.redisAddr})
		if err := m.client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		m.limiter = NewRedisLimiter(m.client, m.policy, "ratelimit:")
		log.Printf("[rate-limiter] Using Redis sliding window at %s", m.redisAddr)
		return nil
	}

	m.memory = NewMemoryLimiter(m.policy, nil)
	m.limiter = m.memory
	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})
	go m.sweep()

	log.Println("[rate-limiter] Using in-memory sliding window")
	return nil
}

func (m *Module) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	defer close(m.doneChan)

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			if n := m.memory.Sweep(); n > 0 {
				log.Printf("[rate-limiter] Swept %d idle windows", n)
			}
		}
	}
}

// Stop stops the sweeper and closes the Redis connection.
func (m *Module) Stop(ctx context.Context) error {
	if m.stopChan != nil {
		m.stopOnce.Do(func() { close(m.stopChan) })
		select {
		case <-m.doneChan:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			log.Printf("[rate-limiter] Error closing Redis connection: %v", err)
		}
	}
	log.Println("[rate-limiter] Module stopped")
	return nil
}

// Health reports backend reachability.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.limiter == nil {
		return mono.HealthStatus{Healthy: false, Message: "limiter not initialized"}
	}
	if m.client != nil {
		if err := m.client.Ping(ctx).Err(); err != nil {
			return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("redis ping failed: %v", err)}
		}
		return mono.HealthStatus{Healthy: true, Message: "operational", Details: map[string]any{"backend": "redis"}}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"backend": "memory", "windows": m.memory.Len()},
	}
}

// SetLimiter replaces the backend. Used by tests.
func (m *Module) SetLimiter(l ratelimit.Limiter) {
	m.limiter = l
}

// Check reports whether the action may proceed. Backend errors fail open.
func (m *Module) Check(ctx context.Context, kind ratelimit.Kind, key string) bool {
	res, err := m.limiter.Allow(ctx, kind, key)
	if err != nil {
		log.Printf("[rate-limiter] Check failed for %s/%s, allowing: %v", kind, key, err)
		return true
	}
	if !res.Allowed {
		metrics.RateLimited.WithLabelValues(string(kind)).Inc()
	}
	return res.Allowed
}
