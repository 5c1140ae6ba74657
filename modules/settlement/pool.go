// Package settlement executes the refunds and payouts recorded in the ledger.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/Amit00008/solana-chess/metrics"
	"github.com/Amit00008/solana-chess/modules/ledger"
	"github.com/Amit00008/solana-chess/modules/treasury"
	"github.com/benbjohnson/clock"
)

// errUnconfirmed marks an attempt whose transaction may still land. The next attempt
// checks the same signature.
var errUnconfirmed = errors.New("transfer not yet confirmed")

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	NumWorkers     int
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	ProcessTimeout time.Duration
	QueueSize      int
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers:     2,
		MaxRetries:     8,
		BaseRetryDelay: time.Second,
		MaxRetryDelay:  time.Minute,
		ProcessTimeout: 2 * time.Minute,
		QueueSize:      1024,
	}
}

// Pool runs transfers from the ledger against the treasury gateway. Failed transfers
// are retried with exponential backoff and parked in dead letter after MaxRetries.
type Pool struct {
	config  PoolConfig
	repo    *ledger.Repository
	gateway treasury.Gateway
	clock   clock.Clock
	queue   chan string
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	running bool
	timers  map[string]*clock.Timer
}

// NewPool creates a new worker pool. A nil clock uses the wall clock.
func NewPool(cfg PoolConfig, repo *ledger.Repository, gateway treasury.Gateway, clk clock.Clock) *Pool {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultPoolConfig().QueueSize
	}
	return &Pool{
		config:  cfg,
		repo:    repo,
		gateway: gateway,
		clock:   clk,
		queue:   make(chan string, cfg.QueueSize),
		timers:  make(map[string]*clock.Timer),
	}
}

// Start starts the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pool is already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	for i := 0; i < p.config.NumWorkers; i++ {
		workerID := fmt.Sprintf("settler-%d", i+1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(workerID)
		}()
	}

	log.Printf("[settlement] Worker pool started with %d workers", p.config.NumWorkers)
	return nil
}

// Stop cancels the workers and pending retry timers, waiting for in-flight transfers.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[settlement] All workers stopped gracefully")
	case <-ctx.Done():
		log.Println("[settlement] Timeout waiting for workers to stop")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns true if the pool is running.
func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Enqueue schedules a transfer for immediate execution. Transfers enqueued while
// the pool is stopped stay pending in the ledger and are picked up on the next start.
func (p *Pool) Enqueue(id string) {
	p.mu.RLock()
	running, ctx := p.running, p.ctx
	p.mu.RUnlock()
	if !running {
		return
	}

	select {
	case p.queue <- id:
	case <-ctx.Done():
	}
}

func (p *Pool) scheduleRetry(id string, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	if t, ok := p.timers[id]; ok {
		t.Stop()
	}
	p.timers[id] = p.clock.AfterFunc(delay, func() {
		p.mu.Lock()
		delete(p.timers, id)
		p.mu.Unlock()
		p.Enqueue(id)
	})
}

// PendingRetries returns the number of armed retry timers.
func (p *Pool) PendingRetries() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.timers)
}

func (p *Pool) run(workerID string) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case id := <-p.queue:
			p.process(workerID, id)
		}
	}
}

// process executes one transfer.
func (p *Pool) process(workerID, id string) {
	transfer, err := p.repo.MarkProcessing(id)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotRunnable) {
			log.Printf("[%s] Error claiming transfer %s: %v", workerID, id, err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.config.ProcessTimeout)
	defer cancel()

	start := p.clock.Now()
	signature, err := p.execute(ctx, transfer)
	if err != nil {
		p.handleFailure(workerID, transfer, err)
		return
	}
	p.handleSuccess(workerID, transfer, signature, p.clock.Since(start))
}

// execute runs one attempt. A transfer that already has a submitted transaction is
// only signed again once that transaction failed or expired, so a late landing never
// pays twice.
func (p *Pool) execute(ctx context.Context, t *ledger.Transfer) (string, error) {
	if t.Signature != "" {
		prev := treasury.Submission{Signature: t.Signature, LastValidBlockHeight: t.LastValidHeight}
		state, err := p.gateway.Confirm(ctx, prev)
		if err != nil {
			return "", err
		}
		switch {
		case state == treasury.SubmissionLanded:
			return t.Signature, nil
		case !state.Resubmittable():
			return "", fmt.Errorf("%w: %s", errUnconfirmed, t.Signature)
		}
		log.Printf("[settlement] Transfer %s: transaction %s %s, signing a new one", t.ID, t.Signature, state)
		if err := p.repo.ClearSubmission(t.ID); err != nil {
			return "", err
		}
	}

	sub, err := p.submit(ctx, t)
	if err != nil {
		return "", err
	}
	state, err := p.gateway.Confirm(ctx, sub)
	if err != nil {
		return "", err
	}
	switch state {
	case treasury.SubmissionLanded:
		return sub.Signature, nil
	case treasury.SubmissionPending:
		return "", fmt.Errorf("%w: %s", errUnconfirmed, sub.Signature)
	default:
		return "", fmt.Errorf("%w: transaction %s %s", treasury.ErrTransferFailed, sub.Signature, state)
	}
}

// submit signs and sends t. The signature is written to the ledger before sending.
func (p *Pool) submit(ctx context.Context, t *ledger.Transfer) (treasury.Submission, error) {
	record := func(sub treasury.Submission) error {
		return p.repo.RecordSubmission(t.ID, sub.Signature, sub.LastValidBlockHeight)
	}
	switch treasury.TransferKind(t.Kind) {
	case treasury.TransferPayout:
		return p.gateway.Payout(ctx, t.Recipient, t.Amount, record)
	case treasury.TransferRefund:
		return p.gateway.Refund(ctx, t.Recipient, t.Amount, record)
	default:
		return treasury.Submission{}, fmt.Errorf("unknown transfer kind %q", t.Kind)
	}
}

func (p *Pool) handleSuccess(workerID string, t *ledger.Transfer, signature string, duration time.Duration) {
	if err := p.repo.MarkCompleted(t.ID, signature); err != nil {
		log.Printf("[%s] Error marking transfer %s completed: %v", workerID, t.ID, err)
	}
	metrics.Transfers.WithLabelValues(t.Kind, "completed").Inc()
	log.Printf("[%s] %s of %d lamports to %s for %s completed in %v: %s",
		workerID, t.Kind, t.Amount, t.Recipient, t.RoomID, duration, signature)
}

func (p *Pool) handleFailure(workerID string, t *ledger.Transfer, cause error) {
	metrics.Transfers.WithLabelValues(t.Kind, "failed").Inc()

	attempts, err := p.repo.MarkFailed(t.ID, cause.Error())
	if err != nil {
		log.Printf("[%s] Error recording failure of transfer %s: %v", workerID, t.ID, err)
		attempts = t.Attempts + 1
	}

	if attempts >= p.config.MaxRetries {
		p.moveToDeadLetter(workerID, t, cause, attempts)
		return
	}

	delay := p.calculateRetryDelay(attempts)
	p.scheduleRetry(t.ID, delay)

	log.Printf("[%s] Transfer %s failed (attempt %d/%d), will retry in %v: %v",
		workerID, t.ID, attempts, p.config.MaxRetries, delay, cause)
}

func (p *Pool) moveToDeadLetter(workerID string, t *ledger.Transfer, cause error, attempts int) {
	reason := fmt.Sprintf("max retries (%d) exceeded: %v", p.config.MaxRetries, cause)
	if err := p.repo.MarkDeadLetter(t.ID, reason); err != nil {
		log.Printf("[%s] Error moving transfer %s to dead letter: %v", workerID, t.ID, err)
	}
	metrics.Transfers.WithLabelValues(t.Kind, "dead_letter").Inc()
	log.Printf("[%s] Transfer %s to %s moved to dead letter after %d attempts: %s",
		workerID, t.ID, t.Recipient, attempts, reason)
}

// calculateRetryDelay returns base * 2^(attempts-1), capped at MaxRetryDelay.
func (p *Pool) calculateRetryDelay(attempts int) time.Duration {
	delay := float64(p.config.BaseRetryDelay) * math.Pow(2, float64(attempts-1))
	if time.Duration(delay) > p.config.MaxRetryDelay {
		return p.config.MaxRetryDelay
	}
	return time.Duration(delay)
}
