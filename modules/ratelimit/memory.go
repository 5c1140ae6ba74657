package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Amit00008/solana-chess/domain/ratelimit"
	"github.com/benbjohnson/clock"
)

// window is a fixed-capacity ring of action timestamps, oldest first.
// Capacity equals the kind's limit, so a full ring means the window is exhausted.
type window struct {
	stamps []time.Time
	head   int
	size   int
}

func newWindow(capacity int) *window {
	return &window{stamps: make([]time.Time, capacity)}
}

func (w *window) oldest() time.Time {
	return w.stamps[w.head]
}

func (w *window) newest() time.Time {
	return w.stamps[(w.head+w.size-1)%len(w.stamps)]
}

// prune drops every stamp that is at least windowSize old.
func (w *window) prune(now time.Time, windowSize time.Duration) {
	for w.size > 0 && now.Sub(w.oldest()) >= windowSize {
		w.head = (w.head + 1) % len(w.stamps)
		w.size--
	}
}

func (w *window) push(now time.Time) {
	w.stamps[(w.head+w.size)%len(w.stamps)] = now
	w.size++
}

type bucketKey struct {
	kind ratelimit.Kind
	key  string
}

// MemoryLimiter is an in-process sliding window limiter keyed by (kind, user).
type MemoryLimiter struct {
	policy  ratelimit.Policy
	clock   clock.Clock
	mu      sync.Mutex
	buckets map[bucketKey]*window
}

// NewMemoryLimiter creates an in-memory limiter. A nil clock uses wall time.
func NewMemoryLimiter(policy ratelimit.Policy, clk clock.Clock) *MemoryLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryLimiter{
		policy:  policy,
		clock:   clk,
		buckets: make(map[bucketKey]*window),
	}
}

// Allow implements ratelimit.Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, kind ratelimit.Kind, key string) (*ratelimit.Result, error) {
	cfg, err := l.policy.Lookup(kind)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	bk := bucketKey{kind: kind, key: key}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.buckets[bk]
	if !ok {
		w = newWindow(cfg.RequestsPerWindow)
		l.buckets[bk] = w
	}
	w.prune(now, cfg.WindowSize)

	if w.size >= cfg.RequestsPerWindow {
		return &ratelimit.Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: w.oldest().Add(cfg.WindowSize).Sub(now),
		}, nil
	}

	w.push(now)
	return &ratelimit.Result{
		Allowed:   true,
		Remaining: cfg.RequestsPerWindow - w.size,
	}, nil
}

// Sweep drops windows whose newest action has left the window. It returns the
// number of windows removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for bk, w := range l.buckets {
		cfg, err := l.policy.Lookup(bk.kind)
		if err != nil || w.size == 0 || now.Sub(w.newest()) >= cfg.WindowSize {
			delete(l.buckets, bk)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close implements ratelimit.Limiter.
func (l *MemoryLimiter) Close() error {
	return nil
}
