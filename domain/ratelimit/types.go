// Package ratelimit provides domain types and interfaces for per-user action rate limiting.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Kind identifies an action class. Each kind has its own independent window.
type Kind string

const (
	// KindCreateGame limits room creation attempts.
	KindCreateGame Kind = "createGame"
	// KindMove limits chess moves.
	KindMove Kind = "move"
	// KindListGames limits lobby listing requests.
	KindListGames Kind = "listGames"
)

var (
	// ErrUnknownKind is returned when a limiter is asked about a kind it has no config for.
	ErrUnknownKind = errors.New("unknown rate limit kind")
	// ErrRateLimited is reported to clients whose action was denied.
	ErrRateLimited = errors.New("Rate limit exceeded. Please try again later.")
)

// Config holds rate limiting configuration for a single kind.
type Config struct {
	// RequestsPerWindow is the maximum number of actions allowed in the window.
	RequestsPerWindow int
	// WindowSize is the duration of the sliding window.
	WindowSize time.Duration
}

// Result represents the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the action is allowed.
	Allowed bool
	// Remaining is the number of actions remaining in the current window.
	Remaining int
	// RetryAfter is the duration until the oldest counted action leaves the window
	// (only set when not allowed).
	RetryAfter time.Duration
}

// Limiter is the interface for rate limiting implementations.
type Limiter interface {
	// Allow checks whether an action of the given kind by key is allowed and, if so,
	// records it. A denied check records nothing.
	Allow(ctx context.Context, kind Kind, key string) (*Result, error)

	// Close releases any resources held by the limiter.
	Close() error
}

// Policy maps each kind to its window configuration.
type Policy map[Kind]Config

// DefaultPolicy returns the default limits: 2 creates, 3 moves and 5 listings per second.
func DefaultPolicy() Policy {
	return NewPolicy(time.Second, 2, 3, 5)
}

// NewPolicy builds a policy sharing one window size across all kinds.
func NewPolicy(window time.Duration, createLimit, moveLimit, listLimit int) Policy {
	return Policy{
		KindCreateGame: {RequestsPerWindow: createLimit, WindowSize: window},
		KindMove:       {RequestsPerWindow: moveLimit, WindowSize: window},
		KindListGames:  {RequestsPerWindow: listLimit, WindowSize: window},
	}
}

// Lookup returns the configuration for kind.
func (p Policy) Lookup(kind Kind) (Config, error) {
	cfg, ok := p[kind]
	if !ok || cfg.RequestsPerWindow <= 0 || cfg.WindowSize <= 0 {
		return Config{}, ErrUnknownKind
	}
	return cfg, nil
}
