package lobby

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/Amit00008/solana-chess/domain/room"
	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
)

const sessionIssuer = "solana-chess"

var (
	// ErrInvalidSession is returned when a session token is malformed or forged.
	ErrInvalidSession = errors.New("Invalid session token")
	// ErrExpiredSession is returned when a session token has expired.
	ErrExpiredSession = errors.New("Session expired")
)

// SessionClaims bind a wallet to its seat in a room.
type SessionClaims struct {
	RoomID string     `json:"room_id"`
	Color  room.Color `json:"color"`
	jwt.RegisteredClaims
}

// Wallet returns the seated wallet.
func (c *SessionClaims) Wallet() string {
	return c.Subject
}

// SessionManager issues and validates reconnect tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewSessionManager creates a SessionManager. An empty secret is replaced with a random
// per-process key, so tokens never outlive the process that issued them.
func NewSessionManager(secret string, ttl time.Duration, clk clock.Clock) (*SessionManager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &SessionManager{secret: key, ttl: ttl, clock: clk}, nil
}

// Issue signs a token for wallet's seat.
func (m *SessionManager) Issue(wallet, roomID string, color room.Color) (string, error) {
	now := m.clock.Now()
	claims := SessionClaims{
		RoomID: roomID,
		Color:  color,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   wallet,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate checks the signature and expiry and returns the claims.
func (m *SessionManager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return m.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithTimeFunc(m.clock.Now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSession
		}
		return nil, ErrInvalidSession
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" || claims.RoomID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
