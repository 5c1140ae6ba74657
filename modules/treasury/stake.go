package treasury

import (
	"fmt"
	"strconv"

	"github.com/Amit00008/solana-chess/domain/room"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

const (
	// MinBet is 0.01 SOL.
	MinBet uint64 = LamportsPerSOL / 100
	// MaxBet is 10 SOL.
	MaxBet uint64 = 10 * LamportsPerSOL
)

// Bounds is the accepted stake range, inclusive.
type Bounds struct {
	Min uint64
	Max uint64
}

// DefaultBounds returns [MinBet, MaxBet].
func DefaultBounds() Bounds {
	return Bounds{Min: MinBet, Max: MaxBet}
}

// Validate returns a *room.ValidationError when amount is outside the bounds.
func (b Bounds) Validate(amount uint64) error {
	if amount < b.Min {
		return &room.ValidationError{Message: fmt.Sprintf("Minimum bet amount is %s SOL", FormatSOL(b.Min))}
	}
	if amount > b.Max {
		return &room.ValidationError{Message: fmt.Sprintf("Maximum bet amount is %s SOL", FormatSOL(b.Max))}
	}
	return nil
}

// FormatSOL renders lamports as a decimal SOL amount without trailing zeros.
func FormatSOL(lamports uint64) string {
	return strconv.FormatFloat(ToSOL(lamports), 'f', -1, 64)
}

// ToSOL converts lamports to SOL.
func ToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}
