package room

import (
	"github.com/corentings/chess"
)

// Color is a side of the board, encoded the way FEN encodes the side to move.
type Color string

const (
	White Color = "w"
	Black Color = "b"
)

// Name returns "White" or "Black".
func (c Color) Name() string {
	if c == Black {
		return "Black"
	}
	return "White"
}

// Move is a from/to square pair as sent by clients, e.g. {"from":"e2","to":"e4"}.
type Move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (m Move) valid() bool {
	return isSquare(m.From) && isSquare(m.To)
}

func isSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// Board wraps the rules engine. It is not safe for concurrent use; the owning
// room actor serializes access.
type Board struct {
	game *chess.Game
}

// NewBoard returns a board in the standard starting position.
func NewBoard() *Board {
	return &Board{game: chess.NewGame(chess.UseNotation(chess.UCINotation{}))}
}

// FEN returns the serialized position.
func (b *Board) FEN() string {
	return b.game.FEN()
}

// Turn returns the side to move.
func (b *Board) Turn() Color {
	if b.game.Position().Turn() == chess.Black {
		return Black
	}
	return White
}

// Apply plays the move, promoting to a queen when a pawn reaches the last rank.
// A position that allows a draw claim ends the game as drawn.
func (b *Board) Apply(m Move) error {
	if !m.valid() {
		return ErrIllegalMove
	}
	if err := b.game.MoveStr(m.From + m.To); err != nil {
		if err := b.game.MoveStr(m.From + m.To + "q"); err != nil {
			return ErrIllegalMove
		}
	}
	b.claimDraw()
	return nil
}

// claimDraw ends the game on threefold repetition or the fifty-move rule. The
// engine only ends it by itself at fivefold repetition or seventy-five moves.
func (b *Board) claimDraw() {
	if b.game.Outcome() != chess.NoOutcome {
		return
	}
	for _, method := range b.game.EligibleDraws() {
		if method == chess.ThreefoldRepetition || method == chess.FiftyMoveRule {
			_ = b.game.Draw(method)
			return
		}
	}
}

// History returns every move played so far in UCI notation.
func (b *Board) History() []string {
	moves := b.game.Moves()
	history := make([]string, 0, len(moves))
	for _, mv := range moves {
		history = append(history, mv.String())
	}
	return history
}

// Result describes a finished position.
type Result struct {
	Decisive bool
	Winner   Color
	Text     string
}

// Result reports whether the position is terminal.
func (b *Board) Result() (Result, bool) {
	switch b.game.Outcome() {
	case chess.WhiteWon:
		return Result{Decisive: true, Winner: White, Text: "White wins by " + methodText(b.game.Method())}, true
	case chess.BlackWon:
		return Result{Decisive: true, Winner: Black, Text: "Black wins by " + methodText(b.game.Method())}, true
	case chess.Draw:
		return Result{Text: "Draw by " + methodText(b.game.Method())}, true
	default:
		return Result{}, false
	}
}

func methodText(m chess.Method) string {
	switch m {
	case chess.Checkmate:
		return "checkmate"
	case chess.Stalemate:
		return "stalemate"
	case chess.InsufficientMaterial:
		return "insufficient material"
	case chess.ThreefoldRepetition:
		return "threefold repetition"
	case chess.FivefoldRepetition:
		return "fivefold repetition"
	case chess.FiftyMoveRule:
		return "fifty-move rule"
	case chess.SeventyFiveMoveRule:
		return "seventy-five-move rule"
	default:
		return "agreement"
	}
}
