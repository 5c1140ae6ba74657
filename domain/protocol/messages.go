// Package protocol defines the JSON messages exchanged over the game WebSocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Amit00008/solana-chess/domain/room"
)

// Inbound message types.
const (
	TypeListGames  = "listGames"
	TypeCreateGame = "createGame"
	TypeJoinGame   = "joinGame"
	TypeMove       = "move"
	TypeLeaveGame  = "leaveGame"
	TypePing       = "ping"
	TypeResumeGame = "resumeGame"
)

// Outbound message types.
const (
	TypeGameCreated  = "gameCreated"
	TypeGameStart    = "gameStart"
	TypeMoveMade     = "moveMade"
	TypeOpponentLeft = "opponentLeft"
	TypeGameOver     = "gameOver"
	TypeGameTimeout  = "gameTimeout"
	TypeGameResumed  = "gameResumed"
	TypeError        = "error"
	TypePong         = "pong"
)

// Lamports is a stake amount that decodes from a JSON string or number.
type Lamports uint64

// UnmarshalJSON accepts "1000000000" as well as 1000000000.
func (l *Lamports) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*l = 0
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		// Integral floats such as 1e9 are accepted; fractions are not.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f < 0 || f != float64(uint64(f)) {
			return fmt.Errorf("invalid lamport amount %q", s)
		}
		n = uint64(f)
	}
	*l = Lamports(n)
	return nil
}

// Inbound is the union of all client messages; Type selects the meaningful fields.
type Inbound struct {
	Type                 string     `json:"type"`
	RoomID               string     `json:"roomId,omitempty"`
	WalletAddress        string     `json:"walletAddress,omitempty"`
	BetAmount            Lamports   `json:"betAmount,omitempty"`
	TransactionSignature string     `json:"transactionSignature,omitempty"`
	Move                 *room.Move `json:"move,omitempty"`
	SessionToken         string     `json:"sessionToken,omitempty"`
}

// Decode parses a client frame.
func Decode(data []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &msg, nil
}

// GameListing is one joinable room.
type GameListing struct {
	RoomID      string  `json:"roomId"`
	Players     int     `json:"players"`
	Status      string  `json:"status"`
	BetAmount   float64 `json:"betAmount"`
	RequiredBet string  `json:"requiredBet"`
}

// ListGames answers listGames and is pushed on every lobby change.
type ListGames struct {
	Type  string        `json:"type"`
	Games []GameListing `json:"games"`
}

// GameCreated confirms a new room to its creator.
type GameCreated struct {
	Type         string     `json:"type"`
	RoomID       string     `json:"roomId"`
	Color        room.Color `json:"color"`
	FEN          string     `json:"fen"`
	Turn         room.Color `json:"turn"`
	SessionToken string     `json:"sessionToken,omitempty"`
}

// GameStart is sent to both participants when the second seat is filled.
type GameStart struct {
	Type         string     `json:"type"`
	RoomID       string     `json:"roomId"`
	Color        room.Color `json:"color"`
	Turn         room.Color `json:"turn"`
	FEN          string     `json:"fen"`
	WhitePlayer  string     `json:"whitePlayer"`
	BlackPlayer  string     `json:"blackPlayer"`
	SessionToken string     `json:"sessionToken,omitempty"`
}

// MoveMade is sent to every participant after an accepted move. MoveBy is the
// mover's wallet address.
type MoveMade struct {
	Type     string     `json:"type"`
	FEN      string     `json:"fen"`
	Turn     room.Color `json:"turn"`
	LastMove room.Move  `json:"lastMove"`
	MoveBy   string     `json:"moveBy"`
	History  []string   `json:"history"`
}

// OpponentLeft tells the remaining participant the room is open again.
type OpponentLeft struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// GameOver reports a terminal room.
type GameOver struct {
	Type     string `json:"type"`
	Result   string `json:"result"`
	Refunded bool   `json:"refunded,omitempty"`
	FEN      string `json:"fen,omitempty"`
}

// GameTimeout reports a room that reached its absolute lifetime.
type GameTimeout struct {
	Type     string `json:"type"`
	Result   string `json:"result"`
	Refunded bool   `json:"refunded"`
}

// GameResumed confirms a rebound connection.
type GameResumed struct {
	Type    string     `json:"type"`
	RoomID  string     `json:"roomId"`
	Color   room.Color `json:"color"`
	FEN     string     `json:"fen"`
	Turn    room.Color `json:"turn"`
	History []string   `json:"history"`
}

// Error reports a failed request to the originating connection.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Pong answers ping.
type Pong struct {
	Type string `json:"type"`
}

// NewError builds an error message.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}
