package room

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound indicates the room does not exist (or was already destroyed).
	ErrRoomNotFound = errors.New("Game not found")
	// ErrRoomNotJoinable indicates the room exists but cannot take this joiner.
	ErrRoomNotJoinable = errors.New("Game is no longer available")
	// ErrNotParticipant indicates the caller is not seated in an active room.
	ErrNotParticipant = errors.New("You are not part of this game or the game is invalid.")
	// ErrIllegalMove indicates the rules engine rejected the move.
	ErrIllegalMove = errors.New("Invalid move.")
	// ErrInvalidTransition indicates a status change outside the transition table.
	ErrInvalidTransition = errors.New("invalid room status transition")
)

// TurnError is returned when a participant moves out of turn.
type TurnError struct {
	Turn Color
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("It's not your turn. It's %s's turn.", e.Turn.Name())
}

// ValidationError reports a stake outside the accepted bounds.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
