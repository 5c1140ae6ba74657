package room

import (
	"fmt"
	"time"
)

// Result texts delivered to clients.
const (
	ReasonPlayerLeft   = "Game cancelled - Player left"
	ReasonOpponentLeft = "Game cancelled - Opponent left"
	ReasonTimedOut     = "Game timed out - Refund issued"
	ReasonShutdown     = "Game cancelled - Server shutting down"
)

// Participant is a seated wallet.
type Participant struct {
	Wallet string `json:"wallet"`
	Color  Color  `json:"color"`
	ConnID string `json:"-"`
}

// pendingJoin is the joiner whose deposit is being verified while the room is JOINING.
type pendingJoin struct {
	ticket string
	wallet string
	connID string
}

// Room is one wagered match. Methods mutate in place and are not synchronized.
type Room struct {
	ID           string
	Status       Status
	Stake        uint64
	Creator      string
	Participants []Participant
	Board        *Board
	CreatedAt    time.Time
	LastActivity time.Time

	pending *pendingJoin
}

// New creates a WAITING room with the creator seated as white.
func New(id, creator, connID string, stake uint64, now time.Time) *Room {
	return &Room{
		ID:           id,
		Status:       StatusWaiting,
		Stake:        stake,
		Creator:      creator,
		Participants: []Participant{{Wallet: creator, Color: White, ConnID: connID}},
		Board:        NewBoard(),
		CreatedAt:    now,
		LastActivity: now,
	}
}

func (r *Room) transition(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// Participant returns the seat held by wallet.
func (r *Room) Participant(wallet string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.Wallet == wallet {
			return p, true
		}
	}
	return Participant{}, false
}

// Wallets returns the seated wallets, white first.
func (r *Room) Wallets() []string {
	wallets := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		wallets = append(wallets, p.Wallet)
	}
	return wallets
}

// Rebind points wallet's seat at a new connection.
func (r *Room) Rebind(wallet, connID string) bool {
	for i := range r.Participants {
		if r.Participants[i].Wallet == wallet {
			r.Participants[i].ConnID = connID
			return true
		}
	}
	return false
}

// BeginJoin reserves the second seat for wallet while its deposit is verified.
func (r *Room) BeginJoin(wallet, connID string, stake uint64, ticket string) error {
	if r.Status != StatusWaiting || len(r.Participants) != 1 {
		return ErrRoomNotJoinable
	}
	if stake != r.Stake || wallet == r.Participants[0].Wallet {
		return ErrRoomNotJoinable
	}
	if err := r.transition(StatusJoining); err != nil {
		return ErrRoomNotJoinable
	}
	r.pending = &pendingJoin{ticket: ticket, wallet: wallet, connID: connID}
	return nil
}

// CompleteJoin seats the reserved joiner as black and starts the game.
func (r *Room) CompleteJoin(ticket string, now time.Time) (Participant, error) {
	if r.Status != StatusJoining || r.pending == nil || r.pending.ticket != ticket {
		return Participant{}, ErrRoomNotJoinable
	}
	if err := r.transition(StatusActive); err != nil {
		return Participant{}, err
	}
	p := Participant{Wallet: r.pending.wallet, Color: Black, ConnID: r.pending.connID}
	r.Participants = append(r.Participants, p)
	r.pending = nil
	r.LastActivity = now
	return p, nil
}

// AbortJoin releases the reservation after a failed verification.
func (r *Room) AbortJoin(ticket string) bool {
	if r.Status != StatusJoining || r.pending == nil || r.pending.ticket != ticket {
		return false
	}
	r.pending = nil
	return r.transition(StatusWaiting) == nil
}

// MoveOutcome is the result of an accepted move.
type MoveOutcome struct {
	Mover      Participant
	LastMove   Move
	FEN        string
	Turn       Color
	History    []string
	Finished   bool
	Result     Result
	Settlement Settlement
}

// ApplyMove validates turn and legality, plays the move and, when the position is
// terminal, moves the room to COMPLETED or DRAWN.
func (r *Room) ApplyMove(wallet string, m Move, now time.Time) (*MoveOutcome, error) {
	mover, ok := r.Participant(wallet)
	if !ok || r.Status != StatusActive {
		return nil, ErrNotParticipant
	}
	if turn := r.Board.Turn(); turn != mover.Color {
		return nil, &TurnError{Turn: turn}
	}
	if err := r.Board.Apply(m); err != nil {
		return nil, err
	}
	r.LastActivity = now

	out := &MoveOutcome{
		Mover:    mover,
		LastMove: m,
		FEN:      r.Board.FEN(),
		Turn:     r.Board.Turn(),
		History:  r.Board.History(),
	}

	result, done := r.Board.Result()
	if !done {
		return out, nil
	}

	status := StatusDrawn
	winner := ""
	if result.Decisive {
		status = StatusCompleted
		winner = r.walletFor(result.Winner)
	}
	settlement, err := r.terminate(status, result.Text)
	if err != nil {
		return nil, err
	}
	settlement.Winner = winner
	out.Finished = true
	out.Result = result
	out.Settlement = settlement
	return out, nil
}

func (r *Room) walletFor(c Color) string {
	for _, p := range r.Participants {
		if p.Color == c {
			return p.Wallet
		}
	}
	return ""
}

// LeaveOutcome describes a voluntary departure.
type LeaveOutcome struct {
	Leaver    Participant
	Remaining *Participant
	// Empty means no participant is left and the room must be destroyed without settlement.
	Empty bool
}

// Leave removes wallet from the room. The departing stake is retained. If a participant
// remains, the room reverts to WAITING on a fresh board with the remaining wallet as white.
func (r *Room) Leave(wallet string) (*LeaveOutcome, error) {
	leaver, ok := r.Participant(wallet)
	if !ok || r.Status.IsTerminal() {
		return nil, ErrNotParticipant
	}

	kept := r.Participants[:0]
	for _, p := range r.Participants {
		if p.Wallet != wallet {
			kept = append(kept, p)
		}
	}
	r.Participants = kept

	out := &LeaveOutcome{Leaver: leaver}
	if len(r.Participants) == 0 {
		out.Empty = true
		return out, nil
	}

	if r.Status != StatusWaiting {
		if err := r.transition(StatusWaiting); err != nil {
			return nil, err
		}
	}
	r.pending = nil
	r.Participants[0].Color = White
	r.Creator = r.Participants[0].Wallet
	r.Board = NewBoard()
	remaining := r.Participants[0]
	out.Remaining = &remaining
	return out, nil
}

// Disconnect cancels the room. WAITING and JOINING refund the creator only; ACTIVE
// refunds both seats. A pending joiner is not a participant and is refunded by its
// own join path.
func (r *Room) Disconnect() (Settlement, error) {
	reason := ReasonPlayerLeft
	if r.Status == StatusActive {
		reason = ReasonOpponentLeft
	}
	return r.Cancel(reason)
}

// Cancel ends the room with reason, refunding every seat.
func (r *Room) Cancel(reason string) (Settlement, error) {
	r.pending = nil
	return r.terminate(StatusCancelled, reason)
}

// Timeout ends the room after its absolute lifetime, refunding every seat.
func (r *Room) Timeout() (Settlement, error) {
	r.pending = nil
	return r.terminate(StatusTimedOut, ReasonTimedOut)
}

func (r *Room) terminate(status Status, reason string) (Settlement, error) {
	if !status.IsTerminal() {
		return Settlement{}, fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	if err := r.transition(status); err != nil {
		return Settlement{}, err
	}
	return Settlement{
		RoomID:       r.ID,
		Status:       status,
		Outcome:      outcomeFor(status),
		Participants: r.Wallets(),
		Stake:        r.Stake,
		Reason:       reason,
	}, nil
}

// Summary is the lobby view of a room.
type Summary struct {
	RoomID  string
	Players int
	Status  Status
	Stake   uint64
}

// Summary returns the lobby view.
func (r *Room) Summary() Summary {
	return Summary{
		RoomID:  r.ID,
		Players: len(r.Participants),
		Status:  r.Status,
		Stake:   r.Stake,
	}
}
