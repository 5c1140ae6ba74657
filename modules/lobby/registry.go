package lobby

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Amit00008/solana-chess/domain/protocol"
	"github.com/Amit00008/solana-chess/domain/room"
	"github.com/Amit00008/solana-chess/events"
	"github.com/Amit00008/solana-chess/metrics"
	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

// ErrClosed is returned when rooms are requested after shutdown began.
var ErrClosed = errors.New("Server is shutting down")

const opponentLeftMessage = "Your opponent left the game. Waiting for a new opponent."

// Settler persists what a room owes when it ends.
type Settler interface {
	Settle(s room.Settlement) error
	RecordForfeit(roomID, wallet string, amount uint64) error
}

// Notifier delivers messages to connections and tracks the room each one is bound to.
type Notifier interface {
	SendTo(connID string, msg any)
	Bind(connID, wallet, roomID string, color room.Color)
	Unbind(connID string)
}

// Config holds the registry timing rules.
type Config struct {
	// GameTimeout is the absolute lifetime of a room, measured from creation.
	GameTimeout time.Duration
	// ReconnectGrace is how long a disconnected participant of an active room may
	// resume before the room is cancelled. Zero cancels immediately.
	ReconnectGrace time.Duration
}

// DefaultConfig returns a 30 minute lifetime and a 5 minute reconnect grace.
func DefaultConfig() Config {
	return Config{
		GameTimeout:    30 * time.Minute,
		ReconnectGrace: 5 * time.Minute,
	}
}

// actor owns one room. Every field is touched only from the actor goroutine.
type actor struct {
	id      string
	room    *room.Room
	inbox   chan request
	done    chan struct{}
	timeout *clock.Timer
	grace   map[string]*clock.Timer
	final   *room.Settlement
	discard bool
}

// request is one step for an actor. The reply is sent once the step's effects,
// including removal of a finished room, are visible to readers.
type request struct {
	fn    func(a *actor) error
	reply chan error
}

// Registry owns the live rooms. Each room runs in its own goroutine and all of its
// operations are serialized through that goroutine's inbox.
type Registry struct {
	config   Config
	clock    clock.Clock
	settler  Settler
	notifier Notifier
	sessions *SessionManager
	logger   types.Logger
	onChange func(roomID, reason string)

	mu        sync.RWMutex
	rooms     map[string]*actor
	summaries map[string]room.Summary
	nextID    uint64
	closed    bool
	wg        sync.WaitGroup
}

// NewRegistry creates an empty registry. A nil clock uses the wall clock.
func NewRegistry(cfg Config, settler Settler, notifier Notifier, sessions *SessionManager, clk clock.Clock, logger types.Logger) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		config:    cfg,
		clock:     clk,
		settler:   settler,
		notifier:  notifier,
		sessions:  sessions,
		logger:    logger,
		rooms:     make(map[string]*actor),
		summaries: make(map[string]room.Summary),
	}
}

// OnChange sets the callback invoked after every mutation of the joinable list.
func (r *Registry) OnChange(fn func(roomID, reason string)) {
	r.onChange = fn
}

func (r *Registry) changed(roomID, reason string) {
	if r.onChange != nil {
		r.onChange(roomID, reason)
	}
}

func (r *Registry) run(a *actor) {
	defer r.wg.Done()
	defer close(a.done)

	for req := range a.inbox {
		err := req.fn(a)
		if a.final != nil || a.discard {
			r.finish(a)
			req.reply <- err
			return
		}
		r.mu.Lock()
		r.summaries[a.id] = a.room.Summary()
		r.mu.Unlock()
		req.reply <- err
	}
}

// finish settles and removes the room. It runs as the tail of the terminal step.
func (r *Registry) finish(a *actor) {
	if a.timeout != nil {
		a.timeout.Stop()
	}
	for wallet, t := range a.grace {
		t.Stop()
		delete(a.grace, wallet)
	}

	r.mu.Lock()
	delete(r.rooms, a.id)
	delete(r.summaries, a.id)
	r.mu.Unlock()

	status := "discarded"
	if a.final != nil {
		status = string(a.final.Status)
		if err := r.settler.Settle(*a.final); err != nil {
			r.logger.Error("Failed to record settlement",
				"roomID", a.id, "outcome", a.final.Outcome, "stake", a.final.Stake, "error", err)
		}
	}

	metrics.RoomsLive.Dec()
	metrics.RoomsClosed.WithLabelValues(status).Inc()
	r.logger.Info("Room closed", "roomID", a.id, "status", status)
	r.changed(a.id, events.ChangeClosed)
}

// call runs fn on the room's actor and waits for its result.
func (r *Registry) call(roomID string, fn func(a *actor) error) error {
	r.mu.RLock()
	a, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return room.ErrRoomNotFound
	}

	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case a.inbox <- req:
	case <-a.done:
		return room.ErrRoomNotFound
	}
	return <-req.reply
}

// closeWith records the settlement, tells every seated connection and unbinds it.
func (r *Registry) closeWith(a *actor, s room.Settlement, msg any) {
	for _, p := range a.room.Participants {
		if p.ConnID == "" {
			continue
		}
		r.notifier.SendTo(p.ConnID, msg)
		r.notifier.Unbind(p.ConnID)
	}
	a.final = &s
}

func (r *Registry) issue(wallet, roomID string, color room.Color) string {
	if r.sessions == nil {
		return ""
	}
	token, err := r.sessions.Issue(wallet, roomID, color)
	if err != nil {
		r.logger.Warn("Failed to issue session token", "roomID", roomID, "error", err)
		return ""
	}
	return token
}

// CreateRequest describes a room to open. The stake is already validated and its
// deposit verified.
type CreateRequest struct {
	Wallet string
	ConnID string
	Stake  uint64
}

// Create opens a WAITING room with the creator seated as white and arms its timeout.
func (r *Registry) Create(req CreateRequest) (*protocol.GameCreated, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.nextID++
	id := fmt.Sprintf("game-%d", r.nextID)
	a := &actor{
		id:    id,
		room:  room.New(id, req.Wallet, req.ConnID, req.Stake, r.clock.Now()),
		inbox: make(chan request),
		done:  make(chan struct{}),
		grace: make(map[string]*clock.Timer),
	}
	r.rooms[id] = a
	r.summaries[id] = a.room.Summary()
	r.wg.Add(1)
	r.mu.Unlock()

	metrics.RoomsLive.Inc()
	go r.run(a)

	var created *protocol.GameCreated
	err := r.call(id, func(a *actor) error {
		a.timeout = r.clock.AfterFunc(r.config.GameTimeout, func() {
			if err := r.Timeout(id); err != nil && !errors.Is(err, room.ErrRoomNotFound) {
				r.logger.Warn("Room timeout failed", "roomID", id, "error", err)
			}
		})
		r.notifier.Bind(req.ConnID, req.Wallet, id, room.White)
		created = &protocol.GameCreated{
			Type:         protocol.TypeGameCreated,
			RoomID:       id,
			Color:        room.White,
			FEN:          a.room.Board.FEN(),
			Turn:         a.room.Board.Turn(),
			SessionToken: r.issue(req.Wallet, id, room.White),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Room created", "roomID", id, "creator", req.Wallet, "stake", req.Stake)
	r.changed(id, events.ChangeCreated)
	return created, nil
}

// BeginJoin reserves the second seat while the joiner's deposit is verified. The
// returned ticket must be passed to CompleteJoin or AbortJoin.
func (r *Registry) BeginJoin(roomID, wallet, connID string, stake uint64) (string, error) {
	ticket := uuid.NewString()
	err := r.call(roomID, func(a *actor) error {
		return a.room.BeginJoin(wallet, connID, stake, ticket)
	})
	if err != nil {
		return "", err
	}
	r.changed(roomID, events.ChangeJoining)
	return ticket, nil
}

// CompleteJoin seats the reserved joiner as black and sends gameStart to both seats.
func (r *Registry) CompleteJoin(roomID, ticket string) error {
	err := r.call(roomID, func(a *actor) error {
		joiner, err := a.room.CompleteJoin(ticket, r.clock.Now())
		if err != nil {
			return err
		}
		white := a.room.Participants[0]
		r.notifier.Bind(joiner.ConnID, joiner.Wallet, roomID, joiner.Color)

		for _, p := range a.room.Participants {
			if p.ConnID == "" {
				continue
			}
			r.notifier.SendTo(p.ConnID, protocol.GameStart{
				Type:         protocol.TypeGameStart,
				RoomID:       roomID,
				Color:        p.Color,
				Turn:         a.room.Board.Turn(),
				FEN:          a.room.Board.FEN(),
				WhitePlayer:  white.Wallet,
				BlackPlayer:  joiner.Wallet,
				SessionToken: r.issue(p.Wallet, roomID, p.Color),
			})
		}
		r.logger.Info("Game started", "roomID", roomID, "white", white.Wallet, "black", joiner.Wallet)
		return nil
	})
	if err != nil {
		return err
	}
	r.changed(roomID, events.ChangeStarted)
	return nil
}

// AbortJoin releases a reservation whose deposit could not be verified.
func (r *Registry) AbortJoin(roomID, ticket string) error {
	reopened := false
	err := r.call(roomID, func(a *actor) error {
		reopened = a.room.AbortJoin(ticket)
		return nil
	})
	if err != nil {
		return err
	}
	if reopened {
		r.changed(roomID, events.ChangeReopened)
	}
	return nil
}

// ApplyMove plays wallet's move and relays the new position to every seat. A
// terminal position settles the room.
func (r *Registry) ApplyMove(roomID, wallet string, m room.Move) error {
	return r.call(roomID, func(a *actor) error {
		out, err := a.room.ApplyMove(wallet, m, r.clock.Now())
		if err != nil {
			return err
		}
		metrics.MovesApplied.Inc()

		moveMade := protocol.MoveMade{
			Type:     protocol.TypeMoveMade,
			FEN:      out.FEN,
			Turn:     out.Turn,
			LastMove: out.LastMove,
			MoveBy:   out.Mover.Wallet,
			History:  out.History,
		}
		for _, p := range a.room.Participants {
			if p.ConnID != "" {
				r.notifier.SendTo(p.ConnID, moveMade)
			}
		}

		if out.Finished {
			r.logger.Info("Game finished", "roomID", roomID, "result", out.Result.Text)
			r.closeWith(a, out.Settlement, protocol.GameOver{
				Type:     protocol.TypeGameOver,
				Result:   out.Result.Text,
				Refunded: !out.Result.Decisive,
				FEN:      out.FEN,
			})
		}
		return nil
	})
}

// Leave removes wallet from its room. The leaver's stake is retained and recorded
// as a forfeit. A remaining participant is told and the room reopens.
func (r *Registry) Leave(roomID, wallet string) error {
	reopened := false
	err := r.call(roomID, func(a *actor) error {
		out, err := a.room.Leave(wallet)
		if err != nil {
			return err
		}
		if t, ok := a.grace[wallet]; ok {
			t.Stop()
			delete(a.grace, wallet)
		}
		if out.Leaver.ConnID != "" {
			r.notifier.Unbind(out.Leaver.ConnID)
		}
		if err := r.settler.RecordForfeit(roomID, wallet, a.room.Stake); err != nil {
			r.logger.Error("Failed to record forfeit", "roomID", roomID, "wallet", wallet, "error", err)
		}
		r.logger.Info("Participant left", "roomID", roomID, "wallet", wallet)

		if out.Empty {
			a.discard = true
			return nil
		}

		remaining := out.Remaining
		if remaining.ConnID != "" {
			r.notifier.Bind(remaining.ConnID, remaining.Wallet, roomID, remaining.Color)
			r.notifier.SendTo(remaining.ConnID, protocol.OpponentLeft{
				Type:    protocol.TypeOpponentLeft,
				Message: opponentLeftMessage,
			})
		}
		reopened = true
		return nil
	})
	if err != nil {
		return err
	}
	if reopened {
		r.changed(roomID, events.ChangeReopened)
	}
	return nil
}

// Disconnect handles a closed connection seated as wallet. A connection that no longer
// holds the seat is ignored. In an active room with a reconnect grace the seat is kept
// open until the grace expires; otherwise the room is cancelled and every seat refunded.
// A room that is already gone is a no-op.
func (r *Registry) Disconnect(roomID, wallet, connID string) error {
	err := r.call(roomID, func(a *actor) error {
		p, ok := a.room.Participant(wallet)
		if !ok || p.ConnID != connID {
			return nil
		}

		if a.room.Status == room.StatusActive && r.config.ReconnectGrace > 0 {
			a.room.Rebind(wallet, "")
			if t, ok := a.grace[wallet]; ok {
				t.Stop()
			}
			a.grace[wallet] = r.clock.AfterFunc(r.config.ReconnectGrace, func() {
				r.expireGrace(roomID, wallet)
			})
			r.logger.Info("Participant disconnected, holding seat",
				"roomID", roomID, "wallet", wallet, "grace", r.config.ReconnectGrace)
			return nil
		}

		return r.cancel(a)
	})
	if errors.Is(err, room.ErrRoomNotFound) {
		return nil
	}
	return err
}

func (r *Registry) expireGrace(roomID, wallet string) {
	err := r.call(roomID, func(a *actor) error {
		delete(a.grace, wallet)
		p, ok := a.room.Participant(wallet)
		if !ok || p.ConnID != "" {
			return nil
		}
		r.logger.Info("Reconnect grace expired", "roomID", roomID, "wallet", wallet)
		return r.cancel(a)
	})
	if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		r.logger.Warn("Grace expiry failed", "roomID", roomID, "error", err)
	}
}

func (r *Registry) cancel(a *actor) error {
	s, err := a.room.Disconnect()
	if err != nil {
		return err
	}
	r.closeWith(a, s, protocol.GameOver{
		Type:     protocol.TypeGameOver,
		Result:   s.Reason,
		Refunded: true,
	})
	return nil
}

// Timeout ends the room after its absolute lifetime and refunds every seat.
func (r *Registry) Timeout(roomID string) error {
	return r.call(roomID, func(a *actor) error {
		s, err := a.room.Timeout()
		if err != nil {
			return err
		}
		r.logger.Info("Room timed out", "roomID", roomID)
		r.closeWith(a, s, protocol.GameTimeout{
			Type:     protocol.TypeGameTimeout,
			Result:   s.Reason,
			Refunded: true,
		})
		return nil
	})
}

// Resume rebinds the seat named by a session token to connID.
func (r *Registry) Resume(token, connID string) (*protocol.GameResumed, error) {
	claims, err := r.sessions.Validate(token)
	if err != nil {
		return nil, err
	}
	wallet := claims.Wallet()

	var resumed *protocol.GameResumed
	err = r.call(claims.RoomID, func(a *actor) error {
		p, ok := a.room.Participant(wallet)
		if !ok {
			return room.ErrNotParticipant
		}
		if t, ok := a.grace[wallet]; ok {
			t.Stop()
			delete(a.grace, wallet)
		}
		if p.ConnID != "" && p.ConnID != connID {
			r.notifier.Unbind(p.ConnID)
		}
		a.room.Rebind(wallet, connID)
		r.notifier.Bind(connID, wallet, a.id, p.Color)

		resumed = &protocol.GameResumed{
			Type:    protocol.TypeGameResumed,
			RoomID:  a.id,
			Color:   p.Color,
			FEN:     a.room.Board.FEN(),
			Turn:    a.room.Board.Turn(),
			History: a.room.Board.History(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Session resumed", "roomID", claims.RoomID, "wallet", wallet)
	return resumed, nil
}

// ListJoinable returns the WAITING rooms ordered by creation.
func (r *Registry) ListJoinable() []room.Summary {
	r.mu.RLock()
	list := make([]room.Summary, 0, len(r.summaries))
	for _, s := range r.summaries {
		if s.Status == room.StatusWaiting {
			list = append(list, s)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(list, func(a, b room.Summary) int {
		return roomSeq(a.RoomID) - roomSeq(b.RoomID)
	})
	return list
}

func roomSeq(id string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(id, "game-"))
	return n
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Shutdown cancels every live room, refunding all seats, and waits for the actors.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		err := r.call(id, func(a *actor) error {
			s, err := a.room.Cancel(room.ReasonShutdown)
			if err != nil {
				return err
			}
			r.closeWith(a, s, protocol.GameOver{
				Type:     protocol.TypeGameOver,
				Result:   s.Reason,
				Refunded: true,
			})
			return nil
		})
		if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
			r.logger.Warn("Failed to cancel room on shutdown", "roomID", id, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
