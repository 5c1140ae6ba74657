package api

import (
	"context"
	"errors"
	"log"

	"github.com/Amit00008/solana-chess/domain/protocol"
	"github.com/Amit00008/solana-chess/domain/ratelimit"
	"github.com/Amit00008/solana-chess/domain/room"
	"github.com/Amit00008/solana-chess/metrics"
	"github.com/Amit00008/solana-chess/modules/broadcast"
	"github.com/Amit00008/solana-chess/modules/lobby"
	"github.com/Amit00008/solana-chess/modules/settlement"
	"github.com/Amit00008/solana-chess/modules/treasury"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	msgInvalidFormat = "Invalid message format"
	msgCreateFailed  = "Failed to create game"
	msgJoinFailed    = "Failed to join game"
	msgAlreadySeated = "You are already in a game"
	msgOverpaid      = "Deposit exceeded the bet amount"
)

// clientErrors carry text that is safe to show to the player as is.
var clientErrors = []error{
	room.ErrRoomNotFound,
	room.ErrRoomNotJoinable,
	room.ErrNotParticipant,
	room.ErrIllegalMove,
	treasury.ErrDepositUnverified,
	treasury.ErrDepositShort,
	treasury.ErrDepositReplayed,
	ratelimit.ErrRateLimited,
	lobby.ErrClosed,
	lobby.ErrInvalidSession,
	lobby.ErrExpiredSession,
}

// clientMessage returns the text reported to the player for err, or fallback.
func clientMessage(err error, fallback string) string {
	var verr *room.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var terr *room.TurnError
	if errors.As(err, &terr) {
		return terr.Error()
	}
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return fallback
}

// handleWebSocket handles WebSocket connections at /ws. Frames of one connection
// are processed in order; a slow deposit check holds only that connection.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	clientID := uuid.New().String()
	client := broadcast.NewClient(clientID, c)

	m.hub.Register(client)
	go client.WritePump()
	defer m.closeClient(clientID)

	log.Printf("[api] WebSocket client connected: %s", clientID)

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[api] Client %s closed connection", clientID)
			} else {
				log.Printf("[api] Read error from %s: %v", clientID, err)
			}
			return
		}
		m.hub.Touch(clientID)
		m.dispatch(context.Background(), clientID, msgBytes)
	}
}

// closeClient runs the cleanup for a closed connection: the seat it holds is
// disconnected and the client leaves the hub.
func (m *APIModule) closeClient(clientID string) {
	if b, ok := m.hub.Binding(clientID); ok && b.RoomID != "" {
		if err := m.registry.Disconnect(b.RoomID, b.Wallet, clientID); err != nil {
			log.Printf("[api] Disconnect of %s from %s failed: %v", clientID, b.RoomID, err)
		}
	}
	m.hub.Unregister(clientID)
	log.Printf("[api] WebSocket client disconnected: %s", clientID)
}

// dispatch routes one inbound frame.
func (m *APIModule) dispatch(ctx context.Context, clientID string, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		m.sendError(clientID, msgInvalidFormat)
		return
	}

	switch msg.Type {
	case protocol.TypeListGames:
		m.handleListGames(ctx, clientID, msg)
	case protocol.TypeCreateGame:
		m.handleCreateGame(ctx, clientID, msg)
	case protocol.TypeJoinGame:
		m.handleJoinGame(ctx, clientID, msg)
	case protocol.TypeMove:
		m.handleMove(ctx, clientID, msg)
	case protocol.TypeLeaveGame:
		m.handleLeaveGame(clientID, msg)
	case protocol.TypeResumeGame:
		m.handleResumeGame(clientID, msg)
	case protocol.TypePing:
		m.hub.SendTo(clientID, protocol.Pong{Type: protocol.TypePong})
	default:
		m.sendError(clientID, "Unknown message type: "+msg.Type)
	}
}

func (m *APIModule) sendError(clientID, message string) {
	m.hub.SendTo(clientID, protocol.NewError(message))
}

// allow applies the rate limit for kind, keyed by wallet or the connection id.
func (m *APIModule) allow(ctx context.Context, clientID string, kind ratelimit.Kind, wallet string) bool {
	key := wallet
	if key == "" {
		key = clientID
	}
	if m.limiter.Check(ctx, kind, key) {
		return true
	}
	m.sendError(clientID, ratelimit.ErrRateLimited.Error())
	return false
}

func (m *APIModule) handleListGames(ctx context.Context, clientID string, msg *protocol.Inbound) {
	if !m.allow(ctx, clientID, ratelimit.KindListGames, msg.WalletAddress) {
		return
	}
	m.hub.SendTo(clientID, protocol.ListGames{
		Type:  protocol.TypeListGames,
		Games: lobby.ToListings(m.registry.ListJoinable()),
	})
}

// deposit is a stake payment observed on chain and claimed for one seat.
type deposit struct {
	signature string
	wallet    string
	credited  uint64
	roomID    string
}

// verifyDeposit returns what the deposit moved from wallet into escrow.
func (m *APIModule) verifyDeposit(ctx context.Context, signature, wallet string) uint64 {
	ctx, cancel := context.WithTimeout(ctx, m.config.VerifyTimeout)
	defer cancel()

	credited, err := m.gateway.VerifyDeposit(ctx, signature, wallet)
	if err != nil {
		log.Printf("[api] Deposit %s lookup failed: %v", signature, err)
		credited = 0
	}
	if credited > 0 {
		metrics.Deposits.WithLabelValues("verified").Inc()
	} else {
		metrics.Deposits.WithLabelValues("unverified").Inc()
	}
	return credited
}

// takeDeposit verifies msg's deposit and claims its signature, so one signature backs
// at most one seat or one refund. It fails with ErrDepositUnverified when nothing
// from the wallet reached escrow; there is nothing to refund then.
func (m *APIModule) takeDeposit(ctx context.Context, msg *protocol.Inbound, purpose, roomID string) (*deposit, error) {
	credited := m.verifyDeposit(ctx, msg.TransactionSignature, msg.WalletAddress)
	if credited == 0 {
		return nil, treasury.ErrDepositUnverified
	}

	err := m.cashier.ClaimDeposit(msg.TransactionSignature, msg.WalletAddress, credited, purpose, roomID)
	if err != nil {
		if errors.Is(err, treasury.ErrDepositReplayed) {
			metrics.Deposits.WithLabelValues("replayed").Inc()
		}
		return nil, err
	}
	return &deposit{
		signature: msg.TransactionSignature,
		wallet:    msg.WalletAddress,
		credited:  credited,
		roomID:    roomID,
	}, nil
}

// refund owes amount of a claimed deposit back to its wallet.
func (m *APIModule) refund(d *deposit, amount uint64, reason string) {
	if amount == 0 {
		return
	}
	if err := m.cashier.Refund(d.roomID, d.wallet, amount, reason); err != nil {
		log.Printf("[api] Failed to record refund of %s for %s: %v", d.signature, d.wallet, err)
	}
}

// reject refunds a claimed deposit in full and reports text.
func (m *APIModule) reject(clientID string, d *deposit, text string) {
	m.refund(d, d.credited, text)
	m.sendError(clientID, text)
}

// refuse reports cause for a stake the server will not seat. Whatever the wallet
// actually deposited is refunded; an unobserved or reused deposit gets nothing.
func (m *APIModule) refuse(ctx context.Context, clientID string, msg *protocol.Inbound, purpose, roomID string, cause error, fallback string) {
	text := clientMessage(cause, fallback)
	if d, err := m.takeDeposit(ctx, msg, purpose, roomID); err == nil {
		m.refund(d, d.credited, text)
	}
	m.sendError(clientID, text)
}

func stakeRequestValid(msg *protocol.Inbound) bool {
	return msg.WalletAddress != "" && msg.TransactionSignature != ""
}

// seated reports whether the connection already holds a seat.
func (m *APIModule) seated(clientID string) bool {
	b, ok := m.hub.Binding(clientID)
	return ok && b.RoomID != ""
}

// handleCreateGame validates the stake, verifies and claims the deposit, then opens
// a room. A deposit that is not seated is refunded; a surplus over the stake too.
func (m *APIModule) handleCreateGame(ctx context.Context, clientID string, msg *protocol.Inbound) {
	if !m.allow(ctx, clientID, ratelimit.KindCreateGame, msg.WalletAddress) {
		return
	}
	if !stakeRequestValid(msg) {
		m.sendError(clientID, msgInvalidFormat)
		return
	}
	if m.seated(clientID) {
		m.sendError(clientID, msgAlreadySeated)
		return
	}
	stake := uint64(msg.BetAmount)

	if err := m.bounds.Validate(stake); err != nil {
		m.refuse(ctx, clientID, msg, settlement.PurposeCreate, "", err, msgCreateFailed)
		return
	}

	d, err := m.takeDeposit(ctx, msg, settlement.PurposeCreate, "")
	if err != nil {
		m.sendError(clientID, clientMessage(err, msgCreateFailed))
		return
	}
	if d.credited < stake {
		m.reject(clientID, d, treasury.ErrDepositShort.Error())
		return
	}

	created, err := m.registry.Create(lobby.CreateRequest{
		Wallet: msg.WalletAddress,
		ConnID: clientID,
		Stake:  stake,
	})
	if err != nil {
		m.reject(clientID, d, clientMessage(err, msgCreateFailed))
		return
	}
	d.roomID = created.RoomID
	m.refund(d, d.credited-stake, msgOverpaid)
	m.hub.SendTo(clientID, created)
}

// handleJoinGame reserves the seat, verifies and claims the deposit, then seats the
// joiner. The reservation keeps a second joiner out while the deposit is checked.
func (m *APIModule) handleJoinGame(ctx context.Context, clientID string, msg *protocol.Inbound) {
	if !stakeRequestValid(msg) || msg.RoomID == "" {
		m.sendError(clientID, msgInvalidFormat)
		return
	}
	if m.seated(clientID) {
		m.sendError(clientID, msgAlreadySeated)
		return
	}
	stake := uint64(msg.BetAmount)

	if err := m.bounds.Validate(stake); err != nil {
		m.refuse(ctx, clientID, msg, settlement.PurposeJoin, msg.RoomID, err, msgJoinFailed)
		return
	}

	ticket, err := m.registry.BeginJoin(msg.RoomID, msg.WalletAddress, clientID, stake)
	if err != nil {
		m.refuse(ctx, clientID, msg, settlement.PurposeJoin, msg.RoomID, err, msgJoinFailed)
		return
	}

	d, err := m.takeDeposit(ctx, msg, settlement.PurposeJoin, msg.RoomID)
	if err != nil {
		m.abortJoin(msg.RoomID, ticket)
		m.sendError(clientID, clientMessage(err, msgJoinFailed))
		return
	}
	if d.credited < stake {
		m.abortJoin(msg.RoomID, ticket)
		m.reject(clientID, d, treasury.ErrDepositShort.Error())
		return
	}

	// The room may have ended while the deposit was checked.
	if err := m.registry.CompleteJoin(msg.RoomID, ticket); err != nil {
		m.reject(clientID, d, clientMessage(err, msgJoinFailed))
		return
	}
	m.refund(d, d.credited-stake, msgOverpaid)
}

func (m *APIModule) abortJoin(roomID, ticket string) {
	if err := m.registry.AbortJoin(roomID, ticket); err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		log.Printf("[api] Abort join of %s failed: %v", roomID, err)
	}
}

// seat returns the connection's binding when it holds a seat in roomID.
func (m *APIModule) seat(clientID, roomID string) (broadcast.Binding, bool) {
	b, ok := m.hub.Binding(clientID)
	if !ok || b.RoomID == "" || b.RoomID != roomID {
		return broadcast.Binding{}, false
	}
	return b, true
}

func (m *APIModule) handleMove(ctx context.Context, clientID string, msg *protocol.Inbound) {
	b, _ := m.hub.Binding(clientID)
	if !m.allow(ctx, clientID, ratelimit.KindMove, b.Wallet) {
		return
	}
	if msg.Move == nil {
		m.sendError(clientID, msgInvalidFormat)
		return
	}
	b, ok := m.seat(clientID, msg.RoomID)
	if !ok {
		m.sendError(clientID, room.ErrNotParticipant.Error())
		return
	}
	if err := m.registry.ApplyMove(msg.RoomID, b.Wallet, *msg.Move); err != nil {
		m.sendError(clientID, clientMessage(err, room.ErrNotParticipant.Error()))
	}
}

func (m *APIModule) handleLeaveGame(clientID string, msg *protocol.Inbound) {
	b, ok := m.seat(clientID, msg.RoomID)
	if !ok {
		m.sendError(clientID, room.ErrNotParticipant.Error())
		return
	}
	if err := m.registry.Leave(msg.RoomID, b.Wallet); err != nil {
		m.sendError(clientID, clientMessage(err, room.ErrNotParticipant.Error()))
	}
}

func (m *APIModule) handleResumeGame(clientID string, msg *protocol.Inbound) {
	if msg.SessionToken == "" {
		m.sendError(clientID, msgInvalidFormat)
		return
	}
	resumed, err := m.registry.Resume(msg.SessionToken, clientID)
	if err != nil {
		m.sendError(clientID, clientMessage(err, lobby.ErrInvalidSession.Error()))
		return
	}
	m.hub.SendTo(clientID, resumed)
}
