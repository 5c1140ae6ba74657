package settlement

import (
	"errors"
	"fmt"
	"log"

	"github.com/Amit00008/solana-chess/domain/room"
	"github.com/Amit00008/solana-chess/modules/ledger"
	"github.com/Amit00008/solana-chess/modules/treasury"
)

// Deposit purposes recorded with claimed signatures.
const (
	PurposeCreate = "create"
	PurposeJoin   = "join"
)

// Dispatcher turns settlements into durable ledger rows and hands them to the pool.
// A settlement is persisted before Settle returns, so a crash after that point
// only delays the transfers.
type Dispatcher struct {
	repo       *ledger.Repository
	pool       *Pool
	feePercent uint64
}

// NewDispatcher creates a dispatcher charging feePercent of the pot on decisive games.
func NewDispatcher(repo *ledger.Repository, pool *Pool, feePercent uint64) *Dispatcher {
	return &Dispatcher{repo: repo, pool: pool, feePercent: feePercent}
}

// Settle records and enqueues the transfers owed by a terminated room.
func (d *Dispatcher) Settle(s room.Settlement) error {
	planned := treasury.PlanSettlement(s, d.feePercent)
	transfers := make([]*ledger.Transfer, 0, len(planned))
	for _, p := range planned {
		transfers = append(transfers, &ledger.Transfer{
			RoomID:    s.RoomID,
			Kind:      string(p.Kind),
			Recipient: p.Recipient,
			Amount:    p.Amount,
			Reason:    s.Reason,
		})
	}
	if err := d.submit(transfers); err != nil {
		return fmt.Errorf("failed to settle %s: %w", s.RoomID, err)
	}
	log.Printf("[settlement] Settled %s (%s): %d transfer(s)", s.RoomID, s.Outcome, len(transfers))
	return nil
}

// Refund records and enqueues a single stake refund outside of a room settlement,
// e.g. a stake that failed bounds or whose room vanished during a join.
func (d *Dispatcher) Refund(roomID, wallet string, amount uint64, reason string) error {
	err := d.submit([]*ledger.Transfer{{
		RoomID:    roomID,
		Kind:      string(treasury.TransferRefund),
		Recipient: wallet,
		Amount:    amount,
		Reason:    reason,
	}})
	if err != nil {
		return fmt.Errorf("failed to refund %s: %w", wallet, err)
	}
	return nil
}

// RecordForfeit records a stake retained after a voluntary leave.
func (d *Dispatcher) RecordForfeit(roomID, wallet string, amount uint64) error {
	return d.repo.RecordForfeit(&ledger.Forfeit{RoomID: roomID, Wallet: wallet, Amount: amount})
}

// ClaimDeposit consumes a verified deposit signature. Reuse returns treasury.ErrDepositReplayed.
func (d *Dispatcher) ClaimDeposit(signature, wallet string, amount uint64, purpose, roomID string) error {
	err := d.repo.ClaimDeposit(&ledger.Deposit{
		Signature: signature,
		Wallet:    wallet,
		Amount:    amount,
		Purpose:   purpose,
		RoomID:    roomID,
	})
	if errors.Is(err, ledger.ErrAlreadyClaimed) {
		return treasury.ErrDepositReplayed
	}
	return err
}

// Retry resets a failed or dead-lettered transfer and enqueues it.
func (d *Dispatcher) Retry(id string) (*ledger.Transfer, error) {
	transfer, err := d.repo.Requeue(id)
	if err != nil {
		return nil, err
	}
	d.pool.Enqueue(transfer.ID)
	return transfer, nil
}

// Resume re-enqueues transfers left unfinished by a previous run.
func (d *Dispatcher) Resume() (int, error) {
	if _, err := d.repo.ResetInterrupted(); err != nil {
		return 0, err
	}
	transfers, err := d.repo.FindUnfinished()
	if err != nil {
		return 0, err
	}
	for _, t := range transfers {
		d.pool.Enqueue(t.ID)
	}
	return len(transfers), nil
}

func (d *Dispatcher) submit(transfers []*ledger.Transfer) error {
	if err := d.repo.CreateTransfers(transfers); err != nil {
		return err
	}
	for _, t := range transfers {
		d.pool.Enqueue(t.ID)
	}
	return nil
}
