// Package treasurytest provides an in-memory treasury.Gateway for tests.
package treasurytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Amit00008/solana-chess/modules/treasury"
)

// Call records one outbound transfer.
type Call struct {
	Kind    treasury.TransferKind
	Address string
	Amount  uint64
}

type deposit struct {
	wallet string
	amount uint64
}

// Gateway is a scriptable fake. Only deposits added with AddDeposit are observed.
// Submissions land on their first Confirm unless SetFailTransfers or
// SetPendingConfirms says otherwise.
type Gateway struct {
	mu              sync.Mutex
	deposits        map[string]deposit
	VerifyErr       error
	FailTransfers   int
	PendingConfirms int
	submissions     map[string]Call
	dropped         map[string]bool
	landed          map[string]bool
	submitted       int
	calls           []Call
	verified        []string
	seq             int
}

// New returns an empty fake gateway.
func New() *Gateway {
	return &Gateway{
		deposits:    make(map[string]deposit),
		submissions: make(map[string]Call),
		dropped:     make(map[string]bool),
		landed:      make(map[string]bool),
	}
}

// AddDeposit makes signature a transfer of amount from wallet into escrow.
func (g *Gateway) AddDeposit(signature, wallet string, amount uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deposits[signature] = deposit{wallet: wallet, amount: amount}
}

// VerifyDeposit implements treasury.Gateway.
func (g *Gateway) VerifyDeposit(_ context.Context, signature, wallet string) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verified = append(g.verified, signature)
	if g.VerifyErr != nil {
		return 0, g.VerifyErr
	}
	d, ok := g.deposits[signature]
	if !ok || d.wallet != wallet {
		return 0, nil
	}
	return d.amount, nil
}

// Refund implements treasury.Gateway.
func (g *Gateway) Refund(_ context.Context, address string, amount uint64, record treasury.RecordFunc) (treasury.Submission, error) {
	return g.submit(treasury.TransferRefund, address, amount, record)
}

// Payout implements treasury.Gateway.
func (g *Gateway) Payout(_ context.Context, address string, amount uint64, record treasury.RecordFunc) (treasury.Submission, error) {
	return g.submit(treasury.TransferPayout, address, amount, record)
}

// submit records the transfer and then sends it. A failing send is dropped by the
// cluster, so a later Confirm reports it expired.
func (g *Gateway) submit(kind treasury.TransferKind, address string, amount uint64, record treasury.RecordFunc) (treasury.Submission, error) {
	g.mu.Lock()
	g.seq++
	sub := treasury.Submission{Signature: fmt.Sprintf("sig-%d", g.seq), LastValidBlockHeight: uint64(g.seq)}
	g.mu.Unlock()

	if err := record(sub); err != nil {
		return treasury.Submission{}, fmt.Errorf("%w: record submission: %v", treasury.ErrTransferFailed, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted++
	g.submissions[sub.Signature] = Call{Kind: kind, Address: address, Amount: amount}
	if g.FailTransfers > 0 {
		g.FailTransfers--
		g.dropped[sub.Signature] = true
		return sub, fmt.Errorf("%w: simulated", treasury.ErrTransferFailed)
	}
	return sub, nil
}

// Confirm implements treasury.Gateway.
func (g *Gateway) Confirm(_ context.Context, sub treasury.Submission) (treasury.SubmissionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	call, ok := g.submissions[sub.Signature]
	switch {
	case !ok || g.dropped[sub.Signature]:
		return treasury.SubmissionExpired, nil
	case g.landed[sub.Signature]:
		return treasury.SubmissionLanded, nil
	case g.PendingConfirms > 0:
		g.PendingConfirms--
		return treasury.SubmissionPending, nil
	}
	g.landed[sub.Signature] = true
	g.calls = append(g.calls, call)
	return treasury.SubmissionLanded, nil
}

// Calls returns a copy of the transfers that landed.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// Submitted returns how many transactions were sent, landed or not.
func (g *Gateway) Submitted() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitted
}

// Verified returns the signatures passed to VerifyDeposit.
func (g *Gateway) Verified() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.verified))
	copy(out, g.verified)
	return out
}

// SetFailTransfers makes the next n sends fail.
func (g *Gateway) SetFailTransfers(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.FailTransfers = n
}

// SetPendingConfirms makes the next n confirmations time out undecided.
func (g *Gateway) SetPendingConfirms(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.PendingConfirms = n
}

var _ treasury.Gateway = (*Gateway)(nil)
