package treasury

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/singleflight"
)

// Gateway is the only capability that touches payment rails. Game logic sees this
// interface and never the custodial key.
type Gateway interface {
	// VerifyDeposit returns the lamports that the transaction identified by signature
	// moved from wallet into the escrow account. Zero means no such deposit was
	// observed. Callers compare the result with the stake they expect.
	VerifyDeposit(ctx context.Context, signature, wallet string) (uint64, error)
	// Refund signs a transfer returning a stake, hands it to record and then submits
	// it. Nothing is sent when record fails.
	Refund(ctx context.Context, address string, amount uint64, record RecordFunc) (Submission, error)
	// Payout is Refund for winnings.
	Payout(ctx context.Context, address string, amount uint64, record RecordFunc) (Submission, error)
	// Confirm waits for a submitted transfer to settle. It returns SubmissionPending
	// when the outcome is still unknown at the confirmation deadline.
	Confirm(ctx context.Context, sub Submission) (SubmissionState, error)
}

// SolanaConfig configures the Solana gateway.
type SolanaConfig struct {
	Endpoint       string
	PrivateKey     string
	VerifyAttempts int
	VerifyBackoff  time.Duration
	VerifyTimeout  time.Duration
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
}

// DefaultSolanaConfig returns 3 verification attempts with a fixed 1s backoff.
func DefaultSolanaConfig(endpoint, privateKey string) SolanaConfig {
	return SolanaConfig{
		Endpoint:       endpoint,
		PrivateKey:     privateKey,
		VerifyAttempts: 3,
		VerifyBackoff:  time.Second,
		VerifyTimeout:  30 * time.Second,
		ConfirmTimeout: 60 * time.Second,
		ConfirmPoll:    500 * time.Millisecond,
	}
}

// SolanaGateway implements Gateway against a Solana JSON-RPC endpoint.
type SolanaGateway struct {
	client  *rpc.Client
	key     solana.PrivateKey
	escrow  solana.PublicKey
	config  SolanaConfig
	sfGroup singleflight.Group // collapses concurrent lookups of one deposit
}

// NewSolanaGateway decodes the base58 custodial key and connects the RPC client.
func NewSolanaGateway(cfg SolanaConfig) (*SolanaGateway, error) {
	if cfg.PrivateKey == "" {
		return nil, ErrMissingKey
	}
	key, err := solana.PrivateKeyFromBase58(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode escrow private key: %w", err)
	}
	return newGateway(cfg, key, rpc.New(cfg.Endpoint)), nil
}

func newGateway(cfg SolanaConfig, key solana.PrivateKey, client *rpc.Client) *SolanaGateway {
	defaults := DefaultSolanaConfig(cfg.Endpoint, cfg.PrivateKey)
	if cfg.VerifyAttempts <= 0 {
		cfg.VerifyAttempts = 1
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = defaults.VerifyTimeout
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaults.ConfirmTimeout
	}
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = defaults.ConfirmPoll
	}
	return &SolanaGateway{
		client: client,
		key:    key,
		escrow: key.PublicKey(),
		config: cfg,
	}
}

// Escrow returns the custodial account address.
func (g *SolanaGateway) Escrow() string {
	return g.escrow.String()
}

// VerifyDeposit implements Gateway.
func (g *SolanaGateway) VerifyDeposit(ctx context.Context, signature, wallet string) (uint64, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return 0, nil
	}
	from, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return 0, nil
	}

	// The shared lookup is detached from the first caller; every caller stops
	// waiting on its own context.
	ch := g.sfGroup.DoChan(signature+"/"+wallet, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.VerifyTimeout)
		defer cancel()
		return g.lookup(lookupCtx, sig, from)
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(uint64), nil
	}
}

func (g *SolanaGateway) lookup(ctx context.Context, sig solana.Signature, from solana.PublicKey) (uint64, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	for attempt := 1; attempt <= g.config.VerifyAttempts; attempt++ {
		out, err := g.client.GetTransaction(ctx, sig, opts)
		switch {
		case err == nil && out != nil:
			return g.credited(sig, out, from), nil
		case err != nil && !errors.Is(err, rpc.ErrNotFound):
			log.Printf("[treasury] Deposit lookup %s attempt %d failed: %v", sig, attempt, err)
		}

		if attempt == g.config.VerifyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(g.config.VerifyBackoff):
		}
	}
	return 0, nil
}

// credited returns what the transaction moved from sender into the escrow account.
// The sender must be the fee payer, which makes it a signer of the transaction.
func (g *SolanaGateway) credited(sig solana.Signature, out *rpc.GetTransactionResult, from solana.PublicKey) uint64 {
	if out.Meta == nil || out.Transaction == nil {
		return 0
	}
	if out.Meta.Err != nil {
		log.Printf("[treasury] Deposit %s failed on chain: %v", sig, out.Meta.Err)
		return 0
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		log.Printf("[treasury] Deposit %s could not be decoded: %v", sig, err)
		return 0
	}
	keys := tx.Message.AccountKeys
	if len(keys) == 0 || !keys[0].Equals(from) || from.Equals(g.escrow) {
		log.Printf("[treasury] Deposit %s was not paid by %s", sig, from)
		return 0
	}

	for i, key := range keys {
		if !key.Equals(g.escrow) {
			continue
		}
		if i >= len(out.Meta.PreBalances) || i >= len(out.Meta.PostBalances) {
			return 0
		}
		pre, post := out.Meta.PreBalances[i], out.Meta.PostBalances[i]
		if post <= pre {
			return 0
		}
		return post - pre
	}

	log.Printf("[treasury] Deposit %s does not credit the escrow account", sig)
	return 0
}

// Refund implements Gateway.
func (g *SolanaGateway) Refund(ctx context.Context, address string, amount uint64, record RecordFunc) (Submission, error) {
	return g.submit(ctx, address, amount, record)
}

// Payout implements Gateway.
func (g *SolanaGateway) Payout(ctx context.Context, address string, amount uint64, record RecordFunc) (Submission, error) {
	return g.submit(ctx, address, amount, record)
}

// submit builds and signs a System transfer from the escrow account, records it and
// sends it. The signature is fixed at signing, so a recorded submission can always
// be looked up later.
func (g *SolanaGateway) submit(ctx context.Context, address string, lamports uint64, record RecordFunc) (Submission, error) {
	recipient, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: invalid recipient %q: %v", ErrTransferFailed, address, err)
	}

	recent, err := g.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: latest blockhash: %v", ErrTransferFailed, err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, g.escrow, recipient).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(g.escrow),
	)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: build transaction: %v", ErrTransferFailed, err)
	}

	sigs, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(g.escrow) {
			return &g.key
		}
		return nil
	})
	if err != nil || len(sigs) == 0 {
		return Submission{}, fmt.Errorf("%w: sign transaction: %v", ErrTransferFailed, err)
	}

	sub := Submission{
		Signature:            sigs[0].String(),
		LastValidBlockHeight: recent.Value.LastValidBlockHeight,
	}
	if err := record(sub); err != nil {
		return Submission{}, fmt.Errorf("%w: record submission: %v", ErrTransferFailed, err)
	}

	if _, err := g.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	}); err != nil {
		return sub, fmt.Errorf("%w: send transaction: %v", ErrTransferFailed, err)
	}
	log.Printf("[treasury] Submitted %d lamports to %s: %s", lamports, address, sub.Signature)
	return sub, nil
}

// Confirm implements Gateway.
func (g *SolanaGateway) Confirm(ctx context.Context, sub Submission) (SubmissionState, error) {
	sig, err := solana.SignatureFromBase58(sub.Signature)
	if err != nil {
		return SubmissionPending, fmt.Errorf("invalid signature %q: %w", sub.Signature, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.config.ConfirmPoll)
	defer ticker.Stop()

	for {
		state, err := g.status(ctx, sig, sub.LastValidBlockHeight)
		if err != nil {
			log.Printf("[treasury] Status of %s unavailable: %v", sig, err)
		} else if state != SubmissionPending {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return SubmissionPending, nil
		case <-ticker.C:
		}
	}
}

// status checks one submission. The block height is read before the signature so an
// unseen transaction is only called expired once it can no longer land.
func (g *SolanaGateway) status(ctx context.Context, sig solana.Signature, lastValid uint64) (SubmissionState, error) {
	height, err := g.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return SubmissionPending, err
	}
	out, err := g.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return SubmissionPending, err
	}

	if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
		status := out.Value[0]
		if status.Err != nil {
			log.Printf("[treasury] Transfer %s failed on chain: %v", sig, status.Err)
			return SubmissionFailed, nil
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return SubmissionLanded, nil
		}
		return SubmissionPending, nil
	}

	if lastValid > 0 && height > lastValid {
		return SubmissionExpired, nil
	}
	return SubmissionPending, nil
}

// Health pings the RPC node.
func (g *SolanaGateway) Health(ctx context.Context) error {
	_, err := g.client.GetHealth(ctx)
	return err
}
