package treasury

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRPC answers JSON-RPC calls from queued results per method. The last queued
// result repeats; a nil result is a JSON null.
type stubRPC struct {
	mu      sync.Mutex
	results map[string][]any
	calls   map[string]int
}

func newStubRPC() *stubRPC {
	return &stubRPC{results: make(map[string][]any), calls: make(map[string]int)}
}

func (s *stubRPC) on(method string, results ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[method] = results
}

func (s *stubRPC) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *stubRPC) CallForInto(_ context.Context, out any, method string, _ []any) error {
	s.mu.Lock()
	s.calls[method]++
	queue, ok := s.results[method]
	var res any
	if len(queue) > 0 {
		res = queue[0]
		if len(queue) > 1 {
			s.results[method] = queue[1:]
		}
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unexpected call %s", method)
	}
	if err, isErr := res.(error); isErr {
		return err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *stubRPC) CallWithCallback(_ context.Context, method string, _ []any, _ func(*http.Request, *http.Response) error) error {
	return fmt.Errorf("unexpected call %s", method)
}

func (s *stubRPC) CallBatch(_ context.Context, _ jsonrpc.RPCRequests) (jsonrpc.RPCResponses, error) {
	return nil, errors.New("unexpected batch call")
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func newTestGateway(t *testing.T, stub *stubRPC) (*SolanaGateway, solana.PrivateKey) {
	t.Helper()
	escrow := newKey(t)
	cfg := DefaultSolanaConfig("http://stub", "")
	cfg.VerifyBackoff = time.Millisecond
	cfg.ConfirmTimeout = 50 * time.Millisecond
	cfg.ConfirmPoll = 5 * time.Millisecond
	return newGateway(cfg, escrow, rpc.NewWithCustomRPCClient(stub)), escrow
}

// depositResult builds a getTransaction result for a System transfer of amount from
// payer to recipient, with the given balance changes on the recipient.
func depositResult(t *testing.T, payer solana.PrivateKey, recipient solana.PublicKey, amount, pre, post uint64, failed bool) map[string]any {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(amount, payer.PublicKey(), recipient).Build(),
		},
		solana.Hash{1},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	require.NoError(t, err)
	data, err := tx.MarshalBinary()
	require.NoError(t, err)

	var txErr any
	if failed {
		txErr = map[string]any{"InstructionError": []any{0, "Custom"}}
	}
	return map[string]any{
		"slot":        10,
		"transaction": []any{base64.StdEncoding.EncodeToString(data), "base64"},
		"meta": map[string]any{
			"err":          txErr,
			"fee":          5000,
			"preBalances":  []uint64{5_000_000_000, pre, 1},
			"postBalances": []uint64{5_000_000_000 - amount - 5000, post, 1},
		},
	}
}

func TestSolanaGateway_VerifyDeposit(t *testing.T) {
	alice := newKey(t)
	bob := newKey(t)

	tests := []struct {
		name   string
		wallet solana.PublicKey
		// toEscrow sends the deposit to the escrow account rather than elsewhere.
		toEscrow bool
		amount   uint64
		failed   bool
		want     uint64
	}{
		{"credits escrow", alice.PublicKey(), true, 1_000_000_000, false, 1_000_000_000},
		{"short amount reports what arrived", alice.PublicKey(), true, 500_000_000, false, 500_000_000},
		{"wrong sender", bob.PublicKey(), true, 1_000_000_000, false, 0},
		{"wrong recipient", alice.PublicKey(), false, 1_000_000_000, false, 0},
		{"failed on chain", alice.PublicKey(), true, 1_000_000_000, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubRPC()
			gw, escrow := newTestGateway(t, stub)

			recipient := newKey(t).PublicKey()
			pre, post := uint64(2_000_000_000), uint64(2_000_000_000)
			if tt.toEscrow {
				recipient = escrow.PublicKey()
				if !tt.failed {
					post += tt.amount
				}
			}
			stub.on("getTransaction", depositResult(t, alice, recipient, tt.amount, pre, post, tt.failed))

			got, err := gw.VerifyDeposit(context.Background(), solana.Signature{7}.String(), tt.wallet.String())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSolanaGateway_VerifyDepositRetries(t *testing.T) {
	alice := newKey(t)

	t.Run("found on the last attempt", func(t *testing.T) {
		stub := newStubRPC()
		gw, escrow := newTestGateway(t, stub)
		stub.on("getTransaction", nil, nil,
			depositResult(t, alice, escrow.PublicKey(), 20_000_000, 0, 20_000_000, false))

		got, err := gw.VerifyDeposit(context.Background(), solana.Signature{8}.String(), alice.PublicKey().String())
		require.NoError(t, err)
		assert.Equal(t, uint64(20_000_000), got)
		assert.Equal(t, 3, stub.count("getTransaction"))
	})

	t.Run("never found", func(t *testing.T) {
		stub := newStubRPC()
		gw, _ := newTestGateway(t, stub)
		stub.on("getTransaction", nil)

		got, err := gw.VerifyDeposit(context.Background(), solana.Signature{9}.String(), alice.PublicKey().String())
		require.NoError(t, err)
		assert.Zero(t, got)
		assert.Equal(t, 3, stub.count("getTransaction"))
	})

	t.Run("malformed input skips the lookup", func(t *testing.T) {
		stub := newStubRPC()
		gw, _ := newTestGateway(t, stub)

		got, err := gw.VerifyDeposit(context.Background(), "not-a-signature", alice.PublicKey().String())
		require.NoError(t, err)
		assert.Zero(t, got)
		assert.Zero(t, stub.count("getTransaction"))
	})
}

func TestSolanaGateway_VerifyDepositCallerCancel(t *testing.T) {
	stub := newStubRPC()
	gw, _ := newTestGateway(t, stub)
	gw.config.VerifyBackoff = time.Hour
	stub.on("getTransaction", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := gw.VerifyDeposit(ctx, solana.Signature{10}.String(), newKey(t).PublicKey().String())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSolanaGateway_RecordsBeforeSending(t *testing.T) {
	stub := newStubRPC()
	gw, _ := newTestGateway(t, stub)
	stub.on("getLatestBlockhash", map[string]any{
		"context": map[string]any{"slot": 1},
		"value":   map[string]any{"blockhash": solana.Hash{3}.String(), "lastValidBlockHeight": 150},
	})
	stub.on("sendTransaction", solana.Signature{4}.String())

	var recorded Submission
	sub, err := gw.Refund(context.Background(), newKey(t).PublicKey().String(), 10_000_000, func(s Submission) error {
		assert.Zero(t, stub.count("sendTransaction"), "sent before it was recorded")
		recorded = s
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, recorded, sub)
	assert.NotEmpty(t, sub.Signature)
	assert.Equal(t, uint64(150), sub.LastValidBlockHeight)
	assert.Equal(t, 1, stub.count("sendTransaction"))
}

func TestSolanaGateway_RecordFailureSendsNothing(t *testing.T) {
	stub := newStubRPC()
	gw, _ := newTestGateway(t, stub)
	stub.on("getLatestBlockhash", map[string]any{
		"context": map[string]any{"slot": 1},
		"value":   map[string]any{"blockhash": solana.Hash{3}.String(), "lastValidBlockHeight": 150},
	})
	stub.on("sendTransaction", solana.Signature{4}.String())

	_, err := gw.Payout(context.Background(), newKey(t).PublicKey().String(), 10_000_000, func(Submission) error {
		return errors.New("disk full")
	})
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Zero(t, stub.count("sendTransaction"))
}

func TestSolanaGateway_Confirm(t *testing.T) {
	status := func(s map[string]any) map[string]any {
		return map[string]any{"context": map[string]any{"slot": 1}, "value": []any{s}}
	}
	unseen := map[string]any{"context": map[string]any{"slot": 1}, "value": []any{nil}}

	tests := []struct {
		name     string
		height   uint64
		statuses any
		want     SubmissionState
	}{
		{"landed", 100, status(map[string]any{"slot": 5, "err": nil, "confirmationStatus": "confirmed"}), SubmissionLanded},
		{"finalized", 100, status(map[string]any{"slot": 5, "err": nil, "confirmationStatus": "finalized"}), SubmissionLanded},
		{"failed on chain", 100, status(map[string]any{"slot": 5, "err": map[string]any{"InstructionError": []any{0, "Custom"}}, "confirmationStatus": "confirmed"}), SubmissionFailed},
		{"unseen past its blockhash", 151, unseen, SubmissionExpired},
		{"unseen within its blockhash", 150, unseen, SubmissionPending},
		{"processed only", 100, status(map[string]any{"slot": 5, "err": nil, "confirmationStatus": "processed"}), SubmissionPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubRPC()
			gw, _ := newTestGateway(t, stub)
			stub.on("getBlockHeight", tt.height)
			stub.on("getSignatureStatuses", tt.statuses)

			got, err := gw.Confirm(context.Background(), Submission{
				Signature:            solana.Signature{5}.String(),
				LastValidBlockHeight: 150,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubmissionStateResubmittable(t *testing.T) {
	tests := []struct {
		state SubmissionState
		want  bool
	}{
		{SubmissionPending, false},
		{SubmissionLanded, false},
		{SubmissionFailed, true},
		{SubmissionExpired, true},
	}

	for _, tt := range tests {
		if got := tt.state.Resubmittable(); got != tt.want {
			t.Errorf("%s.Resubmittable() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
