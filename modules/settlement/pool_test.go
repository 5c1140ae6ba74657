package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Amit00008/solana-chess/domain/room"
	"github.com/Amit00008/solana-chess/modules/ledger"
	"github.com/Amit00008/solana-chess/modules/treasury"
	"github.com/Amit00008/solana-chess/modules/treasury/treasurytest"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	repo       *ledger.Repository
	gateway    *treasurytest.Gateway
	clock      *clock.Mock
	pool       *Pool
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, cfg PoolConfig) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&ledger.Transfer{}, &ledger.Deposit{}, &ledger.Forfeit{}))

	f := &fixture{
		repo:    ledger.NewRepository(db),
		gateway: treasurytest.New(),
		clock:   clock.NewMock(),
	}
	f.pool = NewPool(cfg, f.repo, f.gateway, f.clock)
	f.dispatcher = NewDispatcher(f.repo, f.pool, 2)

	require.NoError(t, f.pool.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.pool.Stop(ctx)
		_ = sqlDB.Close()
	})
	return f
}

func testConfig() PoolConfig {
	cfg := DefaultPoolConfig()
	cfg.NumWorkers = 2
	cfg.MaxRetries = 3
	cfg.ProcessTimeout = 5 * time.Second
	return cfg
}

func (f *fixture) waitForStatus(t *testing.T, status ledger.TransferStatus, n int) []*ledger.Transfer {
	t.Helper()
	var transfers []*ledger.Transfer
	require.Eventually(t, func() bool {
		var err error
		transfers, err = f.repo.FindByStatus(status)
		return err == nil && len(transfers) == n
	}, 2*time.Second, 10*time.Millisecond)
	return transfers
}

func TestDispatcher_SettleWinPaysWinner(t *testing.T) {
	f := newFixture(t, testConfig())

	err := f.dispatcher.Settle(room.Settlement{
		RoomID:       "game-1",
		Status:       room.StatusCompleted,
		Outcome:      room.OutcomeWin,
		Winner:       "black-wallet",
		Participants: []string{"white-wallet", "black-wallet"},
		Stake:        1_000_000_000,
		Reason:       "Black wins by checkmate",
	})
	require.NoError(t, err)

	completed := f.waitForStatus(t, ledger.StatusCompleted, 1)
	assert.Equal(t, "payout", completed[0].Kind)
	assert.Equal(t, "game-1", completed[0].RoomID)
	assert.NotEmpty(t, completed[0].Signature)

	calls := f.gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, treasurytest.Call{Kind: treasury.TransferPayout, Address: "black-wallet", Amount: 1_960_000_000}, calls[0])
}

func TestDispatcher_SettleDrawRefundsBoth(t *testing.T) {
	f := newFixture(t, testConfig())

	err := f.dispatcher.Settle(room.Settlement{
		RoomID:       "game-2",
		Status:       room.StatusDrawn,
		Outcome:      room.OutcomeDraw,
		Participants: []string{"white-wallet", "black-wallet"},
		Stake:        20_000_000,
	})
	require.NoError(t, err)

	f.waitForStatus(t, ledger.StatusCompleted, 2)
	calls := f.gateway.Calls()
	require.Len(t, calls, 2)
	recipients := []string{calls[0].Address, calls[1].Address}
	assert.ElementsMatch(t, []string{"white-wallet", "black-wallet"}, recipients)
	for _, c := range calls {
		assert.Equal(t, treasury.TransferRefund, c.Kind)
		assert.Equal(t, uint64(20_000_000), c.Amount)
	}
}

func TestPool_RetriesAfterBackoff(t *testing.T) {
	f := newFixture(t, testConfig())
	f.gateway.SetFailTransfers(1)

	require.NoError(t, f.dispatcher.Refund("game-3", "alice", 10_000_000, "Minimum bet amount is 0.01 SOL"))

	failed := f.waitForStatus(t, ledger.StatusFailed, 1)
	assert.Equal(t, 1, failed[0].Attempts)
	require.Eventually(t, func() bool { return f.pool.PendingRetries() == 1 }, time.Second, 5*time.Millisecond)

	f.clock.Add(time.Second)

	f.waitForStatus(t, ledger.StatusCompleted, 1)
	assert.Len(t, f.gateway.Calls(), 1)
	// The dropped transaction expired before a new one was signed.
	assert.Equal(t, 2, f.gateway.Submitted())
}

func TestPool_UnconfirmedTransferIsNotResent(t *testing.T) {
	f := newFixture(t, testConfig())
	f.gateway.SetPendingConfirms(1)

	require.NoError(t, f.dispatcher.Refund("game-3", "alice", 10_000_000, "Game not found"))

	failed := f.waitForStatus(t, ledger.StatusFailed, 1)
	assert.Equal(t, "sig-1", failed[0].Signature)
	assert.Contains(t, failed[0].LastError, "not yet confirmed")
	require.Eventually(t, func() bool { return f.pool.PendingRetries() == 1 }, time.Second, 5*time.Millisecond)

	// The first transaction lands late; the retry finds it instead of paying again.
	f.clock.Add(time.Second)

	completed := f.waitForStatus(t, ledger.StatusCompleted, 1)
	assert.Equal(t, "sig-1", completed[0].Signature)
	assert.Equal(t, 1, f.gateway.Submitted())
	assert.Len(t, f.gateway.Calls(), 1)
}

func TestPool_DeadLetteredSubmissionCheckedOnRetry(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	f := newFixture(t, cfg)
	f.gateway.SetPendingConfirms(1)

	require.NoError(t, f.dispatcher.Settle(room.Settlement{
		RoomID:       "game-9",
		Status:       room.StatusCompleted,
		Outcome:      room.OutcomeWin,
		Winner:       "white-wallet",
		Participants: []string{"white-wallet", "black-wallet"},
		Stake:        10_000_000,
	}))

	// Out of retries while undecided: parked with its signature kept.
	dead := f.waitForStatus(t, ledger.StatusDeadLetter, 1)
	assert.Equal(t, "sig-1", dead[0].Signature)

	_, err := f.dispatcher.Retry(dead[0].ID)
	require.NoError(t, err)

	completed := f.waitForStatus(t, ledger.StatusCompleted, 1)
	assert.Equal(t, "sig-1", completed[0].Signature)
	assert.Equal(t, 1, f.gateway.Submitted())
}

func TestPool_DeadLetterAndManualRetry(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	f := newFixture(t, cfg)
	f.gateway.SetFailTransfers(100)

	require.NoError(t, f.dispatcher.Refund("game-4", "bob", 10_000_000, "Transaction verification failed"))

	f.waitForStatus(t, ledger.StatusFailed, 1)
	require.Eventually(t, func() bool { return f.pool.PendingRetries() == 1 }, time.Second, 5*time.Millisecond)
	f.clock.Add(time.Second)

	dead := f.waitForStatus(t, ledger.StatusDeadLetter, 1)
	assert.Equal(t, 2, dead[0].Attempts)
	assert.Contains(t, dead[0].LastError, "max retries (2) exceeded")
	assert.Equal(t, 0, f.pool.PendingRetries())

	f.gateway.SetFailTransfers(0)
	requeued, err := f.dispatcher.Retry(dead[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, requeued.Status)

	f.waitForStatus(t, ledger.StatusCompleted, 1)
}

func TestDispatcher_ResumeRunsUnfinished(t *testing.T) {
	f := newFixture(t, testConfig())

	// Written directly to the ledger, as if left behind by a previous run.
	leftover := []*ledger.Transfer{
		{RoomID: "game-5", Kind: "refund", Recipient: "carol", Amount: 10_000_000},
		{RoomID: "game-5", Kind: "refund", Recipient: "dave", Amount: 10_000_000},
	}
	require.NoError(t, f.repo.CreateTransfers(leftover))

	n, err := f.dispatcher.Resume()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f.waitForStatus(t, ledger.StatusCompleted, 2)
}

func TestDispatcher_ClaimDepositRejectsReplay(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.dispatcher.ClaimDeposit("sig-a", "alice", 10_000_000, PurposeCreate, ""))
	err := f.dispatcher.ClaimDeposit("sig-a", "mallory", 10_000_000, PurposeJoin, "game-1")
	assert.True(t, errors.Is(err, treasury.ErrDepositReplayed), "got %v", err)
}

func TestDispatcher_RecordForfeit(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.dispatcher.RecordForfeit("game-6", "alice", 30_000_000))
	forfeits, err := f.repo.FindForfeits("game-6")
	require.NoError(t, err)
	require.Len(t, forfeits, 1)
	assert.Equal(t, "alice", forfeits[0].Wallet)
}

func TestPool_CalculateRetryDelay(t *testing.T) {
	p := NewPool(DefaultPoolConfig(), nil, nil, clock.NewMock())

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, time.Minute},
		{20, time.Minute},
	}

	for _, tt := range tests {
		if got := p.calculateRetryDelay(tt.attempts); got != tt.want {
			t.Errorf("calculateRetryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
