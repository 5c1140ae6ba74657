package ledger

import (
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(&Transfer{}, &Deposit{}, &Forfeit{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func createTransfer(t *testing.T, repo *Repository, recipient string, amount uint64) *Transfer {
	t.Helper()
	transfer := &Transfer{RoomID: "game-1", Kind: "refund", Recipient: recipient, Amount: amount}
	if err := repo.CreateTransfers([]*Transfer{transfer}); err != nil {
		t.Fatalf("CreateTransfers() error = %v", err)
	}
	return transfer
}

func TestRepository_CreateTransfers(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	transfers := []*Transfer{
		{RoomID: "game-1", Kind: "refund", Recipient: "alice", Amount: 10_000_000},
		{RoomID: "game-1", Kind: "refund", Recipient: "bob", Amount: 10_000_000},
	}
	if err := repo.CreateTransfers(transfers); err != nil {
		t.Fatalf("CreateTransfers() error = %v", err)
	}

	for _, tr := range transfers {
		if tr.ID == "" {
			t.Fatal("expected generated ID")
		}
		found, err := repo.FindByID(tr.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if found.Status != StatusPending {
			t.Errorf("expected status %q, got %q", StatusPending, found.Status)
		}
		if found.Recipient != tr.Recipient || found.Amount != tr.Amount {
			t.Errorf("found %+v, want recipient %q amount %d", found, tr.Recipient, tr.Amount)
		}
	}
}

func TestRepository_FindByID_NotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	_, err := repo.FindByID("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_Lifecycle(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	tr := createTransfer(t, repo, "alice", 10_000_000)

	claimed, err := repo.MarkProcessing(tr.ID)
	if err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if claimed.Status != StatusProcessing {
		t.Errorf("expected status %q, got %q", StatusProcessing, claimed.Status)
	}

	if _, err := repo.MarkProcessing(tr.ID); !errors.Is(err, ErrNotRunnable) {
		t.Errorf("second MarkProcessing() error = %v, want ErrNotRunnable", err)
	}

	attempts, err := repo.MarkFailed(tr.ID, "rpc unavailable")
	if err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}

	if _, err := repo.MarkProcessing(tr.ID); err != nil {
		t.Fatalf("MarkProcessing() after failure error = %v", err)
	}
	if err := repo.MarkCompleted(tr.ID, "sig-1"); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	found, _ := repo.FindByID(tr.ID)
	if found.Status != StatusCompleted || found.Signature != "sig-1" || found.LastError != "" {
		t.Errorf("unexpected completed transfer: %+v", found)
	}
	if found.Attempts != 1 {
		t.Errorf("expected attempts to stay 1, got %d", found.Attempts)
	}

	if _, err := repo.Requeue(tr.ID); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("Requeue() on completed error = %v, want ErrNotRetryable", err)
	}
}

func TestRepository_DeadLetterAndRequeue(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	tr := createTransfer(t, repo, "bob", 20_000_000)

	if _, err := repo.MarkFailed(tr.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if err := repo.MarkDeadLetter(tr.ID, "max retries (1) exceeded: boom"); err != nil {
		t.Fatalf("MarkDeadLetter() error = %v", err)
	}

	dead, err := repo.FindByStatus(StatusDeadLetter)
	if err != nil {
		t.Fatalf("FindByStatus() error = %v", err)
	}
	if len(dead) != 1 || dead[0].ID != tr.ID {
		t.Fatalf("expected the transfer in dead letter, got %d", len(dead))
	}

	requeued, err := repo.Requeue(tr.ID)
	if err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	if requeued.Status != StatusPending || requeued.Attempts != 0 {
		t.Errorf("expected pending with 0 attempts, got %q/%d", requeued.Status, requeued.Attempts)
	}

	if _, err := repo.Requeue("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Requeue(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRepository_FindUnfinishedAndResetInterrupted(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	createTransfer(t, repo, "a", 1)
	processing := createTransfer(t, repo, "b", 2)
	done := createTransfer(t, repo, "c", 3)

	if _, err := repo.MarkProcessing(processing.ID); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if _, err := repo.MarkProcessing(done.ID); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if err := repo.MarkCompleted(done.ID, "sig"); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	unfinished, err := repo.FindUnfinished()
	if err != nil {
		t.Fatalf("FindUnfinished() error = %v", err)
	}
	if len(unfinished) != 2 {
		t.Errorf("expected 2 unfinished transfers, got %d", len(unfinished))
	}

	n, err := repo.ResetInterrupted()
	if err != nil {
		t.Fatalf("ResetInterrupted() error = %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 reset transfer, got %d", n)
	}

	counts, err := repo.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[StatusPending] != 2 || counts[StatusCompleted] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestRepository_ClaimDeposit(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	first := &Deposit{Signature: "5xSig", Wallet: "alice", Amount: 10_000_000, Purpose: "create"}
	if err := repo.ClaimDeposit(first); err != nil {
		t.Fatalf("ClaimDeposit() error = %v", err)
	}

	again := &Deposit{Signature: "5xSig", Wallet: "bob", Amount: 10_000_000, Purpose: "join"}
	if err := repo.ClaimDeposit(again); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second ClaimDeposit() error = %v, want ErrAlreadyClaimed", err)
	}

	var stored Deposit
	if err := repo.db.First(&stored, "signature = ?", "5xSig").Error; err != nil {
		t.Fatalf("failed to load deposit: %v", err)
	}
	if stored.Wallet != "alice" {
		t.Errorf("expected first claimant to be kept, got %q", stored.Wallet)
	}
}

func TestRepository_RecordForfeit(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	if err := repo.RecordForfeit(&Forfeit{RoomID: "game-7", Wallet: "alice", Amount: 50_000_000}); err != nil {
		t.Fatalf("RecordForfeit() error = %v", err)
	}

	forfeits, err := repo.FindForfeits("game-7")
	if err != nil {
		t.Fatalf("FindForfeits() error = %v", err)
	}
	if len(forfeits) != 1 || forfeits[0].Amount != 50_000_000 {
		t.Errorf("unexpected forfeits %+v", forfeits)
	}
}

func TestRepository_SubmissionSurvivesFailure(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	tr := createTransfer(t, repo, "carol", 30_000_000)

	if err := repo.RecordSubmission(tr.ID, "sig-late", 150); err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
	if _, err := repo.MarkFailed(tr.ID, "confirmation pending"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	found, _ := repo.FindByID(tr.ID)
	if found.Signature != "sig-late" || found.LastValidHeight != 150 {
		t.Errorf("submission lost after failure: %+v", found)
	}

	if err := repo.ClearSubmission(tr.ID); err != nil {
		t.Fatalf("ClearSubmission() error = %v", err)
	}
	found, _ = repo.FindByID(tr.ID)
	if found.Signature != "" || found.LastValidHeight != 0 {
		t.Errorf("submission not cleared: %+v", found)
	}

	if err := repo.RecordSubmission("missing", "sig", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordSubmission() on missing error = %v, want ErrNotFound", err)
	}
}
