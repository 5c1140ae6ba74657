package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a transfer is not found.
	ErrNotFound = errors.New("transfer not found")
	// ErrNotRunnable is returned when a transfer is claimed while not pending or failed.
	ErrNotRunnable = errors.New("transfer is not runnable")
	// ErrNotRetryable is returned when a manual retry targets a transfer that is not
	// failed or dead-lettered.
	ErrNotRetryable = errors.New("transfer is not retryable")
	// ErrAlreadyClaimed is returned when a deposit signature was consumed before.
	ErrAlreadyClaimed = errors.New("deposit already claimed")
	// ErrInvalidStatus is returned when a listing filter names no known status.
	ErrInvalidStatus = errors.New("invalid transfer status")
)

// Repository provides access to the settlement ledger.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new ledger repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTransfers saves transfers as pending in one transaction. Missing IDs are generated.
func (r *Repository) CreateTransfers(transfers []*Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	for _, t := range transfers {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		t.Status = StatusPending
		t.Attempts = 0
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&transfers).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create transfers: %w", err)
	}
	return nil
}

// FindByID retrieves a transfer by its ID.
func (r *Repository) FindByID(id string) (*Transfer, error) {
	var transfer Transfer
	if err := r.db.First(&transfer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find transfer: %w", err)
	}
	return &transfer, nil
}

// FindByStatus retrieves transfers in the given status, oldest first. An empty
// status returns every transfer.
func (r *Repository) FindByStatus(status TransferStatus) ([]*Transfer, error) {
	query := r.db.Order("created_at ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var transfers []*Transfer
	if err := query.Find(&transfers).Error; err != nil {
		return nil, fmt.Errorf("failed to find transfers: %w", err)
	}
	return transfers, nil
}

// FindUnfinished retrieves transfers that still owe funds, including ones left in
// processing by an interrupted run.
func (r *Repository) FindUnfinished() ([]*Transfer, error) {
	var transfers []*Transfer
	err := r.db.Order("created_at ASC").
		Where("status IN ?", []TransferStatus{StatusPending, StatusProcessing, StatusFailed}).
		Find(&transfers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find unfinished transfers: %w", err)
	}
	return transfers, nil
}

// ResetInterrupted moves transfers stuck in processing back to pending.
func (r *Repository) ResetInterrupted() (int64, error) {
	result := r.db.Model(&Transfer{}).
		Where("status = ?", StatusProcessing).
		Update("status", StatusPending)
	if err := result.Error; err != nil {
		return 0, fmt.Errorf("failed to reset interrupted transfers: %w", err)
	}
	return result.RowsAffected, nil
}

// MarkProcessing claims a pending or failed transfer for execution.
func (r *Repository) MarkProcessing(id string) (*Transfer, error) {
	result := r.db.Model(&Transfer{}).
		Where("id = ? AND status IN ?", id, []TransferStatus{StatusPending, StatusFailed}).
		Update("status", StatusProcessing)
	if err := result.Error; err != nil {
		return nil, fmt.Errorf("failed to claim transfer: %w", err)
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(id); err != nil {
			return nil, err
		}
		return nil, ErrNotRunnable
	}
	return r.FindByID(id)
}

// MarkCompleted records a confirmed transfer.
func (r *Repository) MarkCompleted(id, signature string) error {
	return r.update(id, map[string]any{
		"status":     StatusCompleted,
		"signature":  signature,
		"last_error": "",
	})
}

// RecordSubmission stores the signature of a signed transfer before it is sent.
func (r *Repository) RecordSubmission(id, signature string, lastValidHeight uint64) error {
	return r.update(id, map[string]any{
		"signature":         signature,
		"last_valid_height": lastValidHeight,
	})
}

// ClearSubmission forgets a submitted transaction that failed or expired, so the
// next attempt signs a new one.
func (r *Repository) ClearSubmission(id string) error {
	return r.update(id, map[string]any{
		"signature":         "",
		"last_valid_height": 0,
	})
}

// MarkFailed records a failed attempt and returns the new attempt count.
func (r *Repository) MarkFailed(id, errMsg string) (int, error) {
	err := r.update(id, map[string]any{
		"status":     StatusFailed,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": truncate(errMsg, 500),
	})
	if err != nil {
		return 0, err
	}
	transfer, err := r.FindByID(id)
	if err != nil {
		return 0, err
	}
	return transfer.Attempts, nil
}

// MarkDeadLetter parks a transfer after its retries are exhausted.
func (r *Repository) MarkDeadLetter(id, reason string) error {
	return r.update(id, map[string]any{
		"status":     StatusDeadLetter,
		"last_error": truncate(reason, 500),
	})
}

// Requeue resets a failed or dead-lettered transfer to pending with a fresh attempt budget.
func (r *Repository) Requeue(id string) (*Transfer, error) {
	result := r.db.Model(&Transfer{}).
		Where("id = ? AND status IN ?", id, []TransferStatus{StatusFailed, StatusDeadLetter}).
		Updates(map[string]any{"status": StatusPending, "attempts": 0})
	if err := result.Error; err != nil {
		return nil, fmt.Errorf("failed to requeue transfer: %w", err)
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(id); err != nil {
			return nil, err
		}
		return nil, ErrNotRetryable
	}
	return r.FindByID(id)
}

// CountByStatus returns the number of transfers per status.
func (r *Repository) CountByStatus() (map[TransferStatus]int64, error) {
	var rows []struct {
		Status TransferStatus
		Count  int64
	}
	err := r.db.Model(&Transfer{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count transfers: %w", err)
	}
	counts := make(map[TransferStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ClaimDeposit consumes a deposit signature. A signature can be claimed once.
func (r *Repository) ClaimDeposit(deposit *Deposit) error {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(deposit)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to claim deposit: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

// RecordForfeit saves a retained stake.
func (r *Repository) RecordForfeit(forfeit *Forfeit) error {
	if forfeit.ID == "" {
		forfeit.ID = uuid.New().String()
	}
	if err := r.db.Create(forfeit).Error; err != nil {
		return fmt.Errorf("failed to record forfeit: %w", err)
	}
	return nil
}

// FindForfeits retrieves the forfeits recorded for a room.
func (r *Repository) FindForfeits(roomID string) ([]*Forfeit, error) {
	var forfeits []*Forfeit
	if err := r.db.Order("created_at ASC").Find(&forfeits, "room_id = ?", roomID).Error; err != nil {
		return nil, fmt.Errorf("failed to find forfeits: %w", err)
	}
	return forfeits, nil
}

func (r *Repository) update(id string, fields map[string]any) error {
	result := r.db.Model(&Transfer{}).Where("id = ?", id).Updates(fields)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update transfer: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
