package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// LedgerPort defines the read operations other modules use on the ledger.
type LedgerPort interface {
	ListTransfers(ctx context.Context, status TransferStatus) ([]*Transfer, error)
	GetTransfer(ctx context.Context, id string) (*Transfer, error)
}

// LedgerAdapter implements LedgerPort using the service container.
type LedgerAdapter struct {
	container mono.ServiceContainer
}

// NewLedgerAdapter creates a new LedgerAdapter.
func NewLedgerAdapter(container mono.ServiceContainer) LedgerPort {
	if container == nil {
		panic("ledger: ServiceContainer is nil")
	}
	return &LedgerAdapter{container: container}
}

// ListTransfers returns transfers, optionally filtered by status.
func (a *LedgerAdapter) ListTransfers(ctx context.Context, status TransferStatus) ([]*Transfer, error) {
	req := ListTransfersRequest{Status: status}
	var resp ListTransfersResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListTransfers,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", MapServiceError(err))
	}
	return resp.Transfers, nil
}

// GetTransfer returns one transfer.
func (a *LedgerAdapter) GetTransfer(ctx context.Context, id string) (*Transfer, error) {
	req := GetTransferRequest{ID: id}
	var resp GetTransferResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetTransfer,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", MapServiceError(err))
	}
	return resp.Transfer, nil
}

// MapServiceError converts service errors back to the ledger sentinels by message,
// since errors lose their type crossing the service boundary.
func MapServiceError(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, ErrNotFound.Error()):
		return ErrNotFound
	case strings.Contains(errMsg, ErrNotRetryable.Error()):
		return ErrNotRetryable
	case strings.Contains(errMsg, ErrInvalidStatus.Error()):
		return ErrInvalidStatus
	}
	return err
}
