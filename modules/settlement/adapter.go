package settlement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Amit00008/solana-chess/modules/ledger"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// SettlementPort defines the operator operations on settlements.
type SettlementPort interface {
	RetryTransfer(ctx context.Context, id string) (*ledger.Transfer, error)
}

// SettlementAdapter implements SettlementPort using the service container.
type SettlementAdapter struct {
	container mono.ServiceContainer
}

// NewSettlementAdapter creates a new SettlementAdapter.
func NewSettlementAdapter(container mono.ServiceContainer) SettlementPort {
	if container == nil {
		panic("settlement: ServiceContainer is nil")
	}
	return &SettlementAdapter{container: container}
}

// RetryTransfer requeues a failed or dead-lettered transfer.
func (a *SettlementAdapter) RetryTransfer(ctx context.Context, id string) (*ledger.Transfer, error) {
	req := RetryTransferRequest{ID: id}
	var resp RetryTransferResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRetryTransfer,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to retry transfer: %w", ledger.MapServiceError(err))
	}
	return resp.Transfer, nil
}
