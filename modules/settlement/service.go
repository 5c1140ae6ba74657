package settlement

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
)

// retryTransfer handles the settlement.retry service request.
func (m *Module) retryTransfer(_ context.Context, req RetryTransferRequest, _ *mono.Msg) (RetryTransferResponse, error) {
	if req.ID == "" {
		return RetryTransferResponse{}, fmt.Errorf("id is required")
	}
	if m.dispatcher == nil {
		return RetryTransferResponse{}, fmt.Errorf("settlement not started")
	}

	transfer, err := m.dispatcher.Retry(req.ID)
	if err != nil {
		return RetryTransferResponse{}, err
	}
	return RetryTransferResponse{Transfer: transfer}, nil
}
