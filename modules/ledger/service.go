package ledger

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
)

// listTransfers handles the ledger.list service request.
func (m *Module) listTransfers(_ context.Context, req ListTransfersRequest, _ *mono.Msg) (ListTransfersResponse, error) {
	if req.Status != "" && !req.Status.IsValid() {
		return ListTransfersResponse{}, fmt.Errorf("%w %q", ErrInvalidStatus, req.Status)
	}

	transfers, err := m.repo.FindByStatus(req.Status)
	if err != nil {
		return ListTransfersResponse{}, err
	}
	if transfers == nil {
		transfers = []*Transfer{}
	}

	return ListTransfersResponse{
		Transfers: transfers,
		Total:     len(transfers),
	}, nil
}

// getTransfer handles the ledger.get service request.
func (m *Module) getTransfer(_ context.Context, req GetTransferRequest, _ *mono.Msg) (GetTransferResponse, error) {
	if req.ID == "" {
		return GetTransferResponse{}, fmt.Errorf("id is required")
	}

	transfer, err := m.repo.FindByID(req.ID)
	if err != nil {
		return GetTransferResponse{}, err
	}
	return GetTransferResponse{Transfer: transfer}, nil
}
