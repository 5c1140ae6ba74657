package ledger

// Service names as seen by dependents.
const (
	ServiceListTransfers = "list"
	ServiceGetTransfer   = "get"
)

// ListTransfersRequest is the request for listing transfers. An empty Status lists all.
type ListTransfersRequest struct {
	Status TransferStatus `json:"status,omitempty"`
}

// ListTransfersResponse is the response containing a list of transfers.
type ListTransfersResponse struct {
	Transfers []*Transfer `json:"transfers"`
	Total     int         `json:"total"`
}

// GetTransferRequest is the request for getting a transfer.
type GetTransferRequest struct {
	ID string `json:"id"`
}

// GetTransferResponse wraps a single transfer.
type GetTransferResponse struct {
	Transfer *Transfer `json:"transfer"`
}
