package settlement

import "github.com/Amit00008/solana-chess/modules/ledger"

// ServiceRetryTransfer is the request-reply service that requeues a transfer.
const ServiceRetryTransfer = "retry"

// RetryTransferRequest is the request for retrying a transfer.
type RetryTransferRequest struct {
	ID string `json:"id"`
}

// RetryTransferResponse carries the requeued transfer.
type RetryTransferResponse struct {
	Transfer *ledger.Transfer `json:"transfer"`
}
