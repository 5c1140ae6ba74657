package treasury

import "errors"

var (
	// ErrDepositUnverified indicates the deposit transaction was not observed after bounded retries.
	ErrDepositUnverified = errors.New("Transaction verification failed")
	// ErrDepositShort indicates the deposit credited less than the stake it was sent for.
	ErrDepositShort = errors.New("Deposit is less than the bet amount")
	// ErrDepositReplayed indicates the deposit signature was already claimed by an earlier stake.
	ErrDepositReplayed = errors.New("Transaction already used")
	// ErrTransferFailed indicates a refund or payout could not be submitted or confirmed.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrMissingKey indicates the custodial signing key is not configured.
	ErrMissingKey = errors.New("ESCROW_PRIVATE_KEY environment variable is not set")
)
