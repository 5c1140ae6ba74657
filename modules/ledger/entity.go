package ledger

import "time"

// TransferStatus is the lifecycle state of an outbound transfer.
type TransferStatus string

const (
	StatusPending    TransferStatus = "pending"
	StatusProcessing TransferStatus = "processing"
	StatusCompleted  TransferStatus = "completed"
	StatusFailed     TransferStatus = "failed"
	StatusDeadLetter TransferStatus = "dead_letter"
)

// IsValid reports whether s is a known status.
func (s TransferStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusDeadLetter:
		return true
	}
	return false
}

// Transfer is a refund or payout owed from the custodial account. It is written
// before any RPC call is made and updated as the settlement worker makes progress.
// Signature is set as soon as a transaction is signed, before it is sent, and is
// only cleared once that transaction can no longer land.
type Transfer struct {
	ID              string         `gorm:"primarykey;size:36" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	RoomID          string         `gorm:"size:32;index" json:"room_id"`
	Kind            string         `gorm:"size:16;not null" json:"kind"`
	Recipient       string         `gorm:"size:64;not null" json:"recipient"`
	Amount          uint64         `gorm:"not null" json:"amount"`
	Reason          string         `gorm:"size:200" json:"reason"`
	Status          TransferStatus `gorm:"size:16;not null;index" json:"status"`
	Attempts        int            `gorm:"not null;default:0" json:"attempts"`
	LastError       string         `gorm:"size:500" json:"last_error,omitempty"`
	Signature       string         `gorm:"size:128" json:"signature,omitempty"`
	LastValidHeight uint64         `gorm:"not null;default:0" json:"last_valid_height,omitempty"`
}

// TableName returns the table name for Transfer model.
func (Transfer) TableName() string {
	return "transfers"
}

// Deposit records a stake transaction signature that has been consumed.
type Deposit struct {
	Signature string    `gorm:"primarykey;size:128" json:"signature"`
	CreatedAt time.Time `json:"created_at"`
	Wallet    string    `gorm:"size:64;not null" json:"wallet"`
	Amount    uint64    `gorm:"not null" json:"amount"`
	Purpose   string    `gorm:"size:16" json:"purpose"`
	RoomID    string    `gorm:"size:32" json:"room_id,omitempty"`
}

// TableName returns the table name for Deposit model.
func (Deposit) TableName() string {
	return "deposits"
}

// Forfeit records a stake retained by the escrow account after a voluntary leave.
type Forfeit struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	RoomID    string    `gorm:"size:32;index" json:"room_id"`
	Wallet    string    `gorm:"size:64;not null" json:"wallet"`
	Amount    uint64    `gorm:"not null" json:"amount"`
}

// TableName returns the table name for Forfeit model.
func (Forfeit) TableName() string {
	return "forfeits"
}
