package treasury

import "github.com/Amit00008/solana-chess/domain/room"

// TransferKind distinguishes stake returns from winnings.
type TransferKind string

const (
	TransferRefund TransferKind = "refund"
	TransferPayout TransferKind = "payout"
)

// Transfer is one outbound movement from the custodial account.
type Transfer struct {
	Kind      TransferKind
	Recipient string
	Amount    uint64
}

// HouseFee returns floor(pot * percent / 100).
func HouseFee(pot, percent uint64) uint64 {
	return pot * percent / 100
}

// PlanSettlement turns a settlement into transfers. A decisive win pays the winner
// the pot minus the house fee; every other outcome refunds each seat its stake.
func PlanSettlement(s room.Settlement, feePercent uint64) []Transfer {
	if s.Outcome == room.OutcomeWin && s.Winner != "" {
		pot := s.Pot()
		return []Transfer{{
			Kind:      TransferPayout,
			Recipient: s.Winner,
			Amount:    pot - HouseFee(pot, feePercent),
		}}
	}

	transfers := make([]Transfer, 0, len(s.Participants))
	for _, wallet := range s.Participants {
		transfers = append(transfers, Transfer{
			Kind:      TransferRefund,
			Recipient: wallet,
			Amount:    s.Stake,
		})
	}
	return transfers
}
