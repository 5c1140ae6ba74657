package room

// Outcome classifies how a room ended for settlement purposes.
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeDraw      Outcome = "draw"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Settlement describes a terminated room's owed transfers. Exactly one is produced
// per room, at the moment the room reaches a terminal status.
type Settlement struct {
	RoomID       string   `json:"room_id"`
	Status       Status   `json:"status"`
	Outcome      Outcome  `json:"outcome"`
	Winner       string   `json:"winner,omitempty"`
	Participants []string `json:"participants"`
	Stake        uint64   `json:"stake"`
	Reason       string   `json:"reason"`
}

// Pot is the total escrowed for the seated participants.
func (s Settlement) Pot() uint64 {
	return s.Stake * uint64(len(s.Participants))
}

func outcomeFor(status Status) Outcome {
	switch status {
	case StatusCompleted:
		return OutcomeWin
	case StatusDrawn:
		return OutcomeDraw
	case StatusTimedOut:
		return OutcomeTimedOut
	default:
		return OutcomeCancelled
	}
}
