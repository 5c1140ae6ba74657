// Package room holds the wagered room entity, its state machine and the
// settlement it produces when it terminates.
package room

// Status is the lifecycle state of a room.
type Status string

const (
	// StatusWaiting: one participant, stake escrowed, listed in the lobby.
	StatusWaiting Status = "waiting"
	// StatusJoining: a join deposit is being verified; not joinable, not listed.
	StatusJoining Status = "joining"
	// StatusActive: two participants, board in play.
	StatusActive Status = "active"
	// StatusCompleted: decisive result.
	StatusCompleted Status = "completed"
	// StatusDrawn: drawn position.
	StatusDrawn Status = "drawn"
	// StatusTimedOut: absolute room timeout elapsed.
	StatusTimedOut Status = "timed_out"
	// StatusCancelled: disconnect before a decisive result.
	StatusCancelled Status = "cancelled"
)

// transitions is the complete table of allowed status changes. Anything not listed is rejected.
var transitions = map[Status][]Status{
	StatusWaiting:   {StatusJoining, StatusCancelled, StatusTimedOut},
	StatusJoining:   {StatusActive, StatusWaiting, StatusCancelled, StatusTimedOut},
	StatusActive:    {StatusWaiting, StatusCompleted, StatusDrawn, StatusCancelled, StatusTimedOut},
	StatusCompleted: nil,
	StatusDrawn:     nil,
	StatusTimedOut:  nil,
	StatusCancelled: nil,
}

// IsValid reports whether s is one of the declared statuses.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s ends the room.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusDrawn, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the table allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
