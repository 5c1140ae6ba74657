package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// LobbyChangedEvent is emitted after any registry mutation that can change the
// joinable room list.
type LobbyChangedEvent struct {
	RoomID    string    `json:"room_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Lobby change reasons.
const (
	ChangeCreated  = "created"
	ChangeJoining  = "joining"
	ChangeReopened = "reopened"
	ChangeStarted  = "started"
	ChangeClosed   = "closed"
)

// Event definitions for the lobby domain.
var (
	LobbyChangedV1 = helper.EventDefinition[LobbyChangedEvent](
		"lobby",
		"LobbyChanged",
		"v1",
	)
)
