package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomKind distinguishes one-to-one conversations from named topic rooms.
type RoomKind string

const (
	RoomKindDM    RoomKind = "dm"
	RoomKindTopic RoomKind = "topic"
)

// Room represents a conversation scope with a fixed participant set.
// Rooms are provisioned through the REST surface; a DM room has exactly
// two participants, a topic room has one or more.
type Room struct {
	ID           uuid.UUID   `json:"id"`
	Kind         RoomKind    `json:"kind"`
	DisplayName  string      `json:"display_name,omitempty"`
	Participants []uuid.UUID `json:"participants"`
	CreatedAt    time.Time   `json:"created_at"`
}

// HasParticipant reports whether the given profile is in the room's
// participant set.
func (r *Room) HasParticipant(profileID uuid.UUID) bool {
	for _, p := range r.Participants {
		if p == profileID {
			return true
		}
	}
	return false
}
