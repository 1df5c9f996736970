package models

// Message represents a chat message persisted in the room history.
// Seq is assigned by the history store at append time and defines the
// total order of messages within a room: strictly increasing, gap-free.
type Message struct {
	ID         string `json:"id"` // ULID
	RoomID     string `json:"room_id"`
	SenderID   string `json:"sender_id"` // Profile UUID
	SenderName string `json:"sender_name,omitempty"`
	Content    string `json:"content"`
	Seq        uint64 `json:"seq"`
	CreatedAt  int64  `json:"created_at"` // Unix ms
}
