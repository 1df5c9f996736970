package chat

import (
	"encoding/json"

	"github.com/campuslink/campuslink/internal/models"
)

// Frame types on the persistent channel.
const (
	// client to server
	FrameAuth  = "auth"
	FrameJoin  = "join"
	FrameLeave = "leave"
	FrameSend  = "send"

	// server to client
	FrameReady   = "ready"
	FrameJoined  = "joined"
	FrameMessage = "message"
	FrameError   = "error"
)

// ClientFrame is a message-framed request from the client. Type selects
// which of the remaining fields are meaningful.
type ClientFrame struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	RoomID  string `json:"room_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// ServerFrame is a message-framed push to the client.
type ServerFrame struct {
	Type         string          `json:"type"`
	ConnectionID string          `json:"connection_id,omitempty"`
	RoomID       string          `json:"room_id,omitempty"`
	Message      *models.Message `json:"message,omitempty"`
	Code         string          `json:"code,omitempty"`
	Detail       string          `json:"detail,omitempty"`
}

func errorFrame(code, detail string) []byte {
	return mustMarshal(ServerFrame{Type: FrameError, Code: code, Detail: detail})
}

func joinedFrame(roomID string) []byte {
	return mustMarshal(ServerFrame{Type: FrameJoined, RoomID: roomID})
}

func readyFrame(connectionID string) []byte {
	return mustMarshal(ServerFrame{Type: FrameReady, ConnectionID: connectionID})
}

func messageFrame(msg *models.Message) []byte {
	return mustMarshal(ServerFrame{Type: FrameMessage, RoomID: msg.RoomID, Message: msg})
}

// mustMarshal encodes a server frame. Frames are built from our own types
// only, so a marshal error is a programming bug.
func mustMarshal(f ServerFrame) []byte {
	data, err := json.Marshal(f)
	if err != nil {
		panic(err)
	}
	return data
}
