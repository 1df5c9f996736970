package campuslink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types on the persistent channel.
const (
	frameAuth    = "auth"
	frameJoin    = "join"
	frameLeave   = "leave"
	frameSend    = "send"
	frameReady   = "ready"
	frameJoined  = "joined"
	frameMessage = "message"
	frameError   = "error"
)

// Event is a server push received on a live session: a delivered message, a
// join confirmation or an error report.
type Event struct {
	Type         string   `json:"type"`
	ConnectionID string   `json:"connection_id,omitempty"`
	RoomID       string   `json:"room_id,omitempty"`
	Message      *Message `json:"message,omitempty"`
	Code         string   `json:"code,omitempty"`
	Detail       string   `json:"detail,omitempty"`
}

type clientFrame struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	RoomID  string `json:"room_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// Session is an authenticated live connection. Events arrives in the order
// the server delivered them; when the connection drops, Events is closed and
// Err reports why. The session does not reconnect; callers reconnect and
// replay history via Client.RoomMessages.
type Session struct {
	ConnectionID string
	Events       <-chan Event

	ws     *websocket.Conn
	events chan Event
	err    error
	done   chan struct{}
}

// ErrHandshakeRejected is returned by Dial when the server refuses the
// credential.
var ErrHandshakeRejected = errors.New("campuslink: handshake rejected")

// Dial opens a websocket session and performs the auth handshake. The first
// frame sent is the credential; the server answers ready or closes.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	wsURL, err := websocketURL(c.BaseURL)
	if err != nil {
		return nil, err
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("campuslink: dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	if err := ws.WriteJSON(clientFrame{Type: frameAuth, Token: c.Token}); err != nil {
		ws.Close()
		return nil, err
	}

	deadline := time.Now().Add(15 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	ws.SetReadDeadline(deadline)

	var first Event
	if err := ws.ReadJSON(&first); err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeRejected, err)
	}
	if first.Type != frameReady {
		ws.Close()
		if first.Type == frameError {
			return nil, fmt.Errorf("%w: %s (%s)", ErrHandshakeRejected, first.Detail, first.Code)
		}
		return nil, ErrHandshakeRejected
	}
	ws.SetReadDeadline(time.Time{})

	s := &Session{
		ConnectionID: first.ConnectionID,
		ws:           ws,
		events:       make(chan Event, 64),
		done:         make(chan struct{}),
	}
	s.Events = s.events
	go s.readLoop()

	return s, nil
}

// Join enters a room. The server confirms with a joined event or reports
// an error event; both arrive on Events.
func (s *Session) Join(roomID string) error {
	return s.ws.WriteJSON(clientFrame{Type: frameJoin, RoomID: roomID})
}

// Leave exits a room.
func (s *Session) Leave(roomID string) error {
	return s.ws.WriteJSON(clientFrame{Type: frameLeave, RoomID: roomID})
}

// Send submits a message to a room. Acceptance is signalled by the message
// coming back on Events with its sequence number assigned.
func (s *Session) Send(roomID, content string) error {
	return s.ws.WriteJSON(clientFrame{Type: frameSend, RoomID: roomID, Content: content})
}

// Close tears down the connection.
func (s *Session) Close() error {
	err := s.ws.Close()
	<-s.done
	return err
}

// Err reports why the session ended. Valid after Events is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			s.err = err
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		s.events <- ev
	}
}

// websocketURL rewrites an http(s) base URL to its ws(s) endpoint.
func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("campuslink: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
