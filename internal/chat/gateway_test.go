package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/campuslink/campuslink/internal/auth"
	"github.com/campuslink/campuslink/internal/models"
)

const testSecret = "test-secret"

// fakeDirectory serves profiles and rooms from memory.
type fakeDirectory struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	rooms    map[uuid.UUID]*models.Room
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		profiles: make(map[string]*models.Profile),
		rooms:    make(map[uuid.UUID]*models.Room),
	}
}

func (d *fakeDirectory) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rooms[id], nil
}

func (d *fakeDirectory) GetProfileBySubject(ctx context.Context, subject string) (*models.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.profiles[subject], nil
}

func (d *fakeDirectory) addProfile(subject, name string) *models.Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &models.Profile{ID: uuid.New(), Subject: subject, DisplayName: name}
	d.profiles[subject] = p
	return p
}

func (d *fakeDirectory) addRoom(kind models.RoomKind, participants ...uuid.UUID) *models.Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	room := &models.Room{ID: uuid.New(), Kind: kind, Participants: participants}
	d.rooms[room.ID] = room
	return room
}

type gatewayFixture struct {
	server *httptest.Server
	engine *Engine
	dirs   *fakeDirectory
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	return newGatewayFixtureConfig(t, GatewayConfig{
		HandshakeTimeout: 2 * time.Second,
		SendBuffer:       32,
	})
}

func newGatewayFixtureConfig(t *testing.T, cfg GatewayConfig) *gatewayFixture {
	t.Helper()

	dirs := newFakeDirectory()
	verifier := auth.NewJWTVerifier(testSecret, "")
	engine := NewEngine(EngineConfig{
		Gateway:         cfg,
		AppendTimeout:   time.Second,
		MaxContentBytes: 4096,
	}, verifier, dirs, dirs, newMemHistory(), zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(engine.Gateway.HandleWS))
	t.Cleanup(server.Close)

	return &gatewayFixture{server: server, engine: engine, dirs: dirs}
}

func (f *gatewayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func token(t *testing.T, subject, name string) string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, "", subject, name, "", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func readFrame(t *testing.T, ws *websocket.Conn) ServerFrame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame ServerFrame
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func writeFrame(t *testing.T, ws *websocket.Conn, frame ClientFrame) {
	t.Helper()
	if err := ws.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// connect dials, authenticates as subject, and consumes the ready frame.
func (f *gatewayFixture) connect(t *testing.T, subject, name string) (*websocket.Conn, string) {
	t.Helper()
	ws := f.dial(t)
	writeFrame(t, ws, ClientFrame{Type: FrameAuth, Token: token(t, subject, name)})
	ready := readFrame(t, ws)
	if ready.Type != FrameReady || ready.ConnectionID == "" {
		t.Fatalf("expected ready frame, got %+v", ready)
	}
	return ws, ready.ConnectionID
}

func TestHandshakeSucceeds(t *testing.T) {
	f := newGatewayFixture(t)
	f.dirs.addProfile("alice", "Alice")
	f.connect(t, "alice", "Alice")
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	f := newGatewayFixture(t)
	f.dirs.addProfile("alice", "Alice")

	ws := f.dial(t)
	writeFrame(t, ws, ClientFrame{Type: FrameAuth, Token: "not-a-token"})

	frame := readFrame(t, ws)
	if frame.Type != FrameError || frame.Code != CodeUnauthenticated {
		t.Fatalf("expected UNAUTHENTICATED error, got %+v", frame)
	}

	// The server closes the transport; the next read fails.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}
}

func TestHandshakeTimeoutClosesConnection(t *testing.T) {
	f := newGatewayFixtureConfig(t, GatewayConfig{
		HandshakeTimeout: 300 * time.Millisecond,
		SendBuffer:       32,
	})

	// Dial and send nothing; the server gives up waiting for the auth frame.
	ws := f.dial(t)
	start := time.Now()

	frame := readFrame(t, ws)
	if frame.Type != FrameError || frame.Code != CodeUnauthenticated {
		t.Fatalf("expected UNAUTHENTICATED error, got %+v", frame)
	}
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Fatalf("rejected before the handshake timeout: %v", elapsed)
	}

	ws.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}
}

func TestHandshakeRejectsNonAuthFirstFrame(t *testing.T) {
	f := newGatewayFixture(t)

	ws := f.dial(t)
	writeFrame(t, ws, ClientFrame{Type: FrameJoin, RoomID: uuid.NewString()})

	frame := readFrame(t, ws)
	if frame.Type != FrameError || frame.Code != CodeUnauthenticated {
		t.Fatalf("expected UNAUTHENTICATED error, got %+v", frame)
	}
}

func TestHandshakeRejectsUnknownSubject(t *testing.T) {
	f := newGatewayFixture(t)

	ws := f.dial(t)
	writeFrame(t, ws, ClientFrame{Type: FrameAuth, Token: token(t, "ghost", "Ghost")})

	frame := readFrame(t, ws)
	if frame.Type != FrameError || frame.Code != CodeUnauthenticated {
		t.Fatalf("expected UNAUTHENTICATED error, got %+v", frame)
	}
}

func TestSecondAuthRejected(t *testing.T) {
	f := newGatewayFixture(t)
	f.dirs.addProfile("alice", "Alice")

	ws, _ := f.connect(t, "alice", "Alice")
	writeFrame(t, ws, ClientFrame{Type: FrameAuth, Token: token(t, "alice", "Alice")})

	frame := readFrame(t, ws)
	if frame.Type != FrameError || frame.Code != CodeBadFrame {
		t.Fatalf("expected BAD_FRAME error, got %+v", frame)
	}
}

func TestJoinSendReceive(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.dirs.addProfile("alice", "Alice")
	bob := f.dirs.addProfile("bob", "Bob")
	room := f.dirs.addRoom(models.RoomKindDM, alice.ID, bob.ID)

	wsA, _ := f.connect(t, "alice", "Alice")
	wsB, _ := f.connect(t, "bob", "Bob")

	for _, ws := range []*websocket.Conn{wsA, wsB} {
		writeFrame(t, ws, ClientFrame{Type: FrameJoin, RoomID: room.ID.String()})
		joined := readFrame(t, ws)
		if joined.Type != FrameJoined || joined.RoomID != room.ID.String() {
			t.Fatalf("expected joined frame, got %+v", joined)
		}
	}

	writeFrame(t, wsA, ClientFrame{Type: FrameSend, RoomID: room.ID.String(), Content: "hi bob"})

	// Both members receive the message, sender included, with seq assigned.
	for _, ws := range []*websocket.Conn{wsA, wsB} {
		frame := readFrame(t, ws)
		if frame.Type != FrameMessage || frame.Message == nil {
			t.Fatalf("expected message frame, got %+v", frame)
		}
		if frame.Message.Seq != 1 || frame.Message.Content != "hi bob" {
			t.Fatalf("unexpected message: %+v", frame.Message)
		}
		if frame.Message.SenderName != "Alice" {
			t.Fatalf("expected sender Alice, got %s", frame.Message.SenderName)
		}
	}

	writeFrame(t, wsB, ClientFrame{Type: FrameSend, RoomID: room.ID.String(), Content: "hi alice"})
	for _, ws := range []*websocket.Conn{wsA, wsB} {
		frame := readFrame(t, ws)
		if frame.Message == nil || frame.Message.Seq != 2 {
			t.Fatalf("expected seq 2, got %+v", frame)
		}
	}
}

func TestJoinRejectsNonParticipant(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.dirs.addProfile("alice", "Alice")
	f.dirs.addProfile("eve", "Eve")
	room := f.dirs.addRoom(models.RoomKindTopic, alice.ID)

	ws, _ := f.connect(t, "eve", "Eve")
	writeFrame(t, ws, ClientFrame{Type: FrameJoin, RoomID: room.ID.String()})

	frame := readFrame(t, ws)
	if frame.Type != FrameError || frame.Code != CodeNotAMember {
		t.Fatalf("expected NOT_A_MEMBER error, got %+v", frame)
	}

	// The failed join is not fatal; the connection keeps working.
	writeFrame(t, ws, ClientFrame{Type: FrameSend, RoomID: room.ID.String(), Content: "hi"})
	frame = readFrame(t, ws)
	if frame.Type != FrameError || frame.Code != CodeNotAMember {
		t.Fatalf("expected NOT_A_MEMBER error, got %+v", frame)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newGatewayFixture(t)
	f.dirs.addProfile("alice", "Alice")

	ws, _ := f.connect(t, "alice", "Alice")
	writeFrame(t, ws, ClientFrame{Type: FrameJoin, RoomID: uuid.NewString()})

	frame := readFrame(t, ws)
	if frame.Type != FrameError || frame.Code != CodeRoomNotFound {
		t.Fatalf("expected ROOM_NOT_FOUND error, got %+v", frame)
	}
}

func TestSendWithoutJoinRejected(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.dirs.addProfile("alice", "Alice")
	room := f.dirs.addRoom(models.RoomKindTopic, alice.ID)

	ws, _ := f.connect(t, "alice", "Alice")
	writeFrame(t, ws, ClientFrame{Type: FrameSend, RoomID: room.ID.String(), Content: "hi"})

	frame := readFrame(t, ws)
	if frame.Type != FrameError || frame.Code != CodeNotAMember {
		t.Fatalf("expected NOT_A_MEMBER error, got %+v", frame)
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.dirs.addProfile("alice", "Alice")
	bob := f.dirs.addProfile("bob", "Bob")
	room := f.dirs.addRoom(models.RoomKindDM, alice.ID, bob.ID)

	wsA, _ := f.connect(t, "alice", "Alice")
	wsB, connB := f.connect(t, "bob", "Bob")

	for _, ws := range []*websocket.Conn{wsA, wsB} {
		writeFrame(t, ws, ClientFrame{Type: FrameJoin, RoomID: room.ID.String()})
		readFrame(t, ws)
	}

	writeFrame(t, wsB, ClientFrame{Type: FrameLeave, RoomID: room.ID.String()})

	// Leave is processed by the server's read loop; wait for it to land.
	waitFor(t, func() bool {
		return !f.engine.Registry.Contains(room.ID.String(), connB)
	})

	writeFrame(t, wsA, ClientFrame{Type: FrameSend, RoomID: room.ID.String(), Content: "anyone?"})
	frame := readFrame(t, wsA)
	if frame.Type != FrameMessage {
		t.Fatalf("sender should still receive, got %+v", frame)
	}

	wsB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := wsB.ReadMessage(); err == nil {
		t.Fatal("bob left the room and must not receive the message")
	}
}

func TestAbruptDisconnectCleansUp(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.dirs.addProfile("alice", "Alice")
	room := f.dirs.addRoom(models.RoomKindTopic, alice.ID)

	ws, connID := f.connect(t, "alice", "Alice")
	writeFrame(t, ws, ClientFrame{Type: FrameJoin, RoomID: room.ID.String()})
	readFrame(t, ws)

	if !f.engine.Registry.Contains(room.ID.String(), connID) {
		t.Fatal("connection should be registered after join")
	}

	// Drop the transport without a close handshake.
	ws.UnderlyingConn().Close()

	waitFor(t, func() bool {
		return len(f.engine.Registry.MembersOf(room.ID.String())) == 0 &&
			len(f.engine.Registry.RoomsOf(connID)) == 0
	})
}

func TestBackpressuredConnectionClosed(t *testing.T) {
	f := newGatewayFixtureConfig(t, GatewayConfig{
		HandshakeTimeout: 2 * time.Second,
		SendBuffer:       1,
		OverflowLimit:    3,
	})
	alice := f.dirs.addProfile("alice", "Alice")
	bob := f.dirs.addProfile("bob", "Bob")
	room := f.dirs.addRoom(models.RoomKindDM, alice.ID, bob.ID)

	wsA, _ := f.connect(t, "alice", "Alice")
	wsB, connB := f.connect(t, "bob", "Bob")

	for _, ws := range []*websocket.Conn{wsA, wsB} {
		writeFrame(t, ws, ClientFrame{Type: FrameJoin, RoomID: room.ID.String()})
		readFrame(t, ws)
	}

	// Bob stops reading. Large frames fill his socket buffer, then his send
	// channel; after OverflowLimit consecutive drops the gateway closes him.
	// Frames must be large or the kernel buffers absorb them all.
	payload := strings.Repeat("x", 4096)
	for i := 0; i < 2000; i++ {
		if !f.engine.Registry.Contains(room.ID.String(), connB) {
			break
		}
		writeFrame(t, wsA, ClientFrame{Type: FrameSend, RoomID: room.ID.String(), Content: payload})
		readFrame(t, wsA) // drain the sender's own copy
	}

	waitFor(t, func() bool {
		return !f.engine.Registry.Contains(room.ID.String(), connB) &&
			len(f.engine.Registry.RoomsOf(connB)) == 0
	})

	// The healthy member is unaffected.
	writeFrame(t, wsA, ClientFrame{Type: FrameSend, RoomID: room.ID.String(), Content: "still here"})
	frame := readFrame(t, wsA)
	if frame.Type != FrameMessage {
		t.Fatalf("sender should keep receiving, got %+v", frame)
	}
}

func TestShutdownDrainsConnections(t *testing.T) {
	f := newGatewayFixture(t)
	f.dirs.addProfile("alice", "Alice")
	f.connect(t, "alice", "Alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.engine.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown did not drain: %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
