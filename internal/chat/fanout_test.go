package chat

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/campuslink/campuslink/internal/models"
)

func testMessage(roomID string, seq uint64) *models.Message {
	return &models.Message{
		ID:      "msg-1",
		RoomID:  roomID,
		Content: "hello",
		Seq:     seq,
	}
}

func TestPublishReachesMembersOnly(t *testing.T) {
	registry := NewRegistry()
	table := newConnTable()
	fanout := NewFanout(registry, table, zerolog.Nop())

	member := newTestConn("member", 4)
	outsider := newTestConn("outsider", 4)
	table.add(member)
	table.add(outsider)
	registry.AddMember("room-1", member.id)
	registry.AddMember("room-2", outsider.id)

	if got := fanout.Publish(testMessage("room-1", 1)); got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}
	if len(member.send) != 1 {
		t.Fatal("member should have received the message")
	}
	if len(outsider.send) != 0 {
		t.Fatal("outsider must not receive the message")
	}
}

func TestPublishSkipsFullBuffer(t *testing.T) {
	registry := NewRegistry()
	table := newConnTable()
	fanout := NewFanout(registry, table, zerolog.Nop())

	slow := newTestConn("slow", 1)
	fast := newTestConn("fast", 4)
	table.add(slow)
	table.add(fast)
	registry.AddMember("room-1", slow.id)
	registry.AddMember("room-1", fast.id)

	// Fill the slow recipient's buffer.
	slow.send <- []byte("x")

	if got := fanout.Publish(testMessage("room-1", 1)); got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}
	if len(fast.send) != 1 {
		t.Fatal("healthy recipient should still receive")
	}
}

func TestPublishSkipsClosedConnection(t *testing.T) {
	registry := NewRegistry()
	table := newConnTable()
	fanout := NewFanout(registry, table, zerolog.Nop())

	gone := newTestConn("gone", 4)
	table.add(gone)
	registry.AddMember("room-1", gone.id)
	gone.shutdown()

	if got := fanout.Publish(testMessage("room-1", 1)); got != 0 {
		t.Fatalf("expected 0 deliveries, got %d", got)
	}
}

func TestPublishRacedDisconnect(t *testing.T) {
	registry := NewRegistry()
	table := newConnTable()
	fanout := NewFanout(registry, table, zerolog.Nop())

	// Registry still lists the connection but the table no longer has it.
	registry.AddMember("room-1", "conn-phantom")

	if got := fanout.Publish(testMessage("room-1", 1)); got != 0 {
		t.Fatalf("expected 0 deliveries, got %d", got)
	}
}

func TestPublishEmptyRoom(t *testing.T) {
	registry := NewRegistry()
	table := newConnTable()
	fanout := NewFanout(registry, table, zerolog.Nop())

	if got := fanout.Publish(testMessage("room-1", 1)); got != 0 {
		t.Fatalf("expected 0 deliveries, got %d", got)
	}
}
