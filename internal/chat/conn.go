package chat

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/campuslink/campuslink/internal/auth"
	"github.com/campuslink/campuslink/internal/metrics"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period; must be less than pongWait.
	pingInterval = (pongWait * 9) / 10
)

// Conn is one authenticated persistent connection. It is owned by the
// Gateway; the Registry only ever sees its ID.
type Conn struct {
	id        string
	identity  auth.Identity
	profileID uuid.UUID

	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool

	// consecutive fan-out drops; reset on any successful enqueue
	overflow atomic.Int32

	gw  *Gateway
	log zerolog.Logger
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Identity returns the identity resolved at handshake time.
func (c *Conn) Identity() auth.Identity { return c.identity }

// trySend enqueues a frame without blocking. A full buffer drops the frame;
// a connection that keeps overflowing is closed as unhealthy so fan-out is
// never stalled by one slow recipient.
func (c *Conn) trySend(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- payload:
		c.overflow.Store(0)
		return true
	default:
		if n := c.overflow.Add(1); c.gw != nil && int(n) >= c.gw.overflowLimit {
			c.log.Warn().Int32("dropped", n).Msg("closing backpressured connection")
			go c.closeTransport()
		}
		return false
	}
}

// shutdown marks the connection closed and closes the send channel exactly
// once. Safe to call from overlapping Leave/Disconnect paths.
func (c *Conn) shutdown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func (c *Conn) closeTransport() {
	if c.ws != nil {
		_ = c.ws.Close()
	}
}

// readPump reads frames from the transport and dispatches them in arrival
// order; a connection's own operation stream is sequential. It exits on any
// read error, which is the single disconnect path for both voluntary closes
// and transport failures.
func (c *Conn) readPump() {
	defer func() {
		c.gw.disconnect(c)
		c.closeTransport()
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.trySend(errorFrame(CodeBadFrame, "malformed frame"))
			continue
		}

		c.gw.dispatch(c, frame)
	}
}

// writePump drains the send channel onto the transport and keeps the
// connection alive with pings. Exits when the send channel is closed or a
// write fails.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.closeTransport()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// connTable maps connection IDs to live connections. The Registry stores
// IDs only; fan-out resolves them here.
type connTable struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[string]*Conn)}
}

func (t *connTable) add(c *Conn) {
	t.mu.Lock()
	t.conns[c.id] = c
	t.mu.Unlock()
	metrics.ConnectionsActive.Inc()
}

func (t *connTable) remove(id string) {
	t.mu.Lock()
	_, ok := t.conns[id]
	delete(t.conns, id)
	t.mu.Unlock()
	if ok {
		metrics.ConnectionsActive.Dec()
	}
}

func (t *connTable) get(id string) *Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conns[id]
}

func (t *connTable) snapshot() []*Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	return out
}
