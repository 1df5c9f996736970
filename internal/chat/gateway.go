package chat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/campuslink/campuslink/internal/auth"
	"github.com/campuslink/campuslink/internal/metrics"
	"github.com/campuslink/campuslink/internal/models"
)

// RoomDirectory is the external room collaborator: read-only access to
// provisioned rooms and their participant sets. The core never creates or
// mutates rooms.
type RoomDirectory interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// ProfileDirectory resolves verified subjects to stored profiles.
type ProfileDirectory interface {
	GetProfileBySubject(ctx context.Context, subject string) (*models.Profile, error)
}

// GatewayConfig tunes the connection gateway. Zero values get defaults.
type GatewayConfig struct {
	HandshakeTimeout time.Duration // bounded wait for auth frame + verifier
	SendBuffer       int           // per-connection outbound buffer
	OverflowLimit    int           // consecutive drops before a connection is closed
	MaxFrameBytes    int64         // read limit on inbound frames
	RoomCacheTTL     time.Duration // how long a room's participant set may be stale
}

func (cfg GatewayConfig) withDefaults() GatewayConfig {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.OverflowLimit <= 0 {
		cfg.OverflowLimit = 8
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 8 * 1024
	}
	if cfg.RoomCacheTTL <= 0 {
		cfg.RoomCacheTTL = 30 * time.Second
	}
	return cfg
}

// Gateway owns the lifecycle of every persistent connection: the one-time
// authentication handshake, the Join/Leave/Send operations, and the
// unconditional cleanup on disconnect.
type Gateway struct {
	verifier auth.TokenVerifier
	profiles ProfileDirectory
	rooms    *roomCache

	registry *Registry
	ingest   *Ingest
	table    *connTable

	handshakeTimeout time.Duration
	sendBuffer       int
	overflowLimit    int
	maxFrameBytes    int64

	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewGateway wires the connection gateway. The registry, ingest, and table
// must be the same instances the fan-out engine uses.
func NewGateway(cfg GatewayConfig, verifier auth.TokenVerifier, rooms RoomDirectory, profiles ProfileDirectory, registry *Registry, ingest *Ingest, table *connTable, log zerolog.Logger) *Gateway {
	cfg = cfg.withDefaults()
	return &Gateway{
		verifier:         verifier,
		profiles:         profiles,
		rooms:            newRoomCache(rooms, cfg.RoomCacheTTL),
		registry:         registry,
		ingest:           ingest,
		table:            table,
		handshakeTimeout: cfg.HandshakeTimeout,
		sendBuffer:       cfg.SendBuffer,
		overflowLimit:    cfg.OverflowLimit,
		maxFrameBytes:    cfg.MaxFrameBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser origins are cross-checked by the identity token; the
			// handshake rejects anything without a valid credential.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// HandleWS upgrades the HTTP request and runs the connection to completion.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	go g.serve(ws)
}

func (g *Gateway) serve(ws *websocket.Conn) {
	ws.SetReadLimit(g.maxFrameBytes)

	conn, err := g.handshake(ws)
	if err != nil {
		g.rejectHandshake(ws, err)
		return
	}

	metrics.ConnectionsTotal.Inc()
	g.table.add(conn)
	g.log.Info().
		Str("conn_id", conn.id).
		Str("subject", conn.identity.Subject).
		Msg("connection authenticated")

	go conn.writePump()
	conn.trySend(readyFrame(conn.id))
	conn.readPump()
}

// handshake performs the one-time authentication exchange. The first frame
// must be auth{token} within the handshake timeout; on any failure the
// transport is closed with no state created.
func (g *Gateway) handshake(ws *websocket.Conn) (*Conn, error) {
	if err := ws.SetReadDeadline(time.Now().Add(g.handshakeTimeout)); err != nil {
		return nil, ErrUnauthenticated
	}

	var frame ClientFrame
	if err := ws.ReadJSON(&frame); err != nil {
		metrics.HandshakeFailures.WithLabelValues("timeout").Inc()
		return nil, ErrUnauthenticated
	}
	if frame.Type != FrameAuth || frame.Token == "" {
		metrics.HandshakeFailures.WithLabelValues("bad_frame").Inc()
		return nil, ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.handshakeTimeout)
	defer cancel()

	identity, err := g.verifier.Verify(ctx, frame.Token)
	if err != nil {
		metrics.HandshakeFailures.WithLabelValues("unauthenticated").Inc()
		return nil, ErrUnauthenticated
	}

	profile, err := g.profiles.GetProfileBySubject(ctx, identity.Subject)
	if err != nil || profile == nil {
		metrics.HandshakeFailures.WithLabelValues("unauthenticated").Inc()
		return nil, ErrUnauthenticated
	}
	if identity.DisplayName == "" {
		identity.DisplayName = profile.DisplayName
	}

	connID := uuid.NewString()
	return &Conn{
		id:        connID,
		identity:  *identity,
		profileID: profile.ID,
		ws:        ws,
		send:      make(chan []byte, g.sendBuffer),
		gw:        g,
		log:       g.log.With().Str("conn_id", connID).Logger(),
	}, nil
}

func (g *Gateway) rejectHandshake(ws *websocket.Conn, err error) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.TextMessage, errorFrame(CodeFor(err), "authentication required"))
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"))
	_ = ws.Close()
}

// dispatch routes one inbound frame. Frames from a single connection arrive
// through its readPump, so Join/Leave/Send from the same connection are
// ordered by arrival.
func (g *Gateway) dispatch(c *Conn, frame ClientFrame) {
	switch frame.Type {
	case FrameJoin:
		g.handleJoin(c, frame.RoomID)
	case FrameLeave:
		g.registry.RemoveMember(frame.RoomID, c.id)
	case FrameSend:
		if _, err := g.ingest.Submit(context.Background(), c, frame.RoomID, frame.Content); err != nil {
			c.trySend(errorFrame(CodeFor(err), err.Error()))
		}
	case FrameAuth:
		// exactly one authentication attempt per connection
		c.trySend(errorFrame(CodeBadFrame, "already authenticated"))
	default:
		c.trySend(errorFrame(CodeBadFrame, "unknown frame type"))
	}
}

// handleJoin authorizes the connection against the room's participant set
// and registers the membership. Idempotent: re-joining is a no-op that
// still acks with joined{room}.
func (g *Gateway) handleJoin(c *Conn, roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.handshakeTimeout)
	defer cancel()

	room, err := g.rooms.get(ctx, roomID)
	if err != nil {
		c.trySend(errorFrame(CodeFor(err), err.Error()))
		return
	}
	if !room.HasParticipant(c.profileID) {
		c.trySend(errorFrame(CodeNotAMember, "not a participant of this room"))
		return
	}

	g.registry.AddMember(roomID, c.id)
	c.trySend(joinedFrame(roomID))
}

// disconnect is the single cleanup path for every way a connection ends.
// It removes the connection from all joined rooms unconditionally, then
// drops it from the table and closes its send channel.
func (g *Gateway) disconnect(c *Conn) {
	rooms := g.registry.RemoveConnection(c.id)
	g.table.remove(c.id)
	c.shutdown()

	g.log.Info().
		Str("conn_id", c.id).
		Int("rooms", len(rooms)).
		Msg("connection closed")
}

// Shutdown closes every live connection and waits for cleanup, bounded by
// the context.
func (g *Gateway) Shutdown(ctx context.Context) error {
	for _, c := range g.table.snapshot() {
		c.closeTransport()
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if len(g.table.snapshot()) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// roomCache is a read-through cache over the room collaborator so steady
// state joins stay off the database. Participant-set changes become visible
// within the TTL; negative lookups are not cached so a freshly provisioned
// room is joinable immediately.
type roomCache struct {
	dir RoomDirectory
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]roomCacheEntry
}

type roomCacheEntry struct {
	room    *models.Room
	expires time.Time
}

func newRoomCache(dir RoomDirectory, ttl time.Duration) *roomCache {
	return &roomCache{dir: dir, ttl: ttl, entries: make(map[string]roomCacheEntry)}
}

func (rc *roomCache) get(ctx context.Context, roomID string) (*models.Room, error) {
	rc.mu.RLock()
	entry, ok := rc.entries[roomID]
	rc.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.room, nil
	}

	id, err := uuid.Parse(roomID)
	if err != nil {
		return nil, ErrRoomNotFound
	}

	room, err := rc.dir.GetRoom(ctx, id)
	if err != nil {
		return nil, ErrPersistenceFailure
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}

	rc.mu.Lock()
	now := time.Now()
	// Misses are bounded by the TTL, so sweeping here keeps the map at
	// rooms joined within roughly one TTL window.
	for id, e := range rc.entries {
		if now.After(e.expires) {
			delete(rc.entries, id)
		}
	}
	rc.entries[roomID] = roomCacheEntry{room: room, expires: now.Add(rc.ttl)}
	rc.mu.Unlock()

	return room, nil
}
