package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/campuslink/campuslink/internal/metrics"
	"github.com/campuslink/campuslink/internal/models"
)

// History is the durable message store boundary: atomic per-room append
// with sequence assignment, and ordered reads for reconnect catch-up.
type History interface {
	Append(ctx context.Context, roomID string, msg *models.Message) (uint64, error)
	List(ctx context.Context, roomID string, afterSeq uint64, limit int) ([]models.Message, error)
}

const ingestStripes = 64

// Ingest validates inbound messages, persists them with a per-room sequence
// number, and hands them to fan-out. Submissions to the same room are
// serialized through striped locks; different rooms proceed in parallel.
type Ingest struct {
	registry *Registry
	history  History
	fanout   *Fanout

	locks [ingestStripes]sync.Mutex

	appendTimeout   time.Duration
	maxContentBytes int

	log zerolog.Logger
}

// NewIngest creates the ingest component. appendTimeout bounds a single
// history append so a stalled store cannot hold the room's serialization
// point; maxContentBytes caps content length after trimming.
func NewIngest(registry *Registry, history History, fanout *Fanout, appendTimeout time.Duration, maxContentBytes int, log zerolog.Logger) *Ingest {
	return &Ingest{
		registry:        registry,
		history:         history,
		fanout:          fanout,
		appendTimeout:   appendTimeout,
		maxContentBytes: maxContentBytes,
		log:             log,
	}
}

func (in *Ingest) stripe(roomID string) *sync.Mutex {
	return &in.locks[hashKey(roomID)%ingestStripes]
}

// Submit validates, persists, and fans out one message. Membership is
// re-checked at submit time, not cached from join time. On any error the
// message is not observable: nothing was persisted and nothing fanned out.
func (in *Ingest) Submit(ctx context.Context, conn *Conn, roomID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		metrics.IngestRejected.WithLabelValues("empty").Inc()
		return nil, ErrEmptyContent
	}
	if len(content) > in.maxContentBytes {
		metrics.IngestRejected.WithLabelValues("too_large").Inc()
		return nil, ErrMessageTooLarge
	}
	if !in.registry.Contains(roomID, conn.id) {
		metrics.IngestRejected.WithLabelValues("not_a_member").Inc()
		return nil, ErrNotAMember
	}

	mu := in.stripe(roomID)
	mu.Lock()
	defer mu.Unlock()

	// The sender may have left (or been disconnected) while waiting for
	// the room lock; re-check under it.
	if !in.registry.Contains(roomID, conn.id) {
		metrics.IngestRejected.WithLabelValues("not_a_member").Inc()
		return nil, ErrNotAMember
	}

	msg := &models.Message{
		ID:         ulid.Make().String(),
		RoomID:     roomID,
		SenderID:   conn.profileID.String(),
		SenderName: conn.identity.DisplayName,
		Content:    content,
		CreatedAt:  time.Now().UnixMilli(),
	}

	actx, cancel := context.WithTimeout(ctx, in.appendTimeout)
	defer cancel()

	start := time.Now()
	seq, err := in.history.Append(actx, roomID, msg)
	metrics.AppendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IngestRejected.WithLabelValues("persistence").Inc()
		in.log.Error().Err(err).Str("room_id", roomID).Msg("history append failed")
		return nil, ErrPersistenceFailure
	}
	msg.Seq = seq

	// Publish while still holding the room lock: per-room enqueue order
	// equals sequence order for every recipient.
	in.fanout.Publish(msg)
	metrics.MessagesIngested.Inc()

	return msg, nil
}
