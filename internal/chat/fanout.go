package chat

import (
	"github.com/rs/zerolog"

	"github.com/campuslink/campuslink/internal/metrics"
	"github.com/campuslink/campuslink/internal/models"
)

// Fanout delivers persisted messages to every live member of the message's
// room. Delivery per recipient is fire-and-forget: a slow or closed
// recipient is skipped, never retried, and never surfaced to the sender.
type Fanout struct {
	registry *Registry
	conns    *connTable
	log      zerolog.Logger
}

// NewFanout creates a fan-out engine over the given registry and
// connection table.
func NewFanout(registry *Registry, conns *connTable, log zerolog.Logger) *Fanout {
	return &Fanout{registry: registry, conns: conns, log: log}
}

// Publish pushes a persisted message to the room's current members and
// returns how many deliveries were enqueued. Callers must only publish
// messages that the history store accepted; Ingest invokes Publish inside
// the room's serialization window, so frames are enqueued to each recipient
// in sequence order.
func (f *Fanout) Publish(msg *models.Message) int {
	payload := messageFrame(msg)

	delivered := 0
	for _, connID := range f.registry.MembersOf(msg.RoomID) {
		c := f.conns.get(connID)
		if c == nil {
			// disconnect raced the snapshot; cleanup owns the entry
			continue
		}
		if c.trySend(payload) {
			delivered++
		} else {
			metrics.FanoutDropped.Inc()
			f.log.Debug().
				Str("conn_id", connID).
				Str("room_id", msg.RoomID).
				Uint64("seq", msg.Seq).
				Msg("delivery dropped")
		}
	}

	metrics.FanoutDelivered.Add(float64(delivered))
	return delivered
}
