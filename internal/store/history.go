package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/campuslink/campuslink/internal/models"
)

// appendScript assigns the next per-room sequence number and stores the
// message in the room's sorted set, scored by that number, in one atomic
// Redis call. The counter only advances when the append succeeds, which is
// what keeps the sequence gap-free.
var appendScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
local msg = cjson.decode(ARGV[1])
msg['seq'] = seq
redis.call('ZADD', KEYS[2], seq, cjson.encode(msg))
return seq
`)

// RedisHistory is the durable message history: append with atomic sequence
// assignment, and ordered paginated reads for reconnect catch-up.
type RedisHistory struct {
	client *redis.Client
}

// NewRedisHistory creates a new Redis-backed history store.
func NewRedisHistory(ctx context.Context, redisURL string) (*RedisHistory, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisHistory{client: client}, nil
}

// Close closes the Redis connection.
func (h *RedisHistory) Close() error {
	return h.client.Close()
}

// Ping checks the Redis connection.
func (h *RedisHistory) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

// Client exposes the underlying Redis client for components that share the
// connection, such as the rate limiter.
func (h *RedisHistory) Client() *redis.Client {
	return h.client
}

// roomSeqKey returns the key for a room's sequence counter.
func roomSeqKey(roomID string) string {
	return fmt.Sprintf("room:%s:seq", roomID)
}

// roomMessagesKey returns the key for a room's message sorted set.
func roomMessagesKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

// Append persists the message and returns its assigned sequence number.
// The message's Seq field is ignored on input; callers should treat the
// message as unpersisted unless Append returns nil error.
func (h *RedisHistory) Append(ctx context.Context, roomID string, msg *models.Message) (uint64, error) {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	keys := []string{roomSeqKey(roomID), roomMessagesKey(roomID)}
	seq, err := appendScript.Run(ctx, h.client, keys, string(data)).Int64()
	if err != nil {
		return 0, err
	}

	return uint64(seq), nil
}

// List returns up to limit messages with sequence numbers strictly greater
// than afterSeq, in ascending sequence order. The afterSeq cursor makes the
// read restartable and idempotent while no new message is appended.
func (h *RedisHistory) List(ctx context.Context, roomID string, afterSeq uint64, limit int) ([]models.Message, error) {
	results, err := h.client.ZRangeByScore(ctx, roomMessagesKey(roomID), &redis.ZRangeBy{
		Min:   fmt.Sprintf("(%d", afterSeq), // exclusive
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}
