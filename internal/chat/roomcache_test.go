package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campuslink/campuslink/internal/models"
)

type countingDirectory struct {
	inner RoomDirectory
	calls atomic.Int32
	fail  bool
}

func (d *countingDirectory) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	d.calls.Add(1)
	if d.fail {
		return nil, errors.New("db down")
	}
	return d.inner.GetRoom(ctx, id)
}

func TestRoomCacheReadThrough(t *testing.T) {
	dirs := newFakeDirectory()
	room := dirs.addRoom(models.RoomKindTopic, uuid.New())
	counting := &countingDirectory{inner: dirs}
	cache := newRoomCache(counting, time.Minute)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		got, err := cache.get(ctx, room.ID.String())
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != room.ID {
			t.Fatalf("wrong room: %v", got.ID)
		}
	}

	if n := counting.calls.Load(); n != 1 {
		t.Fatalf("expected 1 backing lookup, got %d", n)
	}
}

func TestRoomCacheExpiry(t *testing.T) {
	dirs := newFakeDirectory()
	room := dirs.addRoom(models.RoomKindTopic, uuid.New())
	counting := &countingDirectory{inner: dirs}
	cache := newRoomCache(counting, 10*time.Millisecond)

	ctx := context.Background()
	if _, err := cache.get(ctx, room.ID.String()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := cache.get(ctx, room.ID.String()); err != nil {
		t.Fatal(err)
	}

	if n := counting.calls.Load(); n != 2 {
		t.Fatalf("expected 2 backing lookups after expiry, got %d", n)
	}
}

func TestRoomCacheEvictsExpiredEntries(t *testing.T) {
	dirs := newFakeDirectory()
	roomA := dirs.addRoom(models.RoomKindTopic, uuid.New())
	roomB := dirs.addRoom(models.RoomKindTopic, uuid.New())
	cache := newRoomCache(dirs, 10*time.Millisecond)

	ctx := context.Background()
	if _, err := cache.get(ctx, roomA.ID.String()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	// The next refresh sweeps out entries past their TTL, so the cache
	// holds only rooms touched within the window.
	if _, err := cache.get(ctx, roomB.ID.String()); err != nil {
		t.Fatal(err)
	}

	cache.mu.RLock()
	defer cache.mu.RUnlock()
	if len(cache.entries) != 1 {
		t.Fatalf("expected stale entry evicted, cache holds %d", len(cache.entries))
	}
	if _, ok := cache.entries[roomA.ID.String()]; ok {
		t.Fatal("expired entry still cached")
	}
}

func TestRoomCacheNegativeNotCached(t *testing.T) {
	dirs := newFakeDirectory()
	counting := &countingDirectory{inner: dirs}
	cache := newRoomCache(counting, time.Minute)

	ctx := context.Background()
	missing := uuid.NewString()
	for i := 0; i < 2; i++ {
		if _, err := cache.get(ctx, missing); !errors.Is(err, ErrRoomNotFound) {
			t.Fatalf("expected ErrRoomNotFound, got %v", err)
		}
	}

	// A freshly provisioned room must be joinable immediately, so misses
	// always go to the backing store.
	if n := counting.calls.Load(); n != 2 {
		t.Fatalf("expected 2 backing lookups, got %d", n)
	}
}

func TestRoomCacheMalformedID(t *testing.T) {
	cache := newRoomCache(newFakeDirectory(), time.Minute)
	if _, err := cache.get(context.Background(), "not-a-uuid"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestRoomCacheStoreFailure(t *testing.T) {
	counting := &countingDirectory{inner: newFakeDirectory(), fail: true}
	cache := newRoomCache(counting, time.Minute)
	if _, err := cache.get(context.Background(), uuid.NewString()); !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
}
