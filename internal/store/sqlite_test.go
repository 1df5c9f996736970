package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/campuslink/campuslink/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestUpsertProfileIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertProfile(ctx, "subj-1", "Alice", "alice@campus.edu")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == uuid.Nil || first.Subject != "subj-1" {
		t.Fatalf("unexpected profile: %+v", first)
	}

	second, err := s.UpsertProfile(ctx, "subj-1", "Alice Z", "alice@campus.edu")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatal("upsert must keep the profile ID stable")
	}
	if second.DisplayName != "Alice Z" {
		t.Fatalf("display name should update, got %q", second.DisplayName)
	}
}

func TestGetProfileMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.GetProfileBySubject(ctx, "nope")
	if err != nil || p != nil {
		t.Fatalf("expected nil, nil for missing subject, got %v, %v", p, err)
	}
	p, err = s.GetProfileByID(ctx, uuid.New())
	if err != nil || p != nil {
		t.Fatalf("expected nil, nil for missing id, got %v, %v", p, err)
	}
}

func TestRoomLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice, _ := s.UpsertProfile(ctx, "subj-a", "Alice", "")
	bob, _ := s.UpsertProfile(ctx, "subj-b", "Bob", "")
	carol, _ := s.UpsertProfile(ctx, "subj-c", "Carol", "")

	room, err := s.CreateRoom(ctx, models.RoomKindDM, "", []uuid.UUID{alice.ID, bob.ID})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Kind != models.RoomKindDM || len(got.Participants) != 2 {
		t.Fatalf("unexpected room: %+v", got)
	}
	if !got.HasParticipant(alice.ID) || !got.HasParticipant(bob.ID) {
		t.Fatal("participants not loaded")
	}

	for _, tc := range []struct {
		profile uuid.UUID
		want    bool
	}{
		{alice.ID, true},
		{bob.ID, true},
		{carol.ID, false},
	} {
		ok, err := s.IsParticipant(ctx, room.ID, tc.profile)
		if err != nil {
			t.Fatal(err)
		}
		if ok != tc.want {
			t.Fatalf("IsParticipant(%s) = %v, want %v", tc.profile, ok, tc.want)
		}
	}

	rooms, err := s.ListRoomsForProfile(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].ID != room.ID {
		t.Fatalf("unexpected room list: %+v", rooms)
	}
	if len(rooms[0].Participants) != 2 {
		t.Fatal("participant sets should be loaded in listings")
	}

	rooms, err = s.ListRoomsForProfile(ctx, carol.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 0 {
		t.Fatalf("carol should have no rooms, got %+v", rooms)
	}
}

func TestGetRoomMissing(t *testing.T) {
	s := newTestStore(t)
	room, err := s.GetRoom(context.Background(), uuid.New())
	if err != nil || room != nil {
		t.Fatalf("expected nil, nil for missing room, got %v, %v", room, err)
	}
}
