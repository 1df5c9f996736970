package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/campuslink/campuslink/internal/models"
)

// ErrRoomNotFound is returned when a room ID does not exist.
var ErrRoomNotFound = errors.New("store: room not found")

// DataStore defines the interface for persistent storage of profiles and
// rooms. Both PostgresStore and SQLiteStore implement this interface.
// Messages are not stored here; they live in the history store.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Profile operations
	UpsertProfile(ctx context.Context, subject, displayName, email string) (*models.Profile, error)
	GetProfileBySubject(ctx context.Context, subject string) (*models.Profile, error)
	GetProfileByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)

	// Room operations. CreateRoom writes the room and its participant set
	// in one transaction; GetRoom returns the room with participants loaded.
	CreateRoom(ctx context.Context, kind models.RoomKind, displayName string, participants []uuid.UUID) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListRoomsForProfile(ctx context.Context, profileID uuid.UUID) ([]models.Room, error)
	IsParticipant(ctx context.Context, roomID, profileID uuid.UUID) (bool, error)
}
