package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/campuslink/campuslink/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// fallback when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/campuslink.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/campuslink.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		subject TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('dm', 'topic')),
		display_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS room_participants (
		room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		PRIMARY KEY (room_id, profile_id)
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_subject ON profiles(subject);
	CREATE INDEX IF NOT EXISTS idx_participants_profile ON room_participants(profile_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertProfile creates or updates a profile keyed by the external subject.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, subject, displayName, email string) (*models.Profile, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, subject, display_name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject) DO UPDATE
		SET display_name = excluded.display_name,
		    email = excluded.email,
		    updated_at = excluded.updated_at
	`, uuid.New().String(), subject, displayName, email, now, now)
	if err != nil {
		return nil, err
	}
	return s.GetProfileBySubject(ctx, subject)
}

// GetProfileBySubject retrieves a profile by its external subject ID.
func (s *SQLiteStore) GetProfileBySubject(ctx context.Context, subject string) (*models.Profile, error) {
	return s.scanProfile(s.db.QueryRowContext(ctx, `
		SELECT id, subject, display_name, email, created_at, updated_at
		FROM profiles WHERE subject = ?
	`, subject))
}

// GetProfileByID retrieves a profile by ID.
func (s *SQLiteStore) GetProfileByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return s.scanProfile(s.db.QueryRowContext(ctx, `
		SELECT id, subject, display_name, email, created_at, updated_at
		FROM profiles WHERE id = ?
	`, id.String()))
}

func (s *SQLiteStore) scanProfile(row *sql.Row) (*models.Profile, error) {
	profile := &models.Profile{}
	var idStr string
	err := row.Scan(
		&idStr,
		&profile.Subject,
		&profile.DisplayName,
		&profile.Email,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	profile.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// CreateRoom creates a room and its participant set in one transaction.
func (s *SQLiteStore) CreateRoom(ctx context.Context, kind models.RoomKind, displayName string, participants []uuid.UUID) (*models.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id := uuid.New()
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (id, kind, display_name, created_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), string(kind), displayName, now)
	if err != nil {
		return nil, err
	}

	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO room_participants (room_id, profile_id)
			VALUES (?, ?)
		`, id.String(), p.String()); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.Room{
		ID:           id,
		Kind:         kind,
		DisplayName:  displayName,
		Participants: participants,
		CreatedAt:    now,
	}, nil
}

// GetRoom retrieves a room with its participants loaded.
func (s *SQLiteStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	var idStr, kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, display_name, created_at
		FROM rooms WHERE id = ?
	`, id.String()).Scan(&idStr, &kind, &room.DisplayName, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	room.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	room.Kind = models.RoomKind(kind)

	room.Participants, err = s.roomParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *SQLiteStore) roomParticipants(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT profile_id FROM room_participants WHERE room_id = ?
	`, roomID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []uuid.UUID
	for rows.Next() {
		var pStr string
		if err := rows.Scan(&pStr); err != nil {
			return nil, err
		}
		p, err := uuid.Parse(pStr)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// ListRoomsForProfile retrieves all rooms the profile participates in.
func (s *SQLiteStore) ListRoomsForProfile(ctx context.Context, profileID uuid.UUID) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.kind, r.display_name, r.created_at
		FROM rooms r
		JOIN room_participants rp ON rp.room_id = r.id
		WHERE rp.profile_id = ?
		ORDER BY r.created_at DESC
	`, profileID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		var idStr, kind string
		if err := rows.Scan(&idStr, &kind, &room.DisplayName, &room.CreatedAt); err != nil {
			return nil, err
		}
		room.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		room.Kind = models.RoomKind(kind)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range rooms {
		rooms[i].Participants, err = s.roomParticipants(ctx, rooms[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return rooms, nil
}

// IsParticipant reports whether the profile is in the room's participant set.
func (s *SQLiteStore) IsParticipant(ctx context.Context, roomID, profileID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM room_participants
		WHERE room_id = ? AND profile_id = ?
	`, roomID.String(), profileID.String()).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
