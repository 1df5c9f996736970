package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslink/campuslink/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		subject TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		kind TEXT NOT NULL CHECK (kind IN ('dm', 'topic')),
		display_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS room_participants (
		room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		profile_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		PRIMARY KEY (room_id, profile_id)
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_subject ON profiles(subject);
	CREATE INDEX IF NOT EXISTS idx_participants_profile ON room_participants(profile_id);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertProfile creates or updates a profile keyed by the external subject.
func (s *PostgresStore) UpsertProfile(ctx context.Context, subject, displayName, email string) (*models.Profile, error) {
	profile := &models.Profile{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO profiles (subject, display_name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    email = EXCLUDED.email,
		    updated_at = NOW()
		RETURNING id, subject, display_name, email, created_at, updated_at
	`, subject, displayName, email).Scan(
		&profile.ID,
		&profile.Subject,
		&profile.DisplayName,
		&profile.Email,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// GetProfileBySubject retrieves a profile by its external subject ID.
func (s *PostgresStore) GetProfileBySubject(ctx context.Context, subject string) (*models.Profile, error) {
	profile := &models.Profile{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, subject, display_name, email, created_at, updated_at
		FROM profiles WHERE subject = $1
	`, subject).Scan(
		&profile.ID,
		&profile.Subject,
		&profile.DisplayName,
		&profile.Email,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return profile, nil
}

// GetProfileByID retrieves a profile by ID.
func (s *PostgresStore) GetProfileByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profile := &models.Profile{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, subject, display_name, email, created_at, updated_at
		FROM profiles WHERE id = $1
	`, id).Scan(
		&profile.ID,
		&profile.Subject,
		&profile.DisplayName,
		&profile.Email,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return profile, nil
}

// CreateRoom creates a room and its participant set in one transaction.
func (s *PostgresStore) CreateRoom(ctx context.Context, kind models.RoomKind, displayName string, participants []uuid.UUID) (*models.Room, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	room := &models.Room{Kind: kind, DisplayName: displayName}
	err = tx.QueryRow(ctx, `
		INSERT INTO rooms (kind, display_name)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, string(kind), displayName).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, p := range participants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO room_participants (room_id, profile_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, room.ID, p); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	room.Participants = participants
	return room, nil
}

// GetRoom retrieves a room with its participants loaded.
func (s *PostgresStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	var kind string
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, display_name, created_at
		FROM rooms WHERE id = $1
	`, id).Scan(&room.ID, &kind, &room.DisplayName, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	room.Kind = models.RoomKind(kind)

	rows, err := s.pool.Query(ctx, `
		SELECT profile_id FROM room_participants WHERE room_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p uuid.UUID
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		room.Participants = append(room.Participants, p)
	}

	return room, rows.Err()
}

// ListRoomsForProfile retrieves all rooms the profile participates in.
func (s *PostgresStore) ListRoomsForProfile(ctx context.Context, profileID uuid.UUID) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.kind, r.display_name, r.created_at
		FROM rooms r
		JOIN room_participants rp ON rp.room_id = r.id
		WHERE rp.profile_id = $1
		ORDER BY r.created_at DESC
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		var kind string
		if err := rows.Scan(&room.ID, &kind, &room.DisplayName, &room.CreatedAt); err != nil {
			return nil, err
		}
		room.Kind = models.RoomKind(kind)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range rooms {
		prows, err := s.pool.Query(ctx, `
			SELECT profile_id FROM room_participants WHERE room_id = $1
		`, rooms[i].ID)
		if err != nil {
			return nil, err
		}
		for prows.Next() {
			var p uuid.UUID
			if err := prows.Scan(&p); err != nil {
				prows.Close()
				return nil, err
			}
			rooms[i].Participants = append(rooms[i].Participants, p)
		}
		if err := prows.Err(); err != nil {
			prows.Close()
			return nil, err
		}
		prows.Close()
	}

	return rooms, nil
}

// IsParticipant reports whether the profile is in the room's participant set.
func (s *PostgresStore) IsParticipant(ctx context.Context, roomID, profileID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM room_participants
			WHERE room_id = $1 AND profile_id = $2
		)
	`, roomID, profileID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
