package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chalayga/meetsync-server/internal/store"
)

// Schema creates the tables the room store needs. Participants are kept
// in their own table but always written together with their room inside
// one transaction, so readers only ever observe whole documents.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id          TEXT PRIMARY KEY,
	code        TEXT NOT NULL UNIQUE,
	host_id     TEXT NOT NULL,
	host_name   TEXT NOT NULL,
	type        TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'open',
	loc_name    TEXT,
	loc_address TEXT,
	loc_rating  REAL,
	revision    INTEGER NOT NULL DEFAULT 1,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS participants (
	room_id  TEXT NOT NULL,
	position INTEGER NOT NULL,
	user_id  TEXT NOT NULL,
	name     TEXT NOT NULL,
	username TEXT NOT NULL,
	vote     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (room_id, user_id),
	FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_rooms_host ON rooms(host_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_participants_room ON participants(room_id, position);
`

// SQLiteStore implements store.RoomStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup opens the database and runs a setup function instead of
// the default schema. Useful for tests.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRoom persists a new room and its participants at revision 1.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var loc struct {
		name, address sql.NullString
		rating        sql.NullFloat64
	}
	if room.SelectedLocation != nil {
		loc.name = sql.NullString{String: room.SelectedLocation.Name, Valid: true}
		loc.address = sql.NullString{String: room.SelectedLocation.Address, Valid: true}
		loc.rating = sql.NullFloat64{Float64: room.SelectedLocation.Rating, Valid: true}
	}

	query := `
		INSERT INTO rooms (id, code, host_id, host_name, type, title, status, loc_name, loc_address, loc_rating, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`
	status := room.Status
	if status == "" {
		status = store.RoomStatusOpen
	}
	if _, err := tx.ExecContext(ctx, query,
		room.ID, room.Code, room.HostID, room.HostName, room.Type, room.Title,
		status, loc.name, loc.address, loc.rating,
	); err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	if err := insertParticipants(ctx, tx, room.ID, room.Participants); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetRoom(ctx, room.ID)
}

// GetRoom retrieves a room by id.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	return s.getRoomWhere(ctx, "id = ?", id)
}

// GetRoomByCode retrieves a room by its join code.
func (s *SQLiteStore) GetRoomByCode(ctx context.Context, code string) (*store.Room, error) {
	return s.getRoomWhere(ctx, "code = ?", code)
}

func (s *SQLiteStore) getRoomWhere(ctx context.Context, where string, arg any) (*store.Room, error) {
	query := `
		SELECT id, code, host_id, host_name, type, title, status,
		       loc_name, loc_address, loc_rating, revision, created_at
		FROM rooms
		WHERE ` + where
	var room store.Room
	var locName, locAddress sql.NullString
	var locRating sql.NullFloat64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&room.ID,
		&room.Code,
		&room.HostID,
		&room.HostName,
		&room.Type,
		&room.Title,
		&room.Status,
		&locName,
		&locAddress,
		&locRating,
		&room.Revision,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	if locName.Valid {
		room.SelectedLocation = &store.Location{
			Name:    locName.String,
			Address: locAddress.String,
			Rating:  locRating.Float64,
		}
	}

	participants, err := s.listParticipants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	room.Participants = participants

	return &room, nil
}

// ReplaceRoom atomically replaces the whole room document and bumps its
// revision. Participant rows are rewritten inside the same transaction.
func (s *SQLiteStore) ReplaceRoom(ctx context.Context, id string, room *store.Room) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var loc struct {
		name, address sql.NullString
		rating        sql.NullFloat64
	}
	if room.SelectedLocation != nil {
		loc.name = sql.NullString{String: room.SelectedLocation.Name, Valid: true}
		loc.address = sql.NullString{String: room.SelectedLocation.Address, Valid: true}
		loc.rating = sql.NullFloat64{Float64: room.SelectedLocation.Rating, Valid: true}
	}

	query := `
		UPDATE rooms
		SET code = ?, host_id = ?, host_name = ?, type = ?, title = ?,
		    status = ?, loc_name = ?, loc_address = ?, loc_rating = ?,
		    revision = revision + 1
		WHERE id = ?
	`
	result, err := tx.ExecContext(ctx, query,
		room.Code, room.HostID, room.HostName, room.Type, room.Title,
		room.Status, loc.name, loc.address, loc.rating, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("room: %w", store.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE room_id = ?`, id); err != nil {
		return nil, fmt.Errorf("clear participants: %w", err)
	}
	if err := insertParticipants(ctx, tx, id, room.Participants); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetRoom(ctx, id)
}

// ListRoomsByHost lists rooms created by the given host, newest first.
func (s *SQLiteStore) ListRoomsByHost(ctx context.Context, hostID string) ([]*store.Room, error) {
	query := `
		SELECT id FROM rooms
		WHERE host_id = ?
		ORDER BY created_at DESC, id
	`
	rows, err := s.db.QueryContext(ctx, query, hostID)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	rooms := make([]*store.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.GetRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *SQLiteStore) listParticipants(ctx context.Context, roomID string) ([]store.Participant, error) {
	query := `
		SELECT user_id, name, username, vote
		FROM participants
		WHERE room_id = ?
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []store.Participant
	for rows.Next() {
		var p store.Participant
		if err := rows.Scan(&p.UserID, &p.Name, &p.Username, &p.Vote); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

func insertParticipants(ctx context.Context, tx *sql.Tx, roomID string, participants []store.Participant) error {
	query := `
		INSERT INTO participants (room_id, position, user_id, name, username, vote)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for i, p := range participants {
		if _, err := tx.ExecContext(ctx, query, roomID, i, p.UserID, p.Name, p.Username, p.Vote); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return nil
}
