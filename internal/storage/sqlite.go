// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable room and message persistence.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/parley/internal/message"
)

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore implements Store on an embedded SQLite database.
//
// The backend applies writes with a configurable visibility delay: a row
// becomes readable only once its visible_at timestamp has passed. A zero
// delay gives ordinary read-after-write behavior; tests raise it to
// exercise the replication-lag handling in the Persister.
type SQLiteStore struct {
	db *sql.DB

	// VisibilityDelay is how long after a write the row stays invisible
	// to reads. Models backend replication lag.
	VisibilityDelay time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	local_id     TEXT NOT NULL UNIQUE,
	room_id      TEXT NOT NULL,
	user_id      TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL,
	error_reason TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	visible_at   INTEGER NOT NULL,
	deleted      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, seq);
`

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes access through one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) visibleAt(now time.Time) int64 {
	return now.Add(s.VisibilityDelay).UnixNano()
}

// =============================================================================
// ROOM OPERATIONS
// =============================================================================

// CreateRoom persists a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *message.Room) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, model, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		room.ID, room.Name, room.Model, room.UserID,
		room.CreatedAt.UnixNano(), room.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// GetRoom returns a room by ID, or ErrRoomNotFound.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*message.Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, model, user_id, created_at, updated_at FROM rooms WHERE id = ? AND deleted = 0`, id)

	var r message.Room
	var created, updated int64
	if err := row.Scan(&r.ID, &r.Name, &r.Model, &r.UserID, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to read room: %w", err)
	}
	r.CreatedAt = time.Unix(0, created)
	r.UpdatedAt = time.Unix(0, updated)
	return &r, nil
}

// ListRooms returns all live rooms for a user, most recently updated first.
func (s *SQLiteStore) ListRooms(ctx context.Context, userID string) ([]*message.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, model, user_id, created_at, updated_at FROM rooms
		 WHERE user_id = ? AND deleted = 0 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var out []*message.Room
	for rows.Next() {
		var r message.Room
		var created, updated int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Model, &r.UserID, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		r.CreatedAt = time.Unix(0, created)
		r.UpdatedAt = time.Unix(0, updated)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SearchRooms returns a user's live rooms whose name or any live message
// content matches the query, case-insensitively, most recently updated
// first.
func (s *SQLiteStore) SearchRooms(ctx context.Context, userID, query string) ([]*message.Room, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT r.id, r.name, r.model, r.user_id, r.created_at, r.updated_at
		 FROM rooms r
		 LEFT JOIN messages m ON m.room_id = r.id AND m.deleted = 0
		 WHERE r.user_id = ? AND r.deleted = 0
		   AND (r.name LIKE ? OR m.content LIKE ?)
		 ORDER BY r.updated_at DESC`,
		userID, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search rooms: %w", err)
	}
	defer rows.Close()

	var out []*message.Room
	for rows.Next() {
		var r message.Room
		var created, updated int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Model, &r.UserID, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		r.CreatedAt = time.Unix(0, created)
		r.UpdatedAt = time.Unix(0, updated)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteRoom soft-deletes a room and its messages. Idempotent: deleting an
// unknown or already-deleted room succeeds silently.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE rooms SET deleted = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE messages SET deleted = 1 WHERE room_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete room messages: %w", err)
	}
	return nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// CreateMessage persists a message keyed by its local ID. The row becomes
// visible to reads after the configured visibility delay.
func (s *SQLiteStore) CreateMessage(ctx context.Context, m *message.Message) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (local_id, room_id, user_id, role, content, state, error_reason, created_at, visible_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.LocalID, m.RoomID, m.UserID, string(m.Role), m.Content, string(m.State),
		m.ErrorReason, m.CreatedAt.UnixNano(), s.visibleAt(now))
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE rooms SET updated_at = ? WHERE id = ?`,
		now.UnixNano(), m.RoomID)
	if err != nil {
		return fmt.Errorf("failed to touch room: %w", err)
	}
	return nil
}

// UpdateMessage rewrites content, state and error reason for an existing
// message identified by local ID.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, m *message.Message) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, state = ?, error_reason = ? WHERE local_id = ? AND deleted = 0`,
		m.Content, string(m.State), m.ErrorReason, m.LocalID)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// GetMessage returns a message by local ID once its write is visible.
func (s *SQLiteStore) GetMessage(ctx context.Context, localID string) (*message.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT seq, local_id, room_id, user_id, role, content, state, error_reason, created_at
		 FROM messages WHERE local_id = ? AND deleted = 0 AND visible_at <= ?`,
		localID, time.Now().UnixNano())
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListMessages returns the visible, live messages of a room in creation
// (sequence) order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string) ([]*message.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, local_id, room_id, user_id, role, content, state, error_reason, created_at
		 FROM messages WHERE room_id = ? AND deleted = 0 AND visible_at <= ? ORDER BY seq`,
		roomID, time.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMessage soft-deletes a message. Idempotent.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, localID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE messages SET deleted = 1 WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// =============================================================================
// SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*message.Message, error) {
	var m message.Message
	var seq int64
	var role, state string
	var created int64
	if err := row.Scan(&seq, &m.LocalID, &m.RoomID, &m.UserID, &role, &m.Content, &state, &m.ErrorReason, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	m.RemoteID = strconv.FormatInt(seq, 10)
	m.Role = message.Role(role)
	m.State = message.State(state)
	m.CreatedAt = time.Unix(0, created)
	return &m, nil
}
