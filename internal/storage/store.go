// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable room and message persistence.
package storage

import (
	"context"

	"github.com/jeranaias/parley/internal/message"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the durable backend for rooms and messages.
//
// Writes may be applied asynchronously on the backend: a read immediately
// following a write is allowed to observe stale data. Callers that need
// read-after-write visibility should go through the Persister.
//
// DeleteRoom and DeleteMessage are idempotent: deleting something already
// deleted (or never created) succeeds silently.
type Store interface {
	// CreateRoom persists a new room.
	CreateRoom(ctx context.Context, room *message.Room) error

	// GetRoom returns a room by ID, or ErrRoomNotFound.
	GetRoom(ctx context.Context, id string) (*message.Room, error)

	// ListRooms returns all live rooms for a user, most recent first.
	ListRooms(ctx context.Context, userID string) ([]*message.Room, error)

	// SearchRooms returns a user's live rooms whose name or message
	// content matches the query, most recent first.
	SearchRooms(ctx context.Context, userID, query string) ([]*message.Room, error)

	// CreateMessage persists a message keyed by its local ID. The
	// backend-assigned remote ID becomes readable once the write is
	// visible; it is not returned here.
	CreateMessage(ctx context.Context, m *message.Message) error

	// UpdateMessage rewrites content and state for an existing message,
	// or returns ErrMessageNotFound.
	UpdateMessage(ctx context.Context, m *message.Message) error

	// GetMessage returns a message by local ID if the write is visible,
	// or ErrMessageNotFound.
	GetMessage(ctx context.Context, localID string) (*message.Message, error)

	// ListMessages returns the visible, live messages of a room in
	// creation order.
	ListMessages(ctx context.Context, roomID string) ([]*message.Message, error)

	// DeleteMessage soft-deletes a message. Idempotent.
	DeleteMessage(ctx context.Context, localID string) error

	// DeleteRoom soft-deletes a room and all its messages. Idempotent.
	DeleteRoom(ctx context.Context, id string) error
}

// =============================================================================
// ERRORS
// =============================================================================

// StoreError represents a storage-related error. It implements the error
// interface and can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrRoomNotFound is returned when a room doesn't exist.
	ErrRoomNotFound = &StoreError{Message: "room not found"}

	// ErrMessageNotFound is returned when a message doesn't exist or its
	// write is not yet visible.
	ErrMessageNotFound = &StoreError{Message: "message not found"}

	// ErrStaleReadTimeout means a write was accepted but did not become
	// visible within the poll budget. The write is assumed to have
	// succeeded; only visibility timed out.
	ErrStaleReadTimeout = &StoreError{Message: "write accepted but not yet visible"}
)
