// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package message contains the data structures for rooms and messages.
package message

import (
	"time"

	"github.com/google/uuid"
)

// NewRoomKey is the sentinel room key meaning "create a new room on first
// send". The orchestrator replaces it with a real room ID once the backend
// creates the room.
const NewRoomKey = "new"

// =============================================================================
// ROOM TYPE
// =============================================================================

// Room associates a sequence of messages with a selected model.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRoom creates a room with a generated ID.
func NewRoom(userID, model, name string) *Room {
	now := time.Now()
	return &Room{
		ID:        uuid.NewString(),
		Name:      name,
		Model:     model,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// ROOM STATE
// =============================================================================

// RoomState is the record published through the state store for one room
// key. It is treated as immutable: the orchestrator clones, modifies, and
// re-publishes rather than mutating in place.
type RoomState struct {
	Room     *Room
	Messages []*Message
}

// Clone returns a copy with a fresh message slice. Individual messages are
// shared until a writer clones the one it modifies.
func (rs *RoomState) Clone() *RoomState {
	msgs := make([]*Message, len(rs.Messages))
	copy(msgs, rs.Messages)
	return &RoomState{Room: rs.Room, Messages: msgs}
}

// Find returns the message with the given local ID, or nil.
func (rs *RoomState) Find(localID string) *Message {
	for _, m := range rs.Messages {
		if m.LocalID == localID {
			return m
		}
	}
	return nil
}

// InFlight returns the message currently in a non-terminal state, or nil.
// At most one such message exists per room.
func (rs *RoomState) InFlight() *Message {
	for _, m := range rs.Messages {
		if !m.State.Terminal() {
			return m
		}
	}
	return nil
}
