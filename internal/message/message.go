// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package message contains the data structures for rooms and messages.
package message

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// STATE TYPE
// =============================================================================

// State represents where a message is in its lifecycle.
type State string

const (
	// StatePending is an optimistic, not yet persisted user message.
	StatePending State = "pending"
	// StatePersisting means the user message write is in flight.
	StatePersisting State = "persistingUser"
	// StateAwaitingModel means the model call is in flight.
	StateAwaitingModel State = "awaitingModel"
	// StateLoading is the placeholder assistant message shown while waiting.
	StateLoading State = "loading"
	// StateAnimating means the reveal animation is running.
	StateAnimating State = "animating"
	// StateCompleted is the terminal success state.
	StateCompleted State = "completed"
	// StateError is the terminal failure state; Message.ErrorReason is set.
	StateError State = "error"
	// StateDeleted marks a soft-deleted message.
	StateDeleted State = "deleted"
)

// Terminal reports whether the state is a resting state. A room may hold at
// most one message in a non-terminal state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateError, StateDeleted:
		return true
	default:
		return false
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a room.
//
// Identity is two-field: LocalID is generated at submission time and stays
// stable across the optimistic-to-persisted transition; RemoteID is filled
// in once the backend commits the message and never replaces LocalID.
type Message struct {
	// Identity
	LocalID  string `json:"local_id"`
	RemoteID string `json:"remote_id,omitempty"`
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id,omitempty"`

	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Lifecycle
	State       State  `json:"state"`
	ErrorReason string `json:"error_reason,omitempty"`

	// Revealed is the animation cursor: how many runes of Content are
	// currently visible. Presentation only; never affects persistence.
	Revealed int `json:"-"`

	// Generation distinguishes one send/regenerate attempt from a later
	// one so stale asynchronous results can be discarded.
	Generation uint64 `json:"-"`
}

// NewMessage creates a new message with a generated local ID.
func NewMessage(roomID string, role Role, content string) *Message {
	return &Message{
		LocalID:   uuid.NewString(),
		RoomID:    roomID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
		State:     StatePending,
	}
}

// NewUserMessage creates a pending user message.
func NewUserMessage(roomID, userID, content string) *Message {
	m := NewMessage(roomID, RoleUser, content)
	m.UserID = userID
	return m
}

// NewLoadingMessage creates the placeholder assistant message published
// alongside an optimistic user message.
func NewLoadingMessage(roomID string) *Message {
	m := NewMessage(roomID, RoleAssistant, "")
	m.State = StateLoading
	return m
}

// Clone returns a shallow copy. State records published through the store
// are never mutated in place; writers clone, modify, and re-publish.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// VisibleContent returns the revealed portion of the content while the
// message is animating, and the full content otherwise.
func (m *Message) VisibleContent() string {
	if m.State != StateAnimating {
		return m.Content
	}
	runes := []rune(m.Content)
	if m.Revealed >= len(runes) {
		return m.Content
	}
	if m.Revealed <= 0 {
		return ""
	}
	return string(runes[:m.Revealed])
}

// EstimateTokens gives a rough estimate of the message's token count.
func (m *Message) EstimateTokens() int {
	return EstimateTokens(m.Content)
}
