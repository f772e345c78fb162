// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator coordinates the message lifecycle for chat rooms.
package orchestrator

import (
	"context"

	"github.com/jeranaias/parley/internal/kv"
	"github.com/jeranaias/parley/internal/message"
)

// =============================================================================
// ROOM NAVIGATION
// =============================================================================

// OpenRoom loads a room's durable history into the state store and
// returns the published state. An active send for the room is left
// untouched; the optimistic view stays authoritative until it resolves.
func (o *Orchestrator) OpenRoom(ctx context.Context, roomID string) (*message.RoomState, error) {
	room, err := o.persister.Store().GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	msgs, err := o.persister.ListMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		normalizeLoaded(m)
	}

	o.mu.Lock()
	if _, busy := o.flights[roomID]; !busy {
		o.publishLocked(roomID, func(rs *message.RoomState) {
			rs.Room = room
			rs.Messages = msgs
		})
	}
	st, _ := o.states.Get(roomID)
	o.mu.Unlock()

	if o.prefs != nil {
		o.prefs.SetItem(kv.KeyLastRoom, roomID)
	}
	return st, nil
}

// LeaveRoom is called when the user navigates away. A running reveal is
// cancelled and fast-forwarded: the full content is already durably
// written, so the message simply completes. An earlier-stage operation
// (persisting or awaiting the model) is cancelled and both its messages
// settle, the assistant placeholder and a still-persisting user message
// marked errored so the room is usable and offers a retry on return.
func (o *Orchestrator) LeaveRoom(roomKey string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f := o.flights[roomKey]
	if f == nil {
		return
	}
	f.cancel()
	delete(o.flights, roomKey)
	o.settleUserLocked(roomKey, f)

	cur, ok := o.states.Get(roomKey)
	if !ok {
		return
	}
	asst := cur.Find(f.asstID)
	if asst == nil {
		return
	}

	done := asst.Clone()
	if f.animating {
		done.State = message.StateCompleted
		done.Revealed = len([]rune(done.Content))
	} else {
		done.State = message.StateError
		done.ErrorReason = "cancelled before completion"
	}
	o.publishLocked(roomKey, func(rs *message.RoomState) {
		setMessage(rs, done)
	})
}

// settleUserLocked marks a cancelled flight's user message errored when it
// never reached a terminal state. Without this a send cancelled during
// persistence would leave the message non-terminal with no operation left
// to advance it, and the room would reject every future send as busy.
// Caller must hold o.mu.
func (o *Orchestrator) settleUserLocked(roomKey string, f *flight) {
	if f.userID == "" {
		return
	}
	cur, ok := o.states.Get(roomKey)
	if !ok {
		return
	}
	user := cur.Find(f.userID)
	if user == nil || user.State.Terminal() {
		return
	}
	done := user.Clone()
	done.State = message.StateError
	done.ErrorReason = "cancelled before completion"
	o.publishLocked(roomKey, func(rs *message.RoomState) {
		setMessage(rs, done)
	})
}

// normalizeLoaded settles a message read from durable storage. A row still
// in a transient state belongs to an operation that no longer exists, so it
// resolves here: content present means the work finished, absent means it
// did not.
func normalizeLoaded(m *message.Message) {
	if m.State.Terminal() {
		return
	}
	if m.Content != "" {
		m.State = message.StateCompleted
		m.Revealed = len([]rune(m.Content))
		return
	}
	m.State = message.StateError
	m.ErrorReason = "interrupted before completion"
}

// ListRooms returns the user's rooms, most recently updated first.
func (o *Orchestrator) ListRooms(ctx context.Context, sess message.Session) ([]*message.Room, error) {
	return o.persister.Store().ListRooms(ctx, sess.UserID)
}

// SearchRooms returns the user's rooms matching the query by name or
// message content.
func (o *Orchestrator) SearchRooms(ctx context.Context, sess message.Session, query string) ([]*message.Room, error) {
	return o.persister.Store().SearchRooms(ctx, sess.UserID, query)
}

// ExportRoom renders a room transcript as Markdown.
func (o *Orchestrator) ExportRoom(ctx context.Context, roomID string) (string, error) {
	room, err := o.persister.Store().GetRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	return o.persister.ExportMarkdown(ctx, room)
}

// LastRoom returns the bookmarked last-open room ID, if any.
func (o *Orchestrator) LastRoom() (string, bool) {
	if o.prefs == nil {
		return "", false
	}
	return o.prefs.GetItem(kv.KeyLastRoom)
}
