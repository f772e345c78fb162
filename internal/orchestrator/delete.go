// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator coordinates the message lifecycle for chat rooms.
package orchestrator

import (
	"context"

	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/storage"
)

// =============================================================================
// DELETE
// =============================================================================

// DeleteMessage soft-deletes a message owned by the requesting session.
//
// Messages in transient states cannot be deleted; the send must resolve
// first. Deleting an already-deleted message succeeds: the durable delete
// is idempotent and no state is disturbed.
func (o *Orchestrator) DeleteMessage(roomKey, localID string, sess message.Session) error {
	o.mu.Lock()

	cur, ok := o.states.Get(roomKey)
	if !ok {
		o.mu.Unlock()
		return storage.ErrMessageNotFound
	}
	target := cur.Find(localID)
	if target == nil {
		o.mu.Unlock()
		return storage.ErrMessageNotFound
	}
	if !sess.Owns(target) {
		o.mu.Unlock()
		return ErrAccessDenied
	}
	if !target.State.Terminal() {
		o.mu.Unlock()
		return ErrMessageBusy
	}

	del := target.Clone()
	del.State = message.StateDeleted
	o.publishLocked(roomKey, func(rs *message.RoomState) {
		setMessage(rs, del)
	})
	o.mu.Unlock()

	return o.persister.DeleteMessage(context.Background(), localID)
}

// DeleteRoom soft-deletes a whole room. Any in-flight operation for the
// room is cancelled first. Idempotent at the storage layer.
func (o *Orchestrator) DeleteRoom(roomKey string, sess message.Session) error {
	o.mu.Lock()
	if cur, ok := o.states.Get(roomKey); ok && cur.Room != nil {
		if cur.Room.UserID != "" && cur.Room.UserID != sess.UserID {
			o.mu.Unlock()
			return ErrAccessDenied
		}
	}
	if f := o.flights[roomKey]; f != nil {
		f.cancel()
		delete(o.flights, roomKey)
	}
	o.states.Delete(roomKey)
	o.mu.Unlock()

	if roomKey == message.NewRoomKey {
		return nil
	}
	return o.persister.DeleteRoom(context.Background(), roomKey)
}
