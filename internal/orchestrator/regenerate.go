// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator coordinates the message lifecycle for chat rooms.
package orchestrator

import (
	"context"

	"github.com/jeranaias/parley/internal/failure"
	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/storage"
)

// =============================================================================
// REGENERATE
// =============================================================================

// Regenerate replaces an assistant message's content with a fresh model
// call over the same user-message context.
//
// Any in-flight animation or model call tied to the target message is
// cancelled and its retry context discarded; late results from the old
// attempt carry a stale generation and are dropped. A second Regenerate
// while one is already pending for the same message is a no-op.
func (o *Orchestrator) Regenerate(roomKey, messageID string) error {
	o.mu.Lock()

	cur, ok := o.states.Get(roomKey)
	if !ok {
		o.mu.Unlock()
		return storage.ErrMessageNotFound
	}
	target := cur.Find(messageID)
	if target == nil || target.Role != message.RoleAssistant {
		o.mu.Unlock()
		return storage.ErrMessageNotFound
	}

	if f := o.flights[roomKey]; f != nil {
		if f.regen && f.asstID == messageID {
			// Already regenerating this message.
			o.mu.Unlock()
			return nil
		}
		if f.asstID != messageID {
			o.mu.Unlock()
			return ErrRoomBusy
		}
		f.cancel()
		o.settleUserLocked(roomKey, f)
		delete(o.flights, roomKey)
	}

	gen := o.nextGenerationLocked()
	ctx, cancel := context.WithCancel(context.Background())
	o.flights[roomKey] = &flight{
		generation: gen,
		asstID:     messageID,
		cancel:     cancel,
		regen:      true,
	}

	asst := target.Clone()
	asst.Content = ""
	asst.Revealed = 0
	asst.ErrorReason = ""
	asst.State = message.StateAwaitingModel
	asst.Generation = gen
	o.publishLocked(roomKey, func(rs *message.RoomState) {
		setMessage(rs, asst.Clone())
	})

	var model string
	if cur.Room != nil {
		model = cur.Room.Model
	}
	o.mu.Unlock()

	go o.runModelStage(ctx, roomKey, gen, model, asst, failure.NewRetryContext(o.policy, gen))
	return nil
}
