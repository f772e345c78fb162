// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator coordinates the message lifecycle for chat rooms.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/anim"
	"github.com/jeranaias/parley/internal/failure"
	"github.com/jeranaias/parley/internal/kv"
	"github.com/jeranaias/parley/internal/llm"
	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/storage"
	"github.com/jeranaias/parley/internal/telemetry"
)

// =============================================================================
// SUBMIT
// =============================================================================

// Submit validates and sends a user message into a room. roomKey is either
// a persisted room ID or message.NewRoomKey to create a room on first send.
//
// On success the optimistic user message and a loading assistant
// placeholder are published synchronously, before any asynchronous work
// begins, and the user message's local ID is returned. Validation failures
// and a busy room are rejected with no state transition at all.
func (o *Orchestrator) Submit(roomKey, content string, sess message.Session) (string, error) {
	trimmed, err := message.ValidateContent(content)
	if err != nil {
		return "", err
	}
	if err := message.ValidateRoomKey(roomKey); err != nil {
		return "", err
	}

	o.mu.Lock()
	if _, busy := o.flights[roomKey]; busy {
		o.mu.Unlock()
		return "", ErrRoomBusy
	}
	if cur, ok := o.states.Get(roomKey); ok && cur.InFlight() != nil {
		o.mu.Unlock()
		return "", ErrRoomBusy
	}

	gen := o.nextGenerationLocked()

	user := message.NewUserMessage(roomKey, sess.UserID, trimmed)
	user.Generation = gen
	asst := message.NewLoadingMessage(roomKey)
	asst.UserID = sess.UserID
	asst.Generation = gen

	ctx, cancel := context.WithCancel(context.Background())
	o.flights[roomKey] = &flight{
		generation: gen,
		userID:     user.LocalID,
		asstID:     asst.LocalID,
		cancel:     cancel,
	}

	// Optimistic publish: the UI observes the send before any suspension.
	o.publishLocked(roomKey, func(rs *message.RoomState) {
		setMessage(rs, user.Clone())
		setMessage(rs, asst.Clone())
	})
	o.mu.Unlock()

	o.sink.Count(telemetry.MetricSubmits, 1)
	go o.runSend(ctx, roomKey, gen, user, asst, sess)
	return user.LocalID, nil
}

// runSend drives one send operation: room creation (for the sentinel key),
// user-message persistence, then the model and reveal stages. Persistence
// and model failures share one retry context, so the attempt cap bounds
// the whole operation.
func (o *Orchestrator) runSend(ctx context.Context, roomKey string, gen uint64, user, asst *message.Message, sess message.Session) {
	rc := failure.NewRetryContext(o.policy, gen)

	// Resolve or create the room.
	room, roomKey, ok := o.ensureRoom(ctx, roomKey, gen, user, asst, rc, sess)
	if !ok {
		return
	}

	// Persist the user message, tolerating replication lag.
	user.State = message.StatePersisting
	o.publishIfCurrent(roomKey, gen, func(rs *message.RoomState) {
		setMessage(rs, user.Clone())
	})

	var remoteID string
	err := o.retryStage(ctx, rc, func() error {
		id, saveErr := o.persister.SaveMessage(ctx, user)
		if errors.Is(saveErr, storage.ErrStaleReadTimeout) {
			// The write is assumed durable; only visibility timed out.
			// Carry on with the local ID.
			return nil
		}
		if saveErr == nil {
			remoteID = id
		}
		return saveErr
	})
	if err != nil {
		o.failSend(roomKey, gen, user, asst, rc, err)
		return
	}

	user.RemoteID = remoteID
	user.State = message.StateCompleted
	o.publishIfCurrent(roomKey, gen, func(rs *message.RoomState) {
		setMessage(rs, user.Clone())
	})

	o.runModelStage(ctx, roomKey, gen, room.Model, asst, rc)
}

// ensureRoom creates the room for a sentinel-key send and moves state and
// flight under the real room ID. Returns the room, the (possibly rekeyed)
// room key, and whether the operation is still current.
func (o *Orchestrator) ensureRoom(ctx context.Context, roomKey string, gen uint64, user, asst *message.Message, rc *failure.RetryContext, sess message.Session) (*message.Room, string, bool) {
	if roomKey != message.NewRoomKey {
		if cur, ok := o.states.Get(roomKey); ok && cur.Room != nil {
			return cur.Room, roomKey, true
		}
		room, err := o.persister.Store().GetRoom(ctx, roomKey)
		if err != nil {
			o.failSend(roomKey, gen, user, asst, rc, err)
			return nil, roomKey, false
		}
		o.publishIfCurrent(roomKey, gen, func(rs *message.RoomState) {
			rs.Room = room
		})
		return room, roomKey, true
	}

	room := message.NewRoom(sess.UserID, o.Model(), "")
	err := o.retryStage(ctx, rc, func() error {
		return o.persister.CreateRoom(ctx, room)
	})
	if err != nil {
		o.failSend(roomKey, gen, user, asst, rc, err)
		return nil, roomKey, false
	}

	// Move the sentinel-key state and flight under the real room ID.
	o.mu.Lock()
	f := o.flights[message.NewRoomKey]
	if f == nil || f.generation != gen {
		o.mu.Unlock()
		o.sink.Count(telemetry.MetricStaleDiscards, 1)
		return nil, roomKey, false
	}
	delete(o.flights, message.NewRoomKey)
	o.flights[room.ID] = f
	user.RoomID = room.ID
	asst.RoomID = room.ID
	o.states.Rekey(message.NewRoomKey, room.ID)
	o.publishLocked(room.ID, func(rs *message.RoomState) {
		rs.Room = room
		setMessage(rs, user.Clone())
		setMessage(rs, asst.Clone())
	})
	o.mu.Unlock()

	if o.prefs != nil {
		o.prefs.SetItem(kv.KeyLastRoom, room.ID)
	}
	return room, room.ID, true
}

// =============================================================================
// MODEL + REVEAL STAGES
// =============================================================================

// runModelStage invokes the model with trimmed room context, then hands
// the response to the reveal stage. Shared by Submit and Regenerate.
func (o *Orchestrator) runModelStage(ctx context.Context, roomKey string, gen uint64, model string, asst *message.Message, rc *failure.RetryContext) {
	if model == "" {
		model = o.Model()
	}

	asst.State = message.StateAwaitingModel
	if !o.publishIfCurrent(roomKey, gen, func(rs *message.RoomState) {
		setMessage(rs, asst.Clone())
	}) {
		return
	}

	history := o.buildContext(roomKey, asst.LocalID)

	var text string
	err := o.retryStage(ctx, rc, func() error {
		reply, callErr := o.client.Complete(ctx, model, history)
		if callErr != nil {
			return callErr
		}
		if strings.TrimSpace(reply) == "" {
			return ErrEmptyResponse
		}
		text = reply
		return nil
	})
	if err != nil {
		o.failAssistant(roomKey, gen, asst, rc, err)
		return
	}

	o.runRevealStage(ctx, roomKey, gen, asst, text)
}

// buildContext assembles the model context from the room's messages up to
// (and excluding) the target, trimmed to the token budget. Regenerating a
// mid-conversation message must see only the turns that preceded it.
func (o *Orchestrator) buildContext(roomKey, targetID string) []llm.ChatMessage {
	cur, ok := o.states.Get(roomKey)
	if !ok {
		return nil
	}
	live := make([]*message.Message, 0, len(cur.Messages))
	for _, m := range cur.Messages {
		if m.LocalID == targetID {
			break
		}
		live = append(live, m)
	}
	return llm.FromHistory(message.TrimToBudget(live, o.tokenBudget))
}

// runRevealStage persists the full response and animates the reveal.
//
// The durable write starts before the first tick and always carries the
// complete text: cancelling the animation can never truncate what is
// stored. Persistence failure here degrades to a logged condition; the
// content already exists in memory and on screen.
func (o *Orchestrator) runRevealStage(ctx context.Context, roomKey string, gen uint64, asst *message.Message, text string) {
	asst.Content = text
	asst.Revealed = 0
	asst.State = message.StateAnimating
	if !o.publishIfCurrent(roomKey, gen, func(rs *message.RoomState) {
		setMessage(rs, asst.Clone())
	}) {
		return
	}

	o.mu.Lock()
	if f := o.flights[roomKey]; f != nil && f.generation == gen {
		f.animating = true
	}
	o.mu.Unlock()

	persisted := make(chan struct{})
	durable := asst.Clone()
	durable.State = message.StateCompleted
	durable.Revealed = 0
	go func() {
		defer close(persisted)
		o.persistAssistant(durable)
	}()

	sched := anim.NewSchedule(text, o.animCfg)
	sched.Generation = gen
	err := anim.Run(ctx, sched, func(revealed int) {
		asst.Revealed = revealed
		o.publishIfCurrent(roomKey, gen, func(rs *message.RoomState) {
			setMessage(rs, asst.Clone())
		})
	})
	<-persisted
	if err != nil {
		// Superseded by Regenerate or LeaveRoom; the new owner of this
		// message's state takes it from here.
		return
	}

	asst.State = message.StateCompleted
	asst.Revealed = sched.TotalRunes
	o.publishIfCurrent(roomKey, gen, func(rs *message.RoomState) {
		setMessage(rs, asst.Clone())
	})
	o.clearFlight(roomKey, gen)
}

// persistAssistant writes the final assistant content, updating the
// existing row when one exists (regeneration) and creating it otherwise.
func (o *Orchestrator) persistAssistant(m *message.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := o.persister.UpdateMessage(ctx, m)
	if errors.Is(err, storage.ErrMessageNotFound) {
		err = o.persister.Store().CreateMessage(ctx, m)
	}
	if err != nil {
		o.sink.Event(telemetry.EventDeferredPersist,
			fmt.Sprintf("assistant message %s: %v", m.LocalID, err))
	}
}

// =============================================================================
// RETRY DRIVER
// =============================================================================

// retryStage runs op until it succeeds, the retry context gives up, or
// the operation is cancelled. Backoff delays come from the shared retry
// context so persistence and model failures count against one cap.
func (o *Orchestrator) retryStage(ctx context.Context, rc *failure.RetryContext, op func() error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}

		retry, delay := rc.Record(err)
		if !retry {
			return err
		}
		o.sink.Count(telemetry.MetricRetries, 1)
		o.sink.Event(telemetry.EventRetry,
			fmt.Sprintf("attempt %d failed (%s), retrying in %s: %v", rc.Attempts(), rc.LastKind(), delay, err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// =============================================================================
// FAILURE PUBLICATION
// =============================================================================

// failSend marks a send that died before the model stage: the user message
// carries the error and the loading placeholder is withdrawn.
func (o *Orchestrator) failSend(roomKey string, gen uint64, user, asst *message.Message, rc *failure.RetryContext, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	o.sink.Count(telemetry.MetricErrors, 1)
	o.sink.Event(telemetry.EventTerminalFailure,
		fmt.Sprintf("send failed after %d attempts (%s): %v", rc.Attempts(), rc.LastKind(), err))

	user.State = message.StateError
	user.ErrorReason = reasonFor(rc, err)
	o.publishIfCurrent(roomKey, gen, func(rs *message.RoomState) {
		setMessage(rs, user.Clone())
		removeMessage(rs, asst.LocalID)
	})
	o.clearFlight(roomKey, gen)
}

// failAssistant marks a model or reveal failure on the assistant message,
// which the UI renders with a retry affordance wired to Regenerate.
func (o *Orchestrator) failAssistant(roomKey string, gen uint64, asst *message.Message, rc *failure.RetryContext, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	o.sink.Count(telemetry.MetricErrors, 1)
	o.sink.Event(telemetry.EventTerminalFailure,
		fmt.Sprintf("model call failed after %d attempts (%s): %v", rc.Attempts(), rc.LastKind(), err))

	asst.State = message.StateError
	asst.ErrorReason = reasonFor(rc, err)
	o.publishIfCurrent(roomKey, gen, func(rs *message.RoomState) {
		setMessage(rs, asst.Clone())
	})
	o.clearFlight(roomKey, gen)
}

// reasonFor produces the human-readable reason stored on an errored
// message.
func reasonFor(rc *failure.RetryContext, err error) string {
	kind := rc.LastKind()
	if rc.Attempts() == 0 {
		kind = failure.Classify(err)
	}
	switch kind {
	case failure.KindAuthorization:
		return "authorization failed, please sign in again"
	case failure.KindValidation:
		return err.Error()
	default:
		return fmt.Sprintf("%s error after %d attempts: %v", kind, rc.Attempts(), err)
	}
}

// removeMessage withdraws a message from a published room state.
func removeMessage(rs *message.RoomState, localID string) {
	for i, m := range rs.Messages {
		if m.LocalID == localID {
			rs.Messages = append(rs.Messages[:i:i], rs.Messages[i+1:]...)
			return
		}
	}
}
