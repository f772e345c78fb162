// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator coordinates the message lifecycle for chat rooms.
//
// It owns the per-room send and regenerate pipeline: validation, optimistic
// publication through the state store, durable persistence with
// replication-lag tolerance, the model call with retry and backoff, and the
// typewriter reveal. It is the sole writer of room state; UI surfaces
// subscribe through States() and render purely from message state.
//
// Concurrency contract: per room, at most one send operation is in flight
// at a time; a second Submit is rejected with ErrRoomBusy. Every operation
// carries a generation tag, and asynchronous results whose generation has
// been superseded (by Regenerate or LeaveRoom) are discarded rather than
// applied to state they no longer own.
package orchestrator

import (
	"context"
	"sync"

	"github.com/jeranaias/parley/internal/anim"
	"github.com/jeranaias/parley/internal/failure"
	"github.com/jeranaias/parley/internal/kv"
	"github.com/jeranaias/parley/internal/llm"
	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/statestore"
	"github.com/jeranaias/parley/internal/storage"
	"github.com/jeranaias/parley/internal/telemetry"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// CompletionClient is the model invocation seam. Implemented by llm.Client;
// tests substitute mocks.
type CompletionClient interface {
	Complete(ctx context.Context, model string, history []llm.ChatMessage) (string, error)
}

// Options configures an Orchestrator. Zero values fall back to defaults.
type Options struct {
	// RetryPolicy governs persistence and model-call retries.
	RetryPolicy failure.Policy

	// AnimConfig governs the typewriter reveal.
	AnimConfig anim.Config

	// TokenBudget bounds the room context sent with each model call.
	TokenBudget int

	// DefaultModel is used for new rooms until SetModel overrides it.
	DefaultModel string

	// Prefs optionally persists the selected model and last-room
	// bookmark. May be nil.
	Prefs *kv.FileStore

	// Sink receives counters and events. Nil means silent.
	Sink telemetry.Sink
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// flight tracks one in-flight send or regenerate operation for a room.
type flight struct {
	generation uint64
	userID     string // local ID of the user message, empty for regenerates
	asstID     string // local ID of the assistant message
	cancel     context.CancelFunc
	animating  bool
	regen      bool
}

// Orchestrator coordinates the message lifecycle. Safe for concurrent use.
type Orchestrator struct {
	states    *statestore.Store[string, *message.RoomState]
	persister *storage.Persister
	client    CompletionClient

	policy       failure.Policy
	animCfg      anim.Config
	tokenBudget  int
	defaultModel string
	prefs        *kv.FileStore
	sink         telemetry.Sink

	mu         sync.Mutex
	flights    map[string]*flight
	generation uint64
}

// New creates an orchestrator over the given persister and model client.
func New(persister *storage.Persister, client CompletionClient, opts Options) *Orchestrator {
	sink := opts.Sink
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	model := opts.DefaultModel
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	if opts.Prefs != nil {
		if m, ok := opts.Prefs.GetItem(kv.KeySelectedModel); ok && m != "" {
			model = m
		}
	}
	budget := opts.TokenBudget
	if budget <= 0 {
		budget = message.DefaultTokenBudget
	}

	return &Orchestrator{
		states:       statestore.New[string, *message.RoomState](),
		persister:    persister,
		client:       client,
		policy:       opts.RetryPolicy,
		animCfg:      opts.AnimConfig,
		tokenBudget:  budget,
		defaultModel: model,
		prefs:        opts.Prefs,
		sink:         sink,
		flights:      make(map[string]*flight),
	}
}

// States exposes the observable room state for subscribers. Listeners run
// synchronously on Set and must not call back into the orchestrator.
func (o *Orchestrator) States() *statestore.Store[string, *message.RoomState] {
	return o.states
}

// SetModel selects the model used for rooms created from now on and
// persists the choice when preferences are available.
func (o *Orchestrator) SetModel(model string) {
	if model == "" {
		return
	}
	o.mu.Lock()
	o.defaultModel = model
	o.mu.Unlock()
	if o.prefs != nil {
		o.prefs.SetItem(kv.KeySelectedModel, model)
	}
}

// Model returns the model used for new rooms.
func (o *Orchestrator) Model() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.defaultModel
}

// =============================================================================
// STATE PUBLICATION
// =============================================================================

// nextGeneration allocates a generation tag. Caller must hold o.mu.
func (o *Orchestrator) nextGenerationLocked() uint64 {
	o.generation++
	return o.generation
}

// publish rewrites a room's state under the orchestrator lock. mutate
// receives a clone of the current state (or a fresh one) and the result is
// set and broadcast before the lock is released, keeping writers totally
// ordered per key.
func (o *Orchestrator) publish(roomKey string, mutate func(*message.RoomState)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.publishLocked(roomKey, mutate)
}

func (o *Orchestrator) publishLocked(roomKey string, mutate func(*message.RoomState)) {
	cur, ok := o.states.Get(roomKey)
	var next *message.RoomState
	if ok {
		next = cur.Clone()
	} else {
		next = &message.RoomState{}
	}
	mutate(next)
	o.states.Set(roomKey, next)
}

// publishIfCurrent is publish gated on the generation tag: if the room's
// flight has been superseded or cleared, the result is stale and dropped.
func (o *Orchestrator) publishIfCurrent(roomKey string, gen uint64, mutate func(*message.RoomState)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	f := o.flights[roomKey]
	if f == nil || f.generation != gen {
		o.sink.Count(telemetry.MetricStaleDiscards, 1)
		return false
	}
	o.publishLocked(roomKey, mutate)
	return true
}

// clearFlight removes the room's flight if it still carries gen.
func (o *Orchestrator) clearFlight(roomKey string, gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if f := o.flights[roomKey]; f != nil && f.generation == gen {
		delete(o.flights, roomKey)
	}
}

// setMessage replaces the message with m's local ID inside a published
// room state. Missing messages are appended.
func setMessage(rs *message.RoomState, m *message.Message) {
	for i, cur := range rs.Messages {
		if cur.LocalID == m.LocalID {
			rs.Messages[i] = m
			return
		}
	}
	rs.Messages = append(rs.Messages, m)
}
