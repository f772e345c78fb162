// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable room and message persistence.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/telemetry"
)

// =============================================================================
// PERSISTER
// =============================================================================

// Persister wraps a Store with read-after-write verification.
//
// The backend may apply writes asynchronously, so a read immediately after
// a write can miss it. When a caller needs the committed row (for the
// backend-assigned remote ID), the Persister polls until the write becomes
// visible or the attempt budget runs out. Exhausting the budget surfaces
// ErrStaleReadTimeout without rolling anything back: the write is assumed
// to have succeeded, only its visibility timed out.
type Persister struct {
	store Store
	sink  telemetry.Sink

	// PollAttempts is the visibility poll budget (default: 10)
	PollAttempts int

	// PollDelay is the fixed delay between polls (default: 500ms)
	PollDelay time.Duration
}

// NewPersister wraps a store. A nil sink silences observability.
func NewPersister(store Store, sink telemetry.Sink) *Persister {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Persister{
		store:        store,
		sink:         sink,
		PollAttempts: 10,
		PollDelay:    500 * time.Millisecond,
	}
}

// Store exposes the wrapped store for operations that need no visibility
// guarantee.
func (p *Persister) Store() Store {
	return p.store
}

// CreateRoom persists a new room.
func (p *Persister) CreateRoom(ctx context.Context, room *message.Room) error {
	return p.store.CreateRoom(ctx, room)
}

// SaveMessage writes a message and polls until the committed row is
// visible, returning the backend-assigned remote ID.
//
// On poll exhaustion the returned remote ID is empty and the error is
// ErrStaleReadTimeout; the caller should treat the write as successful and
// carry on with the local ID only.
func (p *Persister) SaveMessage(ctx context.Context, m *message.Message) (string, error) {
	if err := p.store.CreateMessage(ctx, m); err != nil {
		return "", err
	}

	committed, err := p.AwaitVisible(ctx, m.LocalID)
	if err != nil {
		return "", err
	}
	return committed.RemoteID, nil
}

// AwaitVisible polls GetMessage until the write for localID is readable.
// Returns the first read that reflects the write, or ErrStaleReadTimeout.
func (p *Persister) AwaitVisible(ctx context.Context, localID string) (*message.Message, error) {
	attempts := p.PollAttempts
	if attempts <= 0 {
		attempts = 10
	}
	delay := p.PollDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	for i := 0; i < attempts; i++ {
		m, err := p.store.GetMessage(ctx, localID)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrMessageNotFound) {
			return nil, err
		}
		p.sink.Count(telemetry.MetricStaleReadPolls, 1)

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	p.sink.Event(telemetry.EventStaleReadTimeout,
		fmt.Sprintf("message %s not visible after %d polls", localID, attempts))
	return nil, ErrStaleReadTimeout
}

// UpdateMessage rewrites an existing message without a visibility check.
func (p *Persister) UpdateMessage(ctx context.Context, m *message.Message) error {
	return p.store.UpdateMessage(ctx, m)
}

// ListMessages returns the visible messages of a room.
func (p *Persister) ListMessages(ctx context.Context, roomID string) ([]*message.Message, error) {
	return p.store.ListMessages(ctx, roomID)
}

// DeleteMessage soft-deletes a message. Idempotent.
func (p *Persister) DeleteMessage(ctx context.Context, localID string) error {
	return p.store.DeleteMessage(ctx, localID)
}

// DeleteRoom soft-deletes a room and its messages. Idempotent.
func (p *Persister) DeleteRoom(ctx context.Context, id string) error {
	return p.store.DeleteRoom(ctx, id)
}

// =============================================================================
// TRANSCRIPT EXPORT
// =============================================================================

// ExportMarkdown renders a room transcript as Markdown with role labels
// and timestamps.
func (p *Persister) ExportMarkdown(ctx context.Context, room *message.Room) (string, error) {
	msgs, err := p.store.ListMessages(ctx, room.ID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	title := room.Name
	if title == "" {
		title = room.ID
	}
	sb.WriteString("# " + title + "\n\n")
	sb.WriteString("Model: " + room.Model + "\n\n")
	sb.WriteString("Created: " + room.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, m := range msgs {
		sb.WriteString("**" + m.Role.DisplayName() + "** (" + m.CreatedAt.Format("15:04") + "):\n\n")
		sb.WriteString(m.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String(), nil
}
