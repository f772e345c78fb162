// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/telemetry"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "parley.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RoomLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	room := message.NewRoom("user-1", "gpt-3.5-turbo", "First room")
	require.NoError(t, store.CreateRoom(ctx, room))

	got, err := store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	assert.Equal(t, "user-1", got.UserID)

	rooms, err := store.ListRooms(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	// Unknown room
	_, err = store.GetRoom(ctx, "nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSQLiteStore_MessageLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	room := message.NewRoom("user-1", "m", "")
	require.NoError(t, store.CreateRoom(ctx, room))

	m := message.NewUserMessage(room.ID, "user-1", "Hello")
	m.State = message.StateCompleted
	require.NoError(t, store.CreateMessage(ctx, m))

	got, err := store.GetMessage(ctx, m.LocalID)
	require.NoError(t, err)
	assert.Equal(t, m.LocalID, got.LocalID)
	assert.NotEmpty(t, got.RemoteID, "backend must assign a remote id")
	assert.Equal(t, "Hello", got.Content)
	assert.Equal(t, message.StateCompleted, got.State)

	// Update
	got.Content = "Hello, edited"
	require.NoError(t, store.UpdateMessage(ctx, got))
	again, err := store.GetMessage(ctx, m.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "Hello, edited", again.Content)

	// Updating an unknown message
	ghost := message.NewUserMessage(room.ID, "user-1", "x")
	assert.ErrorIs(t, store.UpdateMessage(ctx, ghost), ErrMessageNotFound)

	// List preserves creation order
	m2 := message.NewMessage(room.ID, message.RoleAssistant, "Hi!")
	m2.State = message.StateCompleted
	require.NoError(t, store.CreateMessage(ctx, m2))
	msgs, err := store.ListMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m.LocalID, msgs[0].LocalID)
	assert.Equal(t, m2.LocalID, msgs[1].LocalID)
}

func TestSQLiteStore_SearchRooms(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	planning := message.NewRoom("user-1", "m", "Trip planning")
	require.NoError(t, store.CreateRoom(ctx, planning))
	cooking := message.NewRoom("user-1", "m", "Recipes")
	require.NoError(t, store.CreateRoom(ctx, cooking))
	other := message.NewRoom("user-2", "m", "Trip notes")
	require.NoError(t, store.CreateRoom(ctx, other))

	m := message.NewUserMessage(cooking.ID, "user-1", "how long to roast a chicken")
	m.State = message.StateCompleted
	require.NoError(t, store.CreateMessage(ctx, m))

	// Match by room name, scoped to the user.
	rooms, err := store.SearchRooms(ctx, "user-1", "trip")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, planning.ID, rooms[0].ID)

	// Match by message content.
	rooms, err = store.SearchRooms(ctx, "user-1", "roast")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, cooking.ID, rooms[0].ID)

	// No match.
	rooms, err = store.SearchRooms(ctx, "user-1", "zebra")
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestSQLiteStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	room := message.NewRoom("u", "m", "")
	require.NoError(t, store.CreateRoom(ctx, room))
	m := message.NewUserMessage(room.ID, "u", "bye")
	m.State = message.StateCompleted
	require.NoError(t, store.CreateMessage(ctx, m))

	// Deleting twice succeeds both times
	require.NoError(t, store.DeleteMessage(ctx, m.LocalID))
	require.NoError(t, store.DeleteMessage(ctx, m.LocalID))
	_, err := store.GetMessage(ctx, m.LocalID)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	// Same for rooms, including a room that never existed
	require.NoError(t, store.DeleteRoom(ctx, room.ID))
	require.NoError(t, store.DeleteRoom(ctx, room.ID))
	require.NoError(t, store.DeleteRoom(ctx, "never-existed"))
}

func TestSQLiteStore_VisibilityDelayHidesFreshWrites(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	store.VisibilityDelay = 80 * time.Millisecond

	room := message.NewRoom("u", "m", "")
	require.NoError(t, store.CreateRoom(ctx, room))

	m := message.NewUserMessage(room.ID, "u", "lagging")
	m.State = message.StateCompleted
	require.NoError(t, store.CreateMessage(ctx, m))

	// Immediately after the write the row is not yet visible
	_, err := store.GetMessage(ctx, m.LocalID)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	time.Sleep(100 * time.Millisecond)
	got, err := store.GetMessage(ctx, m.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "lagging", got.Content)
}

func TestPersister_SaveMessagePollsThroughLag(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	store.VisibilityDelay = 50 * time.Millisecond

	sink := telemetry.NewMemSink()
	p := NewPersister(store, sink)
	p.PollDelay = 20 * time.Millisecond

	room := message.NewRoom("u", "m", "")
	require.NoError(t, p.CreateRoom(ctx, room))

	m := message.NewUserMessage(room.ID, "u", "Hello")
	m.State = message.StateCompleted
	remoteID, err := p.SaveMessage(ctx, m)
	require.NoError(t, err)
	assert.NotEmpty(t, remoteID)
	assert.Greater(t, sink.Counter(telemetry.MetricStaleReadPolls), 0,
		"at least one poll should have seen the stale read")
}

func TestPersister_StaleReadTimeout(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	store.VisibilityDelay = time.Hour

	sink := telemetry.NewMemSink()
	p := NewPersister(store, sink)
	p.PollAttempts = 3
	p.PollDelay = 5 * time.Millisecond

	room := message.NewRoom("u", "m", "")
	require.NoError(t, p.CreateRoom(ctx, room))

	m := message.NewUserMessage(room.ID, "u", "Hello")
	_, err := p.SaveMessage(ctx, m)
	assert.ErrorIs(t, err, ErrStaleReadTimeout)

	// The write itself was not rolled back: the timeout is a visibility
	// condition, reported as an observability event.
	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, telemetry.EventStaleReadTimeout, events[0].Name)
}

func TestPersister_ExportMarkdown(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	p := NewPersister(store, nil)

	room := message.NewRoom("u", "gpt-3.5-turbo", "Greetings")
	require.NoError(t, p.CreateRoom(ctx, room))

	u := message.NewUserMessage(room.ID, "u", "Hello")
	u.State = message.StateCompleted
	require.NoError(t, store.CreateMessage(ctx, u))
	a := message.NewMessage(room.ID, message.RoleAssistant, "Hi there!")
	a.State = message.StateCompleted
	require.NoError(t, store.CreateMessage(ctx, a))

	md, err := p.ExportMarkdown(ctx, room)
	require.NoError(t, err)
	assert.Contains(t, md, "# Greetings")
	assert.Contains(t, md, "**You**")
	assert.Contains(t, md, "**Assistant**")
	assert.Contains(t, md, "Hi there!")
}
