// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley/internal/anim"
	"github.com/jeranaias/parley/internal/failure"
	"github.com/jeranaias/parley/internal/llm"
	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/storage"
	"github.com/jeranaias/parley/internal/telemetry"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// mockClient is a scriptable completion backend.
type mockClient struct {
	mu        sync.Mutex
	calls     int
	failFirst int   // fail this many calls before succeeding
	failWith  error // error used for scripted failures
	response  string
	gate      chan struct{}     // when set, calls block until closed
	history   []llm.ChatMessage // context passed to the most recent call
}

func (c *mockClient) Complete(ctx context.Context, model string, history []llm.ChatMessage) (string, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.history = history
	gate := c.gate
	failFirst := c.failFirst
	failWith := c.failWith
	response := c.response
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if n <= failFirst {
		return "", failWith
	}
	return response, nil
}

func (c *mockClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *mockClient) lastHistory() []llm.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.ChatMessage(nil), c.history...)
}

type testEnv struct {
	orch   *Orchestrator
	store  *storage.SQLiteStore
	client *mockClient
	sink   *telemetry.MemSink
	sess   message.Session
}

func newTestEnv(t *testing.T, client *mockClient) *testEnv {
	t.Helper()

	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sink := telemetry.NewMemSink()
	p := storage.NewPersister(store, sink)
	p.PollDelay = time.Millisecond

	orch := New(p, client, Options{
		RetryPolicy: failure.Policy{MaxAttempts: 3, BaseDelay: 2 * time.Millisecond},
		AnimConfig: anim.Config{
			ChunkSize:       4,
			TickInterval:    2 * time.Millisecond,
			MinTickInterval: time.Millisecond,
		},
		DefaultModel: "gpt-3.5-turbo",
		Sink:         sink,
	})

	return &testEnv{
		orch:   orch,
		store:  store,
		client: client,
		sink:   sink,
		sess:   message.Session{UserID: "user-1"},
	}
}

// createRoom persists a room directly and publishes its (empty) state, so
// tests can target a stable room ID instead of the sentinel key.
func createRoom(t *testing.T, env *testEnv) string {
	t.Helper()
	room := message.NewRoom(env.sess.UserID, "gpt-3.5-turbo", "")
	require.NoError(t, env.store.CreateRoom(context.Background(), room))
	_, err := env.orch.OpenRoom(context.Background(), room.ID)
	require.NoError(t, err)
	return room.ID
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (e *testEnv) roomState(key string) *message.RoomState {
	st, _ := e.orch.States().Get(key)
	return st
}

// assistant returns the first assistant message in a room state, or nil.
func assistant(rs *message.RoomState) *message.Message {
	if rs == nil {
		return nil
	}
	for _, m := range rs.Messages {
		if m.Role == message.RoleAssistant {
			return m
		}
	}
	return nil
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_OptimisticPublishIsSynchronous(t *testing.T) {
	gate := make(chan struct{})
	client := &mockClient{response: "hi", gate: gate}
	env := newTestEnv(t, client)
	defer close(gate)
	roomID := createRoom(t, env)

	// Capture the first publication after subscribing: that is the
	// optimistic state, broadcast synchronously inside Submit.
	var first *message.RoomState
	var firstMu sync.Mutex
	unsub := env.orch.States().Subscribe(roomID, func(rs *message.RoomState) {
		firstMu.Lock()
		if first == nil {
			first = rs
		}
		firstMu.Unlock()
	})
	defer unsub()

	userID, err := env.orch.Submit(roomID, "Hello", env.sess)
	require.NoError(t, err)

	firstMu.Lock()
	rs := first
	firstMu.Unlock()
	require.NotNil(t, rs, "optimistic state must be published before Submit returns")
	require.Len(t, rs.Messages, 2)

	user := rs.Find(userID)
	require.NotNil(t, user)
	assert.Equal(t, message.StatePending, user.State)
	assert.Equal(t, "Hello", user.Content)

	asst := assistant(rs)
	require.NotNil(t, asst)
	assert.Equal(t, message.StateLoading, asst.State)
}

func TestSubmit_ValidationFailureHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t, &mockClient{response: "hi"})

	_, err := env.orch.Submit(message.NewRoomKey, "   \n ", env.sess)
	var verr *message.ValidationError
	require.ErrorAs(t, err, &verr)

	assert.Nil(t, env.roomState(message.NewRoomKey), "rejected input must publish nothing")
	assert.Zero(t, env.client.callCount())
}

func TestSubmit_RejectsConcurrentSendsIntoSameRoom(t *testing.T) {
	gate := make(chan struct{})
	client := &mockClient{response: "hi", gate: gate}
	env := newTestEnv(t, client)
	defer close(gate)
	roomID := createRoom(t, env)

	_, err := env.orch.Submit(roomID, "first", env.sess)
	require.NoError(t, err)

	// The second send must be rejected, not interleaved.
	_, err = env.orch.Submit(roomID, "second", env.sess)
	assert.ErrorIs(t, err, ErrRoomBusy)

	rs := env.roomState(roomID)
	require.Len(t, rs.Messages, 2, "rejected send must not add messages")
}

func TestSubmit_AtMostOneInFlightPerRoom_Randomized(t *testing.T) {
	gate := make(chan struct{})
	client := &mockClient{response: "hi", gate: gate}
	env := newTestEnv(t, client)
	defer close(gate)
	roomID := createRoom(t, env)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := env.orch.Submit(roomID, fmt.Sprintf("msg %d", i), env.sess); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted, "exactly one concurrent submit may win")

	rs := env.roomState(roomID)
	nonTerminal := 0
	for _, m := range rs.Messages {
		if !m.State.Terminal() {
			nonTerminal++
		}
	}
	assert.LessOrEqual(t, nonTerminal, 2, "one user message and one placeholder at most")
}

func TestSubmit_EndToEnd_NewRoom(t *testing.T) {
	client := &mockClient{response: "Hello! How can I help you today?"}
	env := newTestEnv(t, client)

	var observed []message.State
	var obsMu sync.Mutex
	unsub := env.orch.States().Subscribe(message.NewRoomKey, func(rs *message.RoomState) {
		if a := assistant(rs); a != nil {
			obsMu.Lock()
			observed = append(observed, a.State)
			obsMu.Unlock()
		}
	})
	defer unsub()

	userID, err := env.orch.Submit(message.NewRoomKey, "Hello", env.sess)
	require.NoError(t, err)

	// The room is created and rekeyed; find it via the store.
	var roomID string
	waitFor(t, func() bool {
		rooms, err := env.orch.ListRooms(context.Background(), env.sess)
		if err != nil || len(rooms) == 0 {
			return false
		}
		roomID = rooms[0].ID
		return true
	}, "room creation")

	waitFor(t, func() bool {
		a := assistant(env.roomState(roomID))
		return a != nil && a.State == message.StateCompleted
	}, "assistant completion")

	rs := env.roomState(roomID)
	assert.Equal(t, "gpt-3.5-turbo", rs.Room.Model)

	user := rs.Find(userID)
	require.NotNil(t, user)
	assert.Equal(t, message.StateCompleted, user.State)
	assert.NotEmpty(t, user.RemoteID, "persisted user message gets a backend id")

	a := assistant(rs)
	assert.Equal(t, client.response, a.Content, "final content equals the full model response")

	// The subscriber saw the documented progression on the sentinel key
	// before the rekey.
	obsMu.Lock()
	defer obsMu.Unlock()
	assert.Equal(t, message.StateLoading, observed[0])

	// Durably stored content matches too.
	stored, err := env.store.GetMessage(context.Background(), a.LocalID)
	require.NoError(t, err)
	assert.Equal(t, client.response, stored.Content)
	assert.Equal(t, message.StateCompleted, stored.State)
}

// =============================================================================
// RETRY BEHAVIOR
// =============================================================================

func TestSubmit_ModelFailsTwiceThenSucceeds(t *testing.T) {
	client := &mockClient{
		response:  "recovered",
		failFirst: 2,
		failWith:  errors.New("connection refused"),
	}
	env := newTestEnv(t, client)

	_, err := env.orch.Submit(message.NewRoomKey, "Hello", env.sess)
	require.NoError(t, err)

	waitFor(t, func() bool {
		for _, key := range env.orch.States().Keys() {
			if a := assistant(env.roomState(key)); a != nil && a.State == message.StateCompleted {
				return true
			}
		}
		return false
	}, "completion after retries")

	assert.Equal(t, 3, client.callCount(), "two failures plus one success")
	assert.Equal(t, 2, env.sink.Counter(telemetry.MetricRetries))

	// Backoff grew between attempts: the recorded delays are 1x then 2x
	// the base delay.
	var retryEvents []telemetry.RecordedEvent
	for _, ev := range env.sink.Events() {
		if ev.Name == telemetry.EventRetry {
			retryEvents = append(retryEvents, ev)
		}
	}
	require.Len(t, retryEvents, 2)
	assert.Contains(t, retryEvents[0].Detail, "retrying in 2ms")
	assert.Contains(t, retryEvents[1].Detail, "retrying in 4ms")
}

func TestSubmit_RetryExhaustionIsDeterministic(t *testing.T) {
	client := &mockClient{
		failFirst: 1000,
		failWith:  errors.New("connection refused"),
	}
	env := newTestEnv(t, client)

	_, err := env.orch.Submit(message.NewRoomKey, "Hello", env.sess)
	require.NoError(t, err)

	var a *message.Message
	waitFor(t, func() bool {
		for _, key := range env.orch.States().Keys() {
			if got := assistant(env.roomState(key)); got != nil && got.State == message.StateError {
				a = got
				return true
			}
		}
		return false
	}, "error state after retry exhaustion")

	assert.Equal(t, 3, client.callCount(), "exactly maxAttempts calls occur")
	assert.Contains(t, a.ErrorReason, "network")
}

func TestSubmit_AuthorizationFailureIsTerminal(t *testing.T) {
	client := &mockClient{
		failFirst: 1000,
		failWith:  errors.New("401 unauthorized"),
	}
	env := newTestEnv(t, client)

	_, err := env.orch.Submit(message.NewRoomKey, "Hello", env.sess)
	require.NoError(t, err)

	waitFor(t, func() bool {
		for _, key := range env.orch.States().Keys() {
			if a := assistant(env.roomState(key)); a != nil && a.State == message.StateError {
				return true
			}
		}
		return false
	}, "terminal auth error")

	assert.Equal(t, 1, client.callCount(), "authorization failures are never retried")
}

func TestSubmit_EmptyModelResponseIsError(t *testing.T) {
	client := &mockClient{response: "   "}
	env := newTestEnv(t, client)

	_, err := env.orch.Submit(message.NewRoomKey, "Hello", env.sess)
	require.NoError(t, err)

	waitFor(t, func() bool {
		for _, key := range env.orch.States().Keys() {
			if a := assistant(env.roomState(key)); a != nil && a.State == message.StateError {
				return true
			}
		}
		return false
	}, "empty-content error")
}

// =============================================================================
// REGENERATION & CANCELLATION
// =============================================================================

// submitAndComplete drives a full send and returns the room ID and the
// completed assistant message.
func submitAndComplete(t *testing.T, env *testEnv, content string) (string, *message.Message) {
	t.Helper()
	_, err := env.orch.Submit(message.NewRoomKey, content, env.sess)
	require.NoError(t, err)

	var roomID string
	var a *message.Message
	waitFor(t, func() bool {
		rooms, err := env.orch.ListRooms(context.Background(), env.sess)
		if err != nil || len(rooms) == 0 {
			return false
		}
		roomID = rooms[0].ID
		if got := assistant(env.roomState(roomID)); got != nil && got.State == message.StateCompleted {
			a = got
			return true
		}
		return false
	}, "initial send completion")
	return roomID, a
}

func TestRegenerate_ReplacesContent(t *testing.T) {
	client := &mockClient{response: "first answer"}
	env := newTestEnv(t, client)

	roomID, a := submitAndComplete(t, env, "question")

	client.mu.Lock()
	client.response = "second answer"
	client.mu.Unlock()

	require.NoError(t, env.orch.Regenerate(roomID, a.LocalID))

	waitFor(t, func() bool {
		got := assistant(env.roomState(roomID))
		return got.State == message.StateCompleted && got.Content == "second answer"
	}, "regenerated content")

	// The durable row was rewritten, not duplicated.
	stored, err := env.store.GetMessage(context.Background(), a.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "second answer", stored.Content)

	msgs, err := env.store.ListMessages(context.Background(), roomID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestRegenerate_DiscardsStaleAnimationTicks(t *testing.T) {
	longOld := strings.Repeat("OLD ", 200)
	client := &mockClient{response: longOld}
	env := newTestEnv(t, client)
	// Slow the reveal down so regeneration lands mid-animation.
	env.orch.animCfg.TickInterval = 10 * time.Millisecond
	env.orch.animCfg.ChunkSize = 2

	_, err := env.orch.Submit(message.NewRoomKey, "question", env.sess)
	require.NoError(t, err)

	var roomID string
	waitFor(t, func() bool {
		rooms, err := env.orch.ListRooms(context.Background(), env.sess)
		if err != nil || len(rooms) == 0 {
			return false
		}
		roomID = rooms[0].ID
		a := assistant(env.roomState(roomID))
		return a != nil && a.State == message.StateAnimating && a.Revealed > 0
	}, "animation in progress")

	a := assistant(env.roomState(roomID))

	client.mu.Lock()
	client.response = "NEW"
	client.mu.Unlock()

	// Once Regenerate has installed the new generation, no publication may
	// carry the old text: late ticks from the superseded schedule are
	// generation-gated and dropped before listeners run.
	var regenDone atomic.Bool
	var violations atomic.Int32
	unsub := env.orch.States().Subscribe(roomID, func(rs *message.RoomState) {
		if got := assistant(rs); got != nil && regenDone.Load() && strings.Contains(got.Content, "OLD") {
			violations.Add(1)
		}
	})
	defer unsub()

	require.NoError(t, env.orch.Regenerate(roomID, a.LocalID))
	regenDone.Store(true)

	waitFor(t, func() bool {
		got := assistant(env.roomState(roomID))
		return got.State == message.StateCompleted && got.Content == "NEW"
	}, "regeneration completion")

	assert.Zero(t, violations.Load(), "late ticks from the superseded schedule must never surface")
}

func TestRegenerate_SecondRequestWhilePendingIsNoOp(t *testing.T) {
	client := &mockClient{response: "answer"}
	env := newTestEnv(t, client)

	roomID, a := submitAndComplete(t, env, "question")

	gate := make(chan struct{})
	client.mu.Lock()
	client.gate = gate
	client.mu.Unlock()

	require.NoError(t, env.orch.Regenerate(roomID, a.LocalID))
	require.NoError(t, env.orch.Regenerate(roomID, a.LocalID), "second regenerate is a no-op")
	close(gate)

	waitFor(t, func() bool {
		return assistant(env.roomState(roomID)).State == message.StateCompleted
	}, "regeneration completion")

	assert.Equal(t, 2, client.callCount(), "initial send plus exactly one regeneration")
}

func TestRegenerate_UnknownMessage(t *testing.T) {
	env := newTestEnv(t, &mockClient{response: "x"})
	err := env.orch.Regenerate("nowhere", "no-such-id")
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)
}

func TestLeaveRoom_CancelNeverTruncatesPersistedContent(t *testing.T) {
	full := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	client := &mockClient{response: full}
	env := newTestEnv(t, client)
	env.orch.animCfg.TickInterval = 10 * time.Millisecond
	env.orch.animCfg.ChunkSize = 2

	_, err := env.orch.Submit(message.NewRoomKey, "question", env.sess)
	require.NoError(t, err)

	var roomID string
	waitFor(t, func() bool {
		rooms, err := env.orch.ListRooms(context.Background(), env.sess)
		if err != nil || len(rooms) == 0 {
			return false
		}
		roomID = rooms[0].ID
		a := assistant(env.roomState(roomID))
		return a != nil && a.State == message.StateAnimating && a.Revealed > 0 && a.Revealed < len([]rune(full))
	}, "mid-animation")

	env.orch.LeaveRoom(roomID)

	// The published message fast-forwards to completed, in full.
	a := assistant(env.roomState(roomID))
	assert.Equal(t, message.StateCompleted, a.State)
	assert.Equal(t, full, a.VisibleContent())

	// The durable copy holds the complete response regardless of where
	// the animation stood.
	waitFor(t, func() bool {
		stored, err := env.store.GetMessage(context.Background(), a.LocalID)
		return err == nil && stored.Content == full
	}, "durable full content")
}

func TestLeaveRoom_MidPersistenceSettlesUserMessage(t *testing.T) {
	client := &mockClient{response: "never reached"}
	env := newTestEnv(t, client)
	roomID := createRoom(t, env)

	// Keep the committed row invisible long enough that the send is still
	// sitting in the visibility poll when the user navigates away.
	env.store.VisibilityDelay = 10 * time.Second
	env.orch.persister.PollDelay = 250 * time.Millisecond

	userID, err := env.orch.Submit(roomID, "Hello", env.sess)
	require.NoError(t, err)

	waitFor(t, func() bool {
		u := env.roomState(roomID).Find(userID)
		return u != nil && u.State == message.StatePersisting
	}, "persistence stage")

	env.orch.LeaveRoom(roomID)

	// Both halves of the cancelled send settle synchronously; nothing is
	// left for the dead operation to advance.
	rs := env.roomState(roomID)
	user := rs.Find(userID)
	require.NotNil(t, user)
	assert.Equal(t, message.StateError, user.State)
	assert.Equal(t, "cancelled before completion", user.ErrorReason)
	a := assistant(rs)
	require.NotNil(t, a)
	assert.Equal(t, message.StateError, a.State)
	assert.Nil(t, rs.InFlight())

	// The room accepts a fresh send immediately.
	_, err = env.orch.Submit(roomID, "again", env.sess)
	require.NoError(t, err)
}

func TestRegenerate_MidPersistenceSettlesUserMessage(t *testing.T) {
	client := &mockClient{response: "fresh"}
	env := newTestEnv(t, client)
	roomID := createRoom(t, env)

	env.store.VisibilityDelay = 10 * time.Second
	env.orch.persister.PollDelay = 250 * time.Millisecond

	userID, err := env.orch.Submit(roomID, "Hello", env.sess)
	require.NoError(t, err)

	waitFor(t, func() bool {
		u := env.roomState(roomID).Find(userID)
		return u != nil && u.State == message.StatePersisting
	}, "persistence stage")

	a := assistant(env.roomState(roomID))
	require.NotNil(t, a)
	require.NoError(t, env.orch.Regenerate(roomID, a.LocalID))

	// The superseded send's user message settles when its flight is
	// cancelled, before the replacement runs.
	user := env.roomState(roomID).Find(userID)
	require.NotNil(t, user)
	assert.Equal(t, message.StateError, user.State)

	waitFor(t, func() bool {
		got := assistant(env.roomState(roomID))
		return got != nil && got.State == message.StateCompleted && got.Content == "fresh"
	}, "regeneration completion")

	waitFor(t, func() bool {
		_, err := env.orch.Submit(roomID, "again", env.sess)
		return err == nil
	}, "room accepts a fresh send")
}

func TestRegenerate_MidConversationExcludesLaterTurns(t *testing.T) {
	client := &mockClient{response: "first answer"}
	env := newTestEnv(t, client)

	roomID, first := submitAndComplete(t, env, "first question")

	client.mu.Lock()
	client.response = "second answer"
	client.mu.Unlock()

	waitFor(t, func() bool {
		_, err := env.orch.Submit(roomID, "second question", env.sess)
		return err == nil
	}, "second send accepted")
	waitFor(t, func() bool {
		rs := env.roomState(roomID)
		if len(rs.Messages) != 4 {
			return false
		}
		last := rs.Messages[3]
		return last.Role == message.RoleAssistant && last.State == message.StateCompleted
	}, "second turn completion")

	client.mu.Lock()
	client.response = "revised answer"
	client.mu.Unlock()

	waitFor(t, func() bool {
		return env.orch.Regenerate(roomID, first.LocalID) == nil
	}, "regeneration accepted")
	waitFor(t, func() bool {
		got := env.roomState(roomID).Find(first.LocalID)
		return got != nil && got.Content == "revised answer"
	}, "mid-conversation regeneration")

	// The model saw only the turns that preceded the regenerated message,
	// never the ones that came after it.
	history := client.lastHistory()
	require.Len(t, history, 1)
	assert.Equal(t, string(message.RoleUser), history[0].Role)
	assert.Equal(t, "first question", history[0].Content)
}

// =============================================================================
// DELETION
// =============================================================================

func TestDeleteMessage_IdempotentOwnershipAndStates(t *testing.T) {
	client := &mockClient{response: "answer"}
	env := newTestEnv(t, client)

	roomID, a := submitAndComplete(t, env, "question")

	// Wrong session is rejected without touching state.
	err := env.orch.DeleteMessage(roomID, a.LocalID, message.Session{UserID: "intruder"})
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, message.StateCompleted, assistant(env.roomState(roomID)).State)

	// Unknown message.
	err = env.orch.DeleteMessage(roomID, "no-such-id", env.sess)
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)

	// Deleting twice succeeds both times.
	require.NoError(t, env.orch.DeleteMessage(roomID, a.LocalID, env.sess))
	require.NoError(t, env.orch.DeleteMessage(roomID, a.LocalID, env.sess))
	assert.Equal(t, message.StateDeleted, assistant(env.roomState(roomID)).State)

	_, err = env.store.GetMessage(context.Background(), a.LocalID)
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)
}

func TestDeleteMessage_TransientStateRejected(t *testing.T) {
	gate := make(chan struct{})
	client := &mockClient{response: "hi", gate: gate}
	env := newTestEnv(t, client)
	defer close(gate)
	roomID := createRoom(t, env)

	_, err := env.orch.Submit(roomID, "Hello", env.sess)
	require.NoError(t, err)

	// The placeholder stays non-terminal while the model call is gated.
	asst := assistant(env.roomState(roomID))
	require.NotNil(t, asst)
	err = env.orch.DeleteMessage(roomID, asst.LocalID, env.sess)
	assert.ErrorIs(t, err, ErrMessageBusy)
}

// =============================================================================
// ROOM NAVIGATION
// =============================================================================

func TestOpenRoom_LoadsDurableHistory(t *testing.T) {
	client := &mockClient{response: "answer"}
	env := newTestEnv(t, client)

	roomID, _ := submitAndComplete(t, env, "question")

	// Simulate a fresh surface: drop in-memory state, then reopen.
	env.orch.States().Delete(roomID)

	rs, err := env.orch.OpenRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.NotNil(t, rs.Room)
	assert.Equal(t, roomID, rs.Room.ID)
	require.Len(t, rs.Messages, 2)
	assert.Equal(t, message.RoleUser, rs.Messages[0].Role)
	assert.Equal(t, message.RoleAssistant, rs.Messages[1].Role)
}

func TestDeleteRoom_Idempotent(t *testing.T) {
	client := &mockClient{response: "answer"}
	env := newTestEnv(t, client)

	roomID, _ := submitAndComplete(t, env, "question")

	require.NoError(t, env.orch.DeleteRoom(roomID, env.sess))
	require.NoError(t, env.orch.DeleteRoom(roomID, env.sess))

	rooms, err := env.orch.ListRooms(context.Background(), env.sess)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}
