// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// The view is a pure function of the published room state: every message
// renders by its lifecycle state alone, with no local copies of pipeline
// progress. The orchestrator is the single writer; this model subscribes,
// coalesces notifications into Bubble Tea messages, and issues commands
// back through the orchestrator's public API.
package chat

import (
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/orchestrator"
	"github.com/jeranaias/parley/internal/ui/styles"
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// stateMsg signals that fresh room state is available to render.
type stateMsg struct{}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	orch *orchestrator.Orchestrator
	sess message.Session

	// Styling
	theme    *styles.Theme
	renderer *glamour.TermRenderer

	// Dimensions
	width  int
	height int

	// Room subscription. The listener runs on the orchestrator's goroutine
	// and must not block: it stores the snapshot and pokes the updates
	// channel, dropping the poke when one is already pending.
	roomKey string
	unsub   func()
	updates chan struct{}

	stateMu  sync.Mutex
	latest   *message.RoomState
	subEpoch uint64

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	keyMap   KeyMap

	// Transient status line, cleared on the next keypress.
	statusMsg string
}

// New creates a chat model bound to a room key. Use message.NewRoomKey to
// start composing into a room that does not exist yet.
func New(orch *orchestrator.Orchestrator, sess message.Session, roomKey string) *Model {
	theme := styles.NewTheme()

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = message.MaxContentLength
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = theme.Spinner

	m := &Model{
		orch:    orch,
		sess:    sess,
		theme:   theme,
		updates: make(chan struct{}, 1),
		input:   input,
		spin:    spin,
		keyMap:  DefaultKeyMap(),
	}
	m.setRoom(roomKey)
	return m
}

// setRoom points the model at a room key and follows its publications. The
// subscription survives the sentinel-to-real-ID rekey; the listener learns
// the real key from the published room record.
//
// An unsubscribed listener may still be mid-delivery when the room
// switches, so every write it makes is guarded by the subscription epoch:
// only the current subscription may touch roomKey and latest.
func (m *Model) setRoom(roomKey string) {
	if m.unsub != nil {
		m.unsub()
	}
	latest, _ := m.orch.States().Get(roomKey)

	m.stateMu.Lock()
	m.subEpoch++
	epoch := m.subEpoch
	m.roomKey = roomKey
	m.latest = latest
	m.stateMu.Unlock()

	m.unsub = m.orch.States().Subscribe(roomKey, func(rs *message.RoomState) {
		m.stateMu.Lock()
		if m.subEpoch == epoch {
			m.latest = rs
			if rs.Room != nil {
				m.roomKey = rs.Room.ID
			}
		}
		m.stateMu.Unlock()
		select {
		case m.updates <- struct{}{}:
		default:
		}
	})
}

// snapshot returns the most recently published room state, or nil.
func (m *Model) snapshot() *message.RoomState {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.latest
}

// currentRoomKey returns the key the model is following, which may have
// changed from the sentinel after room creation.
func (m *Model) currentRoomKey() string {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.roomKey
}

// waitForState blocks until the subscription delivers a notification.
func (m *Model) waitForState() tea.Cmd {
	return func() tea.Msg {
		<-m.updates
		return stateMsg{}
	}
}

// Init starts the spinner and the state-notification pump.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitForState(), textinput.Blink)
}

// Close releases the room subscription.
func (m *Model) Close() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

// rebuildRenderer sizes the Markdown renderer to the viewport. A failed
// build leaves the renderer nil and views fall back to raw text.
func (m *Model) rebuildRenderer() {
	width := m.width - 2
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
}
