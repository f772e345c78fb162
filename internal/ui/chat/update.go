// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/util"
)

// exportDoneMsg reports the outcome of a transcript export.
type exportDoneMsg struct {
	path string
	err  error
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.rebuildRenderer()
		if m.viewport.Width == 0 {
			m.viewport = viewport.New(msg.Width, m.viewportHeight())
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.viewportHeight()
		}
		m.input.Width = msg.Width - 4
		m.refreshViewport()
		return m, nil

	case stateMsg:
		m.refreshViewport()
		return m, m.waitForState()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case exportDoneMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("export failed: %v", msg.err)
		} else {
			m.statusMsg = "exported to " + msg.path
		}
		return m, nil

	case tea.KeyMsg:
		m.statusMsg = ""

		switch {
		case key.Matches(msg, m.keyMap.Quit):
			m.Close()
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.Send):
			m.submit()
			return m, nil

		case key.Matches(msg, m.keyMap.Regenerate):
			m.regenerateLast()
			return m, nil

		case key.Matches(msg, m.keyMap.NewRoom):
			// Navigating away cancels whatever the old room still has in
			// flight; its messages settle before the subscription moves.
			m.orch.LeaveRoom(m.currentRoomKey())
			m.setRoom(message.NewRoomKey)
			m.refreshViewport()
			return m, m.waitForState()

		case key.Matches(msg, m.keyMap.Export):
			return m, m.exportCmd()

		case key.Matches(msg, m.keyMap.ScrollUp):
			m.viewport.HalfViewUp()
			return m, nil

		case key.Matches(msg, m.keyMap.ScrollDown):
			m.viewport.HalfViewDown()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit sends the composed input through the orchestrator. The optimistic
// state lands before Submit returns, so the next render already shows it.
func (m *Model) submit() {
	text := m.input.Value()
	if text == "" {
		return
	}

	_, err := m.orch.Submit(m.currentRoomKey(), text, m.sess)
	if err != nil {
		m.statusMsg = err.Error()
		return
	}
	m.input.Reset()
	m.refreshViewport()
}

// regenerateLast re-runs the newest assistant message, which covers both the
// retry affordance on an errored response and plain regeneration.
func (m *Model) regenerateLast() {
	rs := m.snapshot()
	if rs == nil {
		return
	}
	var target *message.Message
	for _, msg := range rs.Messages {
		if msg.Role == message.RoleAssistant && msg.State != message.StateDeleted {
			target = msg
		}
	}
	if target == nil {
		return
	}
	if err := m.orch.Regenerate(m.currentRoomKey(), target.LocalID); err != nil {
		m.statusMsg = err.Error()
	}
}

// exportCmd renders the room transcript to a Markdown file next to the
// working directory.
func (m *Model) exportCmd() tea.Cmd {
	roomKey := m.currentRoomKey()
	if roomKey == message.NewRoomKey {
		m.statusMsg = "nothing to export yet"
		return nil
	}
	return func() tea.Msg {
		text, err := m.orch.ExportRoom(context.Background(), roomKey)
		if err != nil {
			return exportDoneMsg{err: err}
		}
		path := filepath.Join(".", "parley-"+util.TruncateRunes(roomKey, 8)+".md")
		if err := util.AtomicWriteFile(path, []byte(text), os.FileMode(0o644)); err != nil {
			return exportDoneMsg{err: err}
		}
		return exportDoneMsg{path: path}
	}
}

// refreshViewport re-renders the transcript and keeps the view pinned to
// the newest content.
func (m *Model) refreshViewport() {
	if m.viewport.Width == 0 {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// viewportHeight is the transcript area: total height minus header, input
// and status rows.
func (m *Model) viewportHeight() int {
	h := m.height - 6
	if h < 3 {
		h = 3
	}
	return h
}
