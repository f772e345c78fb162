// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"fmt"
	"strings"

	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat screen.
func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.theme.InputContainer.Width(m.width).Render(
		m.theme.InputPrompt.Render("> ") + m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	return m.theme.App.Render(b.String())
}

func (m *Model) renderHeader() string {
	title := "parley"
	rs := m.snapshot()
	if rs != nil && rs.Room != nil && rs.Room.Name != "" {
		title = util.SingleLine(rs.Room.Name)
	}
	model := m.orch.Model()
	title = util.TruncateWidth(title, m.width-util.StringWidth(model)-4)
	return m.theme.Header.Width(m.width).Render(
		m.theme.Title.Render(title) + "  " + m.theme.StatusModel.Render(model))
}

// renderStatus shows the transient status (or the key hints) on the left
// and the composer character count on the right.
func (m *Model) renderStatus() string {
	left := util.SingleLine(m.statusMsg)
	if left == "" {
		left = "enter send · ctrl+r regenerate · ctrl+n new room · ctrl+e export · ctrl+c quit"
	}

	n := util.RuneLen(m.input.Value())
	count := fmt.Sprintf("%d/%d", n, message.MaxContentLength)
	counter := m.theme.CharCount.Render(count)
	if n >= message.MaxContentLength*9/10 {
		counter = m.theme.CharCountWarning.Render(count)
	}

	avail := m.width - util.StringWidth(count) - 1
	left = util.TruncateWidth(left, avail)
	return m.theme.StatusBar.Render(util.PadRight(left, avail) + " " + counter)
}

// renderMessages renders the transcript. Every message renders purely by
// its lifecycle state.
func (m *Model) renderMessages() string {
	rs := m.snapshot()
	if rs == nil || len(rs.Messages) == 0 {
		return m.theme.Faint.Render("No messages yet. Say something.")
	}

	parts := make([]string, 0, len(rs.Messages))
	for _, msg := range rs.Messages {
		parts = append(parts, m.renderMessage(msg))
	}
	return strings.Join(parts, "\n\n")
}

func (m *Model) renderMessage(msg *message.Message) string {
	label := m.roleLabel(msg.Role)

	switch msg.State {
	case message.StateDeleted:
		return label + "\n" + m.theme.Deleted.Render("(deleted)")

	case message.StatePending, message.StatePersisting:
		return label + "\n" + m.theme.UserBubble.Render(msg.Content)

	case message.StateLoading, message.StateAwaitingModel:
		return label + "\n" + m.spin.View() + m.theme.Thinking.Render(" thinking...")

	case message.StateAnimating:
		return label + "\n" + m.theme.Assistant.Render(msg.VisibleContent()) +
			m.theme.Cursor.Render("▌")

	case message.StateError:
		reason := msg.ErrorReason
		if reason == "" {
			reason = "something went wrong"
		}
		body := m.theme.ErrorTitle.Render("Failed") + "\n" + reason
		if msg.Role == message.RoleAssistant {
			body += "\n" + m.theme.RetryHint.Render("press ctrl+r to retry")
		}
		return label + "\n" + m.theme.ErrorBox.Render(body)

	default:
		// Completed. Assistant responses get Markdown rendering.
		if msg.Role == message.RoleAssistant && m.renderer != nil {
			if out, err := m.renderer.Render(msg.Content); err == nil {
				return label + "\n" + strings.TrimRight(out, "\n")
			}
		}
		if msg.Role == message.RoleUser {
			return label + "\n" + m.theme.UserBubble.Render(msg.Content)
		}
		return label + "\n" + m.theme.Assistant.Render(msg.Content)
	}
}

func (m *Model) roleLabel(r message.Role) string {
	switch r {
	case message.RoleUser:
		return m.theme.UserLabel.Render(r.DisplayName())
	case message.RoleAssistant:
		return m.theme.AssistantLabel.Render(r.DisplayName())
	default:
		return m.theme.SystemLabel.Render(r.DisplayName())
	}
}
