// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the parley TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the application. It detects the
// terminal's color capability and degrades gracefully on limited terminals.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// APPLICATION CONTAINER STYLES
	// ==========================================================================

	App    lipgloss.Style
	Header lipgloss.Style
	Title  lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	UserBubble     lipgloss.Style
	Assistant      lipgloss.Style
	Deleted        lipgloss.Style
	Cursor         lipgloss.Style

	// ==========================================================================
	// STATUS AND ERROR STYLES
	// ==========================================================================

	StatusBar   lipgloss.Style
	StatusModel lipgloss.Style
	Spinner     lipgloss.Style
	Thinking    lipgloss.Style
	ErrorBox    lipgloss.Style
	ErrorTitle  lipgloss.Style
	RetryHint   lipgloss.Style

	// ==========================================================================
	// INPUT AREA STYLES
	// ==========================================================================

	InputContainer   lipgloss.Style
	InputPrompt      lipgloss.Style
	CharCount        lipgloss.Style
	CharCountWarning lipgloss.Style

	// ==========================================================================
	// ROOM LIST STYLES
	// ==========================================================================

	RoomItem     lipgloss.Style
	RoomSelected lipgloss.Style
	Faint        lipgloss.Style
}

// Palette anchors. Adaptive colors pick per light/dark background.
var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#00A870", Dark: "#2BD99F"}
	colorError   = lipgloss.AdaptiveColor{Light: "#C42847", Dark: "#FF5C77"}
	colorWarn    = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#F0C674"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#666666"}
	colorText    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#E6E6E6"}
)

// NewTheme builds the theme for the current terminal.
func NewTheme() *Theme {
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		ColorProfile: termenv.ColorProfile(),
	}

	t.App = lipgloss.NewStyle().Padding(0, 1)
	t.Header = lipgloss.NewStyle().
		Foreground(colorPrimary).
		Bold(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(colorMuted)
	t.Title = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)

	t.UserLabel = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	t.SystemLabel = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	t.UserBubble = lipgloss.NewStyle().Foreground(colorText)
	t.Assistant = lipgloss.NewStyle().Foreground(colorText)
	t.Deleted = lipgloss.NewStyle().Foreground(colorMuted).Strikethrough(true)
	t.Cursor = lipgloss.NewStyle().Foreground(colorPrimary).Blink(true)

	t.StatusBar = lipgloss.NewStyle().Foreground(colorMuted)
	t.StatusModel = lipgloss.NewStyle().Foreground(colorAccent)
	t.Spinner = lipgloss.NewStyle().Foreground(colorPrimary)
	t.Thinking = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)

	t.ErrorBox = lipgloss.NewStyle().
		Foreground(colorError).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorError).
		Padding(0, 1)
	t.ErrorTitle = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	t.RetryHint = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(colorMuted)
	t.InputPrompt = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	t.CharCount = lipgloss.NewStyle().Foreground(colorMuted)
	t.CharCountWarning = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)

	t.RoomItem = lipgloss.NewStyle().Foreground(colorText)
	t.RoomSelected = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Reverse(true)
	t.Faint = lipgloss.NewStyle().Foreground(colorMuted)

	return t
}
