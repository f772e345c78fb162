// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package message contains the data structures for rooms and messages.
package message

// Session identifies the requesting user for ownership checks. Opaque to
// the pipeline beyond the user ID; authentication lives elsewhere.
type Session struct {
	UserID string
}

// Owns reports whether the session may modify the given message.
func (s Session) Owns(m *Message) bool {
	return m.UserID != "" && m.UserID == s.UserID
}
