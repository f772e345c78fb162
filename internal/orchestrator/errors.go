// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator coordinates the message lifecycle for chat rooms.
package orchestrator

import (
	"errors"
)

var (
	// ErrRoomBusy rejects a Submit while another message in the room is
	// still in a non-terminal state. Sends are never interleaved.
	ErrRoomBusy = errors.New("a message is already in flight for this room")

	// ErrAccessDenied rejects an operation on a message the requesting
	// session does not own.
	ErrAccessDenied = errors.New("message belongs to a different user")

	// ErrMessageBusy rejects deletion of a message in a transient state.
	ErrMessageBusy = errors.New("message is still in flight")

	// ErrEmptyResponse marks a model call that returned no content.
	ErrEmptyResponse = errors.New("model returned an empty response")
)
