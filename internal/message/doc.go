// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package message contains the data structures for rooms and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat rooms, messages, and the message lifecycle.
//
// # Key Types
//
//   - Message: Single message with two-field identity (LocalID/RemoteID),
//     role, content, timestamp, and lifecycle state
//   - Room: Container for a chat thread with a selected model
//   - State: Message lifecycle state enumeration
//   - Role: Message role enumeration (user, assistant, system)
//
// # Identity
//
// Every message carries a locally generated LocalID assigned at submission
// time. Once the backend commits the message, the backend-assigned RemoteID
// is recorded alongside it. The LocalID is never replaced; all UI
// reconciliation keys on it.
//
// # Lifecycle
//
// A message moves through:
//
//	pending → persistingUser → awaitingModel → loading → animating → completed
//
// with error reachable from any transient state and deleted reachable from
// any non-pending state via explicit user action. Within one room at most
// one message is in a non-terminal state at any time.
package message
