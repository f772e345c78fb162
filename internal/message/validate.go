// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package message contains the data structures for rooms and messages.
package message

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// VALIDATION
// =============================================================================

// MaxContentLength bounds outgoing message content, in runes. Matches the
// largest prompt the backend accepts in one request.
const MaxContentLength = 32000

// Validation errors. These are terminal: the same input will fail again, so
// they are never retried.
var (
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = fmt.Errorf("message content exceeds %d characters", MaxContentLength)
	ErrInvalidRoomID  = errors.New("invalid room id")
)

// ValidationError wraps a validation failure so callers can distinguish bad
// input from infrastructure failures with errors.As.
type ValidationError struct {
	Cause error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Cause.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// ValidateContent normalizes outgoing content and rejects unusable input.
// Returns the trimmed content on success.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", &ValidationError{Cause: ErrEmptyContent}
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", &ValidationError{Cause: ErrContentTooLong}
	}
	return trimmed, nil
}

// ValidateRoomKey checks a submitted room identifier. The NewRoomKey
// sentinel is always valid; anything else must be a non-blank identifier.
func ValidateRoomKey(roomKey string) error {
	if roomKey == NewRoomKey {
		return nil
	}
	if strings.TrimSpace(roomKey) == "" {
		return &ValidationError{Cause: ErrInvalidRoomID}
	}
	return nil
}
