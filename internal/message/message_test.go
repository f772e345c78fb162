// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package message

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"plain content", "Hello", "Hello", nil},
		{"trims whitespace", "  Hello \n", "Hello", nil},
		{"empty rejected", "", "", ErrEmptyContent},
		{"whitespace only rejected", "   \t\n", "", ErrEmptyContent},
		{"too long rejected", strings.Repeat("a", MaxContentLength+1), "", ErrContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateContent(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Error("error should be a *ValidationError")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateRoomKey(t *testing.T) {
	if err := ValidateRoomKey(NewRoomKey); err != nil {
		t.Errorf("sentinel key should validate, got %v", err)
	}
	if err := ValidateRoomKey("room-123"); err != nil {
		t.Errorf("real key should validate, got %v", err)
	}
	if err := ValidateRoomKey("  "); !errors.Is(err, ErrInvalidRoomID) {
		t.Errorf("blank key error = %v, want ErrInvalidRoomID", err)
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := []State{StateCompleted, StateError, StateDeleted}
	transient := []State{StatePending, StatePersisting, StateAwaitingModel, StateLoading, StateAnimating}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range transient {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestMessageIdentity(t *testing.T) {
	m := NewUserMessage("room-1", "user-1", "hi")
	if m.LocalID == "" {
		t.Fatal("LocalID must be assigned at creation")
	}
	if m.RemoteID != "" {
		t.Fatal("RemoteID must be empty before commit")
	}

	local := m.LocalID
	m.RemoteID = "srv-42"
	if m.LocalID != local {
		t.Error("binding a RemoteID must not replace the LocalID")
	}
}

func TestVisibleContent(t *testing.T) {
	m := NewMessage("r", RoleAssistant, "héllo wörld")
	m.State = StateAnimating

	m.Revealed = 0
	if got := m.VisibleContent(); got != "" {
		t.Errorf("revealed 0 = %q, want empty", got)
	}

	m.Revealed = 5
	if got := m.VisibleContent(); got != "héllo" {
		t.Errorf("revealed 5 = %q, want %q", got, "héllo")
	}

	m.Revealed = 1000
	if got := m.VisibleContent(); got != m.Content {
		t.Errorf("over-reveal = %q, want full content", got)
	}

	m.State = StateCompleted
	m.Revealed = 2
	if got := m.VisibleContent(); got != m.Content {
		t.Errorf("completed message must show full content, got %q", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("empty = %d, want 0", got)
	}
	if got := EstimateTokens("abcd"); got != 1 {
		t.Errorf("4 chars = %d, want 1", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Errorf("5 chars = %d, want 2 (round up)", got)
	}
}

func TestTrimToBudget(t *testing.T) {
	msgs := []*Message{
		completed(NewMessage("r", RoleUser, strings.Repeat("a", 400))),     // 100 tokens
		completed(NewMessage("r", RoleAssistant, strings.Repeat("b", 400))), // 100 tokens
		completed(NewMessage("r", RoleUser, strings.Repeat("c", 400))),     // 100 tokens
	}

	kept := TrimToBudget(msgs, 250)
	if len(kept) != 2 {
		t.Fatalf("kept %d messages, want 2", len(kept))
	}
	// Chronological order preserved, newest retained
	if kept[0].Content[0] != 'b' || kept[1].Content[0] != 'c' {
		t.Error("TrimToBudget must drop oldest first and keep order")
	}
}

func TestTrimToBudget_AlwaysKeepsNewest(t *testing.T) {
	msgs := []*Message{
		completed(NewMessage("r", RoleUser, strings.Repeat("x", 4000))),
	}
	kept := TrimToBudget(msgs, 10)
	if len(kept) != 1 {
		t.Fatal("newest message must always survive trimming")
	}
}

func TestTrimToBudget_SkipsDeletedAndErrored(t *testing.T) {
	del := NewMessage("r", RoleUser, "gone")
	del.State = StateDeleted
	errd := NewMessage("r", RoleAssistant, "boom")
	errd.State = StateError

	msgs := []*Message{del, errd, completed(NewMessage("r", RoleUser, "hi"))}
	kept := TrimToBudget(msgs, 100)
	if len(kept) != 1 || kept[0].Content != "hi" {
		t.Errorf("kept = %v, want only the live message", kept)
	}
}

func TestRoomState_InFlight(t *testing.T) {
	user := completed(NewUserMessage("r", "u", "hi"))
	busy := NewLoadingMessage("r")
	rs := &RoomState{Room: NewRoom("u", "m", ""), Messages: []*Message{user, busy}}

	if got := rs.InFlight(); got != busy {
		t.Errorf("InFlight = %v, want the loading message", got)
	}

	busy.State = StateCompleted
	if rs.InFlight() != nil {
		t.Error("InFlight should be nil when all messages are terminal")
	}
}

func completed(m *Message) *Message {
	m.State = StateCompleted
	return m
}
