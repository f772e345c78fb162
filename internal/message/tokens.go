// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package message contains the data structures for rooms and messages.
package message

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// DefaultTokenBudget is the context budget applied to room history before a
// model call when the configuration does not override it.
const DefaultTokenBudget = 8000

// EstimateTokens gives a rough token count for a string.
// Uses the ~4 characters per token heuristic, rounded up. Good enough for
// bounding context size; not a substitute for the backend's tokenizer.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// TrimToBudget returns the most recent messages whose estimated token total
// fits within budget. Messages are dropped oldest-first; the newest message
// is always kept even if it alone exceeds the budget, since sending nothing
// is worse than sending an oversized prompt the backend will reject itself.
//
// Deleted and errored messages carry no context and are skipped.
func TrimToBudget(msgs []*Message, budget int) []*Message {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	kept := make([]*Message, 0, len(msgs))
	total := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.State == StateDeleted || m.State == StateError {
			continue
		}
		cost := m.EstimateTokens()
		if len(kept) > 0 && total+cost > budget {
			break
		}
		kept = append(kept, m)
		total += cost
	}

	// Reverse back to chronological order
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}
