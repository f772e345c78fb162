// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package anim computes and drives the typewriter reveal schedule for
// assistant responses.
//
// The reveal is purely a presentation concern: it advances a cursor over a
// completed response string and never touches what is durably stored.
// Short responses use a fixed chunk size and tick interval; long responses
// get an adaptive chunk size so the whole animation finishes within a
// target duration, clamped to bound both choppiness and CPU usage.
//
// A schedule is cancellable at any tick boundary. Cancellation stops the
// cursor where it is; the full response remains available to persistence.
package anim

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the reveal timing constants.
type Config struct {
	// ChunkSize is the fixed per-tick reveal for short responses (default: 3)
	ChunkSize int

	// TickInterval is the delay between reveal steps (default: 30ms)
	TickInterval time.Duration

	// AdaptiveThreshold is the content length, in runes, above which the
	// adaptive policy kicks in (default: 600)
	AdaptiveThreshold int

	// TargetDuration is the window the whole animation should finish
	// within for long responses (default: 2500ms)
	TargetDuration time.Duration

	// MinChunkSize and MaxChunkSize clamp the adaptive chunk (default: 3-40)
	MinChunkSize int
	MaxChunkSize int

	// MinTickInterval is the frame-budget floor for the tick interval
	// (default: 16ms)
	MinTickInterval time.Duration
}

// DefaultConfig returns the default animation configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:         3,
		TickInterval:      30 * time.Millisecond,
		AdaptiveThreshold: 600,
		TargetDuration:    2500 * time.Millisecond,
		MinChunkSize:      3,
		MaxChunkSize:      40,
		MinTickInterval:   16 * time.Millisecond,
	}
}

// normalized fills in defaults for zero values.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.AdaptiveThreshold <= 0 {
		c.AdaptiveThreshold = d.AdaptiveThreshold
	}
	if c.TargetDuration <= 0 {
		c.TargetDuration = d.TargetDuration
	}
	if c.MinChunkSize <= 0 {
		c.MinChunkSize = d.MinChunkSize
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = d.MaxChunkSize
	}
	if c.MinTickInterval <= 0 {
		c.MinTickInterval = d.MinTickInterval
	}
	return c
}

// =============================================================================
// SCHEDULE
// =============================================================================

// Schedule is the computed reveal plan for one response.
type Schedule struct {
	// TotalRunes is the full content length in runes.
	TotalRunes int

	// ChunkSize is the base per-tick reveal in runes.
	ChunkSize int

	// TickInterval is the delay between reveal steps.
	TickInterval time.Duration

	// Generation tags the schedule with the send/regenerate attempt it
	// belongs to so late ticks from a superseded schedule are discarded.
	Generation uint64

	content []rune
}

// NewSchedule computes the reveal plan for content under cfg.
func NewSchedule(content string, cfg Config) *Schedule {
	cfg = cfg.normalized()
	runes := []rune(content)
	total := len(runes)

	chunk := cfg.ChunkSize
	tick := cfg.TickInterval

	if total > cfg.AdaptiveThreshold {
		// Size the chunk so total/chunk ticks fit in the target window.
		ticks := int(cfg.TargetDuration / tick)
		if ticks < 1 {
			ticks = 1
		}
		chunk = (total + ticks - 1) / ticks
		if chunk > cfg.MaxChunkSize {
			// Chunk is capped; speed up the tick instead, down to the
			// frame-budget floor.
			chunk = cfg.MaxChunkSize
			needed := (total + chunk - 1) / chunk
			tick = cfg.TargetDuration / time.Duration(needed)
			if tick < cfg.MinTickInterval {
				tick = cfg.MinTickInterval
			}
		}
		if chunk < cfg.MinChunkSize {
			chunk = cfg.MinChunkSize
		}
	}

	return &Schedule{
		TotalRunes:   total,
		ChunkSize:    chunk,
		TickInterval: tick,
		content:      runes,
	}
}

// EstimatedDuration returns roughly how long the full reveal takes.
func (s *Schedule) EstimatedDuration() time.Duration {
	if s.ChunkSize <= 0 {
		return 0
	}
	ticks := (s.TotalRunes + s.ChunkSize - 1) / s.ChunkSize
	return time.Duration(ticks) * s.TickInterval
}

// Next advances the cursor by one tick and returns the new revealed length
// and whether the reveal is complete.
//
// The step is boundary-aware: after the base chunk it extends a little to
// finish the word in progress, and extends further to close an open code
// fence instead of stalling inside it. Heuristic, not a hard guarantee.
func (s *Schedule) Next(revealed int) (int, bool) {
	if revealed >= s.TotalRunes {
		return s.TotalRunes, true
	}

	next := revealed + s.ChunkSize
	if next >= s.TotalRunes {
		return s.TotalRunes, true
	}

	next = s.extendToBoundary(next)
	if next >= s.TotalRunes {
		return s.TotalRunes, true
	}
	return next, false
}

// extendToBoundary nudges the cursor forward to a friendlier stopping
// point: the end of the current word, or past an in-progress code fence.
func (s *Schedule) extendToBoundary(next int) int {
	// Finish the word in progress, looking ahead at most half a chunk.
	limit := next + s.ChunkSize/2
	if limit > s.TotalRunes {
		limit = s.TotalRunes
	}
	for next < limit && !unicode.IsSpace(s.content[next]) {
		next++
	}

	// If the revealed prefix ends inside an unclosed code fence, jump to
	// the closing fence when it is near.
	if openFence(s.content[:next]) {
		if end := closingFence(s.content, next, next+4*s.ChunkSize); end > next {
			return end
		}
	}
	return next
}

// openFence reports whether the prefix contains an odd number of ```
// fence markers.
func openFence(prefix []rune) bool {
	return strings.Count(string(prefix), "```")%2 == 1
}

// closingFence returns the index just past the next ``` marker within
// [from, limit), or -1 if none is near.
func closingFence(content []rune, from, limit int) int {
	if limit > len(content) {
		limit = len(content)
	}
	idx := strings.Index(string(content[from:limit]), "```")
	if idx < 0 {
		return -1
	}
	return from + len([]rune(string(content[from:limit])[:idx])) + 3
}

// =============================================================================
// RUNNER
// =============================================================================

// Run drives the schedule against a clock, invoking fn with the new
// revealed length after every tick. It returns nil when the reveal
// completes and ctx.Err() if cancelled at a tick boundary.
//
// fn runs on the calling goroutine between ticks; it must not block.
func Run(ctx context.Context, s *Schedule, fn func(revealed int)) error {
	revealed := 0
	timer := time.NewTimer(s.TickInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		next, done := s.Next(revealed)
		revealed = next
		fn(revealed)
		if done {
			return nil
		}
		timer.Reset(s.TickInterval)
	}
}
