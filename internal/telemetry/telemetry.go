// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides the observability sink for parley.
//
// Components receive a Sink explicitly instead of writing to globals, so
// tests can capture events and headless runs can silence them. The sink is
// intentionally small: counters for rates, events for noteworthy
// conditions (retries, stale reads, discarded stale results).
package telemetry

import (
	"log"
	"sync"
)

// =============================================================================
// SINK INTERFACE
// =============================================================================

// Sink receives counters and events from the message pipeline.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Count adds delta to a named counter.
	Count(metric string, delta int)

	// Event records a noteworthy condition with human-readable detail.
	Event(name, detail string)
}

// Metric and event names emitted by the core.
const (
	MetricSubmits        = "submits"
	MetricRetries        = "retries"
	MetricErrors         = "errors"
	MetricStaleDiscards  = "stale_discards"
	MetricStaleReadPolls = "stale_read_polls"

	EventStaleReadTimeout = "stale_read_timeout"
	EventRetry            = "retry"
	EventTerminalFailure  = "terminal_failure"
	EventDeferredPersist  = "deferred_persist_failed"
)

// =============================================================================
// IMPLEMENTATIONS
// =============================================================================

// LogSink writes events to the standard logger and keeps counters in
// memory. The zero value is ready to use.
type LogSink struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewLogSink creates a sink that logs events via the stdlib logger.
func NewLogSink() *LogSink {
	return &LogSink{counters: make(map[string]int)}
}

// Count adds delta to a named counter.
func (s *LogSink) Count(metric string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters == nil {
		s.counters = make(map[string]int)
	}
	s.counters[metric] += delta
}

// Counter returns the current value of a counter.
func (s *LogSink) Counter(metric string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[metric]
}

// Event logs the event with its detail.
func (s *LogSink) Event(name, detail string) {
	log.Printf("telemetry: %s: %s", name, detail)
}

// NopSink discards everything. Useful as a default in tests.
type NopSink struct{}

func (NopSink) Count(string, int)    {}
func (NopSink) Event(string, string) {}

// MemSink records counters and events in memory for assertions.
type MemSink struct {
	mu       sync.Mutex
	counters map[string]int
	events   []RecordedEvent
}

// RecordedEvent is one captured Event call.
type RecordedEvent struct {
	Name   string
	Detail string
}

// NewMemSink creates an in-memory sink.
func NewMemSink() *MemSink {
	return &MemSink{counters: make(map[string]int)}
}

// Count adds delta to a named counter.
func (s *MemSink) Count(metric string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[metric] += delta
}

// Counter returns the current value of a counter.
func (s *MemSink) Counter(metric string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[metric]
}

// Event records the event.
func (s *MemSink) Event(name, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, RecordedEvent{Name: name, Detail: detail})
}

// Events returns a copy of the recorded events.
func (s *MemSink) Events() []RecordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedEvent, len(s.events))
	copy(out, s.events)
	return out
}
