// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package failure classifies errors from persistence and model calls and
// decides retry versus terminal failure.
package failure

import (
	"time"
)

// =============================================================================
// RETRY POLICY
// =============================================================================

// Policy controls retry behavior for one send operation. Persistence and
// model-call failures within a send share a single RetryContext, so the
// attempt cap bounds the whole operation, not each stage.
type Policy struct {
	// MaxAttempts is the total attempt cap (default: 3)
	MaxAttempts int

	// BaseDelay is the first backoff delay; each further attempt adds one
	// more BaseDelay (default: 1s, so 1s, 2s, 3s, ...)
	BaseDelay time.Duration

	// RateLimitFactor stretches the delay for rate-limited failures
	// (default: 3)
	RateLimitFactor int
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		RateLimitFactor: 3,
	}
}

// normalized fills in defaults for zero values.
func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 1 * time.Second
	}
	if p.RateLimitFactor <= 0 {
		p.RateLimitFactor = 3
	}
	return p
}

// =============================================================================
// RETRY CONTEXT
// =============================================================================

// RetryContext tracks attempts for one send operation. It is owned by the
// orchestrator for the duration of the operation and discarded on success
// or terminal failure. Generation tags the operation so results arriving
// after a regenerate can be discarded as stale.
type RetryContext struct {
	policy     Policy
	attempts   int
	lastKind   Kind
	lastErr    error
	Generation uint64
}

// NewRetryContext creates a retry context under the given policy.
func NewRetryContext(policy Policy, generation uint64) *RetryContext {
	return &RetryContext{policy: policy.normalized(), Generation: generation}
}

// Attempts returns how many attempts have been recorded.
func (rc *RetryContext) Attempts() int {
	return rc.attempts
}

// LastKind returns the classification of the most recent failure.
func (rc *RetryContext) LastKind() Kind {
	return rc.lastKind
}

// LastErr returns the most recent failure.
func (rc *RetryContext) LastErr() error {
	return rc.lastErr
}

// Record registers a failed attempt and returns the retry decision:
// whether to retry, and if so after what delay.
//
// The delay grows by one BaseDelay per recorded attempt (1s, 2s, 3s with
// defaults); rate-limited failures stretch the delay by RateLimitFactor.
func (rc *RetryContext) Record(err error) (retry bool, delay time.Duration) {
	rc.attempts++
	rc.lastErr = err
	rc.lastKind = Classify(err)

	if !rc.lastKind.Retryable() {
		return false, 0
	}
	if rc.attempts >= rc.policy.MaxAttempts {
		return false, 0
	}

	delay = time.Duration(rc.attempts) * rc.policy.BaseDelay
	if rc.lastKind == KindRateLimited {
		delay *= time.Duration(rc.policy.RateLimitFactor)
	}
	return true, delay
}
