// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package failure classifies errors from persistence and model calls and
// decides retry versus terminal failure.
//
// Classification is deliberately permissive: an error the classifier does
// not recognize is treated as a transient unknown and retried with standard
// backoff, rather than failing to classify. Unknown failures should be
// logged with full detail for diagnosis.
package failure

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jeranaias/parley/internal/message"
)

// =============================================================================
// FAILURE KINDS
// =============================================================================

// Kind categorizes a failure for retry decisions.
type Kind int

const (
	// KindUnknown is the default: transient, standard backoff, logged.
	KindUnknown Kind = iota
	// KindNetwork is a connectivity failure: transient, standard backoff.
	KindNetwork
	// KindAuthorization is terminal and surfaces a re-auth requirement.
	KindAuthorization
	// KindValidation is terminal: the same input will fail again.
	KindValidation
	// KindRateLimited is transient with extended backoff.
	KindRateLimited
)

// String returns the kind name used in logs and error reasons.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rateLimited"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind should be retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindAuthorization, KindValidation:
		return false
	default:
		return true
	}
}

// StatusCarrier is implemented by errors that carry an HTTP-like status.
type StatusCarrier interface {
	StatusCode() int
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classify maps an error to a failure kind. It checks typed errors first,
// then HTTP-like status codes, then recognizable keywords in the error
// text, and defaults to KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var verr *message.ValidationError
	if errors.As(err, &verr) {
		return KindValidation
	}

	var sc StatusCarrier
	if errors.As(err, &sc) {
		if k, ok := classifyStatus(sc.StatusCode()); ok {
			return k
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return KindNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}

	return classifyText(err.Error())
}

func classifyStatus(status int) (Kind, bool) {
	switch {
	case status == 401 || status == 403:
		return KindAuthorization, true
	case status == 429:
		return KindRateLimited, true
	case status == 400 || status == 422:
		return KindValidation, true
	case status >= 500:
		return KindNetwork, true
	default:
		return KindUnknown, false
	}
}

func classifyText(text string) Kind {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "401", "403", "unauthorized", "forbidden", "authentication", "api key"):
		return KindAuthorization
	case containsAny(lower, "429", "rate limit", "too many requests", "quota"):
		return KindRateLimited
	case containsAny(lower, "connection refused", "connection reset", "no such host", "timeout", "timed out", "network", "broken pipe", "eof"):
		return KindNetwork
	case containsAny(lower, "validation", "invalid request", "bad request"):
		return KindValidation
	default:
		return KindUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
