// Package llmclient implements ragarena's Language Model Client: a single
// complete() contract over one of several provider SDKs, with the
// timeout/rate-limited/upstream-error/permanent-error retry policy applied
// uniformly regardless of backend.
package llmclient

import (
	"context"
	"errors"
	"time"
)

// CompletionRequest is one request to complete(system, user, ...).
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client is the C2 contract every technique depends on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Kind classifies a completion failure so the retry wrapper and callers can
// react appropriately.
type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindRateLimited    Kind = "rate_limited"
	KindUpstreamError  Kind = "upstream_error"
	KindPermanentError Kind = "permanent_error"
)

// Error wraps an underlying provider error with its classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *Error) Unwrap() error  { return e.Err }

// AsError extracts an *Error classification, if present.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
