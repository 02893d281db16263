package llmclient

import (
	"context"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// Retrying wraps a Client with the retry policy mandated by the language
// model client contract: rate_limited and upstream_error outcomes are
// retried with exponential backoff, at most maxRetries times each call
// (maxRetries+1 attempts in all); timeout and permanent_error are never
// retried.
type Retrying struct {
	inner      Client
	maxRetries int
	log        zerolog.Logger
}

// NewRetrying builds a Retrying client around inner, retrying rate-limited
// and upstream errors up to maxRetries times (0 disables retrying, leaving the first
// classified failure as final).
func NewRetrying(inner Client, maxRetries int, log zerolog.Logger) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{inner: inner, maxRetries: maxRetries, log: log}
}

func (r *Retrying) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	attempts := 0
	operation := func() (string, error) {
		attempts++
		out, err := r.inner.Complete(ctx, req)
		if err == nil {
			return out, nil
		}

		classified, ok := AsError(err)
		if !ok {
			// Infrastructure fault from inner client, not a classified
			// provider outcome: surface as permanent, no retry.
			return "", backoff.Permanent(err)
		}

		switch classified.Kind {
		case KindTimeout, KindPermanentError:
			return "", backoff.Permanent(err)
		case KindRateLimited, KindUpstreamError:
			r.log.Warn().Str("kind", string(classified.Kind)).Int("attempt", attempts).Msg("llmclient_retry")
			if classified.Kind == KindUpstreamError && attempts > r.maxRetries {
				return "", backoff.Permanent(err)
			}
			return "", err
		default:
			return "", backoff.Permanent(err)
		}
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(r.maxRetries)+1),
	)
}
