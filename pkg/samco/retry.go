package samco

import (
	"context"
	"net/http"
)

// DefaultMaxAttempts is the total number of sends for one request, first try included.
const DefaultMaxAttempts = 10

// RetryPolicy bounds how often a request is re-sent.
// A response is retried only while Retryable(status) holds and fewer than
// MaxAttempts sends have been made; the last response is returned as-is.
type RetryPolicy struct {
	MaxAttempts int
	Retryable   func(status int) bool
}

// DefaultRetryPolicy retries throttled responses up to DefaultMaxAttempts times in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Retryable: IsThrottled}
}

// IsThrottled reports a 429 Too Many Requests status.
func IsThrottled(status int) bool {
	return status == http.StatusTooManyRequests
}

// Run calls attempt with a 1-based attempt number until the policy stops it.
// Transport errors end the loop immediately.
func (p RetryPolicy) Run(ctx context.Context, attempt func(ctx context.Context, n int) (*Response, error)) (*Response, error) {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsThrottled
	}

	var resp *Response
	for n := 1; ; n++ {
		var err error
		resp, err = attempt(ctx, n)
		if err != nil {
			return nil, err
		}
		resp.Attempts = n
		if n >= max || !retryable(resp.StatusCode) {
			return resp, nil
		}
	}
}
