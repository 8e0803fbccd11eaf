package llm

import (
	"context"
	"fmt"
	"time"

	"surveychat/internal/logging"
)

// RetryClient wraps a Client with a bounded retry policy. Attempts beyond
// the first wait Backoff, 2*Backoff, ... between calls. Context
// cancellation stops the loop immediately.
type RetryClient struct {
	inner   Client
	retries int
	backoff time.Duration
}

// NewRetryClient wraps inner with up to retries additional attempts.
func NewRetryClient(inner Client, retries int, backoff time.Duration) *RetryClient {
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &RetryClient{inner: inner, retries: retries, backoff: backoff}
}

// Complete sends a prompt, retrying failed calls.
func (c *RetryClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message, retrying failed calls.
func (c *RetryClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * c.backoff
			logging.APIDebug("retrying LLM call in %v (attempt %d/%d): %v",
				wait, attempt+1, c.retries+1, lastErr)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("llm call canceled: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		out, err := c.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		// A dead context will not recover on retry.
		if ctx.Err() != nil {
			return "", fmt.Errorf("llm call canceled: %w", ctx.Err())
		}
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", c.retries+1, lastErr)
}
