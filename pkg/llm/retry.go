package llm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"negotiator/pkg/llm/llmerrors"
	"negotiator/pkg/logx"
)

// RetryableClient wraps a Client with per-error-class exponential backoff.
// It sits below the conversation engine: the engine itself never retries, but
// transport-level flakiness is absorbed here before it surfaces as a failed
// cycle.
type RetryableClient struct {
	client Client
	logger *logx.Logger
}

// NewRetryableClient creates a retry wrapper around the given client.
func NewRetryableClient(client Client) *RetryableClient {
	return &RetryableClient{
		client: client,
		logger: logx.NewLogger("llm-retry"),
	}
}

// Complete implements Client with classified retry logic.
func (r *RetryableClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		resp, err := r.client.Complete(ctx, in)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !llmerrors.IsRetryable(err) {
			return CompletionResponse{}, err
		}

		cfg := retryConfigFor(err)
		if attempt >= cfg.MaxRetries {
			break
		}

		delay := backoffDelay(&cfg, attempt)
		r.logger.Warn("LLM call failed (%s), retry %d/%d in %s: %v",
			llmerrors.TypeOf(err), attempt+1, cfg.MaxRetries, delay, err)

		select {
		case <-ctx.Done():
			return CompletionResponse{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return CompletionResponse{}, lastErr
}

// Stream implements Client. Streaming requests are not retried mid-stream;
// only the initial connection attempt goes through backoff.
func (r *RetryableClient) Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		ch, err := r.client.Stream(ctx, in)
		if err == nil {
			return ch, nil
		}
		lastErr = err

		if !llmerrors.IsRetryable(err) {
			return nil, err
		}

		cfg := retryConfigFor(err)
		if attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoffDelay(&cfg, attempt)):
		}
	}

	return nil, lastErr
}

// GetModelName returns the wrapped client's model name.
func (r *RetryableClient) GetModelName() string {
	return r.client.GetModelName()
}

// retryConfigFor resolves the backoff configuration for a classified error.
func retryConfigFor(err error) llmerrors.RetryConfig {
	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.GetRetryConfig()
	}
	return llmerrors.DefaultRetryConfigs[llmerrors.ErrorTypeUnknown]
}

// backoffDelay computes the exponential backoff delay for the given attempt.
func backoffDelay(cfg *llmerrors.RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		// Up to 25% jitter to avoid thundering herd.
		delay += delay * 0.25 * rand.Float64() //nolint:gosec // Jitter does not need crypto randomness
	}
	return time.Duration(delay)
}
