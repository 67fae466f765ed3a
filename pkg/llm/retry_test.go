package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negotiator/pkg/llm/llmerrors"
)

func TestRetryableClientRecoversFromTransientError(t *testing.T) {
	mock := NewMockClient(
		[]CompletionResponse{{Content: "recovered", StopReason: "end_turn"}},
		[]error{llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset")},
	)
	client := NewRetryableClient(mock)

	resp, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{
		NewUserMessage("hello"),
	}))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Len(t, mock.Requests(), 2)
}

func TestRetryableClientDoesNotRetryAuthErrors(t *testing.T) {
	mock := NewMockClient(nil, []error{
		llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "bad API key"),
	})
	client := NewRetryableClient(mock)

	_, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{
		NewUserMessage("hello"),
	}))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
	assert.Len(t, mock.Requests(), 1)
}

func TestRetryableClientExhaustsRetries(t *testing.T) {
	unknown := llmerrors.NewError(llmerrors.ErrorTypeUnknown, "something odd")
	mock := NewMockClient(nil, []error{unknown, unknown})
	client := NewRetryableClient(mock)

	_, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{
		NewUserMessage("hello"),
	}))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeUnknown))
	// Unknown errors get exactly one retry
	assert.Len(t, mock.Requests(), 2)
}

func TestRetryableClientHonorsContextCancellation(t *testing.T) {
	rateLimited := llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429")
	mock := NewMockClient(nil, []error{rateLimited, rateLimited, rateLimited})
	client := NewRetryableClient(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, NewCompletionRequest([]CompletionMessage{
		NewUserMessage("hello"),
	}))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoffDelayCapsAtMaxDelay(t *testing.T) {
	cfg := llmerrors.RetryConfig{
		InitialDelay:  time.Second,
		MaxDelay:      4 * time.Second,
		BackoffFactor: 2.0,
	}

	assert.Equal(t, time.Second, backoffDelay(&cfg, 0))
	assert.Equal(t, 2*time.Second, backoffDelay(&cfg, 1))
	assert.Equal(t, 4*time.Second, backoffDelay(&cfg, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(&cfg, 10))
}
