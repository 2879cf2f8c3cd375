package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pathindex/pathindex/pkg/perrors"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterRetryableFailure(t *testing.T) {
	attempts := 0
	r := New(Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return perrors.New(perrors.CodeConnectionFailed, "transient")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestRetryDoesNotRetryNonRetryableErrors(t *testing.T) {
	attempts := 0
	r := New(DefaultConfig())

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return perrors.New(perrors.CodePathInvalid, "bad path")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestExactlyOnceRetriesOnce(t *testing.T) {
	attempts := 0
	r := New(ExactlyOnce())

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return perrors.New(perrors.CodeNoHostAvailable, "no host")
	})

	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(DefaultConfig())
	err := r.Do(ctx, func(ctx context.Context) error {
		return perrors.New(perrors.CodeConnectionFailed, "transient")
	})

	require.Error(t, err)
}
