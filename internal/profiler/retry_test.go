package profiler

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
)

func TestWithRetry(t *testing.T) {
	logger := zap.NewNop()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, err := withRetry(context.Background(), logger, fastRetry(), func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, &ErrTimeout{Msg: "slow", Err: context.DeadlineExceeded}
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), logger, fastRetry(), func(ctx context.Context) (int, error) {
			calls++
			return 0, &ErrQueryExecution{Msg: "boom"}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry invalid input", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), logger, fastRetry(), func(ctx context.Context) (int, error) {
			calls++
			return 0, &ErrInvalidInput{Msg: "bad"}
		})
		var ie *ErrInvalidInput
		assert.ErrorAs(t, err, &ie)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := withRetry(ctx, logger, fastRetry(), func(ctx context.Context) (int, error) {
			calls++
			return 0, nil
		})
		var ce *ErrCancelled
		assert.ErrorAs(t, err, &ce)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, calls)
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		opts := RetryOptions{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiplier: 1}
		_, err := withRetry(ctx, logger, opts, func(ctx context.Context) (int, error) {
			cancel()
			return 0, &ErrQueryExecution{Msg: "boom"}
		})
		var ce *ErrCancelled
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "operation cancelled during backoff", ce.Msg)
	})
}

func TestRetryOptionsFromConfig(t *testing.T) {
	opts := RetryOptionsFromConfig(config.ProfilerConfig{MaxRetries: 0})
	assert.Equal(t, 1, opts.MaxAttempts)
	assert.Equal(t, DefaultRetryOptions.InitialBackoff, opts.InitialBackoff)

	opts = RetryOptionsFromConfig(config.ProfilerConfig{MaxRetries: 4, InitialBackoff: time.Second, MaxBackoff: 3 * time.Second})
	assert.Equal(t, 5, opts.MaxAttempts)
	assert.Equal(t, time.Second, opts.backoff(0))
	assert.Equal(t, 2*time.Second, opts.backoff(1))
	assert.Equal(t, 3*time.Second, opts.backoff(2))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("x", nil))

	var ce *ErrCancelled
	assert.ErrorAs(t, classify("x", fmt.Errorf("wrapped: %w", context.Canceled)), &ce)

	var te *ErrTimeout
	assert.ErrorAs(t, classify("x", context.DeadlineExceeded), &te)

	var de *ErrDatabaseConnection
	assert.ErrorAs(t, classify("x", driver.ErrBadConn), &de)

	var qe *ErrQueryExecution
	err := classify("collect", errors.New("syntax error"))
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "query execution error: collect: syntax error", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	root := errors.New("root cause")
	err := fmt.Errorf("outer: %w", &ErrDatabaseConnection{Msg: "dial", Err: root})
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "invalid input error: no header", (&ErrInvalidInput{Msg: "no header"}).Error())
}
