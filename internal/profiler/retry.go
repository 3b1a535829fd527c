/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package profiler

import (
	"context"
	"database/sql/driver"
	"errors"
	"math"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
)

// RetryOptions configures the retry behavior
type RetryOptions struct {
	MaxAttempts       int           // Maximum number of attempts, including the first
	InitialBackoff    time.Duration // Initial backoff duration
	MaxBackoff        time.Duration // Maximum backoff duration
	BackoffMultiplier float64       // Multiplier for exponential backoff
}

// DefaultRetryOptions provides sensible default retry settings
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:       3,
	InitialBackoff:    100 * time.Millisecond,
	MaxBackoff:        2 * time.Second,
	BackoffMultiplier: 2.0,
}

// RetryOptionsFromConfig builds retry options from the profiler section.
// MaxRetries counts retries, so a value of 0 still runs the operation once.
func RetryOptionsFromConfig(cfg config.ProfilerConfig) RetryOptions {
	opts := DefaultRetryOptions
	opts.MaxAttempts = cfg.MaxRetries + 1
	if cfg.InitialBackoff > 0 {
		opts.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		opts.MaxBackoff = cfg.MaxBackoff
	}
	return opts
}

func (o RetryOptions) backoff(attempt int) time.Duration {
	d := time.Duration(float64(o.InitialBackoff) * math.Pow(o.BackoffMultiplier, float64(attempt)))
	if d > o.MaxBackoff {
		d = o.MaxBackoff
	}
	return d
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	var (
		conn    *ErrDatabaseConnection
		timeout *ErrTimeout
		query   *ErrQueryExecution
	)
	return errors.As(err, &conn) || errors.As(err, &timeout) || errors.As(err, &query)
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// withRetry executes the given operation with retry logic
func withRetry[T any](ctx context.Context, logger *zap.Logger, opts RetryOptions, op func(context.Context) (T, error)) (T, error) {
	var lastErr error
	var result T

	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr == nil {
				lastErr = &ErrCancelled{Msg: "operation cancelled by context", Err: ctx.Err()}
			}
			return result, lastErr
		}

		result, lastErr = op(ctx)
		if lastErr == nil {
			return result, nil
		}
		if !isRetryableError(lastErr) || attempt == attempts-1 {
			return result, lastErr
		}

		backoff := opts.backoff(attempt)
		logger.Warn("operation failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, &ErrCancelled{Msg: "operation cancelled during backoff", Err: ctx.Err()}
		case <-timer.C:
		}
	}

	return result, lastErr
}
