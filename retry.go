// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package esprom

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// RetryConfig configures how handshake cycles are repeated
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (values below 1 mean one)
	MaxAttempts int
	// InitialBackoff is the pause after the first failed attempt
	InitialBackoff time.Duration
	// MaxBackoff caps the pause between attempts
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which the backoff increases
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the backoff at random
	Jitter float64
	// RetryTimeout is the overall timeout for all attempts (0 = none)
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the handshake retry configuration: ten cycles
// back to back, each cycle already spends its own reset delays.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       ConnectAttempts,
		BackoffMultiplier: 2.0,
	}
}

// RetryableFunc is one attempt. attempt counts from zero.
type RetryableFunc func(attempt int) error

// RetryWithConfig runs retryFunc until it succeeds, returns an error that
// IsRetryable rejects, or the attempts run out. It returns the number of
// attempts made and the last error.
func RetryWithConfig(ctx context.Context, config *RetryConfig, retryFunc RetryableFunc) (int, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	retryCtx, cancel := setupRetryContext(ctx, config)
	defer cancel()
	return executeWithRetry(retryCtx, config, retryFunc)
}

func setupRetryContext(ctx context.Context, config *RetryConfig) (context.Context, context.CancelFunc) {
	if config.RetryTimeout > 0 {
		return context.WithTimeout(ctx, config.RetryTimeout)
	}
	return ctx, func() {}
}

func executeWithRetry(ctx context.Context, config *RetryConfig, retryFunc RetryableFunc) (int, error) {
	var lastErr error
	backoff := config.InitialBackoff
	maxAttempts := max(config.MaxAttempts, 1)

	for attempt := range maxAttempts {
		if err := checkContextCancellation(ctx); err != nil {
			return attempt, err
		}

		err := retryFunc(attempt)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return attempt + 1, err
		}

		if attempt < maxAttempts-1 && backoff > 0 {
			sleep := calculateJitteredSleep(backoff, config.Jitter)
			if err := sleepWithContext(ctx, sleep); err != nil {
				return attempt + 1, err
			}
			backoff = calculateNextBackoff(backoff, config)
		}
	}

	return maxAttempts, lastErr
}

func checkContextCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	default:
		return nil
	}
}

func sleepWithContext(ctx context.Context, sleep time.Duration) error {
	timer := time.NewTimer(sleep)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func calculateNextBackoff(backoff time.Duration, config *RetryConfig) time.Duration {
	newBackoff := time.Duration(float64(backoff) * config.BackoffMultiplier)
	if config.MaxBackoff > 0 && newBackoff > config.MaxBackoff {
		return config.MaxBackoff
	}
	return newBackoff
}

// calculateJitteredSleep calculates sleep duration with jitter
func calculateJitteredSleep(baseSleep time.Duration, jitterFactor float64) time.Duration {
	sleep := baseSleep
	if jitterFactor > 0 {
		var randBytes [8]byte
		if _, err := rand.Read(randBytes[:]); err == nil {
			randUint := binary.LittleEndian.Uint64(randBytes[:])
			randFloat := float64(randUint) / float64(1<<64)
			jitter := float64(sleep) * jitterFactor
			sleep += time.Duration(randFloat * jitter)
		}
	}
	return sleep
}
