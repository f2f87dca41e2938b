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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryConfig_DefaultRetryConfig(t *testing.T) {
	t.Parallel()

	config := DefaultRetryConfig()

	require.NotNil(t, config)
	assert.Equal(t, ConnectAttempts, config.MaxAttempts)
	assert.Zero(t, config.InitialBackoff)
	assert.Greater(t, config.BackoffMultiplier, 1.0)
	assert.Zero(t, config.RetryTimeout)
}

// TestCalculateNextBackoff tests exponential backoff calculation
func TestCalculateNextBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		config         *RetryConfig
		name           string
		currentBackoff time.Duration
		expected       time.Duration
	}{
		{
			name:           "Normal exponential growth",
			currentBackoff: 100 * time.Millisecond,
			config:         &RetryConfig{BackoffMultiplier: 2.0, MaxBackoff: 5 * time.Second},
			expected:       200 * time.Millisecond,
		},
		{
			name:           "Hits maximum backoff limit",
			currentBackoff: 3 * time.Second,
			config:         &RetryConfig{BackoffMultiplier: 2.0, MaxBackoff: 5 * time.Second},
			expected:       5 * time.Second,
		},
		{
			name:           "Fractional multiplier",
			currentBackoff: 200 * time.Millisecond,
			config:         &RetryConfig{BackoffMultiplier: 1.5, MaxBackoff: 5 * time.Second},
			expected:       300 * time.Millisecond,
		},
		{
			name:           "No cap",
			currentBackoff: 10 * time.Second,
			config:         &RetryConfig{BackoffMultiplier: 2.0},
			expected:       20 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, calculateNextBackoff(tt.currentBackoff, tt.config))
		})
	}
}

func TestCalculateJitteredSleep(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	assert.Equal(t, base, calculateJitteredSleep(base, 0))

	for range 20 {
		sleep := calculateJitteredSleep(base, 0.5)
		assert.GreaterOrEqual(t, sleep, base)
		assert.LessOrEqual(t, sleep, base+base/2)
	}
}

func TestRetryWithConfig_SucceedsAfterRetryableErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	attempts, err := RetryWithConfig(context.Background(), &RetryConfig{MaxAttempts: 5}, func(attempt int) error {
		assert.Equal(t, calls, attempt)
		calls++
		if calls < 3 {
			return &ProtocolError{Op: OpSync, Attempts: SendResponseAttempts}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	fatal := &TransportError{Op: "write Sync", Err: errors.New("port closed")}
	calls := 0
	attempts, err := RetryWithConfig(context.Background(), nil, func(int) error {
		calls++
		return fatal
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_Exhausted(t *testing.T) {
	t.Parallel()

	config := &RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 2 * time.Millisecond}
	calls := 0
	attempts, err := RetryWithConfig(context.Background(), config, func(int) error {
		calls++
		return &ProtocolError{Op: OpSync, Attempts: SendResponseAttempts}
	})

	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := RetryWithConfig(context.Background(), &RetryConfig{}, func(int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	config := &RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, BackoffMultiplier: 1}

	_, err := RetryWithConfig(ctx, config, func(int) error {
		cancel()
		return &ProtocolError{Op: OpSync}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "retry cancelled")
}

func TestRetryWithConfig_RetryTimeout(t *testing.T) {
	t.Parallel()

	config := &RetryConfig{
		MaxAttempts:       1000,
		InitialBackoff:    5 * time.Millisecond,
		BackoffMultiplier: 1,
		RetryTimeout:      30 * time.Millisecond,
	}
	attempts, err := RetryWithConfig(context.Background(), config, func(int) error {
		return &ProtocolError{Op: OpSync}
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, attempts, 1000)
}
