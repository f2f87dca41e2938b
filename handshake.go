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
	"fmt"
	"time"
)

// State is the handshake state of a Client.
type State int

const (
	// StateIdle means no synced session; Connect has not run or failed.
	StateIdle State = iota
	// StateResetting means the control lines are cycling the chip.
	StateResetting
	// StateSyncing means sync commands are being exchanged.
	StateSyncing
	// StateConnected means the ROM is synced and accepts commands.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResetting:
		return "resetting"
	case StateSyncing:
		return "syncing"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Connect resets the chip into its ROM bootloader and syncs with it.
//
// Each cycle pulses the control lines, flushes pending input and sends a
// Sync, then drains the flood of duplicate sync replies. Failed cycles are
// repeated according to the retry config (ten cycles by default). When all
// cycles fail the error matches ErrHandshakeFailed. Transport failures that
// cannot be retried end Connect early.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempts, err := RetryWithConfig(ctx, c.retry, func(attempt int) error {
		if cycleErr := c.connectCycle(ctx, attempt); cycleErr != nil {
			Debugf("connect attempt %d failed: %v", attempt+1, cycleErr)
			c.setState(StateIdle, attempt)
			return cycleErr
		}
		return nil
	})
	if err == nil {
		Debugf("connected after %d attempt(s)", attempts)
		return nil
	}

	if c.state != StateIdle {
		c.setState(StateIdle, attempts)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || !IsRetryable(err) {
		return fmt.Errorf("connect: %w", err)
	}
	return &HandshakeError{Attempts: attempts, Last: err}
}

// Sync runs the sync exchange without resetting the chip. It is safe to
// call on a connected session; the duplicate replies are drained before it
// returns.
func (c *Client) Sync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sync(ctx); err != nil {
		c.setState(StateIdle, 0)
		return err
	}
	c.setState(StateConnected, 0)
	return nil
}

func (c *Client) connectCycle(ctx context.Context, attempt int) error {
	c.setState(StateResetting, attempt)
	c.resetToBootloader()

	c.setState(StateSyncing, attempt)
	if err := c.sync(ctx); err != nil {
		return err
	}

	c.setState(StateConnected, attempt)
	return nil
}

// resetToBootloader pulses DTR and RTS the way USB serial adapters on
// ESP8266 boards wire them to EN and GPIO0. This is best effort: ports
// without modem control lines still work if the chip was put into the
// bootloader by hand.
func (c *Client) resetToBootloader() {
	steps := []struct {
		set   func(bool) error
		name  string
		value bool
		pause time.Duration
	}{
		{set: c.port.SetDTR, name: "DTR", value: false},
		{set: c.port.SetRTS, name: "RTS", value: true, pause: c.resetHold},
		{set: c.port.SetDTR, name: "DTR", value: true},
		{set: c.port.SetRTS, name: "RTS", value: false, pause: c.resetBoot},
		{set: c.port.SetDTR, name: "DTR", value: true},
	}

	for _, step := range steps {
		if err := step.set(step.value); err != nil {
			Debugf("set %s=%v failed: %v", step.name, step.value, err)
		}
		if step.pause > 0 {
			time.Sleep(step.pause)
		}
	}
}

func (c *Client) sync(ctx context.Context) error {
	if err := c.flushInput(); err != nil {
		return err
	}
	if _, err := c.send(ctx, OpSync, SyncPayload(), 0, TimeoutSync); err != nil {
		return err
	}
	return c.drainSyncFlood()
}

// drainSyncFlood reads the SyncFloodReplies duplicate replies that follow a
// successful sync. Their content is irrelevant.
func (c *Client) drainSyncFlood() error {
	for i := range SyncFloodReplies {
		drained := false
		for attempt := 0; attempt < SendResponseAttempts && !drained; attempt++ {
			_, ok, err := c.readResponse(OpSync)
			if err != nil {
				return fmt.Errorf("drain sync reply %d of %d: %w", i+1, SyncFloodReplies, err)
			}
			drained = ok
		}
		if !drained {
			return &ProtocolError{Op: OpSync, Kind: ProtocolTimeout, Attempts: SendResponseAttempts}
		}
	}
	return nil
}

func (c *Client) setState(state State, attempt int) {
	if c.state == state {
		return
	}
	c.state = state
	c.emit(Event{Kind: EventStateChange, State: state, Attempt: attempt})
}
