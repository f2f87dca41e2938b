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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-esprom/internal/frame"
	"github.com/ZaparooProject/go-esprom/internal/syncutil"
)

// Client is a session with one ROM bootloader over a Port.
//
// Thread Safety: exported methods lock the session, so concurrent calls are
// serialized and never interleave frames. The protocol is strictly half
// duplex; there is no benefit in calling it from several goroutines.
type Client struct {
	port      Port
	decoder   *frame.Decoder
	observer  Observer
	retry     *RetryConfig
	portName  string
	timeouts  Timeouts
	resetHold time.Duration
	resetBoot time.Duration
	applied   time.Duration
	state     State
	mu        syncutil.Mutex
}

// Option configures a Client.
type Option func(*Client) error

// WithObserver installs a callback for protocol events.
func WithObserver(observer Observer) Option {
	return func(c *Client) error {
		c.observer = observer
		return nil
	}
}

// WithTimeouts overrides the duration behind each timeout profile.
func WithTimeouts(timeouts Timeouts) Option {
	return func(c *Client) error {
		if timeouts.Default <= 0 || timeouts.Sync <= 0 {
			return fmt.Errorf("timeouts must be positive, got default=%v sync=%v",
				timeouts.Default, timeouts.Sync)
		}
		c.timeouts = timeouts
		return nil
	}
}

// WithResetDelays sets the two pauses of the reset-into-bootloader sequence.
// Zero skips a pause.
func WithResetDelays(hold, boot time.Duration) Option {
	return func(c *Client) error {
		if hold < 0 || boot < 0 {
			return errors.New("reset delays must not be negative")
		}
		c.resetHold = hold
		c.resetBoot = boot
		return nil
	}
}

// WithRetryConfig sets how handshake cycles are repeated.
func WithRetryConfig(config *RetryConfig) Option {
	return func(c *Client) error {
		if config == nil {
			return errors.New("retry config must not be nil")
		}
		c.retry = config
		return nil
	}
}

// WithPortName labels transport errors with the port name.
func WithPortName(name string) Option {
	return func(c *Client) error {
		c.portName = name
		return nil
	}
}

// New creates a session on port. The session starts in StateIdle; call
// Connect before loading.
func New(port Port, opts ...Option) (*Client, error) {
	if port == nil {
		return nil, errors.New("port must not be nil")
	}

	client := &Client{
		port:      port,
		decoder:   frame.NewDecoder(port, frame.MaxResponseLength),
		retry:     DefaultRetryConfig(),
		timeouts:  DefaultTimeouts(),
		resetHold: ResetHoldDelay,
		resetBoot: ResetBootDelay,
		state:     StateIdle,
	}

	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// State returns the current handshake state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the ROM is synced and ready for commands.
//
// It turns false once LoadRAM has started an image (non-zero entry), since
// the chip has left the ROM. A failed load also clears it; Connect again
// before the next load.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Timeouts returns the durations in use.
func (c *Client) Timeouts() Timeouts {
	return c.timeouts
}

func (c *Client) emit(ev Event) {
	if c.observer != nil {
		c.observer(ev)
	}
}

// applyTimeout configures the port for profile before the next read.
func (c *Client) applyTimeout(profile TimeoutProfile) error {
	d := c.timeouts.Duration(profile)
	if d == c.applied {
		return nil
	}
	if err := c.port.SetReadTimeout(d); err != nil {
		return &TransportError{Op: "set timeout", Port: c.portName, Err: err}
	}
	c.applied = d
	return nil
}

// flushInput drops stale input both in the port and in the decoder.
func (c *Client) flushInput() error {
	if err := c.port.ResetInputBuffer(); err != nil {
		return &TransportError{Op: "flush input", Port: c.portName, Err: err}
	}
	c.decoder.Reset()
	return nil
}
