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

// Package uart provides a serial port transport for the ROM loader, built on
// go.bug.st/serial.
package uart

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-esprom"
)

// DefaultBaudRate is the rate the ESP8266 ROM auto-detects most reliably.
const DefaultBaudRate = 115200

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("uart: transport closed")

// openPort is replaced in tests.
var openPort = serial.Open

// Transport implements esprom.Port on a serial device.
type Transport struct {
	port     serial.Port
	portName string
	mu       sync.Mutex
	closed   bool
}

// Open opens portName at baud, 8N1. A baud of zero selects DefaultBaudRate.
func Open(portName string, baud int) (*Transport, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	if baud < 0 {
		return nil, fmt.Errorf("invalid baud rate %d", baud)
	}

	port, err := openPort(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, &esprom.TransportError{Op: "open", Port: portName, Err: err}
	}

	if err := port.SetReadTimeout(esprom.DefaultCommandTimeout); err != nil {
		_ = port.Close()
		return nil, &esprom.TransportError{Op: "set timeout", Port: portName, Err: err}
	}

	esprom.Debugf("opened %s at %d baud", portName, baud)
	return newTransport(port, portName), nil
}

func newTransport(port serial.Port, portName string) *Transport {
	return &Transport{port: port, portName: portName}
}

// Name returns the port name the transport was opened with.
func (t *Transport) Name() string {
	return t.portName
}

// Read reads from the port. A zero count with a nil error means the read
// timeout expired.
func (t *Transport) Read(p []byte) (int, error) {
	if t.isClosed() {
		return 0, ErrClosed
	}
	n, err := t.port.Read(p)
	if err != nil {
		return n, fmt.Errorf("UART read failed: %w", err)
	}
	return n, nil
}

// Write writes p and waits until it has been transmitted.
func (t *Transport) Write(p []byte) (int, error) {
	if t.isClosed() {
		return 0, ErrClosed
	}
	n, err := t.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("UART write failed: %w", err)
	}
	if err := t.retryInterrupted("drain", t.port.Drain); err != nil {
		return n, err
	}
	return n, nil
}

// SetReadTimeout sets the per-read timeout.
func (t *Transport) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// ResetInputBuffer discards received bytes not yet read.
func (t *Transport) ResetInputBuffer() error {
	if t.isClosed() {
		return ErrClosed
	}
	return t.retryInterrupted("input reset", t.port.ResetInputBuffer)
}

// SetDTR drives the DTR line.
func (t *Transport) SetDTR(dtr bool) error {
	if t.isClosed() {
		return ErrClosed
	}
	if err := t.port.SetDTR(dtr); err != nil {
		return fmt.Errorf("UART set DTR failed: %w", err)
	}
	return nil
}

// SetRTS drives the RTS line.
func (t *Transport) SetRTS(rts bool) error {
	if t.isClosed() {
		return ErrClosed
	}
	if err := t.port.SetRTS(rts); err != nil {
		return fmt.Errorf("UART set RTS failed: %w", err)
	}
	return nil
}

// Close deasserts DTR and RTS, so the chip is left running, and closes the
// port. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.port == nil {
		return nil
	}
	t.closed = true

	if err := t.port.SetDTR(false); err != nil {
		esprom.Debugf("deassert DTR on %s: %v", t.portName, err)
	}
	if err := t.port.SetRTS(false); err != nil {
		esprom.Debugf("deassert RTS on %s: %v", t.portName, err)
	}
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// retryInterrupted runs a port operation, retrying interrupted system calls
func (*Transport) retryInterrupted(operation string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("UART %s failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s failed after %d retries", operation, maxRetries)
}

var _ esprom.Port = (*Transport)(nil)
