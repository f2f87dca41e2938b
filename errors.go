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
	"io"

	"github.com/ZaparooProject/go-esprom/internal/frame"
)

// Error categories used across the loader
var (
	// Exchange errors - recoverable, callers decide whether to retry
	ErrTimeout     = errors.New("no matching response within retry bound")
	ErrDeviceError = errors.New("device reported failure")

	// Session errors
	ErrHandshakeFailed = errors.New("handshake failed")
	ErrNotConnected    = errors.New("session not connected")

	// Input and transport errors
	ErrImage     = errors.New("invalid image")
	ErrTransport = errors.New("transport failure")
)

// FramingError reports a malformed or truncated SLIP frame.
type FramingError = frame.FramingError

// ProtocolErrorKind classifies a ProtocolError.
type ProtocolErrorKind int

const (
	// ProtocolTimeout means the retry bound ran out without a matching reply.
	ProtocolTimeout ProtocolErrorKind = iota
)

// ProtocolError is returned by an exchange that did not get a usable answer.
type ProtocolError struct {
	Last     error // Last framing error seen, if any
	Op       Opcode
	Kind     ProtocolErrorKind
	Attempts int
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: no response after %d attempts", e.Op, e.Attempts)
	if e.Last != nil {
		msg += fmt.Sprintf(" (last: %v)", e.Last)
	}
	return msg
}

// Is matches ErrTimeout for timeout kinds.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrTimeout && e.Kind == ProtocolTimeout
}

func (e *ProtocolError) Unwrap() error {
	return e.Last
}

// DeviceError is returned when the ROM answered but flagged a failure in its
// status bytes.
type DeviceError struct {
	Op     Opcode
	Status byte
	Code   byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s failed: status 0x%02X error 0x%02X (%s)",
		e.Op, e.Status, e.Code, romErrorMeaning(e.Code))
}

func (*DeviceError) Unwrap() error {
	return ErrDeviceError
}

// romErrorMeaning returns a readable meaning for ROM loader error codes.
func romErrorMeaning(code byte) string {
	meanings := map[byte]string{
		0x00: "none",
		0x05: "received message is invalid",
		0x06: "failed to act on received message",
		0x07: "invalid CRC in message",
		0x08: "flash write error",
		0x09: "flash read error",
		0x0A: "flash read length error",
		0x0B: "deflate error",
	}
	if m, ok := meanings[code]; ok {
		return m
	}
	return "unknown error"
}

// HandshakeError is returned by Connect once every sync cycle has failed.
type HandshakeError struct {
	Last     error
	Attempts int
}

func (e *HandshakeError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("handshake failed after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("handshake failed after %d attempts: %v", e.Attempts, e.Last)
}

func (*HandshakeError) Is(target error) bool {
	return target == ErrHandshakeFailed
}

func (e *HandshakeError) Unwrap() error {
	return e.Last
}

// ImageError reports an input image that cannot be loaded.
type ImageError struct {
	Err    error
	Reason string
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image: %s: %v", e.Reason, e.Err)
	}
	return "image: " + e.Reason
}

func (*ImageError) Is(target error) bool {
	return target == ErrImage
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// TransportError wraps I/O failures on the serial channel with context.
type TransportError struct {
	Err       error  // Underlying error
	Op        string // Operation that failed
	Port      string // Port identifier
	Retryable bool   // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (*TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// LoadError reports which step of a RAM load failed. A failed load cannot be
// resumed; start again from Connect.
type LoadError struct {
	Err     error
	Op      Opcode
	Segment int
	Block   int // -1 when the failure is not tied to a block
}

func (e *LoadError) Error() string {
	if e.Block >= 0 {
		return fmt.Sprintf("load segment %d block %d: %v", e.Segment, e.Block, e.Err)
	}
	if e.Op == OpMemEnd {
		return fmt.Sprintf("load finish: %v", e.Err)
	}
	return fmt.Sprintf("load segment %d: %v", e.Segment, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if a fresh attempt at the same exchange may
// succeed. Handshake cycles use it to decide whether to keep going.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	var fe *FramingError
	switch {
	case errors.As(err, &fe),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrDeviceError):
		return true
	default:
		return false
	}
}

// Classify returns a short name for the error category, for user-facing
// messages.
func Classify(err error) string {
	var fe *FramingError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrHandshakeFailed):
		return "handshake failed"
	case errors.Is(err, ErrImage):
		return "image error"
	case errors.Is(err, ErrTransport), errors.Is(err, io.EOF):
		return "transport error"
	case errors.Is(err, ErrDeviceError):
		return "device error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &fe):
		return "framing error"
	case errors.Is(err, ErrNotConnected):
		return "not connected"
	default:
		return "error"
	}
}
