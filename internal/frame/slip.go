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

package frame

import (
	"errors"
	"fmt"
	"io"
)

// Framing errors
var (
	ErrIncompleteFrame = errors.New("stream ended before frame terminator")
	ErrBadEscape       = errors.New("invalid escape sequence")
	ErrFrameTooLarge   = errors.New("frame exceeds maximum length")
	ErrEncoderClosed   = errors.New("encoder already closed")
)

// FramingError reports a malformed or truncated SLIP frame. The partially
// decoded bytes are never returned to the caller.
type FramingError struct {
	Err     error // One of the framing sentinels above
	Discard int   // Payload bytes dropped with the broken frame
}

func (e *FramingError) Error() string {
	if e.Discard > 0 {
		return fmt.Sprintf("slip frame: %v (discarded %d bytes)", e.Err, e.Discard)
	}
	return fmt.Sprintf("slip frame: %v", e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// AppendEncoded appends the SLIP encoding of payload, delimiters included,
// to dst.
func AppendEncoded(dst, payload []byte) []byte {
	dst = append(dst, End)
	dst = appendEscaped(dst, payload)
	return append(dst, End)
}

// Encode wraps payload in a SLIP frame.
func Encode(payload []byte) []byte {
	return AppendEncoded(make([]byte, 0, len(payload)+len(payload)/8+2), payload)
}

func appendEscaped(dst, payload []byte) []byte {
	for _, b := range payload {
		switch b {
		case End:
			dst = append(dst, Esc, EscEnd)
		case Esc:
			dst = append(dst, Esc, EscEsc)
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// Encoder builds one SLIP frame from several writes. Nothing reaches the
// underlying writer until Close, which emits the whole frame in a single
// write so a frame is never interleaved with other traffic.
type Encoder struct {
	w      io.Writer
	buf    []byte
	closed bool
}

// NewEncoder starts a frame destined for w.
func NewEncoder(w io.Writer) *Encoder {
	buf := make([]byte, 1, 64)
	buf[0] = End
	return &Encoder{w: w, buf: buf}
}

// Write escapes p into the pending frame.
func (e *Encoder) Write(p []byte) (int, error) {
	if e.closed {
		return 0, ErrEncoderClosed
	}
	e.buf = appendEscaped(e.buf, p)
	return len(p), nil
}

// Close terminates the frame and writes it out.
func (e *Encoder) Close() error {
	if e.closed {
		return ErrEncoderClosed
	}
	e.closed = true
	e.buf = append(e.buf, End)

	n, err := e.w.Write(e.buf)
	if err != nil {
		return err //nolint:wrapcheck // caller adds transport context
	}
	if n != len(e.buf) {
		return io.ErrShortWrite
	}
	return nil
}

// Decoder reads SLIP frames from a byte stream. Bytes that arrive after a
// terminator are kept for the next call to Decode.
//
// A read that returns no bytes and no error is treated as a read timeout,
// which is how serial ports report an expired read deadline.
type Decoder struct {
	r       io.Reader
	readErr error
	readBuf []byte
	pending []byte
	maxLen  int
	resync  bool
}

// NewDecoder creates a decoder reading from r. maxLen bounds the decoded
// payload, zero means unbounded.
func NewDecoder(r io.Reader, maxLen int) *Decoder {
	return &Decoder{
		r:       r,
		readBuf: make([]byte, 256),
		maxLen:  maxLen,
	}
}

// Reset drops any buffered input. Call it after flushing the transport.
func (d *Decoder) Reset() {
	d.pending = nil
	d.readErr = nil
	d.resync = false
}

// Buffered returns the number of bytes read from the stream but not yet
// consumed.
func (d *Decoder) Buffered() int {
	return len(d.pending)
}

// Decode returns the next complete frame payload. Empty frames (back to back
// delimiters) are skipped.
//
//nolint:gocognit,revive // byte-level state machine
func (d *Decoder) Decode() ([]byte, error) {
	if d.resync {
		if err := d.skipToEnd(); err != nil {
			return nil, err
		}
		d.resync = false
	}

	out := make([]byte, 0, 64)
	escaped := false

	for {
		b, err := d.next()
		if err != nil {
			if len(out) > 0 || escaped {
				// The remainder of this frame may still arrive; skip it.
				d.resync = true
			}
			return nil, d.wrapReadErr(err, len(out))
		}

		if escaped {
			escaped = false
			switch b {
			case EscEnd:
				out = append(out, End)
			case EscEsc:
				out = append(out, Esc)
			default:
				d.resync = b != End
				return nil, &FramingError{Err: ErrBadEscape, Discard: len(out)}
			}
		} else {
			switch b {
			case End:
				if len(out) == 0 {
					continue
				}
				return out, nil
			case Esc:
				escaped = true
				continue
			default:
				out = append(out, b)
			}
		}

		if d.maxLen > 0 && len(out) > d.maxLen {
			d.resync = true
			return nil, &FramingError{Err: ErrFrameTooLarge, Discard: len(out)}
		}
	}
}

// skipToEnd discards input up to and including the next delimiter.
func (d *Decoder) skipToEnd() error {
	for {
		b, err := d.next()
		if err != nil {
			return d.wrapReadErr(err, 0)
		}
		if b == End {
			return nil
		}
	}
}

func (*Decoder) wrapReadErr(err error, partial int) error {
	if errors.Is(err, ErrIncompleteFrame) {
		return &FramingError{Err: ErrIncompleteFrame, Discard: partial}
	}
	return err
}

// next returns the next input byte, reading from the stream when the
// buffer is empty.
func (d *Decoder) next() (byte, error) {
	if len(d.pending) == 0 {
		if err := d.fill(); err != nil {
			return 0, err
		}
	}
	b := d.pending[0]
	d.pending = d.pending[1:]
	return b, nil
}

func (d *Decoder) fill() error {
	if d.readErr != nil {
		err := d.readErr
		d.readErr = nil
		return d.classify(err)
	}

	n, err := d.r.Read(d.readBuf)
	if n > 0 {
		d.pending = d.readBuf[:n]
		d.readErr = err
		return nil
	}
	if err == nil {
		return ErrIncompleteFrame
	}
	return d.classify(err)
}

func (*Decoder) classify(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrIncompleteFrame
	}
	return err
}
