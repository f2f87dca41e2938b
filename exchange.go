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
	"encoding"
	"errors"
	"fmt"
)

// errShortFrame marks a decoded frame too short to carry a reply header.
var errShortFrame = errors.New("frame shorter than response header")

// Send writes one command and waits for the reply with the same opcode.
//
// The command is written once. Up to SendResponseAttempts frames are then
// read: short frames, framing errors and replies to other opcodes each use
// up one attempt. If the reply was lost the call ends with a ProtocolError
// matching ErrTimeout; the command is not resent, since the ROM may already
// have acted on it.
//
// Send does not look at the status bytes; see Command.
func (c *Client) Send(
	ctx context.Context, op Opcode, payload []byte, check uint32, profile TimeoutProfile,
) (*ResponseHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, op, payload, check, profile)
}

// Command sends op with the default timeout and turns a failure status into
// a DeviceError.
func (c *Client) Command(ctx context.Context, op Opcode, payload []byte, check uint32) (*ResponseHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.command(ctx, op, payload, check)
}

func (c *Client) send(
	ctx context.Context, op Opcode, payload []byte, check uint32, profile TimeoutProfile,
) (*ResponseHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := c.applyTimeout(profile); err != nil {
		return nil, err
	}

	pkt := commandPacket{op: op, payload: payload, checksum: check}
	if err := pkt.writeTo(c.port); err != nil {
		return nil, &TransportError{Op: "write " + op.String(), Port: c.portName, Err: err}
	}
	c.emit(Event{Kind: EventFrameSent, Op: op, Size: len(payload), Checksum: check})
	Debugf("sent %s: %d bytes, check 0x%08X, timeout %s", op, len(payload), check, profile)

	return c.awaitResponse(ctx, op)
}

func (c *Client) awaitResponse(ctx context.Context, op Opcode) (*ResponseHeader, error) {
	var lastErr error

	for attempt := range SendResponseAttempts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		hdr, ok, err := c.readResponse(op)
		if err != nil {
			var fe *FramingError
			if !errors.As(err, &fe) {
				return nil, err
			}
			lastErr = err
			c.emit(Event{Kind: EventRetry, Op: op, Attempt: attempt, Err: err})
			continue
		}
		if !ok {
			c.emit(Event{Kind: EventRetry, Op: op, Attempt: attempt, Err: errShortFrame})
			continue
		}
		if hdr.Opcode == op {
			return hdr, nil
		}

		// Most likely a late duplicate of an earlier reply.
		Debugf("discarding %s reply while waiting for %s", hdr.Opcode, op)
		c.emit(Event{Kind: EventResponseDiscarded, Op: op, Attempt: attempt, Header: hdr})
	}

	return nil, &ProtocolError{
		Op:       op,
		Kind:     ProtocolTimeout,
		Attempts: SendResponseAttempts,
		Last:     lastErr,
	}
}

// readResponse decodes one frame. ok is false when the frame is too short
// to be a reply.
func (c *Client) readResponse(op Opcode) (hdr *ResponseHeader, ok bool, err error) {
	data, err := c.decoder.Decode()
	if err != nil {
		var fe *FramingError
		if errors.As(err, &fe) {
			return nil, false, err
		}
		return nil, false, &TransportError{Op: "read " + op.String(), Port: c.portName, Err: err}
	}

	hdr, ok = parseResponseHeader(data)
	if !ok {
		Debugf("ignoring %d byte frame", len(data))
		return nil, false, nil
	}
	c.emit(Event{Kind: EventHeaderParsed, Op: op, Header: hdr})
	return hdr, true, nil
}

func (c *Client) command(ctx context.Context, op Opcode, payload []byte, check uint32) (*ResponseHeader, error) {
	hdr, err := c.send(ctx, op, payload, check, TimeoutDefault)
	if err != nil {
		return nil, err
	}
	if !hdr.Succeeded() {
		return hdr, &DeviceError{Op: op, Status: hdr.Status, Code: hdr.Error}
	}
	return hdr, nil
}

// commandParams marshals params, appends body and runs the command.
func (c *Client) commandParams(
	ctx context.Context, op Opcode, params encoding.BinaryMarshaler, body []byte, check uint32,
) (*ResponseHeader, error) {
	head, err := params.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode %s parameters: %w", op, err)
	}
	payload := head
	if len(body) > 0 {
		payload = make([]byte, 0, len(head)+len(body))
		payload = append(payload, head...)
		payload = append(payload, body...)
	}
	return c.command(ctx, op, payload, check)
}
