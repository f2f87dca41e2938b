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
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ZaparooProject/go-esprom/internal/frame"
)

const (
	commandHeaderLen  = 8
	responseHeaderLen = 8
)

// commandPacket is a request as it appears inside a SLIP frame.
type commandPacket struct {
	payload  []byte
	checksum uint32
	op       Opcode
}

// header encodes the fixed 8-byte request header.
func (p commandPacket) header() ([]byte, error) {
	if len(p.payload) > 0xFFFF {
		return nil, fmt.Errorf("%s payload too large: %d bytes", p.op, len(p.payload))
	}
	hdr := make([]byte, commandHeaderLen)
	hdr[0] = dirRequest
	hdr[1] = byte(p.op)
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(p.payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], p.checksum)
	return hdr, nil
}

// writeTo streams the packet through a SLIP encoder: header, body, then the
// closing delimiter.
func (p commandPacket) writeTo(w io.Writer) error {
	hdr, err := p.header()
	if err != nil {
		return err
	}
	enc := frame.NewEncoder(w)
	if _, err := enc.Write(hdr); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if _, err := enc.Write(p.payload); err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return enc.Close()
}

// ResponseHeader is the fixed part of a ROM reply.
type ResponseHeader struct {
	Value     uint32 // Command specific return value
	Length    uint16 // Length of the body after the 8-byte header
	Direction byte   // 0x01 for replies
	Opcode    Opcode // Echo of the request opcode
	Status    byte   // Zero on success
	Error     byte   // ROM error code when Status is non-zero
}

// IsReply reports whether the direction byte marks a device reply.
func (h *ResponseHeader) IsReply() bool {
	return h.Direction == dirResponse
}

// Succeeded reports whether the ROM flagged the command as successful.
func (h *ResponseHeader) Succeeded() bool {
	return h.Status == 0
}

// parseResponseHeader decodes a reply frame. Frames shorter than the header
// are not replies and yield ok == false.
func parseResponseHeader(data []byte) (hdr *ResponseHeader, ok bool) {
	if len(data) < responseHeaderLen {
		return nil, false
	}
	hdr = &ResponseHeader{
		Direction: data[0],
		Opcode:    Opcode(data[1]),
		Length:    binary.LittleEndian.Uint16(data[2:4]),
		Value:     binary.LittleEndian.Uint32(data[4:8]),
	}
	// ESP8266 ROM places status and error right after the header.
	if len(data) >= responseHeaderLen+2 {
		hdr.Status = data[8]
		hdr.Error = data[9]
	}
	return hdr, true
}

// MarshalBinary encodes the header followed by the status bytes, the layout
// the ROM sends.
func (h *ResponseHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, responseHeaderLen+2)
	buf[0] = h.Direction
	buf[1] = byte(h.Opcode)
	binary.LittleEndian.PutUint16(buf[2:4], h.Length)
	binary.LittleEndian.PutUint32(buf[4:8], h.Value)
	buf[8] = h.Status
	buf[9] = h.Error
	return buf, nil
}
