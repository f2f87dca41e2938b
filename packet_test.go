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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandPacket_WriteTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected []byte
		pkt      commandPacket
	}{
		{
			name: "empty payload",
			pkt:  commandPacket{op: OpMemEnd},
			expected: []byte{
				0xC0,
				0x00, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0xC0,
			},
		},
		{
			name: "checksum and payload little endian",
			pkt:  commandPacket{op: OpMemData, payload: []byte{0x01, 0x02}, checksum: 0x000000EC},
			expected: []byte{
				0xC0,
				0x00, 0x07, 0x02, 0x00, 0xEC, 0x00, 0x00, 0x00,
				0x01, 0x02,
				0xC0,
			},
		},
		{
			name: "delimiters escaped in header and payload",
			pkt:  commandPacket{op: OpMemData, payload: []byte{0xC0, 0xDB}, checksum: 0xC0},
			expected: []byte{
				0xC0,
				0x00, 0x07, 0x02, 0x00, 0xDB, 0xDC, 0x00, 0x00, 0x00,
				0xDB, 0xDC, 0xDB, 0xDD,
				0xC0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, tt.pkt.writeTo(&buf))
			assert.Equal(t, tt.expected, buf.Bytes())
		})
	}
}

func TestCommandPacket_PayloadTooLarge(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	pkt := commandPacket{op: OpMemData, payload: make([]byte, 0x10000)}
	err := pkt.writeTo(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload too large")
	assert.Zero(t, buf.Len())
}

func TestParseResponseHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expected *ResponseHeader
		name     string
		data     []byte
		ok       bool
	}{
		{name: "empty", data: nil},
		{name: "seven bytes", data: []byte{0x01, 0x08, 0x02, 0x00, 0x00, 0x00, 0x00}},
		{
			name: "header only",
			data: []byte{0x01, 0x08, 0x02, 0x00, 0x78, 0x56, 0x34, 0x12},
			ok:   true,
			expected: &ResponseHeader{
				Direction: 0x01, Opcode: OpSync, Length: 2, Value: 0x12345678,
			},
		},
		{
			name: "header with status",
			data: []byte{0x01, 0x07, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x07},
			ok:   true,
			expected: &ResponseHeader{
				Direction: 0x01, Opcode: OpMemData, Length: 2, Status: 0x01, Error: 0x07,
			},
		},
		{
			name: "one status byte is ignored",
			data: []byte{0x01, 0x05, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
			ok:   true,
			expected: &ResponseHeader{
				Direction: 0x01, Opcode: OpMemBegin, Length: 2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hdr, ok := parseResponseHeader(tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, hdr)
		})
	}
}

func TestResponseHeader_MarshalBinary(t *testing.T) {
	t.Parallel()

	hdr := &ResponseHeader{
		Direction: dirResponse, Opcode: OpMemEnd, Length: 2, Value: 0xAABBCCDD, Status: 1, Error: 6,
	}
	data, err := hdr.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x06, 0x02, 0x00, 0xDD, 0xCC, 0xBB, 0xAA, 0x01, 0x06}, data)

	parsed, ok := parseResponseHeader(data)
	require.True(t, ok)
	assert.Equal(t, hdr, parsed)
	assert.True(t, parsed.IsReply())
	assert.False(t, parsed.Succeeded())
}
