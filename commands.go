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
)

// Opcode selects a ROM bootloader command.
type Opcode byte

// ROM loader opcodes used for RAM loading
const (
	OpMemBegin Opcode = 0x05
	OpMemEnd   Opcode = 0x06
	OpMemData  Opcode = 0x07
	OpSync     Opcode = 0x08
)

func (o Opcode) String() string {
	switch o {
	case OpMemBegin:
		return "MemBegin"
	case OpMemEnd:
		return "MemEnd"
	case OpMemData:
		return "MemData"
	case OpSync:
		return "Sync"
	default:
		return fmt.Sprintf("Opcode(0x%02X)", byte(o))
	}
}

// Packet direction bytes
const (
	dirRequest  = 0x00
	dirResponse = 0x01
)

// syncPreamble opens the sync payload. The 0x55 filler lets the ROM detect
// the host baud rate.
var syncPreamble = []byte{0x07, 0x07, 0x12, 0x20}

const syncFillerLen = 32

// SyncPayload returns the 36-byte body of a Sync command.
func SyncPayload() []byte {
	data := make([]byte, 0, len(syncPreamble)+syncFillerLen)
	data = append(data, syncPreamble...)
	for range syncFillerLen {
		data = append(data, 0x55)
	}
	return data
}

// MemBeginParams opens a RAM download window.
type MemBeginParams struct {
	Size      uint32 // Total unpadded bytes in the segment
	Blocks    uint32 // Number of MemData blocks that follow
	BlockSize uint32 // Maximum block size
	Offset    uint32 // Destination RAM address
}

// MarshalBinary encodes the parameters as four little-endian words.
func (p MemBeginParams) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], p.Size)
	binary.LittleEndian.PutUint32(buf[4:8], p.Blocks)
	binary.LittleEndian.PutUint32(buf[8:12], p.BlockSize)
	binary.LittleEndian.PutUint32(buf[12:16], p.Offset)
	return buf, nil
}

// MemDataParams prefixes every MemData block. Two reserved zero words
// follow the sequence number on the wire.
type MemDataParams struct {
	Size     uint32 // Block length after padding
	Sequence uint32 // Zero-based block index within the segment
}

// MarshalBinary encodes the 16-byte block header.
func (p MemDataParams) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], p.Size)
	binary.LittleEndian.PutUint32(buf[4:8], p.Sequence)
	return buf, nil
}

// MemEndParams leaves RAM download mode. With NoEntry set the ROM stays in
// the loader instead of jumping to Entry.
type MemEndParams struct {
	NoEntry bool
	Entry   uint32
}

// NewMemEndParams derives the no-entry flag from the entry address: zero
// means load only.
func NewMemEndParams(entry uint32) MemEndParams {
	return MemEndParams{NoEntry: entry == 0, Entry: entry}
}

// MarshalBinary encodes the flag and entry as two little-endian words.
func (p MemEndParams) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	if p.NoEntry {
		binary.LittleEndian.PutUint32(buf[0:4], 1)
	}
	binary.LittleEndian.PutUint32(buf[4:8], p.Entry)
	return buf, nil
}
