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

// Package testing provides a wire-level simulator of the ESP8266 ROM
// bootloader for tests.
//
// VirtualROM implements the same method set as esprom.Port. Host writes are
// SLIP-decoded into command packets, validated the way the ROM validates
// them, and answered with SLIP-framed replies that Read hands back. Reads
// never block: an empty reply queue reads as a serial timeout (0, nil).
package testing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-esprom/internal/frame"
	"github.com/ZaparooProject/go-esprom/internal/syncutil"
)

// ROM opcodes and reply codes
const (
	opMemBegin = 0x05
	opMemEnd   = 0x06
	opMemData  = 0x07
	opSync     = 0x08

	dirRequest  = 0x00
	dirResponse = 0x01

	errInvalidMessage = 0x05
	errFailedToAct    = 0x06
	errInvalidCRC     = 0x07

	// DefaultFloodSize is the number of duplicate replies the ESP8266 ROM
	// sends after answering a sync.
	DefaultFloodSize = 7
)

var errClosed = errors.New("virtual ROM port closed")

// CommandLogEntry records one command packet received from the host.
type CommandLogEntry struct {
	Payload  []byte
	Checksum uint32
	Op       byte
}

// MemBegin returns the decoded MemBegin words (size, blocks, block size,
// offset).
func (e CommandLogEntry) MemBegin() (size, blocks, blockSize, offset uint32) {
	if len(e.Payload) < 16 {
		return 0, 0, 0, 0
	}
	le := binary.LittleEndian
	return le.Uint32(e.Payload[0:4]), le.Uint32(e.Payload[4:8]),
		le.Uint32(e.Payload[8:12]), le.Uint32(e.Payload[12:16])
}

// MemData returns the decoded MemData header and the block bytes.
func (e CommandLogEntry) MemData() (size, seq uint32, data []byte) {
	if len(e.Payload) < 16 {
		return 0, 0, nil
	}
	le := binary.LittleEndian
	return le.Uint32(e.Payload[0:4]), le.Uint32(e.Payload[4:8]), e.Payload[16:]
}

// MemEnd returns the decoded MemEnd words.
func (e CommandLogEntry) MemEnd() (noEntry, entry uint32) {
	if len(e.Payload) < 8 {
		return 0, 0
	}
	le := binary.LittleEndian
	return le.Uint32(e.Payload[0:4]), le.Uint32(e.Payload[4:8])
}

// ControlEvent records a modem control line change.
type ControlEvent struct {
	Line  string // "DTR" or "RTS"
	Value bool
}

type failure struct {
	status byte
	code   byte
}

type memWindow struct {
	offset    uint32
	size      uint32
	blocks    uint32
	blockSize uint32
	nextSeq   uint32
}

// VirtualROM simulates the ESP8266 ROM loader at the serial byte level.
type VirtualROM struct {
	memory        map[uint32][]byte
	failures      map[byte]failure
	window        *memWindow
	commands      []CommandLogEntry
	controls      []ControlEvent
	timeouts      []time.Duration
	staleReplies  []byte
	rxBuffer      bytes.Buffer
	txBuffer      bytes.Buffer
	floodSize     int
	dropSyncs     int
	shortFrames   int
	maxReadChunk  int
	flushes       int
	entry         uint32
	mu            syncutil.Mutex
	silent        bool
	synced        bool
	finished      bool
	noEntry       bool
	closed        bool
	requireSynced bool
}

// NewVirtualROM creates a simulator that is reachable (no sync needed
// beforehand) and floods DefaultFloodSize duplicate sync replies.
func NewVirtualROM() *VirtualROM {
	return &VirtualROM{
		memory:    make(map[uint32][]byte),
		failures:  make(map[byte]failure),
		floodSize: DefaultFloodSize,
	}
}

// Write receives bytes from the host and queues the replies.
func (v *VirtualROM) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, errClosed
	}
	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read returns queued reply bytes, or (0, nil) as a timed out serial read.
func (v *VirtualROM) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, errClosed
	}
	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	if v.maxReadChunk > 0 && len(buf) > v.maxReadChunk {
		buf = buf[:v.maxReadChunk]
	}
	n, err := v.txBuffer.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read from tx buffer: %w", err)
	}
	return n, nil
}

// SetReadTimeout records the timeout; reads never block.
func (v *VirtualROM) SetReadTimeout(timeout time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.timeouts = append(v.timeouts, timeout)
	return nil
}

// ResetInputBuffer drops every reply not yet read by the host.
func (v *VirtualROM) ResetInputBuffer() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.txBuffer.Reset()
	v.flushes++
	return nil
}

// SetDTR records the DTR line.
func (v *VirtualROM) SetDTR(dtr bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.controls = append(v.controls, ControlEvent{Line: "DTR", Value: dtr})
	return nil
}

// SetRTS records the RTS line.
func (v *VirtualROM) SetRTS(rts bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.controls = append(v.controls, ControlEvent{Line: "RTS", Value: rts})
	return nil
}

// Close marks the port closed.
func (v *VirtualROM) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// SetSilent makes the ROM ignore every command.
func (v *VirtualROM) SetSilent(silent bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.silent = silent
}

// SetFloodSize sets how many duplicate replies follow a sync reply.
func (v *VirtualROM) SetFloodSize(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.floodSize = n
}

// DropSyncs makes the ROM ignore the next n sync commands.
func (v *VirtualROM) DropSyncs(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropSyncs = n
}

// RequireSync makes the ROM ignore memory commands until a sync arrives.
func (v *VirtualROM) RequireSync() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.requireSynced = true
}

// FailNext makes the next command with opcode op reply with the given
// status and error code.
func (v *VirtualROM) FailNext(op, status, code byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[op] = failure{status: status, code: code}
}

// QueueStaleReply queues a reply with opcode op ahead of the next real
// reply, as a late duplicate would arrive.
func (v *VirtualROM) QueueStaleReply(op byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.staleReplies = append(v.staleReplies, op)
}

// InjectShortFrames emits n frames too short to be replies ahead of the
// next real reply.
func (v *VirtualROM) InjectShortFrames(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shortFrames = n
}

// SetMaxReadChunk limits how many bytes one Read returns (0 = unlimited).
func (v *VirtualROM) SetMaxReadChunk(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxReadChunk = n
}

// Commands returns a copy of the command log.
func (v *VirtualROM) Commands() []CommandLogEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]CommandLogEntry(nil), v.commands...)
}

// CommandsWithOp returns the logged commands with opcode op.
func (v *VirtualROM) CommandsWithOp(op byte) []CommandLogEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []CommandLogEntry
	for _, c := range v.commands {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ControlLog returns the recorded control line changes.
func (v *VirtualROM) ControlLog() []ControlEvent {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]ControlEvent(nil), v.controls...)
}

// ReadTimeouts returns every timeout the host configured, in order.
func (v *VirtualROM) ReadTimeouts() []time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]time.Duration(nil), v.timeouts...)
}

// Flushes returns how often the host reset its input buffer.
func (v *VirtualROM) Flushes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.flushes
}

// Memory returns the bytes written to the window opened at addr, padding
// included.
func (v *VirtualROM) Memory(addr uint32) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.memory[addr]...)
}

// Finished reports whether MemEnd was received, and with which arguments.
func (v *VirtualROM) Finished() (done, noEntry bool, entry uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.finished, v.noEntry, v.entry
}

// Pending returns the number of reply bytes not yet read by the host.
func (v *VirtualROM) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len()
}

// processReceivedData decodes every complete frame in the receive buffer.
func (v *VirtualROM) processReceivedData() {
	data := v.rxBuffer.Bytes()
	last := bytes.LastIndexByte(data, frame.End)
	if last < 0 {
		return
	}

	complete := make([]byte, last+1)
	copy(complete, data[:last+1])
	v.rxBuffer.Next(last + 1)

	dec := frame.NewDecoder(bytes.NewReader(complete), 0)
	for {
		payload, err := dec.Decode()
		if err != nil {
			var fe *frame.FramingError
			if errors.As(err, &fe) && errors.Is(err, frame.ErrBadEscape) {
				continue
			}
			return
		}
		v.processPacket(payload)
	}
}

func (v *VirtualROM) processPacket(pkt []byte) {
	if len(pkt) < 8 || pkt[0] != dirRequest {
		return
	}

	op := pkt[1]
	size := int(binary.LittleEndian.Uint16(pkt[2:4]))
	entry := CommandLogEntry{
		Op:       op,
		Checksum: binary.LittleEndian.Uint32(pkt[4:8]),
		Payload:  append([]byte(nil), pkt[8:]...),
	}
	v.commands = append(v.commands, entry)

	if v.silent {
		return
	}
	if size != len(entry.Payload) {
		v.reply(op, 1, errInvalidMessage)
		return
	}
	if f, ok := v.failures[op]; ok {
		delete(v.failures, op)
		v.reply(op, f.status, f.code)
		return
	}

	switch op {
	case opSync:
		v.handleSync(entry)
	case opMemBegin, opMemData, opMemEnd:
		if v.requireSynced && !v.synced {
			return
		}
		v.handleMem(entry)
	default:
		v.reply(op, 1, errInvalidMessage)
	}
}

func (v *VirtualROM) handleSync(entry CommandLogEntry) {
	want := append([]byte{0x07, 0x07, 0x12, 0x20}, bytes.Repeat([]byte{0x55}, 32)...)
	if !bytes.Equal(entry.Payload, want) {
		return
	}
	if v.dropSyncs > 0 {
		v.dropSyncs--
		return
	}
	v.synced = true
	for range 1 + v.floodSize {
		v.reply(opSync, 0, 0)
	}
}

//nolint:gocognit,revive // each ROM check maps to one reply code
func (v *VirtualROM) handleMem(entry CommandLogEntry) {
	switch entry.Op {
	case opMemBegin:
		if len(entry.Payload) != 16 {
			v.reply(entry.Op, 1, errInvalidMessage)
			return
		}
		size, blocks, blockSize, offset := entry.MemBegin()
		v.window = &memWindow{offset: offset, size: size, blocks: blocks, blockSize: blockSize}
		v.memory[offset] = nil
		v.reply(entry.Op, 0, 0)

	case opMemData:
		size, seq, data := entry.MemData()
		switch {
		case v.window == nil, len(entry.Payload) < 16:
			v.reply(entry.Op, 1, errFailedToAct)
		case int(size) != len(data), size%4 != 0, size > v.window.blockSize, seq != v.window.nextSeq:
			v.reply(entry.Op, 1, errInvalidMessage)
		case uint32(frame.Checksum(data, frame.ChecksumSeed)) != entry.Checksum:
			v.reply(entry.Op, 1, errInvalidCRC)
		default:
			v.memory[v.window.offset] = append(v.memory[v.window.offset], data...)
			v.window.nextSeq++
			v.reply(entry.Op, 0, 0)
		}

	case opMemEnd:
		if len(entry.Payload) != 8 {
			v.reply(entry.Op, 1, errInvalidMessage)
			return
		}
		noEntry, addr := entry.MemEnd()
		v.finished = true
		v.noEntry = noEntry != 0
		v.entry = addr
		v.window = nil
		v.reply(entry.Op, 0, 0)
	}
}

// reply queues a reply frame, preceded by any injected noise.
func (v *VirtualROM) reply(op, status, code byte) {
	for ; v.shortFrames > 0; v.shortFrames-- {
		v.txBuffer.Write(frame.Encode([]byte{dirResponse, op, 0x00, 0x00}))
	}
	for _, stale := range v.staleReplies {
		v.txBuffer.Write(frame.Encode(buildReply(stale, 0, 0)))
	}
	v.staleReplies = nil
	v.txBuffer.Write(frame.Encode(buildReply(op, status, code)))
}

func buildReply(op, status, code byte) []byte {
	resp := make([]byte, 10)
	resp[0] = dirResponse
	resp[1] = op
	binary.LittleEndian.PutUint16(resp[2:4], 2)
	resp[8] = status
	resp[9] = code
	return resp
}
