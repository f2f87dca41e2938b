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

	"github.com/ZaparooProject/go-esprom/internal/frame"
)

// LoadRAM downloads img into RAM and finishes with MemEnd, which makes the
// ROM jump to img.Entry unless the entry is zero.
//
// Every segment is announced with MemBegin and sent as MemData blocks of at
// most MaxRAMBlockSize bytes, zero padded to a multiple of four. Any failed
// command aborts the load with a LoadError and drops the session back to
// StateIdle: the ROM's download state cannot be resumed, Connect again.
func (c *Client) LoadRAM(ctx context.Context, img *Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return ErrNotConnected
	}
	if img == nil {
		return &ImageError{Reason: "no image"}
	}
	if err := img.Validate(); err != nil {
		return err
	}

	for i, seg := range img.Segments {
		if err := c.loadSegment(ctx, i, seg); err != nil {
			c.setState(StateIdle, 0)
			return err
		}
	}

	params := NewMemEndParams(img.Entry)
	if _, err := c.commandParams(ctx, OpMemEnd, params, nil, 0); err != nil {
		c.setState(StateIdle, 0)
		return &LoadError{Op: OpMemEnd, Segment: len(img.Segments), Block: -1, Err: err}
	}
	Debugf("load finished, entry 0x%08X (no entry: %v)", params.Entry, params.NoEntry)

	if !params.NoEntry {
		// The ROM has jumped to the image and no longer answers.
		c.setState(StateIdle, 0)
	}
	return nil
}

// loadSegment opens a download window for seg and writes its blocks. An
// empty segment still gets a MemBegin with zero blocks.
func (c *Client) loadSegment(ctx context.Context, index int, seg Segment) error {
	blocks := splitBlocks(seg.Data, MaxRAMBlockSize)
	begin := MemBeginParams{
		Size:      uint32(len(seg.Data)),
		Blocks:    uint32(len(blocks)),
		BlockSize: MaxRAMBlockSize,
		Offset:    seg.Address,
	}
	if _, err := c.commandParams(ctx, OpMemBegin, begin, nil, 0); err != nil {
		return &LoadError{Op: OpMemBegin, Segment: index, Block: -1, Err: err}
	}
	c.emit(Event{Kind: EventSegmentBegin, Op: OpMemBegin, Segment: index, Address: seg.Address, Size: len(seg.Data)})
	Debugf("segment %d (%s): %d bytes at 0x%08X in %d blocks",
		index, seg.Name, len(seg.Data), seg.Address, len(blocks))

	for seq, block := range blocks {
		padded := padBlock(block)
		params := MemDataParams{Size: uint32(len(padded)), Sequence: uint32(seq)}
		check := uint32(frame.Checksum(padded, frame.ChecksumSeed))
		if _, err := c.commandParams(ctx, OpMemData, params, padded, check); err != nil {
			return &LoadError{Op: OpMemData, Segment: index, Block: seq, Err: err}
		}
		c.emit(Event{Kind: EventBlockWritten, Op: OpMemData, Segment: index, Block: seq, Size: len(block)})
	}
	return nil
}

// blockCount returns ceil(n / size).
func blockCount(n, size int) int {
	return (n + size - 1) / size
}

// splitBlocks cuts data into consecutive blocks of at most size bytes. The
// blocks alias data.
func splitBlocks(data []byte, size int) [][]byte {
	blocks := make([][]byte, 0, blockCount(len(data), size))
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		blocks = append(blocks, data[start:end])
	}
	return blocks
}

// padBlock returns block zero padded to the next multiple of four. Aligned
// blocks are returned as is. The bytes past the segment end are don't-care
// for the ROM.
func padBlock(block []byte) []byte {
	rem := len(block) % blockAlignment
	if rem == 0 {
		return block
	}
	padded := make([]byte, len(block)+blockAlignment-rem)
	copy(padded, block)
	return padded
}
