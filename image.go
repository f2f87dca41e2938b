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

import "fmt"

// Segment is a contiguous region of an image destined for a fixed RAM
// address.
type Segment struct {
	Name    string // Section name, informational only
	Data    []byte
	Address uint32
}

// End returns the first address past the segment.
func (s Segment) End() uint64 {
	return uint64(s.Address) + uint64(len(s.Data))
}

// Image is a loadable program: RAM segments plus an entry point. Segments
// are transferred in slice order.
type Image struct {
	Segments []Segment
	Entry    uint32
}

// Size returns the total number of data bytes across all segments.
func (img *Image) Size() int {
	total := 0
	for _, seg := range img.Segments {
		total += len(seg.Data)
	}
	return total
}

// Validate checks that every segment fits the 32-bit address space.
func (img *Image) Validate() error {
	for i, seg := range img.Segments {
		if seg.End() > 1<<32 {
			return &ImageError{Reason: fmt.Sprintf(
				"segment %d (%s) at 0x%08X with %d bytes overflows the address space",
				i, seg.Name, seg.Address, len(seg.Data))}
		}
	}
	return nil
}
