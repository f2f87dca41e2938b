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

// Package frame implements SLIP framing and the block checksum used by the
// ESP ROM bootloader serial protocol.
package frame

// SLIP framing bytes (RFC 1055)
const (
	End    = 0xC0 // Frame delimiter
	Esc    = 0xDB // Escape byte
	EscEnd = 0xDC // Escaped End
	EscEsc = 0xDD // Escaped Esc
)

const (
	// ChecksumSeed is the initial accumulator for data block checksums.
	ChecksumSeed = 0xEF

	// MaxResponseLength bounds a decoded response frame. ROM replies are a
	// handful of bytes, anything longer is line noise.
	MaxResponseLength = 1024
)
