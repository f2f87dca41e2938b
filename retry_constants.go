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

import "time"

// Exchange constants control how long a single command waits for its reply.
const (
	// SendResponseAttempts is the number of frames read while looking for a
	// reply to one command. Stale replies to earlier commands and short
	// frames use up attempts; the command itself is never resent.
	SendResponseAttempts = 10
)

// Handshake constants control the connect sequence.
const (
	// ConnectAttempts is the number of reset and sync cycles tried before
	// Connect gives up.
	ConnectAttempts = 10

	// SyncFloodReplies is the number of extra replies the ESP8266 ROM sends
	// after answering a Sync. They must all be read, otherwise they are
	// mistaken for replies to the next command.
	SyncFloodReplies = 7

	// ResetHoldDelay is how long the chip is held in reset with the boot
	// strap asserted.
	ResetHoldDelay = 100 * time.Millisecond

	// ResetBootDelay lets the ROM sample the boot strap after reset is
	// released.
	ResetBootDelay = 50 * time.Millisecond
)

// Loader constants
const (
	// MaxRAMBlockSize is the largest MemData block the ROM accepts.
	MaxRAMBlockSize = 0x1800

	// blockAlignment is the write granularity of the ROM memory copy.
	blockAlignment = 4
)
