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

// EventKind identifies a protocol milestone.
type EventKind int

const (
	// EventFrameSent fires after a command frame was written.
	EventFrameSent EventKind = iota
	// EventHeaderParsed fires for every reply header decoded.
	EventHeaderParsed
	// EventResponseDiscarded fires when a reply does not match the pending
	// command.
	EventResponseDiscarded
	// EventRetry fires when a read attempt produced nothing usable.
	EventRetry
	// EventStateChange fires on every handshake state transition.
	EventStateChange
	// EventSegmentBegin fires when a RAM download window is opened.
	EventSegmentBegin
	// EventBlockWritten fires after a MemData block was accepted.
	EventBlockWritten
)

func (k EventKind) String() string {
	switch k {
	case EventFrameSent:
		return "frame_sent"
	case EventHeaderParsed:
		return "header_parsed"
	case EventResponseDiscarded:
		return "response_discarded"
	case EventRetry:
		return "retry"
	case EventStateChange:
		return "state_change"
	case EventSegmentBegin:
		return "segment_begin"
	case EventBlockWritten:
		return "block_written"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event describes one milestone. Only the fields relevant to Kind are set.
type Event struct {
	Err      error           // EventRetry: why the attempt was unusable
	Header   *ResponseHeader // EventHeaderParsed, EventResponseDiscarded
	Kind     EventKind
	Op       Opcode // Command being exchanged
	State    State  // EventStateChange: new state
	Attempt  int    // EventRetry, EventStateChange: zero-based attempt
	Size     int    // EventFrameSent: payload bytes, loader events: data bytes
	Segment  int    // Loader events
	Block    int    // EventBlockWritten
	Address  uint32 // EventSegmentBegin
	Checksum uint32 // EventFrameSent
}

// Observer receives protocol events. It runs synchronously on the
// exchanging goroutine and must not call back into the Client.
type Observer func(Event)
