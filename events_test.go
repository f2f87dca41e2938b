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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKind_String(t *testing.T) {
	t.Parallel()

	kinds := map[EventKind]string{
		EventFrameSent:         "frame_sent",
		EventHeaderParsed:      "header_parsed",
		EventResponseDiscarded: "response_discarded",
		EventRetry:             "retry",
		EventStateChange:       "state_change",
		EventSegmentBegin:      "segment_begin",
		EventBlockWritten:      "block_written",
		EventKind(42):          "EventKind(42)",
	}
	for kind, want := range kinds {
		assert.Equal(t, want, kind.String())
	}
}

func TestTimeouts(t *testing.T) {
	t.Parallel()

	timeouts := DefaultTimeouts()
	assert.Equal(t, 3*time.Second, timeouts.Duration(TimeoutDefault))
	assert.Equal(t, 100*time.Millisecond, timeouts.Duration(TimeoutSync))
	assert.Equal(t, 3*time.Second, timeouts.Duration(TimeoutProfile(7)))

	assert.Equal(t, "default", TimeoutDefault.String())
	assert.Equal(t, "sync", TimeoutSync.String())
	assert.Equal(t, "TimeoutProfile(7)", TimeoutProfile(7).String())
}

func TestImage(t *testing.T) {
	t.Parallel()

	img := &Image{Segments: []Segment{
		{Address: 0x40100000, Data: make([]byte, 100)},
		{Address: 0x3FFE8000, Data: make([]byte, 20)},
	}}
	assert.Equal(t, 120, img.Size())
	require.NoError(t, img.Validate())
	assert.Equal(t, uint64(0x40100064), img.Segments[0].End())

	edge := &Image{Segments: []Segment{{Address: 0xFFFFFFFC, Data: make([]byte, 4)}}}
	require.NoError(t, edge.Validate(), "a segment may end exactly at the top of the address space")

	over := &Image{Segments: []Segment{{Address: 0xFFFFFFFC, Data: make([]byte, 5)}}}
	require.ErrorIs(t, over.Validate(), ErrImage)
}
