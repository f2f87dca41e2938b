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
	"testing"

	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-esprom/internal/testing"
)

// eventRecorder collects observer events in order.
type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) observe(ev Event) {
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofKind(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// newTestClient creates a client on rom with the reset pauses disabled.
func newTestClient(t *testing.T, port Port, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithResetDelays(0, 0)}, opts...)
	client, err := New(port, opts...)
	require.NoError(t, err)
	return client
}

// newConnectedClient returns a client that completed Connect against a
// fresh simulator.
func newConnectedClient(t *testing.T, opts ...Option) (*Client, *testutil.VirtualROM) {
	t.Helper()
	rom := testutil.NewVirtualROM()
	client := newTestClient(t, rom, opts...)
	require.NoError(t, client.Connect(context.Background()))
	return client, rom
}
