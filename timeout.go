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
	"fmt"
	"time"
)

// TimeoutProfile selects the read timeout for one exchange.
type TimeoutProfile int

const (
	// TimeoutDefault is used for ordinary commands.
	TimeoutDefault TimeoutProfile = iota
	// TimeoutSync is the short timeout used while syncing and draining the
	// sync flood.
	TimeoutSync
)

// Default durations for each profile
const (
	DefaultCommandTimeout = 3 * time.Second
	DefaultSyncTimeout    = 100 * time.Millisecond
)

func (p TimeoutProfile) String() string {
	switch p {
	case TimeoutDefault:
		return "default"
	case TimeoutSync:
		return "sync"
	default:
		return fmt.Sprintf("TimeoutProfile(%d)", int(p))
	}
}

// Timeouts maps each profile to a duration.
type Timeouts struct {
	Default time.Duration
	Sync    time.Duration
}

// DefaultTimeouts returns the durations used by the ROM loader.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Default: DefaultCommandTimeout,
		Sync:    DefaultSyncTimeout,
	}
}

// Duration resolves a profile. Unknown profiles fall back to the default.
func (t Timeouts) Duration(p TimeoutProfile) time.Duration {
	if p == TimeoutSync {
		return t.Sync
	}
	return t.Default
}
