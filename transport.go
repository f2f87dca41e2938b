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
	"io"
	"time"
)

// Port is the duplex byte channel to the ROM bootloader. go.bug.st/serial
// ports satisfy it directly.
//
// Read must return (0, nil) when the read timeout expires without data.
type Port interface {
	io.ReadWriter

	// SetReadTimeout sets how long Read blocks waiting for data
	SetReadTimeout(timeout time.Duration) error

	// ResetInputBuffer discards data received but not yet read
	ResetInputBuffer() error

	// SetDTR drives the data-terminal-ready line
	SetDTR(dtr bool) error

	// SetRTS drives the request-to-send line
	SetRTS(rts bool) error
}
