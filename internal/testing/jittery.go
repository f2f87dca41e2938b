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

package testing

import (
	"math/rand/v2"
	"time"
)

// Port is the serial surface the simulators implement. It mirrors esprom.Port
// without importing it.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(timeout time.Duration) error
	ResetInputBuffer() error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// JitterConfig configures the behavior of JitteryPort.
type JitterConfig struct {
	MaxLatency        time.Duration
	FragmentMinBytes  int
	Seed              uint64
	FragmentReads     bool
	USBBoundaryStress bool
}

// DefaultJitterConfig fragments reads down to single bytes without latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryPort wraps a Port to simulate USB-UART bridges (CP2102, CH340)
// that deliver reply bytes late and in arbitrary fragments. Bytes read from
// the backend are buffered so fragmentation never loses data.
type JitteryPort struct {
	backend   Port
	rng       *rand.Rand
	buffer    []byte
	config    JitterConfig
	delivered int
}

// NewJitteryPort wraps backend with jitter simulation.
func NewJitteryPort(backend Port, config JitterConfig) *JitteryPort {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryPort{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // Test code, not crypto
	}
}

// Write passes data to the backend unchanged.
func (j *JitteryPort) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read returns a random-sized fragment of the buffered backend data.
func (j *JitteryPort) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.buffer) == 0 {
		tmp := make([]byte, 512)
		n, err := j.backend.Read(tmp)
		if err != nil || n == 0 {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
		j.buffer = append(j.buffer, tmp[:n]...)
	}

	n := min(len(buf), len(j.buffer))
	if j.config.USBBoundaryStress && n > 64 {
		boundary := ((j.delivered + 64) / 64) * 64
		if remaining := boundary - j.delivered; remaining > 0 && remaining < n {
			n = remaining
		}
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.buffer[:n])
	j.buffer = j.buffer[n:]
	j.delivered += n
	return n, nil
}

// SetReadTimeout passes through to the backend.
func (j *JitteryPort) SetReadTimeout(timeout time.Duration) error {
	return j.backend.SetReadTimeout(timeout) //nolint:wrapcheck // Pass-through wrapper
}

// ResetInputBuffer drops buffered fragments and flushes the backend.
func (j *JitteryPort) ResetInputBuffer() error {
	j.buffer = nil
	return j.backend.ResetInputBuffer() //nolint:wrapcheck // Pass-through wrapper
}

// SetDTR passes through to the backend.
func (j *JitteryPort) SetDTR(dtr bool) error {
	return j.backend.SetDTR(dtr) //nolint:wrapcheck // Pass-through wrapper
}

// SetRTS passes through to the backend.
func (j *JitteryPort) SetRTS(rts bool) error {
	return j.backend.SetRTS(rts) //nolint:wrapcheck // Pass-through wrapper
}

var (
	_ Port = (*JitteryPort)(nil)
	_ Port = (*VirtualROM)(nil)
)
