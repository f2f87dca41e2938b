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

//nolint:paralleltest // Tests mutate package-level enumeratePortsFn and probeDeviceFn
package detection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubPorts(t *testing.T, ports []serialPort, err error) {
	t.Helper()
	orig := enumeratePortsFn
	enumeratePortsFn = func(context.Context) ([]serialPort, error) {
		return ports, err
	}
	t.Cleanup(func() { enumeratePortsFn = orig })
}

func stubProbe(t *testing.T, fn func(ctx context.Context, path string, baud int) bool) {
	t.Helper()
	orig := probeDeviceFn
	probeDeviceFn = fn
	t.Cleanup(func() { probeDeviceFn = orig })
}

var testPorts = []serialPort{
	{Path: "/dev/ttyS0", Name: "ttyS0"},
	{Path: "/dev/ttyUSB1", Name: "ttyUSB1", VIDPID: "0403:6001", Manufacturer: "FTDI"},
	{Path: "/dev/ttyUSB0", Name: "ttyUSB0", VIDPID: "10c4:ea60", Product: "CP2102 USB to UART Bridge Controller", SerialNumber: "0001"},
	{Path: "/dev/ttyACM0", Name: "ttyACM0", VIDPID: "2341:0043"},
	{Path: "/dev/ttyUSB2", Name: "ttyUSB2", VIDPID: "AAAA:BBBB"},
}

func TestDetect_PassiveRanksBridges(t *testing.T) {
	stubPorts(t, testPorts, nil)
	stubProbe(t, func(context.Context, string, int) bool {
		t.Fatal("passive detection must not probe")
		return false
	})

	opts := DefaultOptions()
	ports, err := Detect(context.Background(), &opts)
	require.NoError(t, err)

	var paths []string
	for _, p := range ports {
		paths = append(paths, p.Path)
	}
	// Known bridges first, the blocked Uno and the built-in UART are dropped.
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"}, paths)
	assert.Equal(t, Medium, ports[0].Confidence)
	assert.Equal(t, Low, ports[2].Confidence)
	assert.Equal(t, "10c4:ea60", ports[0].Metadata["vidpid"])
	assert.Equal(t, "0001", ports[0].Metadata["serial"])
	assert.Equal(t, "/dev/ttyUSB0 (confidence: medium)", ports[0].String())
}

func TestDetect_IgnorePaths(t *testing.T) {
	stubPorts(t, testPorts, nil)

	opts := DefaultOptions()
	opts.IgnorePaths = []string{"/dev/ttyUSB0", "/dev/ttyUSB2"}
	ports, err := Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, "/dev/ttyUSB1", ports[0].Path)
}

func TestDetect_ProbeMode(t *testing.T) {
	stubPorts(t, testPorts, nil)

	var probed []string
	stubProbe(t, func(ctx context.Context, path string, baud int) bool {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		assert.Equal(t, 115200, baud)
		probed = append(probed, path)
		return path == "/dev/ttyUSB2"
	})

	opts := DefaultOptions()
	opts.Mode = Probe
	ports, err := Detect(context.Background(), &opts)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"}, probed)
	require.Len(t, ports, 1, "ports that do not sync are discarded")
	assert.Equal(t, "/dev/ttyUSB2", ports[0].Path)
	assert.Equal(t, High, ports[0].Confidence)
}

func TestDetect_NoPorts(t *testing.T) {
	stubPorts(t, []serialPort{{Path: "/dev/ttyS0", Name: "ttyS0"}}, nil)

	_, err := Detect(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoPortsFound)
}

func TestDetect_EnumerationError(t *testing.T) {
	errSys := errors.New("sysfs unavailable")
	stubPorts(t, nil, errSys)

	_, err := Detect(context.Background(), nil)
	require.ErrorIs(t, err, errSys)
}

func TestDetect_Cancelled(t *testing.T) {
	stubPorts(t, testPorts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Detect(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsLikelyESPBridge(t *testing.T) {
	tests := []struct {
		port     serialPort
		expected bool
	}{
		{port: serialPort{VIDPID: "1a86:7523"}, expected: true},
		{port: serialPort{VIDPID: "1A86:55D4"}, expected: true},
		{port: serialPort{Manufacturer: "Silicon Labs"}, expected: true},
		{port: serialPort{Product: "USB-SERIAL CH340"}, expected: true},
		{port: serialPort{VIDPID: "2341:0043", Product: "Arduino Uno"}},
		{port: serialPort{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, isLikelyESPBridge(&tt.port), "%+v", tt.port)
	}
}

func TestMatchesGoodPatterns(t *testing.T) {
	assert.True(t, matchesGoodPatterns(&serialPort{Path: "/dev/cu.usbserial-1410"}))
	assert.True(t, matchesGoodPatterns(&serialPort{Path: "/dev/cu.SLAB_USBtoUART"}))
	assert.True(t, matchesGoodPatterns(&serialPort{Path: "/dev/cu.wchusbserial1420"}))
	assert.True(t, matchesGoodPatterns(&serialPort{Name: "ttyUSB3"}))
	assert.False(t, matchesGoodPatterns(&serialPort{Path: "/dev/ttyS0"}))
	assert.False(t, matchesGoodPatterns(&serialPort{Path: "COM3"}))
}

func TestConfidence_String(t *testing.T) {
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "medium", Medium.String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "unknown", Confidence(9).String())
}
