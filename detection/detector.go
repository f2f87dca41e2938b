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

// Package detection finds serial ports that likely carry an ESP8266 behind a
// USB-UART bridge.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ZaparooProject/go-esprom"
	"github.com/ZaparooProject/go-esprom/transport/uart"
)

// Mode represents the level of invasiveness for detection
type Mode int

const (
	// Passive mode only checks USB descriptors without any communication
	Passive Mode = iota
	// Probe mode resets each candidate into its bootloader and syncs with it
	Probe
)

// Confidence represents how sure detection is about a port
type Confidence int

const (
	// Low confidence - the port name looks like a USB serial adapter
	Low Confidence = iota
	// Medium confidence - a bridge chip commonly found on ESP8266 boards
	Medium
	// High confidence - the ROM bootloader answered a sync
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// PortInfo represents a candidate serial port
type PortInfo struct {
	// Additional metadata (vidpid, manufacturer, product, serial)
	Metadata map[string]string
	// Connection path (e.g., "/dev/ttyUSB0", "COM3")
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the port
func (p PortInfo) String() string {
	return fmt.Sprintf("%s (confidence: %s)", p.Path, p.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Time allowed for probing one port
	ProbeTimeout time.Duration
	// Baud rate used when probing
	Baud int
	// Detection invasiveness level
	Mode Mode
}

// DefaultOptions returns passive detection options
func DefaultOptions() Options {
	return Options{
		Mode:         Passive,
		ProbeTimeout: 2 * time.Second,
		Baud:         uart.DefaultBaudRate,
		Blocklist:    DefaultBlocklist(),
	}
}

// Errors
var (
	// ErrNoPortsFound indicates no candidate port was found
	ErrNoPortsFound = errors.New("no ESP serial bridge found")
)

// Replaced in tests.
var (
	enumeratePortsFn = getSerialPorts
	probeDeviceFn    = probeDevice
)

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// Detect lists candidate ports, best first.
func Detect(ctx context.Context, opts *Options) ([]PortInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	ports, err := enumeratePortsFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	candidates := filterPorts(ports, opts)
	var found []PortInfo
	for i := range candidates {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("detection cancelled: %w", ctx.Err())
		default:
		}

		if info, ok := processPort(ctx, &candidates[i], opts); ok {
			found = append(found, info)
		}
	}

	if len(found) == 0 {
		return nil, ErrNoPortsFound
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Confidence != found[j].Confidence {
			return found[i].Confidence > found[j].Confidence
		}
		return found[i].Path < found[j].Path
	})
	return found, nil
}

// filterPorts keeps ports that pass the block and ignore lists and look like
// USB serial adapters.
func filterPorts(ports []serialPort, opts *Options) []serialPort {
	var filtered []serialPort
	for i := range ports {
		port := &ports[i]
		if port.VIDPID != "" && IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if matchesGoodPatterns(port) || isLikelyESPBridge(port) {
			filtered = append(filtered, *port)
		}
	}
	return filtered
}

// processPort rates a single port, probing it when asked to.
func processPort(ctx context.Context, port *serialPort, opts *Options) (PortInfo, bool) {
	confidence := Low
	if isLikelyESPBridge(port) {
		confidence = Medium
	}

	info := PortInfo{
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	addPortMetadata(&info, port)

	if opts.Mode == Probe {
		probeCtx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
		defer cancel()
		if !probeDeviceFn(probeCtx, port.Path, opts.Baud) {
			return PortInfo{}, false
		}
		info.Confidence = High
	}

	return info, true
}

// matchesGoodPatterns checks port names used by USB serial drivers
func matchesGoodPatterns(port *serialPort) bool {
	goodPatterns := []string{
		"ttyusb",         // Linux usb-serial
		"usbserial",      // macOS FTDI and similar
		"slab_usbtouart", // macOS Silicon Labs CP210x
		"wchusbserial",   // macOS WCH CH34x
	}

	lowerName := strings.ToLower(port.Name)
	lowerPath := strings.ToLower(port.Path)
	for _, pattern := range goodPatterns {
		if strings.Contains(lowerName, pattern) || strings.Contains(lowerPath, pattern) {
			return true
		}
	}
	return false
}

// isLikelyESPBridge checks for bridge chips fitted to ESP8266 boards
func isLikelyESPBridge(port *serialPort) bool {
	knownBridges := []string{
		"10C4:EA60", // Silicon Labs CP210x (NodeMCU, Wemos)
		"1A86:7523", // QinHeng CH340
		"1A86:55D4", // QinHeng CH9102
		"0403:6001", // FTDI FT232R
		"0403:6015", // FTDI FT231X
		"067B:2303", // Prolific PL2303
	}

	upperVIDPID := strings.ToUpper(port.VIDPID)
	for _, known := range knownBridges {
		if upperVIDPID == known {
			return true
		}
	}

	lowerProduct := strings.ToLower(port.Product)
	lowerManuf := strings.ToLower(port.Manufacturer)
	keywords := []string{"cp210", "ch340", "ch910", "silicon labs"}
	for _, keyword := range keywords {
		if strings.Contains(lowerProduct, keyword) || strings.Contains(lowerManuf, keyword) {
			return true
		}
	}
	return false
}

// addPortMetadata adds available port metadata
func addPortMetadata(info *PortInfo, port *serialPort) {
	if port.VIDPID != "" {
		info.Metadata["vidpid"] = port.VIDPID
	}
	if port.Manufacturer != "" {
		info.Metadata["manufacturer"] = port.Manufacturer
	}
	if port.Product != "" {
		info.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		info.Metadata["serial"] = port.SerialNumber
	}
}

// probeDevice resets the chip behind path into its bootloader and syncs.
//
// One short handshake only: ports that are not ESP boards should not be
// hammered with resets.
func probeDevice(ctx context.Context, path string, baud int) bool {
	transport, err := uart.Open(path, baud)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	client, err := esprom.New(transport,
		esprom.WithPortName(path),
		esprom.WithRetryConfig(&esprom.RetryConfig{MaxAttempts: 2}),
	)
	if err != nil {
		return false
	}

	if err := client.Connect(ctx); err != nil {
		esprom.Debugf("probe %s: %v", path, err)
		return false
	}
	return true
}
