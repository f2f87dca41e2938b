//go:build linux

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

package detection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sysfsRoot is replaced in tests.
var sysfsRoot = "/sys"

// getSerialPorts returns USB serial ports on Linux with their USB metadata
func getSerialPorts(ctx context.Context) ([]serialPort, error) {
	ports, err := processUSBDevices(ctx, filepath.Join(sysfsRoot, "class", "tty"))
	if err == nil && len(ports) > 0 {
		return ports, nil
	}
	return getSerialPortsFallback(ctx)
}

// processUSBDevices returns every tty entry backed by a USB device
func processUSBDevices(_ context.Context, ttyDir string) ([]serialPort, error) {
	entries, err := os.ReadDir(ttyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", ttyDir, err)
	}

	var ports []serialPort
	for _, entry := range entries {
		if port, ok := processUSBDeviceEntry(ttyDir, entry); ok {
			ports = append(ports, port)
		}
	}
	return ports, nil
}

func processUSBDeviceEntry(ttyDir string, entry os.DirEntry) (serialPort, bool) {
	// sysfs tty entries are symlinks, not directories
	if entry.IsDir() {
		return serialPort{}, false
	}

	devicePath := filepath.Join(ttyDir, entry.Name(), "device")
	if _, err := os.Stat(devicePath); err != nil {
		return serialPort{}, false
	}

	resolved, err := filepath.EvalSymlinks(devicePath)
	if err != nil || !strings.Contains(resolved, "/usb") {
		return serialPort{}, false
	}

	port := serialPort{
		Path: "/dev/" + entry.Name(),
		Name: entry.Name(),
	}
	readUSBAttributes(&port, resolved)
	return port, true
}

// readUSBAttributes reads USB device attributes by walking up the device tree
func readUSBAttributes(port *serialPort, devicePath string) {
	current := devicePath
	for range 10 { // Limit iterations to prevent infinite loops
		if readUSBIdentifiers(port, current) {
			break
		}

		current = filepath.Dir(current)
		if current == "/" || current == "." {
			break
		}
	}
}

// underSysfs reports whether path lies inside the sysfs tree
func underSysfs(path string) bool {
	root, err := filepath.EvalSymlinks(sysfsRoot)
	if err != nil {
		root = sysfsRoot
	}
	cleanPath := filepath.Clean(path)
	return strings.HasPrefix(cleanPath, filepath.Clean(root)+string(filepath.Separator))
}

// readUSBIdentifiers reads vendor/product IDs and descriptors from a USB device
func readUSBIdentifiers(port *serialPort, path string) bool {
	if !underSysfs(path) {
		return false
	}

	vidBytes, vidErr := os.ReadFile(filepath.Join(path, "idVendor")) // #nosec G304 -- Path is validated to be under sysfs
	if vidErr != nil {
		return false
	}
	pidBytes, pidErr := os.ReadFile(filepath.Join(path, "idProduct")) // #nosec G304 -- Path is validated to be under sysfs
	if pidErr != nil {
		return false
	}

	vid := strings.TrimSpace(string(vidBytes))
	pid := strings.TrimSpace(string(pidBytes))
	port.VIDPID = strings.ToUpper(vid + ":" + pid)

	readUSBDescriptors(port, path)
	return true
}

// readUSBDescriptors reads manufacturer, product, and serial number
func readUSBDescriptors(port *serialPort, path string) {
	// #nosec G304 -- Path is validated to be under sysfs
	if mfgBytes, err := os.ReadFile(filepath.Join(path, "manufacturer")); err == nil {
		port.Manufacturer = strings.TrimSpace(string(mfgBytes))
	}
	// #nosec G304 -- Path is validated to be under sysfs
	if prodBytes, err := os.ReadFile(filepath.Join(path, "product")); err == nil {
		port.Product = strings.TrimSpace(string(prodBytes))
	}
	// #nosec G304 -- Path is validated to be under sysfs
	if serialBytes, err := os.ReadFile(filepath.Join(path, "serial")); err == nil {
		port.SerialNumber = strings.TrimSpace(string(serialBytes))
	}
}

// getSerialPortsFallback returns USB serial ports without metadata
func getSerialPortsFallback(_ context.Context) ([]serialPort, error) {
	var ports []serialPort

	for _, pattern := range []string{"/dev/ttyUSB*", "/dev/ttyACM*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}

		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				ports = append(ports, serialPort{
					Path: path,
					Name: filepath.Base(path),
				})
			}
		}
	}

	return ports, nil
}
