// Copyright 2026 The NFCForge Project Contributors.
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

//go:build linux

package uart

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// getSerialPorts enumerates USB serial devices through sysfs so VID,
// PID and descriptor strings come along, then falls back to plain
// device globs for built-in ports.
func getSerialPorts(_ context.Context) ([]serialPort, error) {
	var ports []serialPort

	usbPorts, err := scanSysfsTTY()
	if err == nil {
		ports = append(ports, usbPorts...)
	}

	for _, pattern := range []string{"/dev/ttyS*", "/dev/ttyAMA*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				ports = append(ports, serialPort{Path: path, Name: filepath.Base(path)})
			}
		}
	}

	if len(ports) == 0 {
		return globFallback()
	}
	return ports, nil
}

func scanSysfsTTY() ([]serialPort, error) {
	const ttyDir = "/sys/class/tty"
	entries, err := os.ReadDir(ttyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ttyDir, err)
	}

	var ports []serialPort
	for _, entry := range entries {
		devicePath := filepath.Join(ttyDir, entry.Name(), "device")
		resolved, err := filepath.EvalSymlinks(devicePath)
		if err != nil || !strings.Contains(resolved, "/usb") {
			continue
		}

		port := serialPort{
			Path: "/dev/" + entry.Name(),
			Name: entry.Name(),
		}
		readUSBAttributes(&port, resolved)
		ports = append(ports, port)
	}
	return ports, nil
}

// readUSBAttributes walks up the sysfs device tree to the USB device
// node carrying idVendor/idProduct.
func readUSBAttributes(port *serialPort, devicePath string) {
	current := devicePath
	for range 10 {
		if readUSBIdentifiers(port, current) {
			return
		}
		current = filepath.Dir(current)
		if current == "/" || current == "." {
			return
		}
	}
}

func readUSBIdentifiers(port *serialPort, path string) bool {
	if !strings.HasPrefix(filepath.Clean(path), "/sys/") {
		return false
	}

	vidBytes, err := os.ReadFile(filepath.Clean(filepath.Join(path, "idVendor"))) // #nosec G304 -- under /sys/
	if err != nil {
		return false
	}
	pidBytes, err := os.ReadFile(filepath.Clean(filepath.Join(path, "idProduct"))) // #nosec G304 -- under /sys/
	if err != nil {
		return false
	}
	port.VIDPID = strings.ToUpper(
		strings.TrimSpace(string(vidBytes)) + ":" + strings.TrimSpace(string(pidBytes)))

	if b, err := os.ReadFile(filepath.Clean(filepath.Join(path, "manufacturer"))); err == nil { // #nosec G304
		port.Manufacturer = strings.TrimSpace(string(b))
	}
	if b, err := os.ReadFile(filepath.Clean(filepath.Join(path, "product"))); err == nil { // #nosec G304
		port.Product = strings.TrimSpace(string(b))
	}
	if b, err := os.ReadFile(filepath.Clean(filepath.Join(path, "serial"))); err == nil { // #nosec G304
		port.SerialNumber = strings.TrimSpace(string(b))
	}
	return true
}

func globFallback() ([]serialPort, error) {
	var ports []serialPort
	patterns := []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*", "/dev/ttyAMA*"}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				ports = append(ports, serialPort{Path: path, Name: filepath.Base(path)})
			}
		}
	}
	return ports, nil
}

// isAccessible checks the current user can actually open the device,
// so candidates the process lacks permissions for never surface.
func isAccessible(path string) bool {
	return unix.Access(path, unix.R_OK|unix.W_OK) == nil
}
