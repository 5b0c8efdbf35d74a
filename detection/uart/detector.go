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

// Package uart detects serial reader candidates.
package uart

import (
	"context"
	"fmt"
	"strings"

	"github.com/nfcforge/go-tagcore/detection"
)

// serialPort describes one enumerated serial device.
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// knownBridges lists USB-serial bridge chips that reader modules ship
// with. A matching VID:PID is a strong candidate signal.
var knownBridges = []string{
	"0403:6001", // FTDI FT232R
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // WCH CH340
	"067B:2303", // Prolific PL2303
}

type detector struct{}

// New creates a new UART detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type.
func (*detector) Transport() string {
	return "uart"
}

// Detect enumerates serial ports and filters them down to likely
// reader candidates.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := getSerialPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for i := range ports {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}

		port := &ports[i]
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if !isLikelyReader(port) {
			continue
		}
		if !isAccessible(port.Path) {
			continue
		}
		devices = append(devices, toDeviceInfo(port))
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// isLikelyReader applies positive filtering: known bridge chips, known
// adapter manufacturers, or USB serial path patterns.
func isLikelyReader(port *serialPort) bool {
	for _, vidpid := range knownBridges {
		if strings.EqualFold(port.VIDPID, vidpid) {
			return true
		}
	}

	manufacturers := []string{"ftdi", "silicon labs", "prolific", "wch", "future technology"}
	lowerManuf := strings.ToLower(port.Manufacturer)
	for _, m := range manufacturers {
		if strings.Contains(lowerManuf, m) {
			return true
		}
	}

	patterns := []string{"ttyusb", "ttyacm", "usbserial", "usbmodem", "slab_usbtouart"}
	lowerPath := strings.ToLower(port.Path)
	for _, p := range patterns {
		if strings.Contains(lowerPath, p) {
			return true
		}
	}
	return false
}

func toDeviceInfo(port *serialPort) detection.DeviceInfo {
	info := detection.DeviceInfo{
		Transport: "uart",
		Path:      port.Path,
		Name:      port.Name,
	}
	if port.VIDPID != "" || port.Product != "" {
		info.Metadata = map[string]string{}
		if port.VIDPID != "" {
			info.Metadata["vidpid"] = port.VIDPID
		}
		if port.Product != "" {
			info.Metadata["product"] = port.Product
		}
		if port.SerialNumber != "" {
			info.Metadata["serial"] = port.SerialNumber
		}
	}
	return info
}
