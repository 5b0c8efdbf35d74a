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

// Package i2c detects I2C bus reader candidates. Linux only.
package i2c

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/nfcforge/go-tagcore/detection"
	"golang.org/x/sys/unix"
)

// DefaultReaderAddress is the standard 7-bit reader module address.
const DefaultReaderAddress = 0x24

type detector struct{}

// New creates a new I2C detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type.
func (*detector) Transport() string {
	return "i2c"
}

// Detect lists accessible I2C buses. The device path carries the
// expected module address so the transport layer can split it off.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}

	buses, err := filepath.Glob("/dev/i2c-*")
	if err != nil {
		return nil, fmt.Errorf("failed to glob I2C buses: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}
		if detection.IsPathIgnored(bus, opts.IgnorePaths) {
			continue
		}
		if unix.Access(bus, unix.R_OK|unix.W_OK) != nil {
			continue
		}
		devices = append(devices, detection.DeviceInfo{
			Transport: "i2c",
			Path:      fmt.Sprintf("%s:%#02x", bus, DefaultReaderAddress),
			Name:      filepath.Base(bus),
		})
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
