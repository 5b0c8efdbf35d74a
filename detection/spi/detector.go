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

// Package spi detects SPI bus reader candidates. Linux only.
package spi

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/nfcforge/go-tagcore/detection"
	"golang.org/x/sys/unix"
)

type detector struct{}

// New creates a new SPI detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type.
func (*detector) Transport() string {
	return "spi"
}

// Detect lists accessible spidev devices.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}

	ports, err := filepath.Glob("/dev/spidev*")
	if err != nil {
		return nil, fmt.Errorf("failed to glob SPI devices: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}
		if detection.IsPathIgnored(port, opts.IgnorePaths) {
			continue
		}
		if unix.Access(port, unix.R_OK|unix.W_OK) != nil {
			continue
		}
		devices = append(devices, detection.DeviceInfo{
			Transport: "spi",
			Path:      port,
			Name:      filepath.Base(port),
		})
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
