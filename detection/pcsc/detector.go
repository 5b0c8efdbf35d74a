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

// Package pcsc detects PC/SC smart card readers.
package pcsc

import (
	"context"
	"strings"

	"github.com/ebfe/scard"
	"github.com/nfcforge/go-tagcore/detection"
)

type detector struct{}

// New creates a new PC/SC detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type.
func (*detector) Transport() string {
	return "pcsc"
}

// Detect lists readers known to the PC/SC daemon. SAM slots are
// filtered out; they carry the contact interface, never a tag.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sctx, err := scard.EstablishContext()
	if err != nil {
		// No daemon running counts as nothing found, not a failure.
		return nil, detection.ErrNoDevicesFound
	}
	defer func() { _ = sctx.Release() }()

	readers, err := sctx.ListReaders()
	if err != nil {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, name := range readers {
		if strings.Contains(strings.ToUpper(name), "SAM") {
			continue
		}
		if detection.IsPathIgnored(name, opts.IgnorePaths) {
			continue
		}
		devices = append(devices, detection.DeviceInfo{
			Transport: "pcsc",
			Path:      name,
			Name:      name,
		})
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
