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

// Package detection enumerates candidate reader devices across the
// supported transports. Detection is descriptor-based: it inspects
// device paths and USB identifiers without opening the devices, so it
// is safe to run while a reader is in use.
package detection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeviceInfo represents a detected reader candidate.
type DeviceInfo struct {
	// Additional metadata (e.g. "vidpid" for USB devices).
	Metadata map[string]string
	// Transport type: "uart", "i2c", "spi", "pcsc".
	Transport string
	// Connection path, e.g. "/dev/ttyUSB0" or a PC/SC reader name.
	Path string
	// Human-readable device name.
	Name string
}

// String returns a human-readable representation of the device.
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s", d.Transport, d.Path)
}

// Options configures detection behavior.
type Options struct {
	// USB VID:PID pairs to skip.
	Blocklist []string
	// Device paths to explicitly ignore.
	IgnorePaths []string
	// Which transports to check (empty = all registered).
	Transports []string
	// Cache TTL duration.
	CacheTTL time.Duration
	// Enable result caching.
	EnableCache bool
}

// DefaultOptions returns sensible default detection options.
func DefaultOptions() Options {
	return Options{
		Blocklist:   DefaultBlocklist(),
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector enumerates devices for one transport.
type Detector interface {
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	Transport() string
}

var (
	// ErrNoDevicesFound indicates no reader devices were detected.
	ErrNoDevicesFound = errors.New("no reader devices found")
	// ErrDetectionTimeout indicates detection timed out.
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform indicates the platform doesn't support
	// this detection method.
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

// registry holds all registered detectors.
var registry []Detector

// RegisterDetector adds a detector to the registry. Transport packages
// register themselves on import.
func RegisterDetector(d Detector) {
	registry = append(registry, d)
}

func getDetectors(transports []string) []Detector {
	if len(transports) == 0 {
		return registry
	}
	var filtered []Detector
	for _, d := range registry {
		for _, t := range transports {
			if d.Transport() == t {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs every selected detector in parallel and merges their
// results. Devices are returned even when some detectors fail; errors
// surface only when nothing was found at all.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := getDetectors(opts.Transports)
	if len(detectors) == 0 {
		return nil, errors.New("no detectors available for specified transports")
	}

	results := make(chan detectionResult, len(detectors))
	for _, detector := range detectors {
		go func(d Detector) {
			results <- runDetector(ctx, d, opts)
		}(detector)
	}

	var all []DeviceInfo
	var errs []error
	for range detectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
			} else {
				all = append(all, res.devices...)
			}
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	if len(all) > 0 {
		return all, nil
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return nil, ErrNoDevicesFound
}

// First returns the first detected device.
func First(ctx context.Context, opts *Options) (DeviceInfo, error) {
	devices, err := DetectAll(ctx, opts)
	if err != nil {
		return DeviceInfo{}, err
	}
	return devices[0], nil
}

func runDetector(ctx context.Context, detector Detector, opts *Options) detectionResult {
	if opts.EnableCache {
		if cached, found := getCached(detector.Transport(), opts.CacheTTL); found {
			// Cached results bypass Detect(), so the path and
			// blocklist filters must reapply.
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) &&
		!errors.Is(err, ErrUnsupportedPlatform) {
		return detectionResult{err: err}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(detector.Transport(), devices)
		} else {
			// A stale entry for an unplugged device would otherwise
			// persist until TTL expiry.
			clearCacheForTransport(detector.Transport())
		}
	}
	return detectionResult{devices: devices}
}

// filterDevices applies IgnorePaths and Blocklist filtering.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}
	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results.
func ClearDetectionCache() {
	clearCache()
}
