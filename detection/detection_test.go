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

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDetector answers a fixed device list under a unique transport
// name. The registry is global and append-only, so each test registers
// its own names and scopes DetectAll with opts.Transports.
type stubDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	calls     int
}

func (s *stubDetector) Detect(_ context.Context, _ *Options) ([]DeviceInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.devices, nil
}

func (s *stubDetector) Transport() string {
	return s.transport
}

func device(transport, path string) DeviceInfo {
	return DeviceInfo{Transport: transport, Path: path, Name: "stub reader"}
}

func TestDetectAllMergesTransports(t *testing.T) {
	first := &stubDetector{transport: "stub-merge-a", devices: []DeviceInfo{device("stub-merge-a", "/dev/ttyUSB0")}}
	second := &stubDetector{transport: "stub-merge-b", devices: []DeviceInfo{device("stub-merge-b", "/dev/i2c-1")}}
	RegisterDetector(first)
	RegisterDetector(second)

	devices, err := DetectAll(context.Background(), &Options{
		Transports: []string{"stub-merge-a", "stub-merge-b"},
	})
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestDetectAllToleratesPartialFailure(t *testing.T) {
	working := &stubDetector{transport: "stub-partial-ok", devices: []DeviceInfo{device("stub-partial-ok", "/dev/ttyACM0")}}
	broken := &stubDetector{transport: "stub-partial-bad", err: errors.New("bus scan failed")}
	RegisterDetector(working)
	RegisterDetector(broken)

	devices, err := DetectAll(context.Background(), &Options{
		Transports: []string{"stub-partial-ok", "stub-partial-bad"},
	})
	require.NoError(t, err, "devices from one transport mask another's failure")
	assert.Len(t, devices, 1)
}

func TestDetectAllSurfacesLoneFailure(t *testing.T) {
	broken := &stubDetector{transport: "stub-lone-bad", err: errors.New("bus scan failed")}
	RegisterDetector(broken)

	_, err := DetectAll(context.Background(), &Options{Transports: []string{"stub-lone-bad"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus scan failed")
}

func TestDetectAllBenignErrors(t *testing.T) {
	empty := &stubDetector{transport: "stub-benign-a", err: ErrNoDevicesFound}
	unsupported := &stubDetector{transport: "stub-benign-b", err: ErrUnsupportedPlatform}
	RegisterDetector(empty)
	RegisterDetector(unsupported)

	_, err := DetectAll(context.Background(), &Options{
		Transports: []string{"stub-benign-a", "stub-benign-b"},
	})
	require.ErrorIs(t, err, ErrNoDevicesFound,
		"empty answers and unsupported platforms are not detector failures")
}

func TestDetectAllUnknownTransport(t *testing.T) {
	_, err := DetectAll(context.Background(), &Options{Transports: []string{"stub-never-registered"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no detectors available")
}

func TestDetectionCache(t *testing.T) {
	stub := &stubDetector{transport: "stub-cache", devices: []DeviceInfo{device("stub-cache", "/dev/ttyUSB0")}}
	RegisterDetector(stub)

	opts := &Options{
		Transports:  []string{"stub-cache"},
		EnableCache: true,
		CacheTTL:    time.Minute,
	}
	_, err := DetectAll(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)

	// The second run answers from cache without touching the detector.
	devices, err := DetectAll(context.Background(), opts)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.Equal(t, 1, stub.calls)

	ClearDetectionCache()
	_, err = DetectAll(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestDetectionCacheReappliesFilters(t *testing.T) {
	stub := &stubDetector{transport: "stub-cache-filter", devices: []DeviceInfo{
		device("stub-cache-filter", "/dev/ttyUSB0"),
		device("stub-cache-filter", "/dev/ttyUSB1"),
	}}
	RegisterDetector(stub)

	opts := &Options{
		Transports:  []string{"stub-cache-filter"},
		EnableCache: true,
		CacheTTL:    time.Minute,
	}
	devices, err := DetectAll(context.Background(), opts)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	// The cached answer must honor filters added after it was stored.
	opts.IgnorePaths = []string{"/dev/ttyUSB1"}
	devices, err = DetectAll(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, 1, stub.calls)
}

func TestFirst(t *testing.T) {
	stub := &stubDetector{transport: "stub-first", devices: []DeviceInfo{
		device("stub-first", "/dev/ttyAMA0"),
		device("stub-first", "/dev/ttyAMA1"),
	}}
	RegisterDetector(stub)

	found, err := First(context.Background(), &Options{Transports: []string{"stub-first"}})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", found.Path)
}

func TestFirstNoDevices(t *testing.T) {
	stub := &stubDetector{transport: "stub-first-empty"}
	RegisterDetector(stub)

	_, err := First(context.Background(), &Options{Transports: []string{"stub-first-empty"}})
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDeviceInfoString(t *testing.T) {
	t.Parallel()
	d := device("uart", "/dev/ttyUSB0")
	assert.Equal(t, "uart device at /dev/ttyUSB0", d.String())
}
