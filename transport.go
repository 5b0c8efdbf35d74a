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

package tagcore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Transport defines the interface for communication with a contactless
// reader. This can be implemented by UART, I2C, SPI or PC/SC backends.
type Transport interface {
	// Transceive exchanges a raw protocol frame with the tag in the
	// field and returns the tag's answer.
	Transceive(ctx context.Context, data []byte) ([]byte, error)

	// ReadRawUnit reads one addressable unit (page or block) using
	// the reader's storage-card primitive.
	ReadRawUnit(ctx context.Context, unit int) ([]byte, error)

	// WriteRawUnit writes one addressable unit using the reader's
	// storage-card primitive.
	WriteRawUnit(ctx context.Context, unit int, data []byte) error

	// Close closes the transport connection
	Close() error

	// SetTimeout sets the read timeout for the transport
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// Discoverer is implemented by transports that can report the
// anticollision answer of a tag entering the field. Returns
// ErrNoTagDetected while the field is empty.
type Discoverer interface {
	Discover(ctx context.Context) (*DiscoveryAttributes, error)
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportI2C represents I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportPCSC represents a PC/SC smart card reader transport.
	TransportPCSC TransportType = "pcsc"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockTransport provides a mock implementation of Transport for
// testing. Transceive answers are keyed by the first frame byte; raw
// unit storage is a sparse map that reads back zero units when unset.
type MockTransport struct {
	responses map[byte][]byte
	errorMap  map[byte]error
	units     map[int][]byte
	unitErr   map[int]error
	callCount map[byte]int
	discovery *DiscoveryAttributes
	unitSize  int
	timeout   time.Duration
	delay     time.Duration
	mu        sync.RWMutex
	connected bool
}

// NewMockTransport creates a new mock transport with 4-byte units.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
		unitSize:  4,
		responses: make(map[byte][]byte),
		errorMap:  make(map[byte]error),
		units:     make(map[int][]byte),
		unitErr:   make(map[int]error),
		callCount: make(map[byte]int),
	}
}

// Transceive implements Transport interface
func (m *MockTransport) Transceive(ctx context.Context, data []byte) ([]byte, error) {
	if err := m.pause(ctx); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty frame")
	}
	cmd := data[0]

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[cmd]++

	if err, exists := m.errorMap[cmd]; exists {
		return nil, err
	}
	if response, exists := m.responses[cmd]; exists {
		return response, nil
	}

	// Unknown commands answer a bare success status.
	return []byte{0x00}, nil
}

// ReadRawUnit implements Transport interface
func (m *MockTransport) ReadRawUnit(ctx context.Context, unit int) ([]byte, error) {
	if err := m.pause(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[0xFE]++

	if err, exists := m.unitErr[unit]; exists {
		return nil, err
	}
	if data, exists := m.units[unit]; exists {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	return make([]byte, m.unitSize), nil
}

// WriteRawUnit implements Transport interface
func (m *MockTransport) WriteRawUnit(ctx context.Context, unit int, data []byte) error {
	if err := m.pause(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[0xFF]++

	if err, exists := m.unitErr[unit]; exists {
		return err
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.units[unit] = stored
	return nil
}

// Discover implements the Discoverer interface
func (m *MockTransport) Discover(ctx context.Context) (*DiscoveryAttributes, error) {
	if err := m.pause(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.discovery == nil {
		return nil, ErrNoTagDetected
	}
	attrs := *m.discovery
	return &attrs, nil
}

// pause checks connection state and simulates hardware delay.
func (m *MockTransport) pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.RLock()
	connected := m.connected
	delay := m.delay
	m.mu.RUnlock()

	if !connected {
		return ErrTransportClosed
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// SetTimeout implements Transport interface
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetResponse configures a Transceive answer for a command byte
func (m *MockTransport) SetResponse(cmd byte, response []byte) {
	m.mu.Lock()
	m.responses[cmd] = response
	m.mu.Unlock()
}

// SetError configures an error to be returned for a command byte
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	m.errorMap[cmd] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a command byte
func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	delete(m.errorMap, cmd)
	m.mu.Unlock()
}

// SetUnit preloads raw unit contents
func (m *MockTransport) SetUnit(unit int, data []byte) {
	m.mu.Lock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.units[unit] = stored
	m.mu.Unlock()
}

// Unit returns the current raw unit contents (nil when never written)
func (m *MockTransport) Unit(unit int) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, exists := m.units[unit]
	if !exists {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// SetUnitError injects an error for one raw unit address
func (m *MockTransport) SetUnitError(unit int, err error) {
	m.mu.Lock()
	m.unitErr[unit] = err
	m.mu.Unlock()
}

// SetUnitSize configures the unit size returned for unset units
func (m *MockTransport) SetUnitSize(size int) {
	m.mu.Lock()
	m.unitSize = size
	m.mu.Unlock()
}

// SetDiscovery configures the tag answered by Discover
func (m *MockTransport) SetDiscovery(attrs *DiscoveryAttributes) {
	m.mu.Lock()
	m.discovery = attrs
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate hardware response time
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// GetCallCount returns how many times a command byte was exchanged.
// ReadRawUnit and WriteRawUnit count under 0xFE and 0xFF.
func (m *MockTransport) GetCallCount(cmd byte) int {
	m.mu.RLock()
	count := m.callCount[cmd]
	m.mu.RUnlock()
	return count
}

// Reset clears all call counts and resets state
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.callCount = make(map[byte]int)
	m.connected = true
	m.mu.Unlock()
}
