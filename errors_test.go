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
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportErrorFormatting(t *testing.T) {
	t.Parallel()

	withPort := NewTimeoutError("read", "/dev/ttyUSB0")
	assert.Equal(t, "read /dev/ttyUSB0: transport timeout", withPort.Error())

	withoutPort := NewTransportError("write", "", ErrTransportWrite, ErrorTypeTransient)
	assert.Equal(t, "write: transport write failed", withoutPort.Error())
}

func TestTransportErrorUnwrap(t *testing.T) {
	t.Parallel()
	err := NewTimeoutError("read", "port")
	require.ErrorIs(t, err, ErrTransportTimeout)

	invalid := NewInvalidResponseError("frame", "port")
	require.ErrorIs(t, invalid, ErrInvalidResponse)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout constructor", NewTimeoutError("read", "port"), true},
		{"write constructor", NewTransportWriteError("write", "port"), true},
		{"read constructor", NewTransportReadError("read", "port"), true},
		{"invalid response constructor", NewInvalidResponseError("frame", "port"), false},
		{"bare timeout sentinel", ErrTransportTimeout, true},
		{"wrapped read sentinel", fmt.Errorf("unit 3: %w", ErrTransportRead), true},
		{"capability denial", ErrCapabilityDenied, false},
		{"auth failure", ErrAuthFailed, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"closed transport", ErrTransportClosed, true},
		{"reader gone", ErrReaderNotFound, true},
		{"eof", io.EOF, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"wrapped closed", fmt.Errorf("send: %w", ErrTransportClosed), true},
		{"device unplugged errno", fmt.Errorf("read: %w", syscall.ENODEV), true},
		{"io errno", fmt.Errorf("read: %w", syscall.EIO), true},
		{"permanent transport error", NewInvalidResponseError("frame", "port"), true},
		{"transient transport error", NewTransportReadError("read", "port"), false},
		{"no tag", ErrNoTagDetected, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestOpError(t *testing.T) {
	t.Parallel()

	withUnit := newOpError(FamilyNTAG213, "write", 7, ErrReadOnlyUnit)
	assert.Equal(t, "NTAG213 write unit 7: unit is read-only", withUnit.Error())
	require.ErrorIs(t, withUnit, ErrReadOnlyUnit)

	withoutUnit := newOpError(FamilyType3FeliCa, "read", -1, ErrServiceNotFound)
	assert.Equal(t, "FeliCa read: service code not present on tag", withoutUnit.Error())

	var opErr *OpError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", withUnit), &opErr)
	assert.Equal(t, 7, opErr.Unit)
	assert.Equal(t, FamilyNTAG213, opErr.Family)
}
