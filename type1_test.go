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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fixtures "github.com/nfcforge/go-tagcore/internal/testing"
)

func newTopazHandler(mock *MockTransport) *Type1Handler {
	mock.SetUnitSize(8)
	handle := NewTagHandle(FamilyType1Topaz, DiscoveryAttributes{
		ATQA: []byte{0x00, 0x04}, SAK: 0x00, UID: fixtures.TopazUID,
	})
	return NewType1Handler(handle, mock)
}

func TestType1ReadPage(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	h := newTopazHandler(mock)
	mock.SetUnit(5, []byte{1, 2, 3})

	data, err := h.ReadPage(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 0, 0, 0, 0, 0}, data, "short answers pad to the page size")

	_, err = h.ReadPage(context.Background(), 16)
	require.ErrorIs(t, err, ErrAddressOutOfRange)
	_, err = h.ReadPage(context.Background(), -1)
	require.ErrorIs(t, err, ErrAddressOutOfRange)
}

func TestType1WritePage(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	h := newTopazHandler(mock)

	require.NoError(t, h.WritePage(context.Background(), 4, []byte{0xAA, 0xBB}))
	assert.Equal(t, []byte{0xAA, 0xBB, 0, 0, 0, 0, 0, 0}, mock.Unit(4))

	before := mock.GetCallCount(0xFF)
	err := h.WritePage(context.Background(), 2, []byte{0x01})
	require.ErrorIs(t, err, ErrReadOnlyUnit)
	assert.Equal(t, before, mock.GetCallCount(0xFF), "system pages reject writes before any exchange")

	err = h.WritePage(context.Background(), 4, make([]byte, 9))
	require.ErrorIs(t, err, ErrAlignment)

	err = h.WritePage(context.Background(), 16, []byte{0x01})
	require.ErrorIs(t, err, ErrAddressOutOfRange)
}

func TestType1WritePages(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	h := newTopazHandler(mock)

	data := fixtures.BuildPattern(20)
	require.NoError(t, h.WritePages(context.Background(), 4, data))
	assert.Equal(t, data[:8], mock.Unit(4))
	assert.Equal(t, data[8:16], mock.Unit(5))
	assert.Equal(t, append(append([]byte(nil), data[16:20]...), 0, 0, 0, 0), mock.Unit(6))
}

func TestType1ImageRoundTrip(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	h := newTopazHandler(mock)

	image := fixtures.BuildPattern(64)
	written, err := h.WriteAll(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, 64, written)
	assert.Nil(t, mock.Unit(0), "system pages consumed positionally but never written")
	assert.Nil(t, mock.Unit(3))
	assert.Equal(t, image[32:40], mock.Unit(4))

	read, err := h.ReadAll(context.Background())
	require.NoError(t, err)
	// Pages 0-3 were skipped on the tag, so they read back blank.
	assert.Equal(t, append(make([]byte, 32), image[32:64]...), read)
}

func TestType1WriteAllTruncatesAtCapacity(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	h := newTopazHandler(mock)

	written, err := h.WriteAll(context.Background(), fixtures.BuildPattern(200))
	require.NoError(t, err)
	assert.Equal(t, 128, written)
}
