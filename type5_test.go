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

func newVirtualType5Handler(blocks int) (*Type5Handler, *VirtualTag) {
	tag := NewVirtualVicinityTag(fixtures.VicinityUID, blocks)
	handle := NewTagHandle(FamilyType5Vicinity, tag.Attrs())
	return NewType5Handler(handle, tag), tag
}

func TestType5SystemInfo(t *testing.T) {
	t.Parallel()
	h, _ := newVirtualType5Handler(16)

	info, err := h.SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, info.BlockCount)
	assert.Equal(t, 4, info.BlockSize)
	assert.Equal(t, fixtures.VicinityUID, info.UID)

	// The answer is cached for the handler's lifetime.
	again, err := h.SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Same(t, info, again)
}

func TestType5ImageRoundTrip(t *testing.T) {
	t.Parallel()
	h, _ := newVirtualType5Handler(16)

	data := fixtures.BuildPattern(32)
	written, err := h.WriteAll(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 32, written)

	read, err := h.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func TestType5WriteRejectsMisalignedDataBeforeTransport(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	handle := NewTagHandle(FamilyType5Vicinity, DiscoveryAttributes{UID: fixtures.VicinityUID})
	h := NewType5Handler(handle, mock)

	_, err := h.WriteAll(context.Background(), fixtures.BuildPattern(10))
	require.ErrorIs(t, err, ErrAlignment)
	// Every vicinity frame opens with the request flags byte.
	assert.Zero(t, mock.GetCallCount(vicinityFlagHighRate), "no exchange happens for misaligned data")

	_, err = h.WriteBlocks(context.Background(), 0, fixtures.BuildPattern(7))
	require.ErrorIs(t, err, ErrAlignment)
	assert.Zero(t, mock.GetCallCount(vicinityFlagHighRate))
}

func TestType5WriteBlockValidation(t *testing.T) {
	t.Parallel()
	h, _ := newVirtualType5Handler(8)

	err := h.WriteBlock(context.Background(), 8, make([]byte, 4))
	require.ErrorIs(t, err, ErrAddressOutOfRange)

	err = h.WriteBlock(context.Background(), 2, make([]byte, 3))
	require.ErrorIs(t, err, ErrAlignment)
}

func TestType5WriteBlocksTruncatesAtCapacity(t *testing.T) {
	t.Parallel()
	h, tag := newVirtualType5Handler(16)

	written, err := h.WriteBlocks(context.Background(), 14, fixtures.BuildPattern(12))
	require.NoError(t, err)
	assert.Equal(t, 8, written, "only blocks 14 and 15 exist")
	assert.Equal(t, []byte{1, 2, 3, 4}, tag.Image()[56:60])
}

func TestType5LockBlock(t *testing.T) {
	t.Parallel()
	h, tag := newVirtualType5Handler(8)

	require.NoError(t, h.WriteBlock(context.Background(), 3, []byte{9, 9, 9, 9}))
	require.NoError(t, h.LockBlock(context.Background(), 3))
	assert.True(t, tag.Locked(3))

	err := h.WriteBlock(context.Background(), 3, []byte{1, 1, 1, 1})
	require.ErrorIs(t, err, ErrBlockLocked)

	// Locked contents stay readable.
	data, err := h.ReadBlock(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 9}, data)
}

func TestType5FormatSkipsLockedBlocks(t *testing.T) {
	t.Parallel()
	h, tag := newVirtualType5Handler(8)
	_, err := h.WriteAll(context.Background(), fixtures.BuildPattern(32))
	require.NoError(t, err)
	require.NoError(t, h.LockBlock(context.Background(), 2))

	require.NoError(t, h.Format(context.Background()))

	image := tag.Image()
	assert.Equal(t, []byte{9, 10, 11, 12}, image[8:12], "locked block keeps its contents")
	assert.Equal(t, make([]byte, 4), image[0:4])
	assert.Equal(t, make([]byte, 4), image[12:16])
}
