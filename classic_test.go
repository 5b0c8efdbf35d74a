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

func newVirtualClassicHandler(family TagFamily) (*ClassicHandler, *VirtualTag, *TagHandle) {
	tag := NewVirtualTag(family, fixtures.ClassicUID)
	handle := NewTagHandle(family, tag.Attrs())
	return NewClassicHandler(handle, tag), tag, handle
}

func TestClassicAuthenticate(t *testing.T) {
	t.Parallel()
	h, tag, handle := newVirtualClassicHandler(FamilyClassic1K)

	require.NoError(t, h.Authenticate(context.Background(), 4, KeyA, DefaultClassicKey))
	assert.True(t, handle.Session().Granted(SectorScope(1)))

	// A failed check resets the session entirely.
	tag.SetSectorKey(2, KeyA, []byte{1, 2, 3, 4, 5, 6})
	err := h.Authenticate(context.Background(), 8, KeyA, DefaultClassicKey)
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, StateUnauthenticated, handle.Session().State())
}

func TestClassicAuthenticateRejectsBadInput(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualClassicHandler(FamilyClassic1K)

	err := h.Authenticate(context.Background(), 64, KeyA, DefaultClassicKey)
	require.ErrorIs(t, err, ErrAddressOutOfRange)

	err = h.Authenticate(context.Background(), 4, KeyA, []byte{0xFF})
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestClassicReadRequiresAuth(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualClassicHandler(FamilyClassic1K)

	_, err := h.ReadBlock(context.Background(), 5)
	require.ErrorIs(t, err, ErrAuthRequired)

	require.NoError(t, h.Authenticate(context.Background(), 5, KeyA, DefaultClassicKey))
	_, err = h.ReadBlock(context.Background(), 5)
	require.NoError(t, err)

	// The grant covers exactly one sector.
	_, err = h.ReadBlock(context.Background(), 9)
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestClassicWriteBlock(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualClassicHandler(FamilyClassic1K)
	require.NoError(t, h.Authenticate(context.Background(), 5, KeyA, DefaultClassicKey))

	payload := fixtures.BuildPattern(16)
	require.NoError(t, h.WriteBlock(context.Background(), 5, payload))

	read, err := h.ReadBlock(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, payload, read)
}

func TestClassicWriteBlockGuards(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualClassicHandler(FamilyClassic1K)
	require.NoError(t, h.Authenticate(context.Background(), 0, KeyA, DefaultClassicKey))

	tests := []struct {
		name  string
		block int
		data  []byte
		err   error
	}{
		{"sector trailer", 3, make([]byte, 16), ErrAddressOutOfRange},
		{"manufacturer block", 0, make([]byte, 16), ErrReadOnlyUnit},
		{"beyond capacity", 64, make([]byte, 16), ErrAddressOutOfRange},
		{"short payload", 1, make([]byte, 8), ErrAlignment},
		{"long payload", 1, make([]byte, 17), ErrAlignment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, h.WriteBlock(context.Background(), tt.block, tt.data), tt.err)
		})
	}
}

func TestClassicImageRoundTrip(t *testing.T) {
	t.Parallel()
	h, tag, _ := newVirtualClassicHandler(FamilyClassic1K)

	image := fixtures.BuildPattern(64)
	written, err := h.WriteAll(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, 64, written, "block 0 and trailer positions consumed, not written")

	got := tag.Image()
	assert.Equal(t, image[16:32], got[16:32])
	assert.Equal(t, image[32:48], got[32:48])
	assert.Equal(t, make([]byte, 16), got[48:64], "trailer stays blank")
	assert.Equal(t, fixtures.ClassicUID, got[:4], "manufacturer block stays intact")

	read, err := h.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image[16:48], read[16:48])
}

func TestClassicWriteAllSkipsRefusedSector(t *testing.T) {
	t.Parallel()
	h, tag, _ := newVirtualClassicHandler(FamilyClassic1K)
	secret := []byte{1, 2, 3, 4, 5, 6}
	tag.SetSectorKey(1, KeyA, secret)
	tag.SetSectorKey(1, KeyB, secret)

	image := fixtures.BuildPattern(144)
	written, err := h.WriteAll(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, 144, written, "refused sector consumes its positions so later sectors stay aligned")

	got := tag.Image()
	assert.Equal(t, make([]byte, 16), got[64:80], "refused sector untouched")
	assert.Equal(t, image[128:144], got[128:144], "sector after the refusal lands positionally")
}

func TestClassicReadAllBlanksRefusedSector(t *testing.T) {
	t.Parallel()
	h, tag, _ := newVirtualClassicHandler(FamilyClassic1K)
	secret := []byte{1, 2, 3, 4, 5, 6}
	tag.SetSectorKey(1, KeyA, secret)
	tag.SetSectorKey(1, KeyB, secret)

	// Content in sector 2 must keep its position past the blanked
	// sector 1.
	marker := fixtures.BuildPattern(16)
	require.NoError(t, h.Authenticate(context.Background(), 8, KeyA, DefaultClassicKey))
	require.NoError(t, h.WriteBlock(context.Background(), 8, marker))

	image, err := h.ReadAll(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(image), 144)
	assert.Equal(t, make([]byte, 64), image[64:128], "refused sector reads as blank blocks")
	assert.Equal(t, marker, image[128:144])
}

func TestClassicFormat(t *testing.T) {
	t.Parallel()
	h, tag, _ := newVirtualClassicHandler(FamilyClassic1K)
	require.NoError(t, h.Authenticate(context.Background(), 4, KeyA, DefaultClassicKey))
	require.NoError(t, h.WriteBlock(context.Background(), 4, fixtures.BuildPattern(16)))
	require.NoError(t, h.WriteBlock(context.Background(), 5, fixtures.BuildPattern(16)))

	require.NoError(t, h.Format(context.Background()))

	got := tag.Image()
	assert.Equal(t, make([]byte, 16), got[64:80])
	assert.Equal(t, make([]byte, 16), got[80:96])
	assert.Equal(t, fixtures.ClassicUID, got[:4], "manufacturer block survives format")
}
