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

func TestNewHandlerDispatch(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	tests := []struct {
		check  func(t *testing.T, h Handler)
		name   string
		family TagFamily
	}{
		{
			name:   "topaz",
			family: FamilyType1Topaz,
			check: func(t *testing.T, h Handler) {
				assert.IsType(t, &Type1Handler{}, h)
			},
		},
		{
			name:   "ultralight",
			family: FamilyType2Ultralight,
			check: func(t *testing.T, h Handler) {
				assert.IsType(t, &Type2Handler{}, h)
			},
		},
		{
			name:   "ntag216 shares the type2 handler",
			family: FamilyNTAG216,
			check: func(t *testing.T, h Handler) {
				assert.IsType(t, &Type2Handler{}, h)
				assert.Equal(t, FamilyNTAG216, h.Family())
			},
		},
		{
			name:   "felica",
			family: FamilyType3FeliCa,
			check: func(t *testing.T, h Handler) {
				assert.IsType(t, &FeliCaHandler{}, h)
			},
		},
		{
			name:   "desfire",
			family: FamilyType4DESFire,
			check: func(t *testing.T, h Handler) {
				assert.IsType(t, &DESFireHandler{}, h)
			},
		},
		{
			name:   "vicinity",
			family: FamilyType5Vicinity,
			check: func(t *testing.T, h Handler) {
				assert.IsType(t, &Type5Handler{}, h)
			},
		},
		{
			name:   "classic 4K",
			family: FamilyClassic4K,
			check: func(t *testing.T, h Handler) {
				assert.IsType(t, &ClassicHandler{}, h)
				assert.Equal(t, FamilyClassic4K, h.Family())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handle := NewTagHandle(tt.family, DiscoveryAttributes{UID: fixtures.ClassicUID})
			h, err := NewHandler(handle, mock)
			require.NoError(t, err)
			tt.check(t, h)
		})
	}
}

func TestNewHandlerUnknownFamily(t *testing.T) {
	t.Parallel()
	handle := NewTagHandle(FamilyUnknown, DiscoveryAttributes{})
	_, err := NewHandler(handle, NewMockTransport())
	require.ErrorIs(t, err, ErrUnknownFamily)
}

func TestTrimBlankUnits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		image    []byte
		unitSize int
		want     []byte
	}{
		{"all blank", make([]byte, 16), 4, []byte{}},
		{"no trailing blanks", []byte{1, 2, 3, 4}, 4, []byte{1, 2, 3, 4}},
		{
			"trailing blank unit removed",
			[]byte{1, 2, 3, 4, 0, 0, 0, 0},
			4,
			[]byte{1, 2, 3, 4},
		},
		{
			"interior blank unit kept",
			[]byte{1, 0, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0},
			4,
			[]byte{1, 0, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0},
		},
		{"empty image", []byte{}, 4, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, trimBlankUnits(tt.image, tt.unitSize))
		})
	}
}

func TestNormalizeUnit(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []byte{1, 2, 0, 0}, normalizeUnit([]byte{1, 2}, 4))
	assert.Equal(t, []byte{1, 2, 3, 4}, normalizeUnit([]byte{1, 2, 3, 4, 5}, 4))
	same := []byte{9, 9, 9, 9}
	assert.Equal(t, same, normalizeUnit(same, 4))
}

func TestWriteImagePolicy(t *testing.T) {
	t.Parallel()
	region := MemoryRegion{UnitSize: 4, TotalUnits: 6, SystemUnits: 2, UserStart: 2}

	t.Run("skips read-only units while consuming positions", func(t *testing.T) {
		t.Parallel()
		written := map[int][]byte{}
		data := fixtures.BuildPattern(24)
		consumed, err := writeImage(context.Background(), FamilyType2Ultralight, region, data,
			func(_ context.Context, unit int, chunk []byte) error {
				written[unit] = append([]byte(nil), chunk...)
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, 24, consumed)
		assert.NotContains(t, written, 0)
		assert.NotContains(t, written, 1)
		assert.Equal(t, data[8:12], written[2])
		assert.Equal(t, data[20:24], written[5])
	})

	t.Run("truncates at capacity", func(t *testing.T) {
		t.Parallel()
		consumed, err := writeImage(context.Background(), FamilyType2Ultralight, region,
			fixtures.BuildPattern(40),
			func(_ context.Context, _ int, _ []byte) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, 24, consumed)
	})

	t.Run("zero-pads the final partial unit", func(t *testing.T) {
		t.Parallel()
		var last []byte
		consumed, err := writeImage(context.Background(), FamilyType2Ultralight, region,
			fixtures.BuildPattern(10),
			func(_ context.Context, _ int, chunk []byte) error {
				last = append([]byte(nil), chunk...)
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, 10, consumed)
		assert.Equal(t, []byte{9, 10, 0, 0}, last)
	})

	t.Run("unit failure reports bytes consumed so far", func(t *testing.T) {
		t.Parallel()
		consumed, err := writeImage(context.Background(), FamilyType2Ultralight, region,
			fixtures.BuildPattern(24),
			func(_ context.Context, unit int, _ []byte) error {
				if unit == 4 {
					return ErrTagWriteFailed
				}
				return nil
			})
		require.ErrorIs(t, err, ErrTagWriteFailed)
		assert.Equal(t, 16, consumed)
	})
}

func TestReadImageTrimsAndNormalizes(t *testing.T) {
	t.Parallel()
	region := MemoryRegion{UnitSize: 4, TotalUnits: 4}
	units := map[int][]byte{
		0: {1, 2, 3, 4},
		1: {5, 6}, // short answers are padded to the unit size
	}
	image, err := readImage(context.Background(), region,
		func(_ context.Context, unit int) ([]byte, error) {
			return units[unit], nil
		})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 0, 0}, image)
}
