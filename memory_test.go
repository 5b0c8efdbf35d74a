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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapacity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		family     TagFamily
		unitSize   int
		totalUnits int
		totalBytes int
		known      bool
	}{
		{"topaz", FamilyType1Topaz, 8, 16, 128, true},
		{"ultralight", FamilyType2Ultralight, 4, 16, 64, true},
		{"ntag213", FamilyNTAG213, 4, 45, 180, true},
		{"ntag215", FamilyNTAG215, 4, 135, 540, true},
		{"ntag216", FamilyNTAG216, 4, 231, 924, true},
		{"classic 1K", FamilyClassic1K, 16, 64, 1024, true},
		{"classic 4K", FamilyClassic4K, 16, 256, 4096, true},
		{"felica is negotiated", FamilyType3FeliCa, 16, 0, 0, false},
		{"desfire is negotiated", FamilyType4DESFire, 1, 0, 0, false},
		{"vicinity is negotiated", FamilyType5Vicinity, 4, 0, 0, false},
		{"unknown", FamilyUnknown, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			region := Capacity(tt.family)
			assert.Equal(t, tt.unitSize, region.UnitSize)
			assert.Equal(t, tt.totalUnits, region.TotalUnits)
			assert.Equal(t, tt.totalBytes, region.TotalBytes())
			assert.Equal(t, tt.known, region.Known())
		})
	}
}

func TestMemoryRegionWritable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		family TagFamily
		unit   int
		want   bool
	}{
		{"type2 header page", FamilyNTAG213, 0, false},
		{"type2 last header page", FamilyNTAG213, 3, false},
		{"type2 first user page", FamilyNTAG213, 4, true},
		{"type2 last page", FamilyNTAG213, 44, true},
		{"type2 beyond capacity", FamilyNTAG213, 45, false},
		{"negative unit", FamilyNTAG213, -1, false},
		{"topaz system page", FamilyType1Topaz, 2, false},
		{"topaz user page", FamilyType1Topaz, 4, true},
		{"classic manufacturer block", FamilyClassic1K, 0, false},
		{"classic data block", FamilyClassic1K, 1, true},
		{"classic first trailer", FamilyClassic1K, 3, false},
		{"classic later trailer", FamilyClassic1K, 63, false},
		{"classic later data block", FamilyClassic1K, 62, true},
		{"classic 4K high block", FamilyClassic4K, 254, true},
		{"classic 4K last trailer", FamilyClassic4K, 255, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Capacity(tt.family).Writable(tt.unit))
		})
	}
}

func TestMemoryRegionUserBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		family TagFamily
		want   int
	}{
		// 4 header pages off the top of each Type 2 layout.
		{"ultralight", FamilyType2Ultralight, 48},
		{"ntag213", FamilyNTAG213, 164},
		{"ntag215", FamilyNTAG215, 524},
		{"ntag216", FamilyNTAG216, 908},
		{"topaz", FamilyType1Topaz, 96},
		// Classic loses block 0 and one trailer per sector.
		{"classic 1K", FamilyClassic1K, 752},
		{"classic 4K", FamilyClassic4K, 3056},
		{"variable layouts report zero", FamilyType3FeliCa, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Capacity(tt.family).UserBytes())
		})
	}
}
