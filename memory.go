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

// MemoryRegion describes the addressable memory shape of a tag family:
// the unit (page or block) granule, how many units exist, and which of
// them are writable. Families with negotiated layouts (FeliCa, DESFire,
// Vicinity) report zero TotalUnits; callers must query the handler for
// actual service/file/block counts instead of assuming a fixed size.
type MemoryRegion struct {
	// UnitSize is the number of bytes per addressable unit.
	UnitSize int
	// TotalUnits is the unit count, or 0 when the capacity is
	// variable and must be discovered from the tag.
	TotalUnits int
	// SystemUnits is the count of leading read-only system units
	// (Topaz and Type 2 header pages). Zero for block families.
	SystemUnits int
	// UserStart is the first user-writable unit.
	UserStart int
	// TrailerPeriod marks every (TrailerPeriod-1)-th unit within a
	// period as a read-only sector trailer. Zero disables trailer
	// handling; 4 for MIFARE Classic.
	TrailerPeriod int
	// SkipUnitZero marks unit 0 read-only independent of UserStart
	// (the MIFARE manufacturer block).
	SkipUnitZero bool
}

// Known reports whether the region has a fixed, statically known size.
func (r MemoryRegion) Known() bool {
	return r.TotalUnits > 0
}

// TotalBytes returns the full capacity in bytes, 0 when variable.
func (r MemoryRegion) TotalBytes() int {
	return r.UnitSize * r.TotalUnits
}

// Writable reports whether the given unit accepts data writes. System
// pages, the manufacturer block and sector trailers are excluded.
func (r MemoryRegion) Writable(unit int) bool {
	if unit < 0 || (r.Known() && unit >= r.TotalUnits) {
		return false
	}
	if unit < r.SystemUnits {
		return false
	}
	if r.SkipUnitZero && unit == 0 {
		return false
	}
	if r.TrailerPeriod > 0 && unit%r.TrailerPeriod == r.TrailerPeriod-1 {
		return false
	}
	return unit >= r.UserStart
}

// UserBytes returns the user-writable capacity in bytes.
func (r MemoryRegion) UserBytes() int {
	if !r.Known() {
		return 0
	}
	n := 0
	for unit := 0; unit < r.TotalUnits; unit++ {
		if r.Writable(unit) {
			n += r.UnitSize
		}
	}
	return n
}

// Static per-family layouts. The Classic 4K table uses the uniform
// 4-block-sector approximation (40 sectors x 4 blocks = 256 blocks
// never overflows the real part's 4096 bytes of data blocks).
var memoryRegions = map[TagFamily]MemoryRegion{
	FamilyType1Topaz:      {UnitSize: 8, TotalUnits: 16, SystemUnits: 4, UserStart: 4},
	FamilyType2Ultralight: {UnitSize: 4, TotalUnits: 16, SystemUnits: 4, UserStart: 4},
	FamilyNTAG213:         {UnitSize: 4, TotalUnits: 45, SystemUnits: 4, UserStart: 4},
	FamilyNTAG215:         {UnitSize: 4, TotalUnits: 135, SystemUnits: 4, UserStart: 4},
	FamilyNTAG216:         {UnitSize: 4, TotalUnits: 231, SystemUnits: 4, UserStart: 4},
	FamilyClassic1K:       {UnitSize: 16, TotalUnits: 64, TrailerPeriod: 4, SkipUnitZero: true},
	FamilyClassic4K:       {UnitSize: 16, TotalUnits: 256, TrailerPeriod: 4, SkipUnitZero: true},
	FamilyType3FeliCa:     {UnitSize: 16},
	FamilyType4DESFire:    {UnitSize: 1},
	FamilyType5Vicinity:   {UnitSize: 4},
	FamilyUnknown:         {},
}

// Capacity returns the memory layout for a family. The lookup is total:
// unknown or variable-size families return a region with TotalUnits 0.
func Capacity(family TagFamily) MemoryRegion {
	return memoryRegions[family]
}
