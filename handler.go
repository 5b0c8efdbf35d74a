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
	"fmt"
)

// Handler is the common operation surface every family handler
// implements. ReadAll returns the tag's full memory image addressed
// from unit 0 with trailing blank units trimmed. WriteAll consumes an
// image positionally: read-only units (system pages, the manufacturer
// block, sector trailers) are skipped on the tag but still advance
// through their byte positions in the image, writes are truncated at
// total capacity with a warning, and a final partial unit is
// zero-padded. The returned count is the number of image bytes
// consumed.
type Handler interface {
	Family() TagFamily
	ReadAll(ctx context.Context) ([]byte, error)
	WriteAll(ctx context.Context, data []byte) (int, error)
}

// Formatter is implemented by handlers whose family supports erasing
// user data. Semantics are family-specific: zero-fill for page and
// block families, FormatPICC for DESFire.
type Formatter interface {
	Format(ctx context.Context) error
}

// NewHandler builds the operation handler for a classified tag. The
// dispatch is exhaustive over the family enum; FamilyUnknown yields
// ErrUnknownFamily since no protocol can be assumed for it.
func NewHandler(handle *TagHandle, transport Transport) (Handler, error) {
	switch handle.Family {
	case FamilyType1Topaz:
		return NewType1Handler(handle, transport), nil
	case FamilyType2Ultralight, FamilyNTAG213, FamilyNTAG215, FamilyNTAG216:
		return NewType2Handler(handle, transport), nil
	case FamilyType3FeliCa:
		return NewFeliCaHandler(handle, transport), nil
	case FamilyType4DESFire:
		return NewDESFireHandler(handle, transport), nil
	case FamilyType5Vicinity:
		return NewType5Handler(handle, transport), nil
	case FamilyClassic1K, FamilyClassic4K:
		return NewClassicHandler(handle, transport), nil
	case FamilyUnknown:
		return nil, fmt.Errorf("%w: cannot build handler", ErrUnknownFamily)
	default:
		return nil, fmt.Errorf("%w: cannot build handler", ErrUnknownFamily)
	}
}

// unitReader reads one addressable unit.
type unitReader func(ctx context.Context, unit int) ([]byte, error)

// unitWriter writes one addressable unit.
type unitWriter func(ctx context.Context, unit int, data []byte) error

// readImage assembles the full memory image of a fixed-layout tag.
// Every unit is normalized to the region's unit size and trailing
// blank units are trimmed so a mostly-empty tag yields a short image.
func readImage(ctx context.Context, region MemoryRegion, read unitReader) ([]byte, error) {
	image := make([]byte, 0, region.TotalBytes())
	for unit := 0; unit < region.TotalUnits; unit++ {
		data, err := read(ctx, unit)
		if err != nil {
			return nil, err
		}
		image = append(image, normalizeUnit(data, region.UnitSize)...)
	}
	return trimBlankUnits(image, region.UnitSize), nil
}

// writeImage writes a memory image positionally through write,
// implementing the common write policy: skip read-only units while
// consuming their byte positions, truncate at total capacity with a
// warning, zero-pad the final partial unit. Returns image bytes
// consumed; a unit write failure reports the bytes consumed so far.
func writeImage(
	ctx context.Context, family TagFamily, region MemoryRegion, data []byte, write unitWriter,
) (int, error) {
	if region.TotalBytes() > 0 && len(data) > region.TotalBytes() {
		Debugf("%s write: %d bytes exceeds %d byte capacity, truncating",
			family, len(data), region.TotalBytes())
	}

	consumed := 0
	for unit := 0; unit < region.TotalUnits && consumed < len(data); unit++ {
		remaining := len(data) - consumed
		chunk := normalizeUnit(data[consumed:min(consumed+region.UnitSize, len(data))], region.UnitSize)

		if region.Writable(unit) {
			if err := write(ctx, unit, chunk); err != nil {
				return consumed, newOpError(family, "write", unit, err)
			}
		} else {
			Debugf("%s write: skipping read-only unit %d", family, unit)
		}
		consumed += min(region.UnitSize, remaining)
	}
	return consumed, nil
}

// normalizeUnit pads or trims data to exactly size bytes.
func normalizeUnit(data []byte, size int) []byte {
	if len(data) == size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

// trimBlankUnits removes trailing all-zero units from an image.
func trimBlankUnits(image []byte, unitSize int) []byte {
	end := len(image)
	for end >= unitSize && isBlank(image[end-unitSize:end]) {
		end -= unitSize
	}
	return image[:end]
}

func isBlank(unit []byte) bool {
	for _, b := range unit {
		if b != 0 {
			return false
		}
	}
	return true
}
