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

// Type1Handler performs operations on Topaz/Jewel tags: 8-byte pages,
// 16 pages total, the first 4 holding UID and lock bytes.
type Type1Handler struct {
	handle    *TagHandle
	transport Transport
	region    MemoryRegion
}

// NewType1Handler creates a handler for a Topaz tag.
func NewType1Handler(handle *TagHandle, transport Transport) *Type1Handler {
	return &Type1Handler{
		handle:    handle,
		transport: transport,
		region:    Capacity(FamilyType1Topaz),
	}
}

// Family returns FamilyType1Topaz.
func (*Type1Handler) Family() TagFamily {
	return FamilyType1Topaz
}

// ReadPage reads one 8-byte page.
func (t *Type1Handler) ReadPage(ctx context.Context, page int) ([]byte, error) {
	if page < 0 || page >= t.region.TotalUnits {
		return nil, newOpError(FamilyType1Topaz, "read", page, ErrAddressOutOfRange)
	}
	data, err := t.transport.ReadRawUnit(ctx, page)
	if err != nil {
		return nil, newOpError(FamilyType1Topaz, "read", page, err)
	}
	return normalizeUnit(data, t.region.UnitSize), nil
}

// WritePage writes one 8-byte page. Pages below 4 are the read-only
// system area and are rejected before any transport exchange. Short
// data is zero-padded to the page size.
func (t *Type1Handler) WritePage(ctx context.Context, page int, data []byte) error {
	if page < 0 || page >= t.region.TotalUnits {
		return newOpError(FamilyType1Topaz, "write", page, ErrAddressOutOfRange)
	}
	if page < t.region.SystemUnits {
		return newOpError(FamilyType1Topaz, "write", page,
			fmt.Errorf("%w: read-only system area", ErrReadOnlyUnit))
	}
	if len(data) > t.region.UnitSize {
		return newOpError(FamilyType1Topaz, "write", page, ErrAlignment)
	}
	if err := t.transport.WriteRawUnit(ctx, page, normalizeUnit(data, t.region.UnitSize)); err != nil {
		return newOpError(FamilyType1Topaz, "write", page, err)
	}
	return nil
}

// WritePages writes consecutive pages starting at start. Page writes
// are independent: a failure at page N leaves pages before N written.
func (t *Type1Handler) WritePages(ctx context.Context, start int, data []byte) error {
	for offset := 0; offset < len(data); offset += t.region.UnitSize {
		end := min(offset+t.region.UnitSize, len(data))
		if err := t.WritePage(ctx, start+offset/t.region.UnitSize, data[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll returns the full 128-byte memory image with trailing blank
// pages trimmed.
func (t *Type1Handler) ReadAll(ctx context.Context) ([]byte, error) {
	return readImage(ctx, t.region, t.transport.ReadRawUnit)
}

// WriteAll writes a memory image, skipping the system pages while
// consuming their image positions.
func (t *Type1Handler) WriteAll(ctx context.Context, data []byte) (int, error) {
	return writeImage(ctx, FamilyType1Topaz, t.region, data, t.transport.WriteRawUnit)
}
