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

// Type2Handler performs operations on the Type 2 family: MIFARE
// Ultralight and the NTAG21x parts. All share 4-byte pages with the
// first 4 pages holding UID, lock bytes and the capability container;
// the page count comes from the resolved subtype's memory table.
type Type2Handler struct {
	handle    *TagHandle
	transport Transport
	region    MemoryRegion
}

// NewType2Handler creates a handler for an Ultralight or NTAG tag.
func NewType2Handler(handle *TagHandle, transport Transport) *Type2Handler {
	return &Type2Handler{
		handle:    handle,
		transport: transport,
		region:    Capacity(handle.Family),
	}
}

// Family returns the resolved Type 2 subtype.
func (t *Type2Handler) Family() TagFamily {
	return t.handle.Family
}

// ReadPage reads one 4-byte page.
func (t *Type2Handler) ReadPage(ctx context.Context, page int) ([]byte, error) {
	if page < 0 || page >= t.region.TotalUnits {
		return nil, newOpError(t.Family(), "read", page, ErrAddressOutOfRange)
	}
	data, err := t.transport.ReadRawUnit(ctx, page)
	if err != nil {
		return nil, newOpError(t.Family(), "read", page, err)
	}
	return normalizeUnit(data, t.region.UnitSize), nil
}

// WritePage writes one 4-byte page. Pages below 4 and pages at or
// beyond the subtype's maximum are rejected as invalid before any
// transport exchange. Short data is zero-padded to the page size.
func (t *Type2Handler) WritePage(ctx context.Context, page int, data []byte) error {
	if page < t.region.UserStart || page >= t.region.TotalUnits {
		return newOpError(t.Family(), "write", page,
			fmt.Errorf("%w: invalid page", ErrAddressOutOfRange))
	}
	if len(data) > t.region.UnitSize {
		return newOpError(t.Family(), "write", page, ErrAlignment)
	}
	if err := t.transport.WriteRawUnit(ctx, page, normalizeUnit(data, t.region.UnitSize)); err != nil {
		return newOpError(t.Family(), "write", page, err)
	}
	return nil
}

// ReadAll returns the full memory image with trailing blank pages
// trimmed.
func (t *Type2Handler) ReadAll(ctx context.Context) ([]byte, error) {
	return readImage(ctx, t.region, t.transport.ReadRawUnit)
}

// WriteAll writes a memory image, skipping the header pages while
// consuming their image positions and truncating at the subtype's
// capacity.
func (t *Type2Handler) WriteAll(ctx context.Context, data []byte) (int, error) {
	return writeImage(ctx, t.Family(), t.region, data, t.transport.WriteRawUnit)
}

// Format zero-fills every user page.
func (t *Type2Handler) Format(ctx context.Context) error {
	blank := make([]byte, t.region.UnitSize)
	for page := t.region.UserStart; page < t.region.TotalUnits; page++ {
		if err := t.transport.WriteRawUnit(ctx, page, blank); err != nil {
			return newOpError(t.Family(), "format", page, err)
		}
	}
	return nil
}
