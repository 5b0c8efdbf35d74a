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

// MIFARE Classic command codes.
const (
	classicCmdAuthA = 0x60
	classicCmdAuthB = 0x61
	classicCmdRead  = 0x30
	classicCmdWrite = 0xA0
)

const (
	classicBlockSize   = 16
	classicSectorSize  = 4 // blocks per sector (uniform approximation)
	classicKeyLength   = 6
	classicUIDAuthSize = 4 // auth frames carry the 4-byte NUID
)

// KeyType selects which MIFARE key a sector authentication uses.
type KeyType byte

const (
	// KeyA authenticates with key A.
	KeyA KeyType = classicCmdAuthA
	// KeyB authenticates with key B.
	KeyB KeyType = classicCmdAuthB
)

// DefaultClassicKey is the factory default key, six 0xFF bytes.
var DefaultClassicKey = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ClassicHandler performs operations on MIFARE Classic tags. Every
// sector is guarded by its own keys: a successful authentication
// unlocks exactly one sector, and moving to another sector passes
// through Unauthenticated again. Sector trailers (block index %4 == 3)
// hold the keys and access bits and are never written as data; block 0
// carries manufacturer data and is skipped by image writes and
// formatting.
type ClassicHandler struct {
	handle    *TagHandle
	transport Transport
	region    MemoryRegion
}

// NewClassicHandler creates a handler for a Classic 1K or 4K tag.
func NewClassicHandler(handle *TagHandle, transport Transport) *ClassicHandler {
	return &ClassicHandler{
		handle:    handle,
		transport: transport,
		region:    Capacity(handle.Family),
	}
}

// Family returns the Classic size variant.
func (c *ClassicHandler) Family() TagFamily {
	return c.handle.Family
}

// Authenticate runs a key check for the sector containing block. On
// success the session is granted for that sector; on failure the
// session resets and the tag must be re-selected by the reader before
// another attempt.
func (c *ClassicHandler) Authenticate(ctx context.Context, block int, keyType KeyType, key []byte) error {
	if block < 0 || block >= c.region.TotalUnits {
		return newOpError(c.Family(), "authenticate", block, ErrAddressOutOfRange)
	}
	if len(key) != classicKeyLength {
		return newOpError(c.Family(), "authenticate", block,
			fmt.Errorf("%w: key must be %d bytes, got %d", ErrAuthFailed, classicKeyLength, len(key)))
	}

	frame := make([]byte, 0, 2+classicKeyLength+classicUIDAuthSize)
	frame = append(frame, byte(keyType), byte(block))
	frame = append(frame, key...)
	frame = append(frame, nuid(c.handle.Attrs.UID)...)

	resp, err := c.transport.Transceive(ctx, frame)
	if err != nil {
		c.handle.Session().Reset()
		return newOpError(c.Family(), "authenticate", block, err)
	}
	if len(resp) < 1 || resp[0] != 0x00 {
		c.handle.Session().Reset()
		return newOpError(c.Family(), "authenticate", block, ErrAuthFailed)
	}

	c.handle.Session().Grant(SectorScope(block / classicSectorSize))
	return nil
}

// nuid returns the 4-byte NUID used in authentication frames. 7-byte
// UID cards authenticate with the last 4 bytes.
func nuid(uid []byte) []byte {
	if len(uid) <= classicUIDAuthSize {
		out := make([]byte, classicUIDAuthSize)
		copy(out, uid)
		return out
	}
	return uid[len(uid)-classicUIDAuthSize:]
}

// ReadBlock reads one 16-byte block. The block's sector must be
// authenticated.
func (c *ClassicHandler) ReadBlock(ctx context.Context, block int) ([]byte, error) {
	if block < 0 || block >= c.region.TotalUnits {
		return nil, newOpError(c.Family(), "read", block, ErrAddressOutOfRange)
	}
	if !c.handle.Session().Granted(SectorScope(block / classicSectorSize)) {
		return nil, newOpError(c.Family(), "read", block, ErrAuthRequired)
	}
	resp, err := c.transport.Transceive(ctx, []byte{classicCmdRead, byte(block)})
	if err != nil {
		return nil, newOpError(c.Family(), "read", block, err)
	}
	if len(resp) < classicBlockSize {
		return nil, newOpError(c.Family(), "read", block,
			fmt.Errorf("%w: block answer %d bytes", ErrInvalidResponse, len(resp)))
	}
	data := make([]byte, classicBlockSize)
	copy(data, resp[:classicBlockSize])
	return data, nil
}

// WriteBlock writes one 16-byte block. Sector trailers are forbidden
// even with a valid authentication, protecting the access bits from
// accidental corruption; block 0 is the read-only manufacturer block.
func (c *ClassicHandler) WriteBlock(ctx context.Context, block int, data []byte) error {
	if block < 0 || block >= c.region.TotalUnits {
		return newOpError(c.Family(), "write", block, ErrAddressOutOfRange)
	}
	if block%classicSectorSize == classicSectorSize-1 {
		return newOpError(c.Family(), "write", block,
			fmt.Errorf("%w: sector trailer", ErrAddressOutOfRange))
	}
	if block == 0 {
		return newOpError(c.Family(), "write", block,
			fmt.Errorf("%w: manufacturer block", ErrReadOnlyUnit))
	}
	if len(data) != classicBlockSize {
		return newOpError(c.Family(), "write", block,
			fmt.Errorf("%w: block payload must be %d bytes, got %d",
				ErrAlignment, classicBlockSize, len(data)))
	}
	if !c.handle.Session().Granted(SectorScope(block / classicSectorSize)) {
		return newOpError(c.Family(), "write", block, ErrAuthRequired)
	}

	frame := make([]byte, 0, 2+classicBlockSize)
	frame = append(frame, classicCmdWrite, byte(block))
	frame = append(frame, data...)
	resp, err := c.transport.Transceive(ctx, frame)
	if err != nil {
		return newOpError(c.Family(), "write", block, err)
	}
	if len(resp) < 1 || resp[0] != 0x00 {
		return newOpError(c.Family(), "write", block, ErrTagWriteFailed)
	}
	return nil
}

// ensureSector authenticates the sector containing block with the
// factory key when the session does not already cover it. Key A is
// tried first, then key B.
func (c *ClassicHandler) ensureSector(ctx context.Context, block int) error {
	scope := SectorScope(block / classicSectorSize)
	if c.handle.Session().Granted(scope) {
		return nil
	}
	c.handle.Session().Reset()
	if err := c.Authenticate(ctx, block, KeyA, DefaultClassicKey); err == nil {
		return nil
	}
	return c.Authenticate(ctx, block, KeyB, DefaultClassicKey)
}

// ReadAll returns the full block image including trailers. Sectors
// that refuse the factory key are filled with blank blocks and a
// warning so the image keeps its positional layout.
func (c *ClassicHandler) ReadAll(ctx context.Context) ([]byte, error) {
	image := make([]byte, 0, c.region.TotalBytes())
	for block := 0; block < c.region.TotalUnits; block++ {
		if err := c.ensureSector(ctx, block); err != nil {
			Debugf("%s read: sector %d refuses factory key, blanking",
				c.Family(), block/classicSectorSize)
			blank := make([]byte, classicBlockSize*classicSectorSize)
			image = append(image, blank...)
			block += classicSectorSize - 1
			continue
		}
		data, err := c.ReadBlock(ctx, block)
		if err != nil {
			return nil, err
		}
		image = append(image, data...)
	}
	return trimBlankUnits(image, c.region.UnitSize), nil
}

// WriteAll writes a block image positionally, skipping block 0 and
// every sector trailer while consuming their image positions. Sectors
// that refuse the factory key are skipped whole, with their image
// bytes consumed, so later sectors stay aligned.
func (c *ClassicHandler) WriteAll(ctx context.Context, data []byte) (int, error) {
	if c.region.TotalBytes() > 0 && len(data) > c.region.TotalBytes() {
		Debugf("%s write: %d bytes exceeds %d byte capacity, truncating",
			c.Family(), len(data), c.region.TotalBytes())
	}

	consumed := 0
	block := 0
	for block < c.region.TotalUnits && consumed < len(data) {
		step := min(c.region.UnitSize, len(data)-consumed)

		if !c.region.Writable(block) {
			consumed += step
			block++
			continue
		}
		if err := c.ensureSector(ctx, block); err != nil {
			sector := block / classicSectorSize
			Debugf("%s write: sector %d refuses factory key, skipping", c.Family(), sector)
			for block < c.region.TotalUnits && block/classicSectorSize == sector && consumed < len(data) {
				consumed += min(c.region.UnitSize, len(data)-consumed)
				block++
			}
			continue
		}
		chunk := normalizeUnit(data[consumed:consumed+step], c.region.UnitSize)
		if err := c.WriteBlock(ctx, block, chunk); err != nil {
			return consumed, err
		}
		consumed += step
		block++
	}
	return consumed, nil
}

// Format zero-fills every data block, never touching block 0 or the
// sector trailers. Sectors that refuse the factory key are skipped
// with a warning.
func (c *ClassicHandler) Format(ctx context.Context) error {
	blank := make([]byte, classicBlockSize)
	for block := 1; block < c.region.TotalUnits; block++ {
		if !c.region.Writable(block) {
			continue
		}
		if err := c.ensureSector(ctx, block); err != nil {
			Debugf("%s format: sector %d refuses factory key, skipping",
				c.Family(), block/classicSectorSize)
			block += classicSectorSize - 1 - block%classicSectorSize
			continue
		}
		if err := c.WriteBlock(ctx, block, blank); err != nil {
			return err
		}
	}
	return nil
}
