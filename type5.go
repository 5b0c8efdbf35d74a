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
	"errors"
	"fmt"
)

// ISO15693 command codes.
const (
	vicinityCmdReadBlock     = 0x20
	vicinityCmdWriteBlock    = 0x21
	vicinityCmdLockBlock     = 0x22
	vicinityCmdGetSystemInfo = 0x2B
)

// Request flag: high data rate, non-addressed mode (one tag in field).
const vicinityFlagHighRate = 0x02

// Error flag bit in the response flags byte.
const vicinityFlagError = 0x01

const vicinityDefaultBlockSize = 4

// SystemInfo is the parsed Get System Information answer of an
// ISO15693 tag.
type SystemInfo struct {
	UID        []byte
	BlockCount int
	BlockSize  int
	DSFID      byte
	AFI        byte
}

// Type5Handler performs operations on ISO15693 vicinity tags: linear
// 4-byte blocks with per-block permanent locking. The block count is
// not in the static memory table; it is discovered from the tag's
// system information answer and cached for the handler's lifetime.
type Type5Handler struct {
	handle    *TagHandle
	transport Transport
	info      *SystemInfo
}

// NewType5Handler creates a handler for a vicinity tag.
func NewType5Handler(handle *TagHandle, transport Transport) *Type5Handler {
	return &Type5Handler{handle: handle, transport: transport}
}

// Family returns FamilyType5Vicinity.
func (*Type5Handler) Family() TagFamily {
	return FamilyType5Vicinity
}

// SystemInfo queries and caches the tag's memory geometry.
func (t *Type5Handler) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	if t.info != nil {
		return t.info, nil
	}
	resp, err := t.transceive(ctx, "system info", -1, []byte{vicinityFlagHighRate, vicinityCmdGetSystemInfo})
	if err != nil {
		return nil, err
	}
	// Answer: flags, info flags, UID (8, LSB first), then optional
	// fields gated by the info flags: DSFID, AFI, memory size (2),
	// IC reference.
	if len(resp) < 10 {
		return nil, newOpError(FamilyType5Vicinity, "system info", -1,
			fmt.Errorf("%w: system info %d bytes", ErrInvalidResponse, len(resp)))
	}
	info := &SystemInfo{BlockSize: vicinityDefaultBlockSize}
	infoFlags := resp[1]
	info.UID = make([]byte, 8)
	copy(info.UID, resp[2:10])

	pos := 10
	if infoFlags&0x01 != 0 { // DSFID present
		if len(resp) <= pos {
			return nil, newOpError(FamilyType5Vicinity, "system info", -1, ErrInvalidResponse)
		}
		info.DSFID = resp[pos]
		pos++
	}
	if infoFlags&0x02 != 0 { // AFI present
		if len(resp) <= pos {
			return nil, newOpError(FamilyType5Vicinity, "system info", -1, ErrInvalidResponse)
		}
		info.AFI = resp[pos]
		pos++
	}
	if infoFlags&0x04 != 0 { // memory size present
		if len(resp) < pos+2 {
			return nil, newOpError(FamilyType5Vicinity, "system info", -1, ErrInvalidResponse)
		}
		info.BlockCount = int(resp[pos]) + 1
		info.BlockSize = int(resp[pos+1]&0x1F) + 1
	}
	t.info = info
	return info, nil
}

// transceive sends one frame and strips the response flags byte,
// mapping the tag's error flag to an operation error.
func (t *Type5Handler) transceive(ctx context.Context, op string, unit int, frame []byte) ([]byte, error) {
	resp, err := t.transport.Transceive(ctx, frame)
	if err != nil {
		return nil, newOpError(FamilyType5Vicinity, op, unit, err)
	}
	if len(resp) < 1 {
		return nil, newOpError(FamilyType5Vicinity, op, unit, ErrInvalidResponse)
	}
	if resp[0]&vicinityFlagError != 0 {
		code := byte(0)
		if len(resp) > 1 {
			code = resp[1]
		}
		return nil, newOpError(FamilyType5Vicinity, op, unit, vicinityError(code))
	}
	return resp, nil
}

// vicinityError maps ISO15693 error codes to package errors.
func vicinityError(code byte) error {
	switch code {
	case 0x10:
		return fmt.Errorf("%w (code 0x10)", ErrAddressOutOfRange)
	case 0x11, 0x12:
		return fmt.Errorf("%w (code 0x%02X)", ErrBlockLocked, code)
	case 0x13:
		return fmt.Errorf("%w (code 0x13)", ErrTagWriteFailed)
	default:
		return fmt.Errorf("%w: tag error 0x%02X", ErrTagWriteFailed, code)
	}
}

// ReadBlock reads one block.
func (t *Type5Handler) ReadBlock(ctx context.Context, block int) ([]byte, error) {
	if block < 0 || block > 0xFF {
		return nil, newOpError(FamilyType5Vicinity, "read", block, ErrAddressOutOfRange)
	}
	resp, err := t.transceive(ctx, "read", block,
		[]byte{vicinityFlagHighRate, vicinityCmdReadBlock, byte(block)})
	if err != nil {
		return nil, err
	}
	return resp[1:], nil
}

// WriteBlock writes one block. The payload must be exactly the tag's
// block size; locked blocks answer an error status.
func (t *Type5Handler) WriteBlock(ctx context.Context, block int, data []byte) error {
	info, err := t.SystemInfo(ctx)
	if err != nil {
		return err
	}
	if block < 0 || block > 0xFF || (info.BlockCount > 0 && block >= info.BlockCount) {
		return newOpError(FamilyType5Vicinity, "write", block, ErrAddressOutOfRange)
	}
	if len(data) != info.BlockSize {
		return newOpError(FamilyType5Vicinity, "write", block,
			fmt.Errorf("%w: block payload must be %d bytes, got %d",
				ErrAlignment, info.BlockSize, len(data)))
	}
	frame := []byte{vicinityFlagHighRate, vicinityCmdWriteBlock, byte(block)}
	frame = append(frame, data...)
	_, err = t.transceive(ctx, "write", block, frame)
	return err
}

// WriteBlocks writes consecutive blocks starting at start. The payload
// must be block aligned: non-aligned lengths are rejected outright
// before any transport exchange, with no padding.
func (t *Type5Handler) WriteBlocks(ctx context.Context, start int, data []byte) (int, error) {
	if len(data)%vicinityDefaultBlockSize != 0 {
		return 0, newOpError(FamilyType5Vicinity, "write", start,
			fmt.Errorf("%w: %d bytes is not a multiple of %d",
				ErrAlignment, len(data), vicinityDefaultBlockSize))
	}
	info, err := t.SystemInfo(ctx)
	if err != nil {
		return 0, err
	}
	if start < 0 || (info.BlockCount > 0 && start >= info.BlockCount) {
		return 0, newOpError(FamilyType5Vicinity, "write", start, ErrAddressOutOfRange)
	}

	written := 0
	for offset := 0; offset < len(data); offset += info.BlockSize {
		block := start + offset/info.BlockSize
		if info.BlockCount > 0 && block >= info.BlockCount {
			Debugf("Vicinity write: truncating at block %d of %d", block, info.BlockCount)
			break
		}
		if err := t.WriteBlock(ctx, block, data[offset:offset+info.BlockSize]); err != nil {
			return written, err
		}
		written += info.BlockSize
	}
	return written, nil
}

// LockBlock permanently locks a block. The lock is irreversible:
// subsequent writes to the block fail.
func (t *Type5Handler) LockBlock(ctx context.Context, block int) error {
	if block < 0 || block > 0xFF {
		return newOpError(FamilyType5Vicinity, "lock", block, ErrAddressOutOfRange)
	}
	_, err := t.transceive(ctx, "lock", block,
		[]byte{vicinityFlagHighRate, vicinityCmdLockBlock, byte(block)})
	return err
}

// ReadAll reads every block reported by the tag's system information,
// trimming trailing blank blocks.
func (t *Type5Handler) ReadAll(ctx context.Context) ([]byte, error) {
	info, err := t.SystemInfo(ctx)
	if err != nil {
		return nil, err
	}
	if info.BlockCount == 0 {
		return nil, newOpError(FamilyType5Vicinity, "read", -1,
			fmt.Errorf("%w: tag reports no memory size", ErrInvalidResponse))
	}
	region := MemoryRegion{UnitSize: info.BlockSize, TotalUnits: info.BlockCount}
	return readImage(ctx, region, func(ctx context.Context, unit int) ([]byte, error) {
		return t.ReadBlock(ctx, unit)
	})
}

// WriteAll writes a linear image from block 0, truncating at the
// tag's capacity. The image must be block aligned, matching the
// family's no-padding write rule.
func (t *Type5Handler) WriteAll(ctx context.Context, data []byte) (int, error) {
	if len(data)%vicinityDefaultBlockSize != 0 {
		return 0, newOpError(FamilyType5Vicinity, "write", -1,
			fmt.Errorf("%w: %d bytes is not a multiple of %d",
				ErrAlignment, len(data), vicinityDefaultBlockSize))
	}
	return t.WriteBlocks(ctx, 0, data)
}

// Format zero-fills every block, skipping locked blocks with a
// warning.
func (t *Type5Handler) Format(ctx context.Context) error {
	info, err := t.SystemInfo(ctx)
	if err != nil {
		return err
	}
	blank := make([]byte, info.BlockSize)
	for block := 0; block < info.BlockCount; block++ {
		if err := t.WriteBlock(ctx, block, blank); err != nil {
			if isBlockLocked(err) {
				Debugf("Vicinity format: block %d locked, skipping", block)
				continue
			}
			return err
		}
	}
	return nil
}

func isBlockLocked(err error) bool {
	return errors.Is(err, ErrBlockLocked)
}
