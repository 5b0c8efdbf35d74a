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

// Package frame implements the host frame format shared by the serial
// and bus reader transports: preamble, start code, length with
// complement checksum, direction byte, payload, data checksum.
package frame

import "errors"

const (
	// HostToReader is the direction byte on outbound frames.
	HostToReader = 0xD4
	// ReaderToHost is the direction byte on inbound frames.
	ReaderToHost = 0xD5
	// MaxFrameSize bounds a normal (non-extended) frame.
	MaxFrameSize = 288
)

// ACK is the fixed acknowledge frame.
var ACK = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}

var (
	ErrPayloadTooLarge = errors.New("frame payload too large")
	ErrCorrupted       = errors.New("frame corrupted")
	ErrIncomplete      = errors.New("frame incomplete")
)

// Build assembles a host command frame. Extended frames are not
// supported, payloads are limited to 253 bytes.
func Build(cmd byte, args []byte) ([]byte, error) {
	dataLen := 2 + len(args)
	if dataLen > 255 {
		return nil, ErrPayloadTooLarge
	}

	f := make([]byte, 0, 9+len(args))
	f = append(f, 0x00, 0x00, 0xFF, byte(dataLen), ^byte(dataLen)+1, HostToReader, cmd)
	f = append(f, args...)

	sum := byte(HostToReader) + cmd
	for _, b := range args {
		sum += b
	}
	f = append(f, ^sum+1, 0x00)
	return f, nil
}

// Parse decodes a response frame from buf[:total] and returns the
// payload after the direction byte. When the buffer holds the start of
// a valid frame but not all of it, Parse returns ErrIncomplete and the
// absolute buffer index the frame runs to, so stream transports can
// read the remainder.
func Parse(buf []byte, total int) (data []byte, need int, err error) {
	off := -1
	for i := 0; i < total; i++ {
		if buf[i] == 0xFF {
			off = i + 1
			break
		}
	}
	if off < 0 || total-off < 2 {
		return nil, 0, ErrCorrupted
	}

	frameLen := int(buf[off])
	if byte(frameLen)+buf[off+1] != 0 {
		return nil, 0, ErrCorrupted
	}
	if frameLen < 1 {
		return nil, 0, ErrCorrupted
	}

	end := off + 2 + frameLen + 1
	if end > len(buf) {
		return nil, 0, ErrPayloadTooLarge
	}
	if end > total {
		return nil, end, ErrIncomplete
	}

	var sum byte
	for _, b := range buf[off+2 : end] {
		sum += b
	}
	if sum != 0 || buf[off+2] != ReaderToHost {
		return nil, 0, ErrCorrupted
	}

	out := make([]byte, frameLen-1)
	copy(out, buf[off+3:off+2+frameLen])
	return out, 0, nil
}
