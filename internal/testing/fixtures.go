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

// Package testing provides raw byte fixtures shared by tests across
// the module. It deliberately imports nothing from the parent package
// so both in-package and external tests can use it.
package testing

// Well-known test UIDs.
var (
	// NTAGUID carries the NXP NTAG prefix in its first two bytes.
	NTAGUID = []byte{0x04, 0x04, 0xA3, 0x5C, 0x12, 0x7B, 0x81}
	// UltralightUID answers Type 2 discovery without the NTAG prefix.
	UltralightUID = []byte{0x04, 0x61, 0x3B, 0x9A, 0x52, 0x80, 0x4D}
	// ClassicUID is a 4-byte NUID.
	ClassicUID = []byte{0xDE, 0xAD, 0xBE, 0xEF}
	// TopazUID is a Topaz/Jewel serial.
	TopazUID = []byte{0x01, 0x02, 0x03, 0x04}
	// FeliCaIDm is an 8-byte manufacture ID.
	FeliCaIDm = []byte{0x01, 0x27, 0x00, 0x5A, 0x3F, 0x11, 0xC2, 0x9E}
	// DESFireUID is a 7-byte DESFire serial.
	DESFireUID = []byte{0x04, 0x8C, 0x6E, 0xBA, 0x21, 0x55, 0x80}
	// VicinityUID is an 8-byte ISO15693 identifier.
	VicinityUID = []byte{0xE0, 0x04, 0x01, 0x50, 0x33, 0x07, 0x1F, 0x88}
)

// BuildVersionResponse creates a GET_VERSION answer with the given
// storage size byte.
func BuildVersionResponse(storage byte) []byte {
	return []byte{0x00, 0x04, 0x04, 0x02, 0x01, 0x00, storage, 0x03}
}

// BuildPattern fills n bytes with a deterministic non-zero pattern,
// useful for round-trip and clone assertions.
func BuildPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i%255) + 1
	}
	return data
}

// BuildInventoryResponse creates an ISO15693 inventory answer for a
// UID: flags, DSFID, then the 8 UID bytes.
func BuildInventoryResponse(uid []byte) []byte {
	resp := []byte{0x00, 0x00}
	return append(resp, uid...)
}
