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

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Parallel()
	// SAM configuration command, checksummed by hand.
	f, err := Build(0x14, []byte{0x01, 0x14, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x00, 0x00, 0xFF, // preamble, start code
		0x05, 0xFB, // length, length checksum
		0xD4, 0x14, 0x01, 0x14, 0x00, // direction, command, args
		0x03, 0x00, // data checksum, postamble
	}, f)
}

func TestBuildNoArgs(t *testing.T) {
	t.Parallel()
	f, err := Build(0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00}, f)
}

func TestBuildPayloadTooLarge(t *testing.T) {
	t.Parallel()
	_, err := Build(0x40, make([]byte, 254))
	require.ErrorIs(t, err, ErrPayloadTooLarge)

	// 253 args still fit a normal frame.
	_, err = Build(0x40, make([]byte, 253))
	require.NoError(t, err)
}

func TestParse(t *testing.T) {
	t.Parallel()
	// GetFirmwareVersion-style answer: D5 15 with an empty body byte.
	buf := []byte{0x00, 0x00, 0xFF, 0x03, 0xFD, 0xD5, 0x15, 0x00, 0x16, 0x00}
	data, need, err := Parse(buf, len(buf))
	require.NoError(t, err)
	assert.Zero(t, need)
	assert.Equal(t, []byte{0x15, 0x00}, data)
}

func TestParseIncomplete(t *testing.T) {
	t.Parallel()
	full := []byte{0x00, 0x00, 0xFF, 0x03, 0xFD, 0xD5, 0x15, 0x00, 0x16, 0x00}
	buf := make([]byte, 16)
	copy(buf, full[:7])

	_, need, err := Parse(buf, 7)
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 9, need, "need is the absolute index the frame runs to")

	// Completing the buffer up to need parses cleanly.
	copy(buf, full)
	data, _, err := Parse(buf, len(full))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x15, 0x00}, data)
}

func TestParseCorrupted(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		buf  []byte
	}{
		{"no start code", []byte{0x00, 0x01, 0x02, 0x03}},
		{"bad length checksum", []byte{0x00, 0x00, 0xFF, 0x03, 0xFC, 0xD5, 0x15, 0x00, 0x16, 0x00}},
		{"bad data checksum", []byte{0x00, 0x00, 0xFF, 0x03, 0xFD, 0xD5, 0x15, 0x00, 0x17, 0x00}},
		{"host direction byte", []byte{0x00, 0x00, 0xFF, 0x05, 0xFB, 0xD4, 0x14, 0x01, 0x14, 0x00, 0x03, 0x00}},
		{"ack frame", ACK},
		{"truncated after start", []byte{0x00, 0x00, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := Parse(tt.buf, len(tt.buf))
			require.ErrorIs(t, err, ErrCorrupted)
		})
	}
}
