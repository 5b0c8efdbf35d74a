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

package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBlocked(t *testing.T) {
	t.Parallel()
	blocklist := []string{"10C4:8A2A", "0403:6001"}

	tests := []struct {
		name   string
		vidpid string
		want   bool
	}{
		{"exact match", "10C4:8A2A", true},
		{"lowercase match", "10c4:8a2a", true},
		{"whitespace trimmed", " 10C4:8A2A ", true},
		{"second entry", "0403:6001", true},
		{"not listed", "1A86:7523", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsBlocked(tt.vidpid, blocklist))
		})
	}
}

func TestIsBlockedEmptyList(t *testing.T) {
	t.Parallel()
	assert.False(t, IsBlocked("10C4:8A2A", nil))
}

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()
	ignores := []string{"/dev/ttyUSB0", "COM3", ""}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"exact match", "/dev/ttyUSB0", true},
		{"unclean path", "/dev/../dev/ttyUSB0", true},
		{"case folded", "com3", true},
		{"different device", "/dev/ttyUSB1", false},
		{"empty path", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPathIgnored(tt.path, ignores))
		})
	}
}

func TestDefaultBlocklistCoversKnownOffenders(t *testing.T) {
	t.Parallel()
	assert.True(t, IsBlocked("10c4:8a2a", DefaultBlocklist()))
}
