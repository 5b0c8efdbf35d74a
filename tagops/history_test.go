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

package tagops

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tagcore "github.com/nfcforge/go-tagcore"
	fixtures "github.com/nfcforge/go-tagcore/internal/testing"
)

func TestNewRecordTagID(t *testing.T) {
	t.Parallel()
	raw := fixtures.BuildPattern(32)
	record := NewRecord(tagcore.FamilyNTAG213, raw, nil)

	sum := sha256.Sum256(raw)
	assert.Equal(t, hex.EncodeToString(sum[:]), record.TagID)

	// Identical contents yield identical IDs regardless of family.
	other := NewRecord(tagcore.FamilyClassic1K, fixtures.BuildPattern(32), nil)
	assert.Equal(t, record.TagID, other.TagID)

	different := NewRecord(tagcore.FamilyNTAG213, fixtures.BuildPattern(33), nil)
	assert.NotEqual(t, record.TagID, different.TagID)
}

func TestNewRecordCopiesRawData(t *testing.T) {
	t.Parallel()
	raw := fixtures.BuildPattern(16)
	record := NewRecord(tagcore.FamilyNTAG213, raw, map[string]string{"operation": "read"})

	raw[0] = 0xFF
	require.Equal(t, fixtures.BuildPattern(16), record.RawData,
		"mutating the input must not change the stored record")
	assert.Equal(t, "read", record.Metadata["operation"])
}
