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

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nfcforge/go-tagcore/tagops"
)

// fileHistory persists operation records as JSON files under a
// directory. Records with identical contents share a TagID and
// overwrite each other, which deduplicates repeated scans.
type fileHistory struct {
	dir string
}

func newFileHistory(dir string) (*fileHistory, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &fileHistory{dir: dir}, nil
}

type historyFile struct {
	SavedAt  time.Time         `json:"saved_at"`
	Metadata map[string]string `json:"metadata,omitempty"`
	TagID    string            `json:"tag_id"`
	Family   string            `json:"family"`
	RawData  string            `json:"raw_data"`
}

// SaveTag implements tagops.HistoryStore.
func (f *fileHistory) SaveTag(_ context.Context, record *tagops.Record) error {
	entry := historyFile{
		SavedAt:  time.Now().UTC(),
		Metadata: record.Metadata,
		TagID:    record.TagID,
		Family:   record.Family.String(),
		RawData:  hex.EncodeToString(record.RawData),
	}
	data, err := json.MarshalIndent(&entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}

	name := filepath.Join(f.dir, record.TagID[:16]+".json")
	if err := os.WriteFile(name, data, 0o600); err != nil {
		return fmt.Errorf("write history record: %w", err)
	}
	return nil
}
