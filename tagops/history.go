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
	"context"
	"crypto/sha256"
	"encoding/hex"

	tagcore "github.com/nfcforge/go-tagcore"
)

// Record is the payload handed to the history store after a successful
// operation. TagID is the hex SHA-256 of RawData so identical contents
// deduplicate regardless of which physical tag carried them.
type Record struct {
	Metadata map[string]string
	TagID    string
	RawData  []byte
	Family   tagcore.TagFamily
}

// HistoryStore persists operation records. Implementations own
// versioning and retention policy; this package only supplies payloads.
type HistoryStore interface {
	SaveTag(ctx context.Context, record *Record) error
}

// NewRecord builds a record for raw tag contents.
func NewRecord(family tagcore.TagFamily, raw []byte, metadata map[string]string) *Record {
	sum := sha256.Sum256(raw)
	data := make([]byte, len(raw))
	copy(data, raw)
	return &Record{
		TagID:    hex.EncodeToString(sum[:]),
		Family:   family,
		RawData:  data,
		Metadata: metadata,
	}
}

// emitHistory saves a record when a store is attached. Store failures
// never fail the operation that produced the record; they are logged
// and dropped.
func (o *Operations) emitHistory(ctx context.Context, raw []byte, metadata map[string]string) {
	if o.history == nil || o.handle == nil {
		return
	}
	record := NewRecord(o.handle.Family, raw, metadata)
	if err := o.history.SaveTag(ctx, record); err != nil {
		tagcore.Debugf("history store rejected record %s: %v", record.TagID, err)
	}
}
