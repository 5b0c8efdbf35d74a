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
	"fmt"
	"sync/atomic"

	tagcore "github.com/nfcforge/go-tagcore"
)

// CloneResult reports the outcome of a clone. BytesCopied is the
// count actually written to the target, which is smaller than the
// source image when the target has less capacity; that truncation is
// expected and reported, not an error.
type CloneResult struct {
	Message     string
	BytesCopied int
	Success     bool
}

// Cloner copies full contents from one tag to another. A cooperative
// cancel flag is checked between the clone steps; in-flight unit
// writes always complete since the unit is the minimum atomic step.
type Cloner struct {
	history HistoryStore
	running atomic.Bool
}

// NewCloner creates a cloner. history may be nil.
func NewCloner(history HistoryStore) *Cloner {
	c := &Cloner{history: history}
	c.running.Store(true)
	return c
}

// Cancel cooperatively stops a running clone before its next step.
func (c *Cloner) Cancel() {
	c.running.Store(false)
}

func (c *Cloner) cancelled() bool {
	return !c.running.Load()
}

func failure(format string, args ...any) CloneResult {
	return CloneResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Clone copies the source tag's full image to the target tag. Source
// and target may be different families: the copy is positional, each
// family's own capability and capacity rules apply, and a family
// mismatch is reported in the message as a soft note rather than
// refused.
func (c *Cloner) Clone(ctx context.Context, source, target *Operations) CloneResult {
	srcHandle, tgtHandle := source.Handle(), target.Handle()
	if srcHandle == nil || tgtHandle == nil {
		return failure("clone requires a detected source and target tag")
	}

	if answer := tagcore.Check(srcHandle.Family, tagcore.OpRead); !answer.Supported {
		return failure("cannot clone: %s", answer.Reason)
	}
	if answer := tagcore.Check(tgtHandle.Family, tagcore.OpWrite); !answer.Supported {
		return failure("cannot clone: %s", answer.Reason)
	}
	if c.cancelled() {
		return failure("clone cancelled")
	}

	data, err := source.ReadAll(ctx)
	if err != nil || len(data) == 0 {
		return failure("failed to read source tag")
	}
	if c.cancelled() {
		return failure("clone cancelled")
	}

	written, err := target.WriteAll(ctx, data)
	if err != nil {
		return failure("failed to write target tag: %v", err)
	}

	message := fmt.Sprintf("cloned %d of %d bytes from %s to %s",
		written, len(data), srcHandle.Family, tgtHandle.Family)
	if srcHandle.Family != tgtHandle.Family {
		message += " (family mismatch: verify target behavior)"
	}

	c.emitCloneRecord(ctx, tgtHandle, data[:written], srcHandle, written)
	return CloneResult{Success: true, BytesCopied: written, Message: message}
}

func (c *Cloner) emitCloneRecord(
	ctx context.Context, target *tagcore.TagHandle, raw []byte,
	source *tagcore.TagHandle, written int,
) {
	if c.history == nil {
		return
	}
	record := NewRecord(target.Family, raw, map[string]string{
		"operation":  "clone",
		"source_uid": source.UID(),
		"target_uid": target.UID(),
		"bytes":      fmt.Sprintf("%d", written),
	})
	if err := c.history.SaveTag(ctx, record); err != nil {
		tagcore.Debugf("history store rejected clone record %s: %v", record.TagID, err)
	}
}
