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

	tagcore "github.com/nfcforge/go-tagcore"
)

// WriteAll writes a memory image to the current tag after a capability
// check. Data beyond the tag's capacity is truncated by the handler;
// the returned count is what was actually consumed. A history record
// is emitted on success.
func (o *Operations) WriteAll(ctx context.Context, data []byte) (int, error) {
	if err := o.checkCapability(tagcore.OpWrite); err != nil {
		return 0, err
	}

	written, err := o.handler.WriteAll(ctx, data)
	if err != nil {
		return written, fmt.Errorf("write failed: %w", err)
	}

	o.emitHistory(ctx, data[:written], map[string]string{
		"operation": "write",
		"uid":       o.handle.UID(),
	})
	return written, nil
}

// Format erases the current tag's user data after a capability check.
// The handler must support formatting for its family.
func (o *Operations) Format(ctx context.Context) error {
	if err := o.checkCapability(tagcore.OpFormat); err != nil {
		return err
	}

	formatter, ok := o.handler.(tagcore.Formatter)
	if !ok {
		return fmt.Errorf("%w: %s handler has no format support",
			tagcore.ErrCapabilityDenied, o.handle.Family)
	}
	if err := formatter.Format(ctx); err != nil {
		return fmt.Errorf("format failed: %w", err)
	}
	return nil
}
