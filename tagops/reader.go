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

// ReadAll reads the current tag's full contents after a capability
// check, and emits a history record on success.
func (o *Operations) ReadAll(ctx context.Context) ([]byte, error) {
	if err := o.checkCapability(tagcore.OpRead); err != nil {
		return nil, err
	}

	data, err := o.handler.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	if len(data) == 0 {
		return nil, tagcore.ErrTagEmptyData
	}

	o.emitHistory(ctx, data, map[string]string{
		"operation": "read",
		"uid":       o.handle.UID(),
	})
	return data, nil
}
