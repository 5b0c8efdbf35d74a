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

package tagcore

import (
	"fmt"
	"strings"
)

// Operation is one of the engine's tag operations, used for capability
// queries before a handler call is attempted.
type Operation int

const (
	// OpRead reads the full tag contents.
	OpRead Operation = iota
	// OpWrite writes data to the tag.
	OpWrite
	// OpFormat erases user data (family-specific semantics).
	OpFormat
	// OpLockBlock permanently locks a block (Type 5 only).
	OpLockBlock
	// OpCreateApplication creates a DESFire application (Type 4 only).
	OpCreateApplication
	// OpDeleteApplication deletes a DESFire application (Type 4 only).
	OpDeleteApplication
)

// String returns the operation name used in capability reasons.
func (o Operation) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpFormat:
		return "format"
	case OpLockBlock:
		return "lock_block"
	case OpCreateApplication:
		return "create_application"
	case OpDeleteApplication:
		return "delete_application"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Capability is the answer to a capability query: whether the family
// supports the operation, with a human-readable justification.
type Capability struct {
	Reason    string
	Supported bool
}

// Per-family supported operation sets. FamilyUnknown is intentionally
// absent: every query against it is denied.
var capabilityMatrix = map[TagFamily][]Operation{
	FamilyType1Topaz:      {OpRead, OpWrite},
	FamilyType2Ultralight: {OpRead, OpWrite, OpFormat},
	FamilyNTAG213:         {OpRead, OpWrite, OpFormat},
	FamilyNTAG215:         {OpRead, OpWrite, OpFormat},
	FamilyNTAG216:         {OpRead, OpWrite, OpFormat},
	FamilyType3FeliCa:     {OpRead, OpWrite},
	FamilyType4DESFire:    {OpRead, OpWrite, OpFormat, OpCreateApplication, OpDeleteApplication},
	FamilyType5Vicinity:   {OpRead, OpWrite, OpFormat, OpLockBlock},
	FamilyClassic1K:       {OpRead, OpWrite, OpFormat},
	FamilyClassic4K:       {OpRead, OpWrite, OpFormat},
}

// Check answers whether a family supports an operation. The query is
// total: every (family, operation) pair yields an answer, and denials
// name the family and its supported set so callers can surface a
// precise message without further lookups.
func Check(family TagFamily, op Operation) Capability {
	supported, ok := capabilityMatrix[family]
	if !ok {
		return Capability{
			Supported: false,
			Reason:    fmt.Sprintf("%s tags support no operations", family),
		}
	}
	for _, s := range supported {
		if s == op {
			return Capability{
				Supported: true,
				Reason:    fmt.Sprintf("%s supported for %s tags", op, family),
			}
		}
	}
	return Capability{
		Supported: false,
		Reason: fmt.Sprintf("%s not supported for %s tags (supported: %s)",
			op, family, opList(supported)),
	}
}

func opList(ops []Operation) string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.String()
	}
	return strings.Join(names, ", ")
}
