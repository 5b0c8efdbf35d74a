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

// Package tagcore classifies contactless tags from their discovery
// attributes and performs per-family memory and protocol operations
// over a pluggable reader transport.
package tagcore

import (
	"encoding/hex"
	"strings"
)

// TagFamily identifies a supported tag family. The set is closed: every
// switch over TagFamily in this package handles all values plus
// FamilyUnknown as the explicit fallback.
type TagFamily int

const (
	// FamilyUnknown is the fallback for tags that match no known
	// discovery pattern. All operations on it are denied.
	FamilyUnknown TagFamily = iota
	// FamilyType1Topaz is the Topaz/Jewel family (Type 1).
	FamilyType1Topaz
	// FamilyType2Ultralight is the MIFARE Ultralight family (Type 2)
	// when no NTAG subtype could be established.
	FamilyType2Ultralight
	// FamilyNTAG213 is the NTAG213 subtype of Type 2.
	FamilyNTAG213
	// FamilyNTAG215 is the NTAG215 subtype of Type 2.
	FamilyNTAG215
	// FamilyNTAG216 is the NTAG216 subtype of Type 2.
	FamilyNTAG216
	// FamilyType3FeliCa is the FeliCa family (Type 3).
	FamilyType3FeliCa
	// FamilyType4DESFire is the DESFire family (Type 4).
	FamilyType4DESFire
	// FamilyType5Vicinity is the ISO15693 vicinity family (Type 5).
	FamilyType5Vicinity
	// FamilyClassic1K is MIFARE Classic with 1KB of memory.
	FamilyClassic1K
	// FamilyClassic4K is MIFARE Classic with 4KB of memory.
	FamilyClassic4K
)

// String returns the human-readable family name.
func (f TagFamily) String() string {
	switch f {
	case FamilyType1Topaz:
		return "Topaz"
	case FamilyType2Ultralight:
		return "Ultralight"
	case FamilyNTAG213:
		return "NTAG213"
	case FamilyNTAG215:
		return "NTAG215"
	case FamilyNTAG216:
		return "NTAG216"
	case FamilyType3FeliCa:
		return "FeliCa"
	case FamilyType4DESFire:
		return "DESFire"
	case FamilyType5Vicinity:
		return "Vicinity"
	case FamilyClassic1K:
		return "MIFARE Classic 1K"
	case FamilyClassic4K:
		return "MIFARE Classic 4K"
	case FamilyUnknown:
		return "Unknown"
	default:
		return "Unknown"
	}
}

// IsType2 reports whether the family is Ultralight or one of its NTAG
// subtypes. These share the 4-byte page protocol.
func (f TagFamily) IsType2() bool {
	switch f {
	case FamilyType2Ultralight, FamilyNTAG213, FamilyNTAG215, FamilyNTAG216:
		return true
	case FamilyUnknown, FamilyType1Topaz, FamilyType3FeliCa, FamilyType4DESFire,
		FamilyType5Vicinity, FamilyClassic1K, FamilyClassic4K:
		return false
	default:
		return false
	}
}

// IsClassic reports whether the family is a MIFARE Classic variant.
func (f TagFamily) IsClassic() bool {
	return f == FamilyClassic1K || f == FamilyClassic4K
}

// DiscoveryAttributes holds the raw anticollision results for a tag in
// the field. For ISO14443-A tags ATQA, SAK and UID are set (ATS only
// for ISO-DEP capable tags). For ISO15693 tags only Inventory is set:
// a pure inventory response with no ISO14443-A answer is itself the
// vicinity discovery signal.
type DiscoveryAttributes struct {
	ATQA      []byte
	SAK       byte
	UID       []byte
	ATS       []byte
	Inventory []byte
}

// UIDString returns the UID as an uppercase hex string.
func (a *DiscoveryAttributes) UIDString() string {
	return strings.ToUpper(hex.EncodeToString(a.UID))
}

// Manufacturer returns the tag IC manufacturer derived from the first
// UID byte, or an empty string when unknown.
func (a *DiscoveryAttributes) Manufacturer() string {
	if len(a.UID) == 0 {
		return ""
	}
	switch a.UID[0] {
	case 0x01:
		return "Motorola"
	case 0x02:
		return "STMicroelectronics"
	case 0x04:
		return "NXP Semiconductors"
	case 0x05:
		return "Infineon"
	case 0x07:
		return "Texas Instruments"
	case 0x08:
		return "Fujitsu"
	case 0x16:
		return "EM Microelectronic"
	default:
		return ""
	}
}

// TagHandle represents one classified tag in the field. It binds the
// family to the discovery attributes and carries the authentication
// session shared by all handlers built for this tag.
type TagHandle struct {
	session *AuthSession
	Attrs   DiscoveryAttributes
	Family  TagFamily
}

// NewTagHandle builds a handle for a classified tag.
func NewTagHandle(family TagFamily, attrs DiscoveryAttributes) *TagHandle {
	return &TagHandle{
		Family:  family,
		Attrs:   attrs,
		session: NewAuthSession(),
	}
}

// UID returns the tag UID as an uppercase hex string.
func (h *TagHandle) UID() string {
	return h.Attrs.UIDString()
}

// Session returns the tag's authentication session.
func (h *TagHandle) Session() *AuthSession {
	return h.session
}
