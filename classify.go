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
	"bytes"
	"context"
	"fmt"
)

// ISO14443-A anticollision answers for the families this package
// recognizes. ATQA is two bytes as transmitted (MSB first).
var (
	atqaTopaz    = []byte{0x00, 0x04}
	atqaType2    = []byte{0x00, 0x44}
	atqaFeliCa   = []byte{0x00, 0x03}
	atqaClassic  = []byte{0x00, 0x04}
	ntagUIDStart = []byte{0x04, 0x04}
)

const (
	sakTopaz   = 0x00
	sakType2   = 0x00
	sakFeliCa  = 0x01
	sakDESFire = 0x20
)

// SAK values that indicate a MIFARE Classic variant. 0x18 and 0x38
// answer for the 4K parts.
var sakClassic = map[byte]TagFamily{
	0x08: FamilyClassic1K,
	0x18: FamilyClassic4K,
	0x28: FamilyClassic1K,
	0x38: FamilyClassic4K,
}

// GET_VERSION command byte for Type 2 tags (NTAG21x and EV1 parts).
const cmdGetVersion = 0x60

// Storage size bytes reported by GET_VERSION for the NTAG21x subtypes.
const (
	versionStorageNTAG216 = 0x0F
	versionStorageNTAG215 = 0x11
)

// VersionInfo is the parsed GET_VERSION answer from a Type 2 tag. Only
// the storage size byte participates in classification; the rest is
// kept for diagnostics.
type VersionInfo struct {
	Vendor      byte
	ProductType byte
	StorageSize byte
	Protocol    byte
	Raw         []byte
}

// ProbeVersion issues a GET_VERSION exchange over the transport and
// parses the 8-byte answer. Tags that do not implement the command
// return a short or error answer; that is reported as an error and
// classification falls back to plain Ultralight.
func ProbeVersion(ctx context.Context, t Transport) (*VersionInfo, error) {
	resp, err := t.Transceive(ctx, []byte{cmdGetVersion})
	if err != nil {
		return nil, fmt.Errorf("version probe: %w", err)
	}
	if len(resp) < 8 {
		return nil, fmt.Errorf("%w: version answer too short (%d bytes)", ErrInvalidResponse, len(resp))
	}
	return &VersionInfo{
		Vendor:      resp[1],
		ProductType: resp[2],
		StorageSize: resp[6],
		Protocol:    resp[7],
		Raw:         resp[:8],
	}, nil
}

// Classify maps discovery attributes to a tag family. It is a pure,
// total function: every input yields a family, with FamilyUnknown as
// the explicit fallback — ambiguous attributes never produce an error.
//
// version carries the GET_VERSION answer for provisional Type 2 tags;
// pass nil when the probe was unavailable or failed, which resolves
// the tag to plain Ultralight. Rules are checked in priority order and
// the first match wins.
func Classify(attrs DiscoveryAttributes, version *VersionInfo) TagFamily {
	switch {
	case bytes.Equal(attrs.ATQA, atqaTopaz) && attrs.SAK == sakTopaz:
		return FamilyType1Topaz

	case bytes.Equal(attrs.ATQA, atqaType2) && attrs.SAK == sakType2:
		return classifyType2(attrs, version)

	case bytes.Equal(attrs.ATQA, atqaFeliCa) && attrs.SAK == sakFeliCa:
		return FamilyType3FeliCa

	case attrs.SAK == sakDESFire:
		// DESFire answers SAK 0x20 regardless of ATQA variant.
		return FamilyType4DESFire

	case bytes.Equal(attrs.ATQA, atqaClassic):
		if family, ok := sakClassic[attrs.SAK]; ok {
			return family
		}
		return FamilyUnknown

	case len(attrs.ATQA) == 0 && len(attrs.Inventory) > 0:
		// No ISO14443-A answer at all: a pure ISO15693 inventory
		// response is the vicinity signature.
		return FamilyType5Vicinity

	default:
		return FamilyUnknown
	}
}

// Capability container layout on Type 2 tags: page 3 holds
// [magic 0xE1] [version] [size] [access]. The size field identifies the
// NTAG21x part when GET_VERSION is unavailable.
const (
	ccPage        = 3
	ccMagic       = 0xE1
	ccSizeNTAG213 = 0x12
	ccSizeNTAG215 = 0x3E
	ccSizeNTAG216 = 0x6D
)

// DetectNTAGFamily resolves an NTAG subtype from the capability
// container when GET_VERSION fails; clone parts and PC/SC readers often
// reject the command while still exposing a valid container. Tags
// without the NDEF magic or with an unrecognized size field resolve to
// plain Ultralight.
func DetectNTAGFamily(ctx context.Context, t Transport) (TagFamily, error) {
	cc, err := t.ReadRawUnit(ctx, ccPage)
	if err != nil {
		return FamilyUnknown, fmt.Errorf("capability container: %w", err)
	}
	if len(cc) < 4 || cc[0] != ccMagic {
		return FamilyType2Ultralight, nil
	}
	switch cc[2] {
	case ccSizeNTAG213:
		return FamilyNTAG213, nil
	case ccSizeNTAG215:
		return FamilyNTAG215, nil
	case ccSizeNTAG216:
		return FamilyNTAG216, nil
	default:
		Debugf("classify: unrecognized CC size field %#02x, falling back to Ultralight", cc[2])
		return FamilyType2Ultralight, nil
	}
}

// NeedsVersionProbe reports whether the attributes describe a
// provisional Type 2 tag whose NTAG subtype can only be resolved by a
// GET_VERSION exchange. Callers use this to decide whether ProbeVersion
// is worth a transport round trip before Classify.
func NeedsVersionProbe(attrs DiscoveryAttributes) bool {
	return bytes.Equal(attrs.ATQA, atqaType2) && attrs.SAK == sakType2 &&
		bytes.HasPrefix(attrs.UID, ntagUIDStart)
}

func classifyType2(attrs DiscoveryAttributes, version *VersionInfo) TagFamily {
	if !bytes.HasPrefix(attrs.UID, ntagUIDStart) {
		return FamilyType2Ultralight
	}
	if version == nil {
		// Probe failed or was never issued.
		Debugf("classify: NTAG prefix on %s but no version answer, falling back to Ultralight",
			attrs.UIDString())
		return FamilyType2Ultralight
	}
	switch version.StorageSize {
	case versionStorageNTAG216:
		return FamilyNTAG216
	case versionStorageNTAG215:
		return FamilyNTAG215
	default:
		return FamilyNTAG213
	}
}
