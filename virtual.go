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
	"sync"
	"time"
)

// VirtualTag is an in-memory tag emulator implementing Transport and
// Discoverer. It answers the wire protocol of its family against a
// byte-addressable memory model, which makes handler behavior testable
// without hardware and gives examples a working backend.
type VirtualTag struct {
	services map[uint16][][]byte
	apps     map[uint32]*virtualApp
	attrs    DiscoveryAttributes
	version  []byte
	units    [][]byte
	locked   []bool
	keysA    [][]byte
	keysB    [][]byte
	family   TagFamily
	region   MemoryRegion
	authed   int // authenticated sector, -1 when none
	desfire  virtualDESFireState
	mu       sync.Mutex
	closed   bool
}

type virtualApp struct {
	files map[byte][]byte
	key   []byte
}

type virtualDESFireState struct {
	rndB        []byte
	selectedApp uint32
	authPending bool
	authed      bool
}

// NewVirtualTag builds an emulator for a fixed-layout family (Topaz,
// Type 2, Classic). The memory starts blank apart from the UID echoed
// into the first units the way real tags expose it.
func NewVirtualTag(family TagFamily, uid []byte) *VirtualTag {
	region := Capacity(family)
	v := &VirtualTag{
		family: family,
		region: region,
		authed: -1,
	}
	v.attrs = discoveryFor(family, uid)

	if region.Known() {
		v.units = make([][]byte, region.TotalUnits)
		for i := range v.units {
			v.units[i] = make([]byte, region.UnitSize)
		}
		for i, b := range uid {
			unit := i / region.UnitSize
			if unit < len(v.units) {
				v.units[unit][i%region.UnitSize] = b
			}
		}
	}

	if family.IsClassic() {
		sectors := region.TotalUnits / classicSectorSize
		v.keysA = make([][]byte, sectors)
		v.keysB = make([][]byte, sectors)
		for i := range v.keysA {
			v.keysA[i] = append([]byte(nil), DefaultClassicKey...)
			v.keysB[i] = append([]byte(nil), DefaultClassicKey...)
		}
	}

	switch family {
	case FamilyNTAG213:
		v.version = []byte{0x00, 0x04, 0x04, 0x02, 0x01, 0x00, 0x0D, 0x03}
	case FamilyNTAG215:
		v.version = []byte{0x00, 0x04, 0x04, 0x02, 0x01, 0x00, versionStorageNTAG215, 0x03}
	case FamilyNTAG216:
		v.version = []byte{0x00, 0x04, 0x04, 0x02, 0x01, 0x00, versionStorageNTAG216, 0x03}
	case FamilyUnknown, FamilyType1Topaz, FamilyType2Ultralight, FamilyType3FeliCa,
		FamilyType4DESFire, FamilyType5Vicinity, FamilyClassic1K, FamilyClassic4K:
	}
	return v
}

// NewVirtualVicinityTag builds an ISO15693 emulator with the given
// block count.
func NewVirtualVicinityTag(uid []byte, blocks int) *VirtualTag {
	v := &VirtualTag{
		family: FamilyType5Vicinity,
		region: MemoryRegion{UnitSize: vicinityDefaultBlockSize, TotalUnits: blocks},
		authed: -1,
	}
	v.attrs = DiscoveryAttributes{UID: uid, Inventory: append([]byte{0x00, 0x00}, uid...)}
	v.units = make([][]byte, blocks)
	for i := range v.units {
		v.units[i] = make([]byte, vicinityDefaultBlockSize)
	}
	v.locked = make([]bool, blocks)
	return v
}

// NewVirtualFeliCaTag builds a FeliCa emulator with the given services
// and per-service block counts.
func NewVirtualFeliCaTag(idm []byte, blockCounts map[uint16]int) *VirtualTag {
	v := &VirtualTag{
		family:   FamilyType3FeliCa,
		region:   Capacity(FamilyType3FeliCa),
		authed:   -1,
		services: make(map[uint16][][]byte),
	}
	v.attrs = DiscoveryAttributes{ATQA: []byte{0x00, 0x03}, SAK: 0x01, UID: idm}
	for service, count := range blockCounts {
		blocks := make([][]byte, count)
		for i := range blocks {
			blocks[i] = make([]byte, feliCaBlockSize)
		}
		v.services[service] = blocks
	}
	return v
}

// NewVirtualDESFireTag builds a DESFire emulator with an empty master
// application using the factory key.
func NewVirtualDESFireTag(uid []byte) *VirtualTag {
	v := &VirtualTag{
		family: FamilyType4DESFire,
		region: Capacity(FamilyType4DESFire),
		authed: -1,
		apps: map[uint32]*virtualApp{
			MasterApplication: {key: append([]byte(nil), DefaultDESFireKey...), files: map[byte][]byte{}},
		},
	}
	v.attrs = DiscoveryAttributes{
		ATQA: []byte{0x03, 0x44}, SAK: 0x20, UID: uid,
		ATS: []byte{0x06, 0x75, 0x77, 0x81, 0x02, 0x80},
	}
	return v
}

func discoveryFor(family TagFamily, uid []byte) DiscoveryAttributes {
	switch family {
	case FamilyType1Topaz:
		return DiscoveryAttributes{ATQA: []byte{0x00, 0x04}, SAK: 0x00, UID: uid}
	case FamilyType2Ultralight, FamilyNTAG213, FamilyNTAG215, FamilyNTAG216:
		return DiscoveryAttributes{ATQA: []byte{0x00, 0x44}, SAK: 0x00, UID: uid}
	case FamilyClassic1K:
		return DiscoveryAttributes{ATQA: []byte{0x00, 0x04}, SAK: 0x08, UID: uid}
	case FamilyClassic4K:
		return DiscoveryAttributes{ATQA: []byte{0x00, 0x04}, SAK: 0x18, UID: uid}
	case FamilyUnknown, FamilyType3FeliCa, FamilyType4DESFire, FamilyType5Vicinity:
		return DiscoveryAttributes{UID: uid}
	default:
		return DiscoveryAttributes{UID: uid}
	}
}

// Attrs returns the discovery attributes the emulator answers.
func (v *VirtualTag) Attrs() DiscoveryAttributes {
	return v.attrs
}

// SetUserData fills memory starting at the first user unit, the way a
// tag with existing content would look.
func (v *VirtualTag) SetUserData(data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	unit := v.region.UserStart
	for offset := 0; offset < len(data) && unit < len(v.units); {
		n := copy(v.units[unit], data[offset:])
		offset += n
		unit++
	}
}

// SetImage overwrites the full memory image from unit 0, including
// system units. Used to preload clone sources.
func (v *VirtualTag) SetImage(image []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for unit := range v.units {
		chunk := make([]byte, v.region.UnitSize)
		start := unit * v.region.UnitSize
		if start < len(image) {
			copy(chunk, image[start:])
		}
		v.units[unit] = chunk
	}
}

// Image returns a copy of the current full memory image.
func (v *VirtualTag) Image() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	image := make([]byte, 0, len(v.units)*v.region.UnitSize)
	for _, unit := range v.units {
		image = append(image, unit...)
	}
	return image
}

// SetSectorKey replaces a Classic sector key so factory-key access
// fails for that sector.
func (v *VirtualTag) SetSectorKey(sector int, keyType KeyType, key []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if keyType == KeyA {
		v.keysA[sector] = append([]byte(nil), key...)
	} else {
		v.keysB[sector] = append([]byte(nil), key...)
	}
}

// ServiceBlocks returns the blocks of a FeliCa service.
func (v *VirtualTag) ServiceBlocks(service uint16) [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.services[service]
}

// App returns a DESFire application's files, creating the application
// if needed. Used to preload test contents.
func (v *VirtualTag) App(aid uint32) map[byte][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	app, ok := v.apps[aid]
	if !ok {
		app = &virtualApp{key: append([]byte(nil), DefaultDESFireKey...), files: map[byte][]byte{}}
		v.apps[aid] = app
	}
	return app.files
}

// Locked reports whether a vicinity block is locked.
func (v *VirtualTag) Locked(block int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return block < len(v.locked) && v.locked[block]
}

// Discover implements Discoverer.
func (v *VirtualTag) Discover(_ context.Context) (*DiscoveryAttributes, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrTransportClosed
	}
	attrs := v.attrs
	return &attrs, nil
}

// ReadRawUnit implements Transport for page families.
func (v *VirtualTag) ReadRawUnit(_ context.Context, unit int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrTransportClosed
	}
	if unit < 0 || unit >= len(v.units) {
		return nil, fmt.Errorf("%w: unit %d", ErrAddressOutOfRange, unit)
	}
	out := make([]byte, len(v.units[unit]))
	copy(out, v.units[unit])
	return out, nil
}

// WriteRawUnit implements Transport for page families. System units
// reject writes the way real silicon does.
func (v *VirtualTag) WriteRawUnit(_ context.Context, unit int, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrTransportClosed
	}
	if unit < 0 || unit >= len(v.units) {
		return fmt.Errorf("%w: unit %d", ErrAddressOutOfRange, unit)
	}
	if unit < v.region.SystemUnits {
		return fmt.Errorf("%w: unit %d", ErrReadOnlyUnit, unit)
	}
	stored := make([]byte, v.region.UnitSize)
	copy(stored, data)
	v.units[unit] = stored
	return nil
}

// Transceive implements Transport, dispatching on the family's wire
// protocol.
func (v *VirtualTag) Transceive(_ context.Context, frame []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrTransportClosed
	}
	if len(frame) == 0 {
		return nil, ErrInvalidResponse
	}

	switch v.family {
	case FamilyType2Ultralight, FamilyNTAG213, FamilyNTAG215, FamilyNTAG216:
		return v.transceiveType2(frame)
	case FamilyClassic1K, FamilyClassic4K:
		return v.transceiveClassic(frame)
	case FamilyType3FeliCa:
		return v.transceiveFeliCa(frame)
	case FamilyType4DESFire:
		return v.transceiveDESFire(frame)
	case FamilyType5Vicinity:
		return v.transceiveVicinity(frame)
	case FamilyUnknown, FamilyType1Topaz:
		return nil, fmt.Errorf("%w: no protocol handler", ErrUnknownFamily)
	default:
		return nil, fmt.Errorf("%w: no protocol handler", ErrUnknownFamily)
	}
}

func (v *VirtualTag) transceiveType2(frame []byte) ([]byte, error) {
	if frame[0] == cmdGetVersion {
		if v.version == nil {
			return nil, ErrInvalidResponse
		}
		return append([]byte(nil), v.version...), nil
	}
	return nil, fmt.Errorf("%w: command 0x%02X", ErrInvalidResponse, frame[0])
}

func (v *VirtualTag) transceiveClassic(frame []byte) ([]byte, error) {
	switch frame[0] {
	case classicCmdAuthA, classicCmdAuthB:
		if len(frame) < 2+classicKeyLength {
			return nil, ErrInvalidResponse
		}
		sector := int(frame[1]) / classicSectorSize
		if sector >= len(v.keysA) {
			return []byte{0x01}, nil
		}
		want := v.keysA[sector]
		if frame[0] == classicCmdAuthB {
			want = v.keysB[sector]
		}
		if !bytes.Equal(frame[2:2+classicKeyLength], want) {
			v.authed = -1
			return []byte{0x01}, nil
		}
		v.authed = sector
		return []byte{0x00}, nil

	case classicCmdRead:
		block := int(frame[1])
		if block >= len(v.units) || v.authed != block/classicSectorSize {
			return nil, ErrTagReadFailed
		}
		return append([]byte(nil), v.units[block]...), nil

	case classicCmdWrite:
		block := int(frame[1])
		if block >= len(v.units) || v.authed != block/classicSectorSize {
			return []byte{0x01}, nil
		}
		stored := make([]byte, classicBlockSize)
		copy(stored, frame[2:])
		v.units[block] = stored
		return []byte{0x00}, nil

	default:
		return nil, fmt.Errorf("%w: command 0x%02X", ErrInvalidResponse, frame[0])
	}
}

func (v *VirtualTag) transceiveFeliCa(frame []byte) ([]byte, error) {
	idm := v.attrs.UID
	switch frame[0] {
	case feliCaCmdSearchServiceCode:
		index := int(frame[9]) | int(frame[10])<<8
		codes := sortedServiceCodes(v.services)
		resp := append([]byte{0x0B}, idm...)
		if index >= len(codes) {
			return append(resp, 0xFF, 0xFF), nil
		}
		code := codes[index]
		return append(resp, byte(code&0xFF), byte(code>>8)), nil

	case feliCaCmdReadWithoutEncryption:
		service := uint16(frame[10]) | uint16(frame[11])<<8
		block, _, ok := parseBlockListElement(frame, 13)
		blocks, exists := v.services[service]
		resp := append([]byte{0x07}, idm...)
		if !ok || !exists || block >= len(blocks) {
			return append(resp, 0x01, 0xA8), nil
		}
		resp = append(resp, 0x00, 0x00)
		return append(resp, blocks[block]...), nil

	case feliCaCmdWriteWithoutEncryption:
		service := uint16(frame[10]) | uint16(frame[11])<<8
		block, dataOff, ok := parseBlockListElement(frame, 13)
		blocks, exists := v.services[service]
		resp := append([]byte{0x09}, idm...)
		if !ok || !exists || block >= len(blocks) || len(frame) < dataOff+feliCaBlockSize {
			return append(resp, 0x01, 0xA8), nil
		}
		stored := make([]byte, feliCaBlockSize)
		copy(stored, frame[dataOff:dataOff+feliCaBlockSize])
		blocks[block] = stored
		return append(resp, 0x00, 0x00), nil

	default:
		return nil, fmt.Errorf("%w: command 0x%02X", ErrInvalidResponse, frame[0])
	}
}

func (v *VirtualTag) transceiveVicinity(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, ErrInvalidResponse
	}
	switch frame[1] {
	case vicinityCmdGetSystemInfo:
		resp := []byte{0x00, 0x04} // flags, info flags: memory size present
		resp = append(resp, normalizeUnit(v.attrs.UID, 8)...)
		resp = append(resp, byte(len(v.units)-1), byte(v.region.UnitSize-1))
		return resp, nil

	case vicinityCmdReadBlock:
		block := int(frame[2])
		if block >= len(v.units) {
			return []byte{0x01, 0x10}, nil
		}
		return append([]byte{0x00}, v.units[block]...), nil

	case vicinityCmdWriteBlock:
		block := int(frame[2])
		if block >= len(v.units) {
			return []byte{0x01, 0x10}, nil
		}
		if v.locked[block] {
			return []byte{0x01, 0x12}, nil
		}
		stored := make([]byte, v.region.UnitSize)
		copy(stored, frame[3:])
		v.units[block] = stored
		return []byte{0x00}, nil

	case vicinityCmdLockBlock:
		block := int(frame[2])
		if block >= len(v.units) {
			return []byte{0x01, 0x10}, nil
		}
		v.locked[block] = true
		return []byte{0x00}, nil

	default:
		return nil, fmt.Errorf("%w: command 0x%02X", ErrInvalidResponse, frame[1])
	}
}

// parseBlockListElement decodes the block-list element at off: 2-byte
// form when the access mode bit is set, 3-byte little endian form
// otherwise. next is the index past the element.
func parseBlockListElement(frame []byte, off int) (block, next int, ok bool) {
	if off >= len(frame) {
		return 0, 0, false
	}
	if frame[off]&0x80 != 0 {
		if off+1 >= len(frame) {
			return 0, 0, false
		}
		return int(frame[off+1]), off + 2, true
	}
	if off+2 >= len(frame) {
		return 0, 0, false
	}
	return int(frame[off+1]) | int(frame[off+2])<<8, off + 3, true
}

func sortedServiceCodes(services map[uint16][][]byte) []uint16 {
	codes := make([]uint16, 0, len(services))
	for code := range services {
		codes = append(codes, code)
	}
	for i := 1; i < len(codes); i++ {
		for j := i; j > 0 && codes[j-1] > codes[j]; j-- {
			codes[j-1], codes[j] = codes[j], codes[j-1]
		}
	}
	return codes
}

// Close implements Transport.
func (v *VirtualTag) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// SetTimeout implements Transport.
func (*VirtualTag) SetTimeout(_ time.Duration) error {
	return nil
}

// IsConnected implements Transport.
func (v *VirtualTag) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.closed
}

// Type implements Transport.
func (*VirtualTag) Type() TransportType {
	return TransportMock
}
