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
	"crypto/rand"
	"fmt"
)

// transceiveDESFire answers wrapped native commands and plain ISO
// SELECT against the emulator's application store. Responses follow
// the wrapped convention: data, 0x91, status.
func (v *VirtualTag) transceiveDESFire(frame []byte) ([]byte, error) {
	if len(frame) >= 4 && frame[0] == 0x00 && frame[1] == 0xA4 {
		return v.desfireISOSelect(frame)
	}
	if len(frame) < 5 || frame[0] != 0x90 {
		return nil, fmt.Errorf("%w: not a wrapped APDU", ErrInvalidResponse)
	}
	cmd := frame[1]
	var params []byte
	if len(frame) > 6 {
		lc := int(frame[4])
		if 5+lc > len(frame) {
			return nil, ErrInvalidResponse
		}
		params = frame[5 : 5+lc]
	}

	switch cmd {
	case desfireCmdSelectApp:
		return v.desfireSelect(params)
	case desfireCmdAuthenticate:
		return v.desfireAuthPhase1(params)
	case desfireCmdAdditionalFrame:
		return v.desfireAuthPhase2(params)
	case desfireCmdGetAppIDs:
		return v.desfireAppIDs()
	case desfireCmdCreateApp:
		return v.desfireCreateApp(params)
	case desfireCmdDeleteApp:
		return v.desfireDeleteApp(params)
	case desfireCmdGetFileIDs:
		return v.desfireFileIDs()
	case desfireCmdGetFileSettings:
		return v.desfireFileSettings(params)
	case desfireCmdReadData:
		return v.desfireRead(params)
	case desfireCmdWriteData:
		return v.desfireWrite(params)
	case desfireCmdFormatPICC:
		return v.desfireFormat()
	default:
		return wrapStatus(nil, 0x1C), nil // illegal command
	}
}

func wrapStatus(data []byte, status byte) []byte {
	return append(append([]byte(nil), data...), 0x91, status)
}

func (v *VirtualTag) desfireISOSelect(frame []byte) ([]byte, error) {
	// Minimal FCI: 6F template wrapping the DF name sent.
	var dfName []byte
	if len(frame) > 5 {
		lc := int(frame[4])
		if 5+lc <= len(frame) {
			dfName = frame[5 : 5+lc]
		}
	}
	inner := append([]byte{0x84, byte(len(dfName))}, dfName...)
	fci := append([]byte{0x6F, byte(len(inner))}, inner...)
	return append(fci, 0x90, 0x00), nil
}

func (v *VirtualTag) desfireSelect(params []byte) ([]byte, error) {
	if len(params) < 3 {
		return wrapStatus(nil, 0x7E), nil // length error
	}
	aid := uint32(params[0]) | uint32(params[1])<<8 | uint32(params[2])<<16
	if _, ok := v.apps[aid]; !ok {
		return wrapStatus(nil, desfireStatusAppNotFound), nil
	}
	v.desfire.selectedApp = aid
	v.desfire.authed = false
	v.desfire.authPending = false
	return wrapStatus(nil, desfireStatusOK), nil
}

func (v *VirtualTag) desfireAuthPhase1(params []byte) ([]byte, error) {
	if len(params) < 1 {
		return wrapStatus(nil, 0x7E), nil
	}
	app := v.apps[v.desfire.selectedApp]
	if app == nil {
		return wrapStatus(nil, desfireStatusAppNotFound), nil
	}
	block, err := desfireCipher(app.key)
	if err != nil {
		return wrapStatus(nil, desfireStatusAuthError), nil
	}
	v.desfire.rndB = make([]byte, 8)
	if _, err := rand.Read(v.desfire.rndB); err != nil {
		return nil, err
	}
	v.desfire.authPending = true
	v.desfire.authed = false
	return wrapStatus(cbcEncrypt(block, v.desfire.rndB), desfireStatusAdditionalFrame), nil
}

func (v *VirtualTag) desfireAuthPhase2(params []byte) ([]byte, error) {
	if !v.desfire.authPending || len(params) != 16 {
		return wrapStatus(nil, desfireStatusAuthError), nil
	}
	v.desfire.authPending = false
	app := v.apps[v.desfire.selectedApp]
	block, err := desfireCipher(app.key)
	if err != nil {
		return wrapStatus(nil, desfireStatusAuthError), nil
	}
	token := cbcDecrypt(block, params)
	rndA, rndBRot := token[:8], token[8:]
	expected := rotateLeft(v.desfire.rndB)
	for i := range expected {
		if rndBRot[i] != expected[i] {
			return wrapStatus(nil, desfireStatusAuthError), nil
		}
	}
	v.desfire.authed = true
	return wrapStatus(cbcEncrypt(block, rotateLeft(rndA)), desfireStatusOK), nil
}

func (v *VirtualTag) desfireAppIDs() ([]byte, error) {
	var data []byte
	for aid := range v.apps {
		if aid == MasterApplication {
			continue
		}
		data = append(data, byte(aid&0xFF), byte(aid>>8&0xFF), byte(aid>>16&0xFF))
	}
	return wrapStatus(data, desfireStatusOK), nil
}

func (v *VirtualTag) desfireCreateApp(params []byte) ([]byte, error) {
	if !v.desfire.authed {
		return wrapStatus(nil, desfireStatusPermissionDeny), nil
	}
	if len(params) < 5 {
		return wrapStatus(nil, 0x7E), nil
	}
	aid := uint32(params[0]) | uint32(params[1])<<8 | uint32(params[2])<<16
	if _, exists := v.apps[aid]; exists {
		return wrapStatus(nil, 0xDE), nil // duplicate
	}
	v.apps[aid] = &virtualApp{
		key:   append([]byte(nil), DefaultDESFireKey...),
		files: map[byte][]byte{},
	}
	return wrapStatus(nil, desfireStatusOK), nil
}

func (v *VirtualTag) desfireDeleteApp(params []byte) ([]byte, error) {
	if !v.desfire.authed {
		return wrapStatus(nil, desfireStatusPermissionDeny), nil
	}
	if len(params) < 3 {
		return wrapStatus(nil, 0x7E), nil
	}
	aid := uint32(params[0]) | uint32(params[1])<<8 | uint32(params[2])<<16
	if _, exists := v.apps[aid]; !exists {
		return wrapStatus(nil, desfireStatusAppNotFound), nil
	}
	delete(v.apps, aid)
	return wrapStatus(nil, desfireStatusOK), nil
}

func (v *VirtualTag) desfireFileIDs() ([]byte, error) {
	app := v.apps[v.desfire.selectedApp]
	if app == nil {
		return wrapStatus(nil, desfireStatusAppNotFound), nil
	}
	var data []byte
	for file := range app.files {
		data = append(data, file)
	}
	return wrapStatus(data, desfireStatusOK), nil
}

func (v *VirtualTag) desfireFileSettings(params []byte) ([]byte, error) {
	app := v.apps[v.desfire.selectedApp]
	if app == nil || len(params) < 1 {
		return wrapStatus(nil, desfireStatusFileNotFound), nil
	}
	contents, ok := app.files[params[0]]
	if !ok {
		return wrapStatus(nil, desfireStatusFileNotFound), nil
	}
	size := len(contents)
	// Standard data file: type, plain comm, free access rights, size.
	data := []byte{0x00, 0x00, 0xEE, 0xEE,
		byte(size & 0xFF), byte(size >> 8 & 0xFF), byte(size >> 16 & 0xFF)}
	return wrapStatus(data, desfireStatusOK), nil
}

func (v *VirtualTag) desfireRead(params []byte) ([]byte, error) {
	if !v.desfire.authed {
		return wrapStatus(nil, desfireStatusPermissionDeny), nil
	}
	app := v.apps[v.desfire.selectedApp]
	if app == nil || len(params) < 7 {
		return wrapStatus(nil, desfireStatusFileNotFound), nil
	}
	contents, ok := app.files[params[0]]
	if !ok {
		return wrapStatus(nil, desfireStatusFileNotFound), nil
	}
	offset := int(params[1]) | int(params[2])<<8 | int(params[3])<<16
	length := int(params[4]) | int(params[5])<<8 | int(params[6])<<16
	if offset > len(contents) {
		return wrapStatus(nil, 0xBE), nil // boundary error
	}
	end := offset + length
	if length == 0 || end > len(contents) {
		end = len(contents)
	}
	return wrapStatus(append([]byte(nil), contents[offset:end]...), desfireStatusOK), nil
}

func (v *VirtualTag) desfireWrite(params []byte) ([]byte, error) {
	if !v.desfire.authed {
		return wrapStatus(nil, desfireStatusPermissionDeny), nil
	}
	app := v.apps[v.desfire.selectedApp]
	if app == nil || len(params) < 7 {
		return wrapStatus(nil, desfireStatusFileNotFound), nil
	}
	file := params[0]
	offset := int(params[1]) | int(params[2])<<8 | int(params[3])<<16
	length := int(params[4]) | int(params[5])<<8 | int(params[6])<<16
	if len(params) < 7+length {
		return wrapStatus(nil, 0x7E), nil
	}
	contents := app.files[file]
	if offset+length > len(contents) {
		grown := make([]byte, offset+length)
		copy(grown, contents)
		contents = grown
	}
	copy(contents[offset:], params[7:7+length])
	app.files[file] = contents
	return wrapStatus(nil, desfireStatusOK), nil
}

func (v *VirtualTag) desfireFormat() ([]byte, error) {
	if !v.desfire.authed || v.desfire.selectedApp != MasterApplication {
		return wrapStatus(nil, desfireStatusPermissionDeny), nil
	}
	for aid := range v.apps {
		if aid != MasterApplication {
			delete(v.apps, aid)
		}
	}
	v.apps[MasterApplication].files = map[byte][]byte{}
	return wrapStatus(nil, desfireStatusOK), nil
}
