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

// Package readercmd implements the reader command layer shared by the
// frame-based transports: passive target listing, transparent exchange
// and the storage card primitives. Each transport supplies the framed
// Command exchange; everything above the frame is identical across
// UART, I2C and SPI.
package readercmd

import (
	"context"
	"fmt"

	tagcore "github.com/nfcforge/go-tagcore"
)

const (
	cmdSAMConfiguration  = 0x14
	cmdInListPassive     = 0x4A
	cmdInDataExchange    = 0x40
	cmdInCommunicateThru = 0x42

	// Storage primitives issued through InDataExchange.
	storageRead         = 0x30
	storageWrite16      = 0xA0
	storageWriteCompat4 = 0xA2

	targetTypeA      = 0x00
	targetFeliCa212  = 0x01
	firstLogicalSlot = 0x01
)

var felicaPollArgs = []byte{firstLogicalSlot, targetFeliCa212, 0x00, 0xFF, 0xFF, 0x01, 0x00}

// Commander runs one framed command exchange with the reader module.
type Commander interface {
	Command(ctx context.Context, cmd byte, args []byte) ([]byte, error)
}

// Module is embedded by the concrete transports and provides the
// tagcore.Transport tag operations on top of a Commander.
type Module struct {
	Commander Commander
	Port      string
}

// ConfigureSAM puts the module in normal mode without IRQ handshake.
func (m *Module) ConfigureSAM(ctx context.Context) error {
	if _, err := m.Commander.Command(ctx, cmdSAMConfiguration, []byte{0x01, 0x14, 0x00}); err != nil {
		return fmt.Errorf("SAM configuration rejected: %w", err)
	}
	return nil
}

// Transceive exchanges a raw tag frame through the transparent
// exchange command. The reader appends its own CRC on the air
// interface.
func (m *Module) Transceive(ctx context.Context, data []byte) ([]byte, error) {
	resp, err := m.Commander.Command(ctx, cmdInCommunicateThru, data)
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 {
		return nil, tagcore.NewInvalidResponseError("transceive", m.Port)
	}
	if resp[0] != 0x00 {
		return nil, tagcore.NewTransportError("transceive", m.Port,
			fmt.Errorf("%w: reader status %#02x", tagcore.ErrTagReadFailed, resp[0]),
			tagcore.ErrorTypeTransient)
	}
	return resp[1:], nil
}

// ReadRawUnit reads one storage unit. The reader always answers with a
// 16-byte window starting at the unit; callers trim to their unit size.
func (m *Module) ReadRawUnit(ctx context.Context, unit int) ([]byte, error) {
	resp, err := m.Commander.Command(ctx, cmdInDataExchange,
		[]byte{firstLogicalSlot, storageRead, byte(unit)})
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 || resp[0] != 0x00 {
		return nil, tagcore.NewTransportReadError("read unit", m.Port)
	}
	return resp[1:], nil
}

// WriteRawUnit writes one storage unit. Four-byte payloads use the
// compatibility write so Type 2 pages are not disturbed beyond the
// addressed page; anything larger goes through the 16-byte write.
func (m *Module) WriteRawUnit(ctx context.Context, unit int, data []byte) error {
	cmd := byte(storageWrite16)
	payload := data
	if len(data) == 4 {
		cmd = storageWriteCompat4
	} else if len(data) < 16 {
		padded := make([]byte, 16)
		copy(padded, data)
		payload = padded
	}

	args := make([]byte, 0, 3+len(payload))
	args = append(args, firstLogicalSlot, cmd, byte(unit))
	args = append(args, payload...)

	resp, err := m.Commander.Command(ctx, cmdInDataExchange, args)
	if err != nil {
		return err
	}
	if len(resp) < 1 || resp[0] != 0x00 {
		return tagcore.NewTransportWriteError("write unit", m.Port)
	}
	return nil
}

// Discover lists the first passive target in the field. ISO14443-A is
// tried first, then a FeliCa poll at 212 kbps. Vicinity inventory is
// not available on these reader modules; use the PC/SC transport for
// ISO15693 tags.
func (m *Module) Discover(ctx context.Context) (*tagcore.DiscoveryAttributes, error) {
	resp, err := m.Commander.Command(ctx, cmdInListPassive, []byte{firstLogicalSlot, targetTypeA})
	if err != nil {
		return nil, err
	}
	if attrs := parseTypeATarget(resp); attrs != nil {
		return attrs, nil
	}

	resp, err = m.Commander.Command(ctx, cmdInListPassive, felicaPollArgs)
	if err != nil {
		return nil, err
	}
	if attrs := parseFeliCaTarget(resp); attrs != nil {
		return attrs, nil
	}
	return nil, tagcore.ErrNoTagDetected
}

// parseTypeATarget decodes an ISO14443-A list response:
// [NbTg, Tg, SENS_RES(2, LSB first), SEL_RES, NFCIDLen, NFCID...].
func parseTypeATarget(resp []byte) *tagcore.DiscoveryAttributes {
	if len(resp) < 7 || resp[0] == 0 {
		return nil
	}
	uidLen := int(resp[5])
	if len(resp) < 6+uidLen {
		return nil
	}
	uid := make([]byte, uidLen)
	copy(uid, resp[6:6+uidLen])
	return &tagcore.DiscoveryAttributes{
		// SENS_RES arrives LSB first, store MSB first.
		ATQA: []byte{resp[3], resp[2]},
		SAK:  resp[4],
		UID:  uid,
	}
}

// parseFeliCaTarget decodes a FeliCa poll response:
// [NbTg, Tg, RespLen, 0x01, IDm(8), PMm(8), ...].
func parseFeliCaTarget(resp []byte) *tagcore.DiscoveryAttributes {
	if len(resp) < 12 || resp[0] == 0 {
		return nil
	}
	idm := make([]byte, 8)
	copy(idm, resp[4:12])
	return &tagcore.DiscoveryAttributes{
		ATQA: []byte{0x00, 0x03},
		SAK:  0x01,
		UID:  idm,
	}
}
