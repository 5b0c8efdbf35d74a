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
	"context"
	"fmt"
	"sort"
)

// FeliCa command constants based on JIS X 6319-4
const (
	feliCaCmdPolling                = 0x00
	feliCaCmdRequestService         = 0x02
	feliCaCmdReadWithoutEncryption  = 0x06
	feliCaCmdWriteWithoutEncryption = 0x08
	feliCaCmdSearchServiceCode      = 0x0A
	feliCaCmdRequestSystemCode      = 0x0C
)

const (
	feliCaBlockSize  = 16
	feliCaIDmLength  = 8
	feliCaServiceEnd = 0xFFFF // terminator in search service answers

	// Upper bound when probing block counts per service; consumer
	// cards never expose more in one service.
	feliCaMaxBlocksPerService = 512
)

// blockListElement encodes one block-list element. Blocks below 256
// fit the 2-byte form (access mode bit set, block number in the second
// byte); larger block numbers need the 3-byte form with the number in
// little endian.
func blockListElement(block uint16) []byte {
	if block < 0x100 {
		return []byte{0x80, byte(block)}
	}
	return []byte{0x00, byte(block & 0xFF), byte(block >> 8)}
}

// FeliCaHandler performs operations on FeliCa (Type 3) tags. FeliCa
// addressing is (service code, block number), not linear: every frame
// carries the 8-byte IDm captured at discovery, and the service code
// selects which data area a block number refers to.
type FeliCaHandler struct {
	handle    *TagHandle
	transport Transport
	idm       []byte
}

// NewFeliCaHandler creates a handler for a FeliCa tag. The discovery
// UID is the tag's IDm.
func NewFeliCaHandler(handle *TagHandle, transport Transport) *FeliCaHandler {
	idm := make([]byte, feliCaIDmLength)
	copy(idm, handle.Attrs.UID)
	return &FeliCaHandler{
		handle:    handle,
		transport: transport,
		idm:       idm,
	}
}

// Family returns FamilyType3FeliCa.
func (*FeliCaHandler) Family() TagFamily {
	return FamilyType3FeliCa
}

// IDm returns the tag's 8-byte manufacture ID.
func (f *FeliCaHandler) IDm() []byte {
	return f.idm
}

// Services enumerates every service code on the tag using Search
// Service Code, walking the index space until the tag answers the
// 0xFFFF terminator. Area codes (node answers with an end-of-area
// marker) are skipped.
func (f *FeliCaHandler) Services(ctx context.Context) ([]uint16, error) {
	var services []uint16
	for index := uint16(0); ; index++ {
		cmd := []byte{feliCaCmdSearchServiceCode}
		cmd = append(cmd, f.idm...)
		cmd = append(cmd, byte(index&0xFF), byte(index>>8))

		resp, err := f.transport.Transceive(ctx, cmd)
		if err != nil {
			return nil, newOpError(FamilyType3FeliCa, "search service", int(index), err)
		}
		// Response: code 0x0B, IDm, then the 2-byte node code
		// (little endian), 4 bytes when the node is an area.
		if len(resp) < 11 || resp[0] != 0x0B {
			return nil, newOpError(FamilyType3FeliCa, "search service", int(index),
				fmt.Errorf("%w: search service answer %d bytes", ErrInvalidResponse, len(resp)))
		}
		node := uint16(resp[9]) | uint16(resp[10])<<8
		if node == feliCaServiceEnd {
			break
		}
		if len(resp) >= 13 {
			// Area entry: node code plus end-of-area code.
			continue
		}
		services = append(services, node)
	}
	return services, nil
}

// ReadBlock reads one 16-byte block from a service using Read Without
// Encryption.
func (f *FeliCaHandler) ReadBlock(ctx context.Context, service uint16, block uint16) ([]byte, error) {
	cmd := make([]byte, 0, 1+feliCaIDmLength+7)
	cmd = append(cmd, feliCaCmdReadWithoutEncryption)
	cmd = append(cmd, f.idm...)
	cmd = append(cmd, 0x01, // service count
		byte(service&0xFF), byte(service>>8), // service code, little endian
		0x01) // block count
	cmd = append(cmd, blockListElement(block)...)

	resp, err := f.transport.Transceive(ctx, cmd)
	if err != nil {
		return nil, newOpError(FamilyType3FeliCa, "read", int(block), err)
	}
	// Response: code 0x07, IDm, status flags 1+2, then block data.
	if len(resp) < 11 || resp[0] != 0x07 {
		return nil, newOpError(FamilyType3FeliCa, "read", int(block),
			fmt.Errorf("%w: read answer %d bytes", ErrInvalidResponse, len(resp)))
	}
	if resp[9] != 0x00 || resp[10] != 0x00 {
		return nil, newOpError(FamilyType3FeliCa, "read", int(block),
			fmt.Errorf("%w: status 0x%02X%02X", ErrTagReadFailed, resp[9], resp[10]))
	}
	if len(resp) < 11+feliCaBlockSize {
		return nil, newOpError(FamilyType3FeliCa, "read", int(block),
			fmt.Errorf("%w: block data missing", ErrInvalidResponse))
	}
	data := make([]byte, feliCaBlockSize)
	copy(data, resp[11:11+feliCaBlockSize])
	return data, nil
}

// WriteBlock writes one 16-byte block to a service using Write Without
// Encryption. The payload must be exactly one block.
func (f *FeliCaHandler) WriteBlock(ctx context.Context, service uint16, block uint16, data []byte) error {
	if len(data) != feliCaBlockSize {
		return newOpError(FamilyType3FeliCa, "write", int(block),
			fmt.Errorf("%w: block payload must be %d bytes, got %d",
				ErrAlignment, feliCaBlockSize, len(data)))
	}

	cmd := make([]byte, 0, 1+feliCaIDmLength+7+feliCaBlockSize)
	cmd = append(cmd, feliCaCmdWriteWithoutEncryption)
	cmd = append(cmd, f.idm...)
	cmd = append(cmd, 0x01,
		byte(service&0xFF), byte(service>>8),
		0x01)
	cmd = append(cmd, blockListElement(block)...)
	cmd = append(cmd, data...)

	resp, err := f.transport.Transceive(ctx, cmd)
	if err != nil {
		return newOpError(FamilyType3FeliCa, "write", int(block), err)
	}
	if len(resp) < 11 || resp[0] != 0x09 {
		return newOpError(FamilyType3FeliCa, "write", int(block),
			fmt.Errorf("%w: write answer %d bytes", ErrInvalidResponse, len(resp)))
	}
	if resp[9] != 0x00 || resp[10] != 0x00 {
		return newOpError(FamilyType3FeliCa, "write", int(block),
			fmt.Errorf("%w: status 0x%02X%02X", ErrTagWriteFailed, resp[9], resp[10]))
	}
	return nil
}

// WriteBlocks writes a block number to payload mapping into one
// service. The service must be present in the tag's service list.
// Blocks whose payload is not exactly 16 bytes are skipped with a
// warning instead of aborting the whole write. Blocks are written in
// ascending order; returns the number of bytes written.
func (f *FeliCaHandler) WriteBlocks(
	ctx context.Context, service uint16, blocks map[uint16][]byte,
) (int, error) {
	services, err := f.Services(ctx)
	if err != nil {
		return 0, err
	}
	found := false
	for _, s := range services {
		if s == service {
			found = true
			break
		}
	}
	if !found {
		return 0, newOpError(FamilyType3FeliCa, "write", -1,
			fmt.Errorf("%w: 0x%04X", ErrServiceNotFound, service))
	}

	order := make([]uint16, 0, len(blocks))
	for block := range blocks {
		order = append(order, block)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	written := 0
	for _, block := range order {
		data := blocks[block]
		if len(data) != feliCaBlockSize {
			Debugf("FeliCa write: skipping block %d with %d byte payload", block, len(data))
			continue
		}
		if err := f.WriteBlock(ctx, service, block, data); err != nil {
			return written, err
		}
		written += feliCaBlockSize
	}
	return written, nil
}

// ReadAll enumerates the tag's services and reads every block of each,
// probing block counts by reading until the tag reports an error
// status. The image is the concatenation of all service contents in
// service list order.
func (f *FeliCaHandler) ReadAll(ctx context.Context) ([]byte, error) {
	services, err := f.Services(ctx)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, newOpError(FamilyType3FeliCa, "read", -1, ErrServiceNotFound)
	}

	var image []byte
	for _, service := range services {
		for block := uint16(0); block < feliCaMaxBlocksPerService; block++ {
			data, err := f.ReadBlock(ctx, service, block)
			if err != nil {
				// Status errors mark the end of the service's
				// block range; transport errors abort.
				if IsRetryable(err) || IsFatal(err) {
					return nil, err
				}
				break
			}
			image = append(image, data...)
		}
	}
	return image, nil
}

// WriteAll cannot pick a service on its own: FeliCa writes need an
// explicit target service code and block mapping, so the linear image
// entry point always refuses and directs callers to WriteBlocks.
func (f *FeliCaHandler) WriteAll(_ context.Context, _ []byte) (int, error) {
	return 0, newOpError(FamilyType3FeliCa, "write", -1,
		fmt.Errorf("%w: use WriteBlocks with a service code", ErrExplicitTarget))
}
