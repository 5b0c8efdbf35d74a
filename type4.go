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
	"crypto/des"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// DESFire native command codes, sent ISO7816-wrapped with class 0x90.
const (
	desfireCmdAuthenticate    = 0x0A
	desfireCmdCreateApp       = 0xCA
	desfireCmdDeleteApp       = 0xDA
	desfireCmdGetAppIDs       = 0x6A
	desfireCmdSelectApp       = 0x5A
	desfireCmdFormatPICC      = 0xFC
	desfireCmdGetFileIDs      = 0x6F
	desfireCmdGetFileSettings = 0xF5
	desfireCmdReadData        = 0xBD
	desfireCmdWriteData       = 0x3D
	desfireCmdAdditionalFrame = 0xAF
)

// DESFire status codes (SW2 of the wrapped response).
const (
	desfireStatusOK              = 0x00
	desfireStatusAdditionalFrame = 0xAF
	desfireStatusAuthError       = 0xAE
	desfireStatusPermissionDeny  = 0x9D
	desfireStatusAppNotFound     = 0xA0
	desfireStatusFileNotFound    = 0xF0
)

// MasterApplication is the PICC-level application, selected for
// card-wide operations like FormatPICC.
const MasterApplication uint32 = 0x000000

// DefaultDESFireKey is the factory default 2K3DES key (all zero).
var DefaultDESFireKey = make([]byte, 16)

// FCI is the parsed File Control Information template an ISO SELECT
// returns for a DESFire application.
type FCI struct {
	DFName      []byte
	Proprietary []byte
	Raw         []byte
}

// DESFireHandler performs operations on DESFire (Type 4) tags. The
// protocol is session oriented: an application is selected first,
// authentication unlocks it, and file operations run inside that
// scope. Native commands travel wrapped in ISO7816 APDUs.
type DESFireHandler struct {
	handle     *TagHandle
	transport  Transport
	currentApp uint32
	selected   bool
}

// NewDESFireHandler creates a handler for a DESFire tag.
func NewDESFireHandler(handle *TagHandle, transport Transport) *DESFireHandler {
	return &DESFireHandler{handle: handle, transport: transport}
}

// Family returns FamilyType4DESFire.
func (*DESFireHandler) Family() TagFamily {
	return FamilyType4DESFire
}

// command runs one wrapped native command, following 0xAF additional
// frames until the card reports a final status. Returns the collected
// response data.
func (d *DESFireHandler) command(ctx context.Context, cmd byte, params []byte) ([]byte, error) {
	apdu := buildWrappedAPDU(cmd, params)
	var data []byte
	for {
		resp, err := d.transport.Transceive(ctx, apdu)
		if err != nil {
			return nil, err
		}
		if len(resp) < 2 || resp[len(resp)-2] != 0x91 {
			return nil, fmt.Errorf("%w: wrapped response %d bytes", ErrInvalidResponse, len(resp))
		}
		status := resp[len(resp)-1]
		data = append(data, resp[:len(resp)-2]...)

		switch status {
		case desfireStatusOK:
			return data, nil
		case desfireStatusAdditionalFrame:
			apdu = buildWrappedAPDU(desfireCmdAdditionalFrame, nil)
		default:
			return nil, desfireStatusError(status)
		}
	}
}

func buildWrappedAPDU(cmd byte, params []byte) []byte {
	apdu := []byte{0x90, cmd, 0x00, 0x00}
	if len(params) > 0 {
		apdu = append(apdu, byte(len(params)))
		apdu = append(apdu, params...)
	}
	return append(apdu, 0x00)
}

func desfireStatusError(status byte) error {
	switch status {
	case desfireStatusAuthError:
		return fmt.Errorf("%w: card status 0x%02X", ErrAuthFailed, status)
	case desfireStatusPermissionDeny:
		return fmt.Errorf("%w: card status 0x%02X", ErrAuthRequired, status)
	case desfireStatusAppNotFound:
		return fmt.Errorf("%w: card status 0x%02X", ErrApplicationUnknown, status)
	case desfireStatusFileNotFound:
		return fmt.Errorf("%w: file not found (0x%02X)", ErrAddressOutOfRange, status)
	default:
		return fmt.Errorf("DESFire status 0x%02X", status)
	}
}

// SelectApplication selects the application subsequent file operations
// address. Selection discards any authentication grant.
func (d *DESFireHandler) SelectApplication(ctx context.Context, aid uint32) error {
	params := []byte{byte(aid & 0xFF), byte(aid >> 8 & 0xFF), byte(aid >> 16 & 0xFF)}
	if _, err := d.command(ctx, desfireCmdSelectApp, params); err != nil {
		return newOpError(FamilyType4DESFire, "select application", int(aid), err)
	}
	d.currentApp = aid
	d.selected = true
	d.handle.Session().Reset()
	return nil
}

// Authenticate runs the legacy challenge-response against keyNo of the
// selected application. key is an 8-byte DES or 16-byte 2K3DES key;
// the factory default is DefaultDESFireKey. On success the session is
// granted for the selected application; on failure it resets.
func (d *DESFireHandler) Authenticate(ctx context.Context, keyNo byte, key []byte) error {
	if !d.selected {
		return newOpError(FamilyType4DESFire, "authenticate", -1,
			fmt.Errorf("%w: no application selected", ErrAuthRequired))
	}
	block, err := desfireCipher(key)
	if err != nil {
		return newOpError(FamilyType4DESFire, "authenticate", int(keyNo), err)
	}

	// Phase 1: card answers an additional frame carrying ek(RndB).
	apdu := buildWrappedAPDU(desfireCmdAuthenticate, []byte{keyNo})
	resp, err := d.transport.Transceive(ctx, apdu)
	if err != nil {
		return newOpError(FamilyType4DESFire, "authenticate", int(keyNo), err)
	}
	if len(resp) < 10 || resp[len(resp)-2] != 0x91 ||
		resp[len(resp)-1] != desfireStatusAdditionalFrame {
		d.handle.Session().Reset()
		return newOpError(FamilyType4DESFire, "authenticate", int(keyNo),
			fmt.Errorf("%w: unexpected challenge answer", ErrAuthFailed))
	}
	rndB := cbcDecrypt(block, resp[:8])

	// Phase 2: send ek(RndA || RndB') and verify the card's RndA'.
	rndA := make([]byte, 8)
	if _, err := rand.Read(rndA); err != nil {
		return newOpError(FamilyType4DESFire, "authenticate", int(keyNo), err)
	}
	token := make([]byte, 0, 16)
	token = append(token, rndA...)
	token = append(token, rotateLeft(rndB)...)

	apdu = buildWrappedAPDU(desfireCmdAdditionalFrame, cbcEncrypt(block, token))
	resp, err = d.transport.Transceive(ctx, apdu)
	if err != nil {
		return newOpError(FamilyType4DESFire, "authenticate", int(keyNo), err)
	}
	if len(resp) < 10 || resp[len(resp)-1] != desfireStatusOK {
		d.handle.Session().Reset()
		return newOpError(FamilyType4DESFire, "authenticate", int(keyNo),
			fmt.Errorf("%w: card rejected token", ErrAuthFailed))
	}
	rndAVerify := cbcDecrypt(block, resp[:8])
	expected := rotateLeft(rndA)
	for i := range rndAVerify {
		if rndAVerify[i] != expected[i] {
			d.handle.Session().Reset()
			return newOpError(FamilyType4DESFire, "authenticate", int(keyNo),
				fmt.Errorf("%w: card token mismatch", ErrAuthFailed))
		}
	}

	d.handle.Session().Grant(AppScope(d.currentApp))
	return nil
}

// requireAuth gates file operations on an authenticated session for
// the selected application.
func (d *DESFireHandler) requireAuth(op string) error {
	if !d.selected || !d.handle.Session().Granted(AppScope(d.currentApp)) {
		return newOpError(FamilyType4DESFire, op, -1, ErrAuthRequired)
	}
	return nil
}

// GetApplicationIDs lists the 3-byte application IDs on the card.
func (d *DESFireHandler) GetApplicationIDs(ctx context.Context) ([]uint32, error) {
	data, err := d.command(ctx, desfireCmdGetAppIDs, nil)
	if err != nil {
		return nil, newOpError(FamilyType4DESFire, "list applications", -1, err)
	}
	if len(data)%3 != 0 {
		return nil, newOpError(FamilyType4DESFire, "list applications", -1,
			fmt.Errorf("%w: AID list length %d", ErrInvalidResponse, len(data)))
	}
	aids := make([]uint32, 0, len(data)/3)
	for i := 0; i < len(data); i += 3 {
		aids = append(aids, uint32(data[i])|uint32(data[i+1])<<8|uint32(data[i+2])<<16)
	}
	return aids, nil
}

// CreateApplication creates an application with the given key settings
// and key count. Requires an authenticated master application session.
func (d *DESFireHandler) CreateApplication(ctx context.Context, aid uint32, keySettings, numKeys byte) error {
	if err := d.requireAuth("create application"); err != nil {
		return err
	}
	params := []byte{
		byte(aid & 0xFF), byte(aid >> 8 & 0xFF), byte(aid >> 16 & 0xFF),
		keySettings, numKeys,
	}
	if _, err := d.command(ctx, desfireCmdCreateApp, params); err != nil {
		return newOpError(FamilyType4DESFire, "create application", int(aid), err)
	}
	return nil
}

// DeleteApplication removes an application and all its files.
func (d *DESFireHandler) DeleteApplication(ctx context.Context, aid uint32) error {
	if err := d.requireAuth("delete application"); err != nil {
		return err
	}
	params := []byte{byte(aid & 0xFF), byte(aid >> 8 & 0xFF), byte(aid >> 16 & 0xFF)}
	if _, err := d.command(ctx, desfireCmdDeleteApp, params); err != nil {
		return newOpError(FamilyType4DESFire, "delete application", int(aid), err)
	}
	return nil
}

// GetFileIDs lists the file numbers of the selected application.
func (d *DESFireHandler) GetFileIDs(ctx context.Context) ([]byte, error) {
	data, err := d.command(ctx, desfireCmdGetFileIDs, nil)
	if err != nil {
		return nil, newOpError(FamilyType4DESFire, "list files", -1, err)
	}
	return data, nil
}

// FileSize reads the file settings of a standard data file and returns
// its size in bytes.
func (d *DESFireHandler) FileSize(ctx context.Context, file byte) (int, error) {
	data, err := d.command(ctx, desfireCmdGetFileSettings, []byte{file})
	if err != nil {
		return 0, newOpError(FamilyType4DESFire, "file settings", int(file), err)
	}
	// Standard data file settings: type, comm mode, access rights
	// (2), size (3, little endian).
	if len(data) < 7 {
		return 0, newOpError(FamilyType4DESFire, "file settings", int(file),
			fmt.Errorf("%w: settings %d bytes", ErrInvalidResponse, len(data)))
	}
	return int(data[4]) | int(data[5])<<8 | int(data[6])<<16, nil
}

// ReadFile reads length bytes from a file at offset. Requires an
// authenticated session for the selected application.
func (d *DESFireHandler) ReadFile(ctx context.Context, file byte, offset, length int) ([]byte, error) {
	if err := d.requireAuth("read file"); err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset > 0xFFFFFF || length > 0xFFFFFF {
		return nil, newOpError(FamilyType4DESFire, "read file", int(file), ErrAddressOutOfRange)
	}
	params := []byte{
		file,
		byte(offset & 0xFF), byte(offset >> 8 & 0xFF), byte(offset >> 16 & 0xFF),
		byte(length & 0xFF), byte(length >> 8 & 0xFF), byte(length >> 16 & 0xFF),
	}
	data, err := d.command(ctx, desfireCmdReadData, params)
	if err != nil {
		return nil, newOpError(FamilyType4DESFire, "read file", int(file), err)
	}
	return data, nil
}

// WriteFile writes data to a file at offset. Requires an authenticated
// session for the selected application.
func (d *DESFireHandler) WriteFile(ctx context.Context, file byte, offset int, data []byte) error {
	if err := d.requireAuth("write file"); err != nil {
		return err
	}
	if offset < 0 || offset > 0xFFFFFF || len(data) > 0xFFFFFF {
		return newOpError(FamilyType4DESFire, "write file", int(file), ErrAddressOutOfRange)
	}
	params := make([]byte, 0, 7+len(data))
	params = append(params,
		file,
		byte(offset&0xFF), byte(offset>>8&0xFF), byte(offset>>16&0xFF),
		byte(len(data)&0xFF), byte(len(data)>>8&0xFF), byte(len(data)>>16&0xFF))
	params = append(params, data...)
	if _, err := d.command(ctx, desfireCmdWriteData, params); err != nil {
		return newOpError(FamilyType4DESFire, "write file", int(file), err)
	}
	return nil
}

// FormatPICC erases every application and file on the card. The erase
// is irreversible and requires an authenticated master application
// session.
func (d *DESFireHandler) FormatPICC(ctx context.Context) error {
	if !d.selected || d.currentApp != MasterApplication {
		return newOpError(FamilyType4DESFire, "format", -1,
			fmt.Errorf("%w: master application not selected", ErrAuthRequired))
	}
	if err := d.requireAuth("format"); err != nil {
		return err
	}
	if _, err := d.command(ctx, desfireCmdFormatPICC, nil); err != nil {
		return newOpError(FamilyType4DESFire, "format", -1, err)
	}
	return nil
}

// Format implements Formatter via FormatPICC, selecting and
// authenticating the master application with the factory key first.
func (d *DESFireHandler) Format(ctx context.Context) error {
	if err := d.SelectApplication(ctx, MasterApplication); err != nil {
		return err
	}
	if err := d.Authenticate(ctx, 0, DefaultDESFireKey); err != nil {
		return err
	}
	return d.FormatPICC(ctx)
}

// SelectISO issues an ISO7816 SELECT by DF name and parses the
// returned File Control Information template. Useful for inspecting
// ISO-mapped applications without native commands.
func (d *DESFireHandler) SelectISO(ctx context.Context, dfName []byte) (*FCI, error) {
	apdu := []byte{0x00, 0xA4, 0x04, 0x00, byte(len(dfName))}
	apdu = append(apdu, dfName...)
	apdu = append(apdu, 0x00)

	resp, err := d.transport.Transceive(ctx, apdu)
	if err != nil {
		return nil, newOpError(FamilyType4DESFire, "iso select", -1, err)
	}
	if len(resp) < 2 || resp[len(resp)-2] != 0x90 || resp[len(resp)-1] != 0x00 {
		return nil, newOpError(FamilyType4DESFire, "iso select", -1,
			fmt.Errorf("%w: SELECT failed", ErrApplicationUnknown))
	}
	return parseFCI(resp[:len(resp)-2])
}

func parseFCI(data []byte) (*FCI, error) {
	fci := &FCI{Raw: data}
	if len(data) == 0 {
		return fci, nil
	}
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("FCI decode failed: %w", err)
	}
	// Unwrap the 6F template when present; some cards answer the
	// inner fields flat.
	for _, p := range packets {
		if strings.EqualFold(p.Tag, "6F") {
			packets = p.TLVs
			break
		}
	}
	for _, p := range packets {
		switch {
		case strings.EqualFold(p.Tag, "84"):
			fci.DFName = p.Value
		case strings.EqualFold(p.Tag, "85"), strings.EqualFold(p.Tag, "A5"):
			fci.Proprietary = p.Value
		}
	}
	return fci, nil
}

// ReadAll walks every application with the factory key and
// concatenates the contents of all standard data files. Applications
// that refuse the factory key are skipped with a warning so a partly
// locked card still yields its open contents.
func (d *DESFireHandler) ReadAll(ctx context.Context) ([]byte, error) {
	aids, err := d.GetApplicationIDs(ctx)
	if err != nil {
		return nil, err
	}

	var image []byte
	for _, aid := range aids {
		if err := d.SelectApplication(ctx, aid); err != nil {
			return nil, err
		}
		if err := d.Authenticate(ctx, 0, DefaultDESFireKey); err != nil {
			Debugf("DESFire read: application %06X refuses factory key, skipping", aid)
			continue
		}
		files, err := d.GetFileIDs(ctx)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			size, err := d.FileSize(ctx, file)
			if err != nil {
				return nil, err
			}
			data, err := d.ReadFile(ctx, file, 0, size)
			if err != nil {
				return nil, err
			}
			image = append(image, data...)
		}
	}
	return image, nil
}

// WriteAll cannot pick an application and file on its own: DESFire
// writes need an explicit (application, file) target, so the linear
// image entry point always refuses and directs callers to WriteFile.
func (d *DESFireHandler) WriteAll(_ context.Context, _ []byte) (int, error) {
	return 0, newOpError(FamilyType4DESFire, "write", -1,
		fmt.Errorf("%w: use SelectApplication and WriteFile", ErrExplicitTarget))
}

// desfireCipher builds the TDES block cipher for an 8, 16 or 24 byte
// DESFire key.
func desfireCipher(key []byte) (blockCipher, error) {
	expanded := make([]byte, 24)
	switch len(key) {
	case 8:
		copy(expanded[0:], key)
		copy(expanded[8:], key)
		copy(expanded[16:], key)
	case 16:
		copy(expanded[0:], key)
		copy(expanded[16:], key[:8])
	case 24:
		copy(expanded, key)
	default:
		return nil, fmt.Errorf("%w: DESFire key must be 8, 16 or 24 bytes, got %d",
			ErrAuthFailed, len(key))
	}
	c, err := des.NewTripleDESCipher(expanded)
	if err != nil {
		return nil, fmt.Errorf("build cipher: %w", err)
	}
	return c, nil
}

type blockCipher interface {
	BlockSize() int
	Encrypt(dst, src []byte)
	Decrypt(dst, src []byte)
}

// cbcEncrypt encrypts whole blocks with a zero IV.
func cbcEncrypt(c blockCipher, data []byte) []byte {
	size := c.BlockSize()
	out := make([]byte, len(data))
	prev := make([]byte, size)
	for i := 0; i+size <= len(data); i += size {
		block := make([]byte, size)
		for j := range block {
			block[j] = data[i+j] ^ prev[j]
		}
		c.Encrypt(out[i:i+size], block)
		prev = out[i : i+size]
	}
	return out
}

// cbcDecrypt decrypts whole blocks with a zero IV.
func cbcDecrypt(c blockCipher, data []byte) []byte {
	size := c.BlockSize()
	out := make([]byte, len(data))
	prev := make([]byte, size)
	for i := 0; i+size <= len(data); i += size {
		c.Decrypt(out[i:i+size], data[i:i+size])
		for j := range size {
			out[i+j] ^= prev[j]
		}
		prev = data[i : i+size]
	}
	return out
}

// rotateLeft rotates an 8-byte value one byte to the left.
func rotateLeft(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b[1:])
	out[len(b)-1] = b[0]
	return out
}
