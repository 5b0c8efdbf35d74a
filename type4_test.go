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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fixtures "github.com/nfcforge/go-tagcore/internal/testing"
)

func newVirtualDESFireHandler() (*DESFireHandler, *VirtualTag, *TagHandle) {
	tag := NewVirtualDESFireTag(fixtures.DESFireUID)
	handle := NewTagHandle(FamilyType4DESFire, tag.Attrs())
	return NewDESFireHandler(handle, tag), tag, handle
}

func masterAuth(t *testing.T, h *DESFireHandler) {
	t.Helper()
	require.NoError(t, h.SelectApplication(context.Background(), MasterApplication))
	require.NoError(t, h.Authenticate(context.Background(), 0, DefaultDESFireKey))
}

func TestDESFireAuthenticate(t *testing.T) {
	t.Parallel()
	h, _, handle := newVirtualDESFireHandler()

	require.NoError(t, h.SelectApplication(context.Background(), MasterApplication))
	require.NoError(t, h.Authenticate(context.Background(), 0, DefaultDESFireKey))
	assert.True(t, handle.Session().Granted(AppScope(MasterApplication)))
}

func TestDESFireAuthenticateWrongKey(t *testing.T) {
	t.Parallel()
	h, _, handle := newVirtualDESFireHandler()

	require.NoError(t, h.SelectApplication(context.Background(), MasterApplication))
	wrong := make([]byte, 16)
	wrong[0] = 0x01
	err := h.Authenticate(context.Background(), 0, wrong)
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, StateUnauthenticated, handle.Session().State())
}

func TestDESFireAuthenticateRequiresSelection(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	err := h.Authenticate(context.Background(), 0, DefaultDESFireKey)
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestDESFireAuthenticateKeyLength(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	require.NoError(t, h.SelectApplication(context.Background(), MasterApplication))
	err := h.Authenticate(context.Background(), 0, make([]byte, 5))
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestDESFireSelectUnknownApplication(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	err := h.SelectApplication(context.Background(), 0xBADA55)
	require.ErrorIs(t, err, ErrApplicationUnknown)
}

func TestDESFireSelectionDiscardsGrant(t *testing.T) {
	t.Parallel()
	h, _, handle := newVirtualDESFireHandler()
	masterAuth(t, h)
	require.NoError(t, h.CreateApplication(context.Background(), 0x112233, 0x0F, 1))

	require.NoError(t, h.SelectApplication(context.Background(), 0x112233))
	assert.Equal(t, StateUnauthenticated, handle.Session().State(),
		"selection requires a fresh authentication")
}

func TestDESFireApplicationLifecycle(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	masterAuth(t, h)

	require.NoError(t, h.CreateApplication(context.Background(), 0x112233, 0x0F, 2))

	aids, err := h.GetApplicationIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x112233}, aids)

	require.NoError(t, h.DeleteApplication(context.Background(), 0x112233))
	aids, err = h.GetApplicationIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, aids)
}

func TestDESFireApplicationOpsRequireAuth(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	require.NoError(t, h.SelectApplication(context.Background(), MasterApplication))

	err := h.CreateApplication(context.Background(), 0x112233, 0x0F, 1)
	require.ErrorIs(t, err, ErrAuthRequired)

	err = h.DeleteApplication(context.Background(), 0x112233)
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestDESFireFileRoundTrip(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	masterAuth(t, h)
	require.NoError(t, h.CreateApplication(context.Background(), 0x112233, 0x0F, 1))
	require.NoError(t, h.SelectApplication(context.Background(), 0x112233))
	require.NoError(t, h.Authenticate(context.Background(), 0, DefaultDESFireKey))

	payload := fixtures.BuildPattern(300)
	require.NoError(t, h.WriteFile(context.Background(), 1, 0, payload))

	size, err := h.FileSize(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 300, size)

	files, err := h.GetFileIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, files)

	read, err := h.ReadFile(context.Background(), 1, 0, 300)
	require.NoError(t, err)
	assert.Equal(t, payload, read)

	// Partial read at an offset.
	part, err := h.ReadFile(context.Background(), 1, 100, 16)
	require.NoError(t, err)
	assert.Equal(t, payload[100:116], part)
}

func TestDESFireFileOpsRequireAuth(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	require.NoError(t, h.SelectApplication(context.Background(), MasterApplication))

	_, err := h.ReadFile(context.Background(), 1, 0, 16)
	require.ErrorIs(t, err, ErrAuthRequired)

	err = h.WriteFile(context.Background(), 1, 0, []byte{0x01})
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestDESFireFileSizeUnknownFile(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	masterAuth(t, h)
	_, err := h.FileSize(context.Background(), 9)
	require.ErrorIs(t, err, ErrAddressOutOfRange)
}

func TestDESFireFormat(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	masterAuth(t, h)
	require.NoError(t, h.CreateApplication(context.Background(), 0x112233, 0x0F, 1))

	// Format selects and authenticates the master application itself.
	require.NoError(t, h.Format(context.Background()))

	aids, err := h.GetApplicationIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, aids)
}

func TestDESFireFormatPICCRequiresMaster(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	masterAuth(t, h)
	require.NoError(t, h.CreateApplication(context.Background(), 0x112233, 0x0F, 1))
	require.NoError(t, h.SelectApplication(context.Background(), 0x112233))

	err := h.FormatPICC(context.Background())
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestDESFireReadAll(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	masterAuth(t, h)
	require.NoError(t, h.CreateApplication(context.Background(), 0x112233, 0x0F, 1))
	require.NoError(t, h.SelectApplication(context.Background(), 0x112233))
	require.NoError(t, h.Authenticate(context.Background(), 0, DefaultDESFireKey))
	payload := fixtures.BuildPattern(48)
	require.NoError(t, h.WriteFile(context.Background(), 1, 0, payload))

	image, err := h.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, image)
}

func TestDESFireWriteAllRefuses(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()
	_, err := h.WriteAll(context.Background(), fixtures.BuildPattern(32))
	require.ErrorIs(t, err, ErrExplicitTarget)
}

func TestDESFireSelectISO(t *testing.T) {
	t.Parallel()
	h, _, _ := newVirtualDESFireHandler()

	dfName := []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x00}
	fci, err := h.SelectISO(context.Background(), dfName)
	require.NoError(t, err)
	assert.Equal(t, dfName, fci.DFName)
}
