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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fixtures "github.com/nfcforge/go-tagcore/internal/testing"
)

func ntagDiscovery() *DiscoveryAttributes {
	return &DiscoveryAttributes{
		UID:  fixtures.NTAGUID,
		ATQA: []byte{0x00, 0x44},
		SAK:  0x00,
	}
}

func TestWaitForTagResolvesSubtype(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.SetDiscovery(ntagDiscovery())
	mock.SetResponse(0x60, fixtures.BuildVersionResponse(0x11))

	p := NewPoller(mock, mock)
	handle, err := p.WaitForTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FamilyNTAG215, handle.Family)
	assert.Equal(t, fixtures.NTAGUID, handle.Attrs.UID)
}

func TestWaitForTagWithoutTransport(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.SetDiscovery(ntagDiscovery())

	// No transport means no version probe, so the subtype stays
	// unresolved.
	p := NewPoller(mock, nil)
	handle, err := p.WaitForTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FamilyType2Ultralight, handle.Family)
}

func TestWaitForTagSurvivesProbeFailure(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.SetDiscovery(ntagDiscovery())
	mock.SetError(0x60, errors.New("probe refused"))

	p := NewPoller(mock, mock)
	handle, err := p.WaitForTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FamilyType2Ultralight, handle.Family,
		"blank capability container resolves to plain Ultralight")
}

func TestWaitForTagCapabilityContainerFallback(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.SetDiscovery(ntagDiscovery())
	mock.SetError(0x60, errors.New("probe refused"))
	mock.SetUnit(3, []byte{0xE1, 0x10, 0x3E, 0x00})

	p := NewPoller(mock, mock)
	handle, err := p.WaitForTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FamilyNTAG215, handle.Family,
		"the capability container resolves the subtype when GET_VERSION fails")
}

func TestWaitForTagStop(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()

	p := NewPoller(mock, mock)
	p.Stop()
	_, err := p.WaitForTag(context.Background())
	require.ErrorIs(t, err, ErrNoTagDetected)
	assert.Contains(t, err.Error(), "polling stopped")
}

func TestWaitForTagContextCancel(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	p := NewPoller(mock, mock)
	_, err := p.WaitForTag(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForTagFatalTransport(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	require.NoError(t, mock.Close())

	p := NewPoller(mock, mock)
	_, err := p.WaitForTag(context.Background())
	require.ErrorIs(t, err, ErrTransportClosed)
	assert.Contains(t, err.Error(), "discovery failed")
}

type failingDiscoverer struct {
	attempts int
}

func (f *failingDiscoverer) Discover(context.Context) (*DiscoveryAttributes, error) {
	f.attempts++
	return nil, errors.New("rf noise")
}

func TestWaitForTagGivesUpAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	d := &failingDiscoverer{}

	p := NewPoller(d, nil)
	_, err := p.WaitForTag(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery failed after 10 attempts")
	assert.Equal(t, 10, d.attempts)
}

type flakyDiscoverer struct {
	failures int
	attrs    *DiscoveryAttributes
}

func (f *flakyDiscoverer) Discover(context.Context) (*DiscoveryAttributes, error) {
	if f.failures > 0 {
		f.failures--
		return nil, ErrNoTagDetected
	}
	attrs := *f.attrs
	return &attrs, nil
}

func TestWaitForTagTreatsEmptyFieldAsBenign(t *testing.T) {
	t.Parallel()
	d := &flakyDiscoverer{failures: 3, attrs: ntagDiscovery()}

	p := NewPoller(d, nil)
	handle, err := p.WaitForTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FamilyType2Ultralight, handle.Family)
}
