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
	"fmt"
	"sync/atomic"
	"time"
)

const (
	// pollInterval is the pause between discovery attempts.
	pollInterval = 100 * time.Millisecond
	// maxPollErrors aborts polling after this many consecutive
	// discovery failures.
	maxPollErrors = 10
	// loggedPollErrors limits how many consecutive failures are
	// logged before going quiet.
	loggedPollErrors = 3
)

// Poller waits for a tag to enter the field and classifies it. The
// discoverer supplies anticollision answers; when the transport is
// also provided, provisional Type 2 tags get a GET_VERSION probe to
// resolve their NTAG subtype before classification.
type Poller struct {
	discoverer Discoverer
	transport  Transport
	running    atomic.Bool
}

// NewPoller creates a poller. transport may be nil, in which case
// NTAG subtypes resolve to plain Ultralight.
func NewPoller(discoverer Discoverer, transport Transport) *Poller {
	p := &Poller{discoverer: discoverer, transport: transport}
	p.running.Store(true)
	return p
}

// Stop cooperatively cancels a WaitForTag loop. The current discovery
// attempt finishes; no further attempts start.
func (p *Poller) Stop() {
	p.running.Store(false)
}

// WaitForTag polls until a tag appears, then classifies it and returns
// its handle. Empty-field answers do not count as errors; other
// discovery failures are tolerated up to a threshold before giving up.
func (p *Poller) WaitForTag(ctx context.Context) (*TagHandle, error) {
	errorCount := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if !p.running.Load() {
			return nil, fmt.Errorf("polling stopped: %w", ErrNoTagDetected)
		}

		attrs, err := p.discoverer.Discover(ctx)
		switch {
		case err == nil:
			return p.classifyTag(ctx, attrs), nil
		case errors.Is(err, ErrNoTagDetected):
			errorCount = 0
		case IsFatal(err):
			return nil, fmt.Errorf("discovery failed: %w", err)
		default:
			errorCount++
			if errorCount <= loggedPollErrors {
				Debugf("discovery attempt failed (%d/%d): %v", errorCount, maxPollErrors, err)
			}
			if errorCount >= maxPollErrors {
				return nil, fmt.Errorf("discovery failed after %d attempts: %w", errorCount, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// classifyTag resolves the family, probing the version of provisional
// Type 2 tags when a transport is available.
func (p *Poller) classifyTag(ctx context.Context, attrs *DiscoveryAttributes) *TagHandle {
	var version *VersionInfo
	if p.transport != nil && NeedsVersionProbe(*attrs) {
		v, err := ProbeVersion(ctx, p.transport)
		if err != nil {
			Debugf("version probe failed for %s: %v", attrs.UIDString(), err)
			// Some parts reject GET_VERSION but still expose a valid
			// capability container.
			if family, ccErr := DetectNTAGFamily(ctx, p.transport); ccErr == nil && family.IsType2() {
				Debugf("classified tag %s as %s from capability container", attrs.UIDString(), family)
				return NewTagHandle(family, *attrs)
			}
		} else {
			version = v
		}
	}
	family := Classify(*attrs, version)
	Debugf("classified tag %s as %s", attrs.UIDString(), family)
	return NewTagHandle(family, *attrs)
}
