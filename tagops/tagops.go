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

// Package tagops provides high-level tag operations: detection,
// full reads and writes, formatting and cloning, with capability
// checks and optional history records around the core handlers.
package tagops

import (
	"context"
	"errors"
	"fmt"

	tagcore "github.com/nfcforge/go-tagcore"
)

// Operations drives one physical reader session. All methods are
// synchronous blocking calls meant to run on a single dedicated worker;
// concurrent use of one Operations value is not supported.
type Operations struct {
	transport tagcore.Transport
	poller    *tagcore.Poller
	handle    *tagcore.TagHandle
	handler   tagcore.Handler
	history   HistoryStore
}

// Option configures an Operations value.
type Option func(*Operations)

// WithHistory attaches a history store that receives a record after
// every successful read, write and clone.
func WithHistory(store HistoryStore) Option {
	return func(o *Operations) {
		o.history = store
	}
}

// New creates an Operations session over a transport. The transport
// must also implement tagcore.Discoverer so tags can be awaited.
func New(transport tagcore.Transport, opts ...Option) (*Operations, error) {
	discoverer, ok := transport.(tagcore.Discoverer)
	if !ok {
		return nil, fmt.Errorf("transport %s cannot discover tags", transport.Type())
	}
	o := &Operations{
		transport: transport,
		poller:    tagcore.NewPoller(discoverer, transport),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// DetectTag waits for a tag, classifies it and prepares its handler.
// Tags that classify as Unknown still yield a handle; operations on
// them fail their capability checks instead of this call erroring.
func (o *Operations) DetectTag(ctx context.Context) (*tagcore.TagHandle, error) {
	handle, err := o.poller.WaitForTag(ctx)
	if err != nil {
		return nil, fmt.Errorf("tag detection failed: %w", err)
	}

	handler, err := tagcore.NewHandler(handle, o.transport)
	if err != nil && !errors.Is(err, tagcore.ErrUnknownFamily) {
		return nil, err
	}
	o.handle = handle
	o.handler = handler
	return handle, nil
}

// Handle returns the current tag handle, nil when none is held.
func (o *Operations) Handle() *tagcore.TagHandle {
	return o.handle
}

// Handler returns the current family handler, nil when none is held.
func (o *Operations) Handler() tagcore.Handler {
	return o.handler
}

// Release drops the current tag, discarding its authentication state.
func (o *Operations) Release() {
	if o.handle != nil {
		o.handle.Session().Reset()
	}
	o.handle = nil
	o.handler = nil
}

// Cancel cooperatively stops a pending DetectTag poll.
func (o *Operations) Cancel() {
	o.poller.Stop()
}

// Close releases the tag and closes the transport.
func (o *Operations) Close() error {
	o.Release()
	if err := o.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// checkCapability verifies the current tag supports an operation.
func (o *Operations) checkCapability(op tagcore.Operation) error {
	if o.handle == nil {
		return tagcore.ErrNoTagDetected
	}
	if answer := tagcore.Check(o.handle.Family, op); !answer.Supported {
		return fmt.Errorf("%w: %s", tagcore.ErrCapabilityDenied, answer.Reason)
	}
	if o.handler == nil {
		return fmt.Errorf("%w: no handler", tagcore.ErrUnknownFamily)
	}
	return nil
}
