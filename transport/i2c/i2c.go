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

// Package i2c provides the I2C bus reader transport.
package i2c

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tagcore "github.com/nfcforge/go-tagcore"
	"github.com/nfcforge/go-tagcore/internal/frame"
	"github.com/nfcforge/go-tagcore/internal/readercmd"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// 7-bit device address. Datasheets quote 0x48, which is the 8-bit
	// write address including the R/W bit.
	readerAddr = 0x24

	statusReady  = 0x01
	maxClockFreq = 400 * physic.KiloHertz
)

// Transport implements tagcore.Transport over an I2C bus.
type Transport struct {
	readercmd.Module
	dev     *i2c.Dev
	bus     i2c.BusCloser
	busName string
	timeout time.Duration
	mu      sync.Mutex
	closed  bool
}

// parseBusPath accepts "/dev/i2c-1:0x24" (detection format) or a bare
// bus name.
func parseBusPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens an I2C bus and configures the reader module.
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseBusPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	_ = bus.SetSpeed(maxClockFreq) // keep default speed on buses that refuse

	t := &Transport{
		dev:     &i2c.Dev{Addr: readerAddr, Bus: bus},
		bus:     bus,
		busName: busName,
		timeout: 100 * time.Millisecond,
	}
	t.Module = readercmd.Module{Commander: t, Port: busName}

	if err := t.ConfigureSAM(context.Background()); err != nil {
		_ = bus.Close()
		return nil, err
	}
	return t, nil
}

// Command runs one framed exchange. Every inbound I2C read is prefixed
// with a status byte whose low bit signals the module has data ready.
func (t *Transport) Command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, tagcore.ErrTransportClosed
	}

	frm, err := frame.Build(cmd, args)
	if err != nil {
		return nil, tagcore.NewTransportError("send frame", t.busName, err,
			tagcore.ErrorTypePermanent)
	}
	if err := t.dev.Tx(frm, nil); err != nil {
		return nil, fmt.Errorf("I2C frame write failed: %w", err)
	}

	if err := t.readAck(ctx); err != nil {
		return nil, err
	}

	resp, err := t.receiveFrame(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 || resp[0] != cmd+1 {
		return nil, tagcore.NewInvalidResponseError("command", t.busName)
	}
	if err := t.dev.Tx(frame.ACK, nil); err != nil {
		return nil, fmt.Errorf("I2C ACK write failed: %w", err)
	}
	return resp[1:], nil
}

// waitReady polls the status byte until the module signals data ready.
func (t *Transport) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(t.timeout)
	status := make([]byte, 1)
	for {
		if err := t.dev.Tx(nil, status); err != nil {
			return fmt.Errorf("I2C status read failed: %w", err)
		}
		if status[0]&statusReady != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return tagcore.NewTimeoutError("wait ready", t.busName)
		}
		if err := sleepCtx(ctx, 5*time.Millisecond); err != nil {
			return err
		}
	}
}

func (t *Transport) readAck(ctx context.Context) error {
	if err := t.waitReady(ctx); err != nil {
		return err
	}
	buf := make([]byte, 1+len(frame.ACK))
	if err := t.dev.Tx(nil, buf); err != nil {
		return fmt.Errorf("I2C ACK read failed: %w", err)
	}
	if !bytes.Equal(buf[1:], frame.ACK) {
		return tagcore.NewTransportReadError("read ack", t.busName)
	}
	return nil
}

// receiveFrame reads the whole answer frame in one bus transaction,
// status byte first.
func (t *Transport) receiveFrame(ctx context.Context) ([]byte, error) {
	if err := t.waitReady(ctx); err != nil {
		return nil, err
	}
	buf := make([]byte, 1+frame.MaxFrameSize)
	if err := t.dev.Tx(nil, buf); err != nil {
		return nil, fmt.Errorf("I2C frame read failed: %w", err)
	}

	data, _, err := frame.Parse(buf[1:], frame.MaxFrameSize)
	if err != nil {
		return nil, tagcore.NewInvalidResponseError("receive frame", t.busName)
	}
	return data, nil
}

// SetTimeout sets the ready-poll timeout.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the I2C bus.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.bus.Close(); err != nil {
		return fmt.Errorf("I2C close failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the bus is still open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type.
func (*Transport) Type() tagcore.TransportType {
	return tagcore.TransportI2C
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ tagcore.Transport  = (*Transport)(nil)
	_ tagcore.Discoverer = (*Transport)(nil)
)
