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

// Package spi provides the SPI bus reader transport. The module shifts
// LSB first while periph.io drives MSB first, so every byte on the wire
// is bit-reversed.
package spi

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	tagcore "github.com/nfcforge/go-tagcore"
	"github.com/nfcforge/go-tagcore/internal/frame"
	"github.com/nfcforge/go-tagcore/internal/readercmd"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	opStatusRead = 0x02
	opDataWrite  = 0x01
	opDataRead   = 0x03
	statusReady  = 0x01

	defaultFreq = 1 * physic.MegaHertz
)

// Transport implements tagcore.Transport over an SPI bus.
type Transport struct {
	readercmd.Module
	port     spi.PortCloser
	conn     spi.Conn
	portName string
	timeout  time.Duration
	mu       sync.Mutex
	closed   bool
}

// New opens an SPI port and configures the reader module.
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}
	conn, err := port.Connect(defaultFreq, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	t := &Transport{
		port:     port,
		conn:     conn,
		portName: portName,
		timeout:  100 * time.Millisecond,
	}
	t.Module = readercmd.Module{Commander: t, Port: portName}

	// Dummy clock to wake the module out of low-power.
	time.Sleep(time.Millisecond)
	_ = conn.Tx([]byte{0x00}, nil)
	time.Sleep(time.Millisecond)

	if err := t.ConfigureSAM(context.Background()); err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// Command runs one framed exchange over the data write/read opcodes.
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
		return nil, tagcore.NewTransportError("send frame", t.portName, err,
			tagcore.ErrorTypePermanent)
	}
	if err := t.writeFrame(frm); err != nil {
		return nil, err
	}

	if err := t.readAck(ctx); err != nil {
		return nil, err
	}

	resp, err := t.receiveFrame(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 || resp[0] != cmd+1 {
		return nil, tagcore.NewInvalidResponseError("command", t.portName)
	}
	if err := t.writeFrame(frame.ACK); err != nil {
		return nil, err
	}
	return resp[1:], nil
}

func (t *Transport) writeFrame(frm []byte) error {
	tx := make([]byte, 1+len(frm))
	tx[0] = reverseBit(opDataWrite)
	for i, b := range frm {
		tx[i+1] = reverseBit(b)
	}
	if err := t.conn.Tx(tx, nil); err != nil {
		return fmt.Errorf("SPI frame write failed: %w", err)
	}
	return nil
}

// waitReady polls the status opcode until the module signals data
// ready.
func (t *Transport) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(t.timeout)
	tx := []byte{reverseBit(opStatusRead), 0x00}
	rx := make([]byte, 2)
	for {
		if err := t.conn.Tx(tx, rx); err != nil {
			return fmt.Errorf("SPI status read failed: %w", err)
		}
		if reverseBit(rx[1])&statusReady != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return tagcore.NewTimeoutError("wait ready", t.portName)
		}
		if err := sleepCtx(ctx, 5*time.Millisecond); err != nil {
			return err
		}
	}
}

// readBytes clocks out n bytes through the data read opcode.
func (t *Transport) readBytes(n int) ([]byte, error) {
	tx := make([]byte, 1+n)
	tx[0] = reverseBit(opDataRead)
	rx := make([]byte, 1+n)
	if err := t.conn.Tx(tx, rx); err != nil {
		return nil, fmt.Errorf("SPI data read failed: %w", err)
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = reverseBit(rx[i+1])
	}
	return out, nil
}

func (t *Transport) readAck(ctx context.Context) error {
	if err := t.waitReady(ctx); err != nil {
		return err
	}
	buf, err := t.readBytes(len(frame.ACK))
	if err != nil {
		return err
	}
	if !bytes.Equal(buf, frame.ACK) {
		return tagcore.NewTransportReadError("read ack", t.portName)
	}
	return nil
}

func (t *Transport) receiveFrame(ctx context.Context) ([]byte, error) {
	if err := t.waitReady(ctx); err != nil {
		return nil, err
	}
	buf, err := t.readBytes(frame.MaxFrameSize)
	if err != nil {
		return nil, err
	}
	data, _, err := frame.Parse(buf, len(buf))
	if err != nil {
		return nil, tagcore.NewInvalidResponseError("receive frame", t.portName)
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

// Close closes the SPI port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the port is still open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type.
func (*Transport) Type() tagcore.TransportType {
	return tagcore.TransportSPI
}

// reverseBit mirrors the bits in a byte (LSB <-> MSB).
func reverseBit(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
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
