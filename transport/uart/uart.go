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

// Package uart provides the serial reader transport.
package uart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tagcore "github.com/nfcforge/go-tagcore"
	"github.com/nfcforge/go-tagcore/internal/frame"
	"github.com/nfcforge/go-tagcore/internal/readercmd"
	"go.bug.st/serial"
)

const (
	readTimeout  = 100 * time.Millisecond
	ackScanLimit = 32
)

// wakePreamble pulls the module out of low-power before each frame.
var wakePreamble = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Transport implements tagcore.Transport over a serial reader module.
type Transport struct {
	readercmd.Module
	port     serial.Port
	portName string
	mu       sync.Mutex
	closed   bool
}

// New opens a serial reader and configures it for normal operation.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set serial read timeout: %w", err)
	}

	t := &Transport{port: port, portName: portName}
	t.Module = readercmd.Module{Commander: t, Port: portName}

	// Some clone modules boot into low-power and ignore the first
	// frame, retry once.
	if err := t.ConfigureSAM(context.Background()); err != nil {
		if err := t.ConfigureSAM(context.Background()); err != nil {
			_ = port.Close()
			return nil, err
		}
	}
	return t, nil
}

// Command runs one framed exchange: wake, send, ACK, receive, ACK back.
func (t *Transport) Command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, tagcore.ErrTransportClosed
	}

	if err := t.sendFrame(cmd, args); err != nil {
		return nil, err
	}
	if err := t.waitAck(); err != nil {
		return nil, err
	}

	// Processing delay before the answer frame appears.
	time.Sleep(6 * time.Millisecond)

	resp, err := t.receiveFrame()
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 || resp[0] != cmd+1 {
		return nil, tagcore.NewInvalidResponseError("command", t.portName)
	}
	if err := t.sendRaw(frame.ACK, "ack"); err != nil {
		return nil, err
	}
	return resp[1:], nil
}

// SetTimeout sets the serial read timeout.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("serial set timeout failed: %w", err)
	}
	return nil
}

// Close closes the serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("serial close failed: %w", err)
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
	return tagcore.TransportUART
}

func (t *Transport) sendRaw(data []byte, op string) error {
	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("serial %s write failed: %w", op, err)
	}
	if n != len(data) {
		return tagcore.NewTransportWriteError(op, t.portName)
	}
	if err := t.port.Drain(); err != nil {
		return fmt.Errorf("serial %s drain failed: %w", op, err)
	}
	return nil
}

func (t *Transport) sendFrame(cmd byte, args []byte) error {
	frm, err := frame.Build(cmd, args)
	if err != nil {
		return tagcore.NewTransportError("send frame", t.portName, err,
			tagcore.ErrorTypePermanent)
	}
	if err := t.sendRaw(wakePreamble, "wake"); err != nil {
		return err
	}
	return t.sendRaw(frm, "frame")
}

// waitAck scans the inbound stream for the 6-byte ACK. Bytes ahead of
// it are discarded; some modules emit a garbage byte after waking.
func (t *Transport) waitAck() error {
	buf := make([]byte, 1)
	window := make([]byte, 0, 6)

	for tries := 0; tries < ackScanLimit; tries++ {
		n, err := t.port.Read(buf)
		if err != nil {
			return fmt.Errorf("serial ACK read failed: %w", err)
		}
		if n == 0 {
			continue
		}
		window = append(window, buf[0])
		if len(window) < 6 {
			continue
		}
		if bytes.Equal(window, frame.ACK) {
			return nil
		}
		window = window[1:]
	}
	return tagcore.NewTimeoutError("wait ack", t.portName)
}

func (t *Transport) receiveFrame() ([]byte, error) {
	buf := make([]byte, frame.MaxFrameSize)
	total, err := t.readInitial(buf)
	if err != nil {
		return nil, err
	}

	for {
		data, need, err := frame.Parse(buf, total)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, frame.ErrIncomplete) {
			return nil, tagcore.NewInvalidResponseError("receive frame", t.portName)
		}
		total, err = t.readRemaining(buf, total, need)
		if err != nil {
			return nil, err
		}
	}
}

func (t *Transport) readInitial(buf []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	n, err := t.port.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("serial frame read failed: %w", err)
	}
	if n == 0 {
		// Slow commands need a second window.
		time.Sleep(50 * time.Millisecond)
		n, err = t.port.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("serial frame retry read failed: %w", err)
		}
		if n == 0 {
			return 0, tagcore.NewTimeoutError("receive frame", t.portName)
		}
	}
	return n, nil
}

func (t *Transport) readRemaining(buf []byte, total, need int) (int, error) {
	deadline := time.Now().Add(2 * time.Second)
	for total < need {
		if time.Now().After(deadline) {
			return 0, tagcore.NewTimeoutError("receive frame", t.portName)
		}
		n, err := t.port.Read(buf[total:need])
		if err != nil {
			return 0, fmt.Errorf("serial remaining read failed: %w", err)
		}
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		total += n
	}
	return total, nil
}

var (
	_ tagcore.Transport  = (*Transport)(nil)
	_ tagcore.Discoverer = (*Transport)(nil)
)
