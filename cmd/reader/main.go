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

// Command reader is the tag workstation CLI: it detects tags on a
// connected reader and runs dump, write, format, clone and monitor
// operations against them.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	tagcore "github.com/nfcforge/go-tagcore"
	"github.com/nfcforge/go-tagcore/detection"
	_ "github.com/nfcforge/go-tagcore/detection/i2c"
	_ "github.com/nfcforge/go-tagcore/detection/pcsc"
	_ "github.com/nfcforge/go-tagcore/detection/spi"
	_ "github.com/nfcforge/go-tagcore/detection/uart"
	"github.com/nfcforge/go-tagcore/tagops"
	"github.com/nfcforge/go-tagcore/transport/i2c"
	"github.com/nfcforge/go-tagcore/transport/pcsc"
	"github.com/nfcforge/go-tagcore/transport/spi"
	"github.com/nfcforge/go-tagcore/transport/uart"
)

var (
	flagConfig       string
	flagTransport    string
	flagDevice       string
	flagTargetDevice string
	flagHistoryDir   string
	flagMode         string
	flagIn           string
	flagOut          string
	flagDebug        bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "Path to TOML config file")
	flag.StringVar(&flagTransport, "transport", "", "Transport: auto, uart, i2c, spi, pcsc")
	flag.StringVar(&flagDevice, "device", "", "Device path (auto-detect if empty)")
	flag.StringVar(&flagTargetDevice, "target-device", "", "Second reader for clone mode")
	flag.StringVar(&flagHistoryDir, "history-dir", "", "Directory for operation history records")
	flag.StringVar(&flagMode, "mode", "monitor", "Mode: monitor, dump, write, format, clone")
	flag.StringVar(&flagIn, "in", "", "Input file for write mode")
	flag.StringVar(&flagOut, "out", "", "Output file for dump mode (hex to stdout if empty)")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func main() {
	flag.Parse()
	logger := newLogger()

	if err := run(logger); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		logger.Error().Err(err).Msg("reader failed")
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("app", "reader").Logger()
	log.Logger = logger
	return logger
}

func run(logger zerolog.Logger) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	if cfg.Debug {
		tagcore.SetDebugEnabled(true)
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := openTransport(ctx, cfg.Transport, cfg.Device, logger)
	if err != nil {
		return err
	}

	var opts []tagops.Option
	if cfg.HistoryDir != "" {
		store, err := newFileHistory(cfg.HistoryDir)
		if err != nil {
			return err
		}
		opts = append(opts, tagops.WithHistory(store))
	}

	ops, err := tagops.New(transport, opts...)
	if err != nil {
		_ = transport.Close()
		return err
	}
	defer func() { _ = ops.Close() }()

	switch flagMode {
	case "monitor":
		return runMonitor(ctx, ops, logger)
	case "dump":
		return runDump(ctx, ops, logger)
	case "write":
		return runWrite(ctx, ops, logger)
	case "format":
		return runFormat(ctx, ops, logger)
	case "clone":
		return runClone(ctx, ops, cfg, logger)
	default:
		return fmt.Errorf("unknown mode %q", flagMode)
	}
}

func resolveConfig() (config, error) {
	cfg := defaultConfig()
	if flagConfig != "" {
		if err := loadConfig(flagConfig, &cfg); err != nil {
			return config{}, err
		}
	}
	if flagTransport != "" {
		cfg.Transport = strings.ToLower(flagTransport)
	}
	if flagDevice != "" {
		cfg.Device = flagDevice
	}
	if flagTargetDevice != "" {
		cfg.TargetDevice = flagTargetDevice
	}
	if flagHistoryDir != "" {
		cfg.HistoryDir = flagHistoryDir
	}
	if flagDebug {
		cfg.Debug = true
	}
	return cfg, nil
}

// openTransport builds the transport from an explicit device path or
// by auto-detection across the registered detectors.
func openTransport(
	ctx context.Context, transportName, device string, logger zerolog.Logger,
) (tagcore.Transport, error) {
	if device != "" && transportName != "auto" {
		return newTransportForPath(transportName, device)
	}

	detectOpts := detection.DefaultOptions()
	if transportName != "auto" {
		detectOpts.Transports = []string{transportName}
	}

	detectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info, err := detection.First(detectCtx, &detectOpts)
	if err != nil {
		return nil, fmt.Errorf("no reader found: %w", err)
	}
	logger.Info().Str("transport", info.Transport).Str("path", info.Path).
		Msg("using detected reader")
	return newTransportForPath(info.Transport, info.Path)
}

func newTransportForPath(transportName, path string) (tagcore.Transport, error) {
	switch transportName {
	case "uart":
		return uart.New(path)
	case "i2c":
		return i2c.New(path)
	case "spi":
		return spi.New(path)
	case "pcsc":
		return pcsc.New(path)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", transportName)
	}
}

// runMonitor logs every tag entering the field until interrupted.
func runMonitor(ctx context.Context, ops *tagops.Operations, logger zerolog.Logger) error {
	logger.Info().Msg("monitoring for tags, Ctrl-C to stop")
	for {
		handle, err := ops.DetectTag(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		event := logger.Info().
			Str("family", handle.Family.String()).
			Str("uid", handle.UID()).
			Str("manufacturer", handle.Attrs.Manufacturer())
		if region := tagcore.Capacity(handle.Family); region.Known() {
			event = event.Int("capacity_bytes", region.TotalBytes())
		}
		event.Msg("tag detected")

		ops.Release()

		// Let the tag leave the field before polling again.
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func runDump(ctx context.Context, ops *tagops.Operations, logger zerolog.Logger) error {
	logger.Info().Msg("waiting for tag")
	handle, err := ops.DetectTag(ctx)
	if err != nil {
		return err
	}
	logger.Info().Str("family", handle.Family.String()).Str("uid", handle.UID()).
		Msg("reading tag")

	data, err := ops.ReadAll(ctx)
	if err != nil {
		return err
	}

	if flagOut == "" {
		fmt.Print(hex.Dump(data))
		return nil
	}
	if err := os.WriteFile(flagOut, data, 0o600); err != nil {
		return fmt.Errorf("write dump file: %w", err)
	}
	logger.Info().Int("bytes", len(data)).Str("file", flagOut).Msg("dump saved")
	return nil
}

func runWrite(ctx context.Context, ops *tagops.Operations, logger zerolog.Logger) error {
	if flagIn == "" {
		return errors.New("write mode requires -in <file>")
	}
	data, err := os.ReadFile(flagIn)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}

	logger.Info().Msg("waiting for tag")
	handle, err := ops.DetectTag(ctx)
	if err != nil {
		return err
	}
	logger.Info().Str("family", handle.Family.String()).Str("uid", handle.UID()).
		Int("bytes", len(data)).Msg("writing tag")

	written, err := ops.WriteAll(ctx, data)
	if err != nil {
		return err
	}
	if written < len(data) {
		logger.Warn().Int("written", written).Int("requested", len(data)).
			Msg("data truncated to tag capacity")
	} else {
		logger.Info().Int("written", written).Msg("write complete")
	}
	return nil
}

func runFormat(ctx context.Context, ops *tagops.Operations, logger zerolog.Logger) error {
	logger.Info().Msg("waiting for tag")
	handle, err := ops.DetectTag(ctx)
	if err != nil {
		return err
	}
	logger.Info().Str("family", handle.Family.String()).Str("uid", handle.UID()).
		Msg("formatting tag")

	if err := ops.Format(ctx); err != nil {
		return err
	}
	logger.Info().Msg("format complete")
	return nil
}

// runClone copies a tag between two readers. The second reader comes
// from -target-device (same transport selection rules apply); single
// reader copies are a dump followed by a write.
func runClone(ctx context.Context, source *tagops.Operations, cfg config, logger zerolog.Logger) error {
	if cfg.TargetDevice == "" {
		return errors.New("clone mode requires -target-device (or dump then write with one reader)")
	}

	targetTransport, err := openTransport(ctx, cfg.Transport, cfg.TargetDevice, logger)
	if err != nil {
		return fmt.Errorf("open target reader: %w", err)
	}
	target, err := tagops.New(targetTransport)
	if err != nil {
		_ = targetTransport.Close()
		return err
	}
	defer func() { _ = target.Close() }()

	logger.Info().Msg("waiting for source tag")
	srcHandle, err := source.DetectTag(ctx)
	if err != nil {
		return err
	}
	logger.Info().Str("family", srcHandle.Family.String()).Str("uid", srcHandle.UID()).
		Msg("source tag ready")

	logger.Info().Msg("waiting for target tag")
	tgtHandle, err := target.DetectTag(ctx)
	if err != nil {
		return err
	}
	logger.Info().Str("family", tgtHandle.Family.String()).Str("uid", tgtHandle.UID()).
		Msg("target tag ready")

	cloner := tagops.NewCloner(nil)
	result := cloner.Clone(ctx, source, target)
	if !result.Success {
		return errors.New(result.Message)
	}
	logger.Info().Int("bytes", result.BytesCopied).Msg(result.Message)
	return nil
}
