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

package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// config is the effective runtime configuration: file values first,
// command line flags override.
type config struct {
	Transport    string
	Device       string
	TargetDevice string
	HistoryDir   string
	LogLevel     string
	Debug        bool
}

func defaultConfig() config {
	return config{
		Transport: "auto",
		LogLevel:  "info",
	}
}

type fileConfig struct {
	Transport    string `toml:"transport"`
	Device       string `toml:"device"`
	TargetDevice string `toml:"target_device"`
	HistoryDir   string `toml:"history_dir"`
	LogLevel     string `toml:"log_level"`
	Debug        bool   `toml:"debug"`
}

// loadConfig reads a TOML config file into cfg. Only keys present in
// the file override the defaults.
func loadConfig(path string, cfg *config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("device") {
		cfg.Device = strings.TrimSpace(raw.Device)
	}
	if meta.IsDefined("target_device") {
		cfg.TargetDevice = strings.TrimSpace(raw.TargetDevice)
	}
	if meta.IsDefined("history_dir") {
		cfg.HistoryDir = strings.TrimSpace(raw.HistoryDir)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}

	switch cfg.Transport {
	case "auto", "uart", "i2c", "spi", "pcsc":
	default:
		return fmt.Errorf("unknown transport %q in config", cfg.Transport)
	}
	return nil
}
