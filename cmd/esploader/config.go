// Copyright 2026 The Zaparoo Project Contributors.
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
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ZaparooProject/go-esprom"
	"github.com/ZaparooProject/go-esprom/transport/uart"
)

// errUsage marks command line mistakes; they exit with status 2.
var errUsage = errors.New("usage error")

type config struct {
	imagePath       string
	port            string
	logDir          string
	ignorePaths     []string
	timeouts        esprom.Timeouts
	baud            int
	connectAttempts int
	resetDelay      time.Duration
	bootDelay       time.Duration
	debug           bool
	probe           bool
}

func defaultConfig() *config {
	return &config{
		baud:            uart.DefaultBaudRate,
		timeouts:        esprom.DefaultTimeouts(),
		connectAttempts: esprom.ConnectAttempts,
		resetDelay:      esprom.ResetHoldDelay,
		bootDelay:       esprom.ResetBootDelay,
	}
}

// fileConfig mirrors the TOML configuration file.
type fileConfig struct {
	Port            string   `toml:"port"`
	DefaultTimeout  string   `toml:"default_timeout"`
	SyncTimeout     string   `toml:"sync_timeout"`
	ResetDelay      string   `toml:"reset_delay"`
	BootDelay       string   `toml:"boot_delay"`
	IgnorePaths     []string `toml:"ignore_paths"`
	Baud            int      `toml:"baud"`
	ConnectAttempts int      `toml:"connect_attempts"`
	Debug           bool     `toml:"debug"`
	Probe           bool     `toml:"probe"`
}

// loadFileConfig applies the keys present in the TOML file at path.
func loadFileConfig(path string, cfg *config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("port") {
		cfg.port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		cfg.baud = raw.Baud
	}
	if meta.IsDefined("connect_attempts") {
		cfg.connectAttempts = raw.ConnectAttempts
	}
	if meta.IsDefined("debug") {
		cfg.debug = raw.Debug
	}
	if meta.IsDefined("probe") {
		cfg.probe = raw.Probe
	}
	if meta.IsDefined("ignore_paths") {
		cfg.ignorePaths = raw.IgnorePaths
	}

	durations := []struct {
		dst  *time.Duration
		key  string
		text string
	}{
		{key: "default_timeout", text: raw.DefaultTimeout, dst: &cfg.timeouts.Default},
		{key: "sync_timeout", text: raw.SyncTimeout, dst: &cfg.timeouts.Sync},
		{key: "reset_delay", text: raw.ResetDelay, dst: &cfg.resetDelay},
		{key: "boot_delay", text: raw.BootDelay, dst: &cfg.bootDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.text))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	return nil
}

// parseConfig reads the command line. Flags override the config file.
func parseConfig(args []string, output io.Writer) (*config, error) {
	fs := flag.NewFlagSet("esploader", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(output, "Usage: esploader [flags] <image.elf>\n\n"+
			"Loads an ESP8266 ELF image into RAM through the ROM bootloader and runs it.\n\n")
		fs.PrintDefaults()
	}

	var (
		flagPort   string
		flagBaud   int
		flagConfig string
		flagDebug  bool
		flagLogDir string
		flagProbe  bool
	)
	fs.StringVar(&flagPort, "port", "", "Serial port (auto-detect if empty)")
	fs.IntVar(&flagBaud, "baud", uart.DefaultBaudRate, "Baud rate")
	fs.StringVar(&flagConfig, "config", "", "TOML configuration file")
	fs.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	fs.StringVar(&flagLogDir, "log", "", "Directory for a session log file")
	fs.BoolVar(&flagProbe, "probe", false, "Sync with each candidate port during auto-detection")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("%w: expected one image path, got %d arguments", errUsage, fs.NArg())
	}

	cfg := defaultConfig()
	if flagConfig != "" {
		if err := loadFileConfig(flagConfig, cfg); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.port = flagPort
		case "baud":
			cfg.baud = flagBaud
		case "debug":
			cfg.debug = flagDebug
		case "probe":
			cfg.probe = flagProbe
		}
	})
	cfg.logDir = flagLogDir
	cfg.imagePath = fs.Arg(0)

	if cfg.baud <= 0 {
		return nil, fmt.Errorf("%w: baud rate must be positive", errUsage)
	}
	if cfg.connectAttempts < 1 {
		return nil, fmt.Errorf("%w: connect_attempts must be at least 1", errUsage)
	}
	return cfg, nil
}
