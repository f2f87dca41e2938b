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

// Command esploader loads an ELF image into ESP8266 RAM through the ROM
// bootloader and starts it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-esprom"
	"github.com/ZaparooProject/go-esprom/detection"
	"github.com/ZaparooProject/go-esprom/firmware"
	"github.com/ZaparooProject/go-esprom/transport/uart"
)

// serialPort is an open serial port the client can drive.
type serialPort interface {
	esprom.Port
	io.Closer
}

// deps holds the hardware-facing functions. Tests replace them.
type deps struct {
	loadImage func(path string) (*esprom.Image, error)
	detect    func(ctx context.Context, opts *detection.Options) ([]detection.PortInfo, error)
	open      func(name string, baud int) (serialPort, error)
}

func defaultDeps() deps {
	return deps{
		loadImage: firmware.LoadFile,
		detect:    detection.Detect,
		open: func(name string, baud int) (serialPort, error) {
			return uart.Open(name, baud)
		},
	}
}

func newLogger(out io.Writer, debug bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "esploader").Logger()
}

// logObserver forwards protocol events to the logger at debug level.
func logObserver(logger *zerolog.Logger) esprom.Observer {
	return func(ev esprom.Event) {
		entry := logger.Debug().Str("event", ev.Kind.String())
		switch ev.Kind {
		case esprom.EventFrameSent:
			entry = entry.Stringer("op", ev.Op).Int("size", ev.Size).Uint32("checksum", ev.Checksum)
		case esprom.EventHeaderParsed, esprom.EventResponseDiscarded:
			entry = entry.Stringer("op", ev.Op)
			if ev.Header != nil {
				entry = entry.Stringer("reply_op", ev.Header.Opcode).Uint32("value", ev.Header.Value)
			}
		case esprom.EventRetry:
			entry = entry.Stringer("op", ev.Op).Int("attempt", ev.Attempt).AnErr("cause", ev.Err)
		case esprom.EventStateChange:
			entry = entry.Stringer("state", ev.State).Int("attempt", ev.Attempt)
		case esprom.EventSegmentBegin:
			entry = entry.Int("segment", ev.Segment).Int("size", ev.Size).
				Str("address", fmt.Sprintf("0x%08x", ev.Address))
		case esprom.EventBlockWritten:
			entry = entry.Int("segment", ev.Segment).Int("block", ev.Block).Int("size", ev.Size)
		}
		entry.Msg("protocol event")
	}
}

// selectPort returns the configured port, or the best auto-detected one.
func selectPort(ctx context.Context, cfg *config, d deps, logger *zerolog.Logger) (string, error) {
	if cfg.port != "" {
		return cfg.port, nil
	}

	opts := detection.DefaultOptions()
	opts.Baud = cfg.baud
	opts.IgnorePaths = cfg.ignorePaths
	if cfg.probe {
		opts.Mode = detection.Probe
	}

	logger.Info().Msg("no port given, auto-detecting")
	ports, err := d.detect(ctx, &opts)
	if err != nil {
		return "", fmt.Errorf("auto-detect port: %w", err)
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("auto-detect port: %w", detection.ErrNoPortsFound)
	}
	for _, p := range ports[1:] {
		logger.Debug().Str("port", p.String()).Msg("other candidate")
	}
	logger.Info().Str("port", ports[0].Path).Stringer("confidence", ports[0].Confidence).Msg("port detected")
	return ports[0].Path, nil
}

func run(ctx context.Context, cfg *config, d deps, logger *zerolog.Logger) error {
	img, err := d.loadImage(cfg.imagePath)
	if err != nil {
		return err
	}
	logger.Info().
		Str("image", cfg.imagePath).
		Int("segments", len(img.Segments)).
		Int("bytes", img.Size()).
		Str("entry", fmt.Sprintf("0x%08x", img.Entry)).
		Msg("image loaded")

	portName, err := selectPort(ctx, cfg, d, logger)
	if err != nil {
		return err
	}

	port, err := d.open(portName, cfg.baud)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := port.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("failed to close port")
		}
	}()

	client, err := esprom.New(port,
		esprom.WithPortName(portName),
		esprom.WithTimeouts(cfg.timeouts),
		esprom.WithResetDelays(cfg.resetDelay, cfg.bootDelay),
		esprom.WithRetryConfig(&esprom.RetryConfig{MaxAttempts: cfg.connectAttempts}),
		esprom.WithObserver(logObserver(logger)),
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	start := time.Now()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	logger.Info().Str("port", portName).Int("baud", cfg.baud).Msg("bootloader synced")

	if err := client.LoadRAM(ctx, img); err != nil {
		return err
	}
	logger.Info().
		Str("entry", fmt.Sprintf("0x%08x", img.Entry)).
		Dur("elapsed", time.Since(start)).
		Msg("image running")
	return nil
}

// runCLI parses args, runs the loader and returns the process exit code.
func runCLI(ctx context.Context, args []string, stderr io.Writer, d deps) int {
	cfg, err := parseConfig(args, stderr)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	case err != nil:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.debug {
		esprom.SetDebugEnabled(true)
	}
	logger := newLogger(stderr, cfg.debug)

	if cfg.logDir != "" {
		path, logErr := esprom.InitSessionLog(cfg.logDir)
		if logErr != nil {
			logger.Warn().Err(logErr).Msg("session log disabled")
		} else {
			logger.Info().Str("path", path).Msg("session log")
			defer func() { _ = esprom.CloseSessionLog() }()
		}
	}

	if err := run(ctx, cfg, d, &logger); err != nil {
		logger.Error().Err(err).Str("class", esprom.Classify(err)).Msg("load failed")
		_, _ = fmt.Fprintf(stderr, "Error: %s: %v\n", esprom.Classify(err), err)
		return 1
	}
	return 0
}

func mainWithExitCode() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runCLI(ctx, os.Args[1:], os.Stderr, defaultDeps())
}

func main() {
	os.Exit(mainWithExitCode())
}
