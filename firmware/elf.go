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

// Package firmware turns ESP8266 ELF executables into RAM images for
// esprom.Client.LoadRAM.
package firmware

import (
	"bytes"
	"debug/elf"
	"fmt"
	"os"

	"github.com/ZaparooProject/go-esprom"
)

// Flash-mapped instruction ROM window of the ESP8266. Sections linked here
// execute from SPI flash and cannot be loaded through the RAM commands.
const (
	IROMStart = 0x40200000
	IROMEnd   = 0x40300000
)

// IsRAMAddress reports whether addr lies outside the flash-mapped window.
func IsRAMAddress(addr uint32) bool {
	return addr < IROMStart || addr >= IROMEnd
}

// LoadFile reads and parses the ELF file at path.
func LoadFile(path string) (*esprom.Image, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is supplied by the user
	if err != nil {
		return nil, &esprom.ImageError{Reason: "read " + path, Err: err}
	}
	return ParseELF(raw)
}

// ParseELF extracts the RAM segments and entry point from a 32-bit
// little-endian Xtensa ELF executable.
//
// A section becomes a segment when it is allocated, carries file contents
// (SHT_PROGBITS), is not empty, and is linked outside the IROM window.
// Segments keep the section order of the file.
func ParseELF(raw []byte) (*esprom.Image, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, &esprom.ImageError{Reason: "parse ELF", Err: err}
	}
	defer func() { _ = f.Close() }()

	if err := checkHeader(&f.FileHeader); err != nil {
		return nil, err
	}
	if f.Entry > 0xFFFFFFFF {
		return nil, &esprom.ImageError{Reason: fmt.Sprintf("entry point 0x%X beyond 32 bits", f.Entry)}
	}

	img := &esprom.Image{Entry: uint32(f.Entry)}
	for _, sec := range f.Sections {
		if !isRAMSection(sec) {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, &esprom.ImageError{Reason: "read section " + sec.Name, Err: err}
		}
		img.Segments = append(img.Segments, esprom.Segment{
			Name:    sec.Name,
			Address: uint32(sec.Addr),
			Data:    data,
		})
		esprom.Debugf("segment %s: %d bytes at 0x%08X", sec.Name, len(data), sec.Addr)
	}

	if len(img.Segments) == 0 {
		return nil, &esprom.ImageError{Reason: "no RAM segments"}
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

func checkHeader(hdr *elf.FileHeader) error {
	switch {
	case hdr.Class != elf.ELFCLASS32:
		return &esprom.ImageError{Reason: fmt.Sprintf("unsupported ELF class %s", hdr.Class)}
	case hdr.Data != elf.ELFDATA2LSB:
		return &esprom.ImageError{Reason: fmt.Sprintf("unsupported byte order %s", hdr.Data)}
	case hdr.Machine != elf.EM_XTENSA:
		return &esprom.ImageError{Reason: fmt.Sprintf("unsupported machine %s", hdr.Machine)}
	case hdr.Type != elf.ET_EXEC:
		return &esprom.ImageError{Reason: fmt.Sprintf("not an executable (%s)", hdr.Type)}
	}
	return nil
}

func isRAMSection(sec *elf.Section) bool {
	return sec.Type == elf.SHT_PROGBITS &&
		sec.Flags&elf.SHF_ALLOC != 0 &&
		sec.Size > 0 &&
		sec.Addr <= 0xFFFFFFFF &&
		IsRAMAddress(uint32(sec.Addr))
}
