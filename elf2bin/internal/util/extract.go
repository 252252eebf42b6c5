// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ObjcopyError is returned by Objcopy if the external tool fails.
type ObjcopyError struct {
	Tool   string
	Stderr []byte
	Err    error
}

func (e *ObjcopyError) Unwrap() error {
	return e.Err
}

func (e *ObjcopyError) Error() string {
	s := "`" + e.Tool + "` error: " + e.Err.Error()
	if msg := strings.TrimSpace(string(e.Stderr)); msg != "" {
		s += "\n" + msg
	}
	return s
}

// Objcopy runs the external tool (e.g. arm-none-eabi-objcopy) to convert the
// ELF file to a raw binary and returns the content of the produced file.
func Objcopy(tool, elf string) ([]byte, error) {
	td, err := os.MkdirTemp("", "elf2bin")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(td)
	out := filepath.Join(td, "output")
	cmd := exec.Command(tool, "-O", "binary", elf, out)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &ObjcopyError{tool, stderr.Bytes(), err}
	}
	return os.ReadFile(out)
}

// Image is a raw program image that starts at the Addr address in the
// Flash/ROM.
type Image struct {
	Addr uint64
	Data []byte
}

// ExtractConfig selects the way Extract obtains the raw image.
type ExtractConfig struct {
	Objcopy string // external tool; empty means the built-in ELF reader
	Pad     byte   // gap fill byte (built-in reader only)
	Inc     string // additional binaries BIN1:ADDR1,... (built-in reader only)
	Verbose bool   // print the section table to stderr
}

// Extract reads the loadable content of the ELF file.
func Extract(elf string, cfg ExtractConfig) (img Image, err error) {
	sections, err := ReadELF(elf)
	if err != nil {
		return
	}
	if cfg.Inc != "" {
		if cfg.Objcopy != "" {
			err = errors.New("-inc cannot be used with an external objcopy")
			return
		}
		var isec Sections
		isec, err = ReadBins(cfg.Inc)
		if err != nil {
			return
		}
		sections = append(sections, isec...)
	}
	sections.SortByPaddr()
	if cfg.Verbose {
		sections.Print(os.Stderr)
	}
	img.Addr = sections[0].Paddr
	if cfg.Objcopy != "" {
		img.Data, err = Objcopy(cfg.Objcopy, elf)
		return
	}
	buf := bytes.NewBuffer(make([]byte, 0, sections.Size()*5/4))
	_, err = sections.Flatten(buf, cfg.Pad)
	img.Data = buf.Bytes()
	return
}
