// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hex

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/embeddedgo/particle/elf2bin/internal/cmd/bin"
	"github.com/embeddedgo/particle/elf2bin/internal/util"
	"github.com/marcinbor85/gohex"
)

const Descr = "convert an ELF file to the Intel HEX format with a sealed trailer"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] [ELF [%s]]\nOptions:\n",
			cmd, strings.ToUpper(cmd),
		)
		fs.PrintDefaults()
	}
	extractConfig := bin.ExtractFlags(fs)
	lineLen := fs.Int("line", 16, "number of data bytes per record")
	fs.Parse(args)
	if fs.NArg() > 2 {
		fs.Usage()
		os.Exit(1)
	}
	elf, out := util.InOutFiles(fs.Arg(0), ".elf", fs.Arg(1), ".hex")
	util.FatalErr(cmd, run(elf, out, extractConfig(), *lineLen))
}

func run(elf, out string, cfg util.ExtractConfig, lineLen int) error {
	img, err := bin.Sealed(elf, cfg)
	if err != nil {
		return err
	}
	addr := uint32(img.Addr)
	if uint64(addr) != img.Addr || uint64(addr)+uint64(len(img.Data)) > 1<<32 {
		return fmt.Errorf("the image at %#x doesn't fit in 32-bit address space", img.Addr)
	}
	mem := gohex.NewMemory()
	if err = mem.AddBinary(addr, img.Data); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err = mem.DumpIntelHex(&buf, lineLen); err != nil {
		return fmt.Errorf("dumpintelhex: %w", err)
	}
	return os.WriteFile(out, buf.Bytes(), 0o666)
}
