// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/embeddedgo/particle/elf2bin/internal/trailer"
	"github.com/embeddedgo/particle/elf2bin/internal/util"
)

const Descr = "verify the trailer of binary images"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS] BIN...\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	quiet := fs.Bool("q", false, "report only failures")
	fs.Parse(args)
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}
	w := io.Writer(os.Stdout)
	if *quiet {
		w = io.Discard
	}
	failed := false
	for _, name := range fs.Args() {
		if err := check(w, name); err != nil {
			util.Warn("%s: %v", name, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func check(w io.Writer, name string) error {
	img, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	t, err := trailer.Verify(img)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: sha256 %x crc32 %08x ok\n", name, t.Digest, t.CRC)
	return nil
}
