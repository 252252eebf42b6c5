// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Elf2bin converts ELF files into binary images compatible with the Particle
// bootloader (photon, p1, electron). The last 38 bytes of the raw image must
// hold the unsealed module trailer: elf2bin fills it with the SHA-256 digest
// of the image and appends its CRC-32.
package main

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/embeddedgo/particle/elf2bin/internal/cmd/bin"
	"github.com/embeddedgo/particle/elf2bin/internal/cmd/check"
	"github.com/embeddedgo/particle/elf2bin/internal/cmd/hex"
	"github.com/embeddedgo/particle/elf2bin/internal/cmd/load"
)

type tool struct {
	descr string
	main  func(cmd string, args []string)
}

var tools = map[string]tool{
	"bin":   {bin.DescrBin, bin.Main},
	"check": {check.Descr, check.Main},
	"hex":   {hex.Descr, hex.Main},
	"load":  {load.Descr, load.Main},
	"uf2":   {bin.DescrUF2, bin.Main},
}

func printToolList() {
	names := slices.Sorted(maps.Keys(tools))
	maxLen := 0
	for _, k := range names {
		if maxLen < len(k) {
			maxLen = len(k)
		}
	}
	uw := os.Stderr
	uw.WriteString("Usage:\n  elf2bin COMMAND [ARGUMENTS]\n\n")
	uw.WriteString("Available commands:\n")
	for _, name := range names {
		fmt.Fprintf(uw, "  %*s  %s\n", maxLen, name, tools[name].descr)
	}
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" {
		printToolList()
		return
	}
	tool, ok := tools[os.Args[1]]
	if !ok {
		printToolList()
		os.Exit(1)
	}
	tool.main(os.Args[1], os.Args[2:])
}
