// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/embeddedgo/particle/elf2bin/internal/cmd/bin"
	"github.com/embeddedgo/particle/elf2bin/internal/util"
)

const Descr = "seal the program and load it onto a Particle device via USB DFU"

type platform struct {
	id       util.USBID
	addr     uint32 // user firmware address
	maxSize  int    // size of the user firmware region
	sector   uint32 // erase unit
	blkSize  int
	descr   string
}

var platforms = map[string]platform{
	"photon":   {util.USBID{Vendor: 0x2b04, Product: 0xd006}, 0x080a_0000, 128 * 1024, 128 * 1024, 1024, "Photon"},
	"p1":       {util.USBID{Vendor: 0x2b04, Product: 0xd008}, 0x080a_0000, 128 * 1024, 128 * 1024, 1024, "P1"},
	"electron": {util.USBID{Vendor: 0x2b04, Product: 0xd00a}, 0x0808_0000, 128 * 1024, 128 * 1024, 1024, "Electron"},
}

func platformByID(id util.USBID) (string, bool) {
	for name, p := range platforms {
		if p.id == id {
			return name, true
		}
	}
	return "", false
}

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] [ELF]\nOptions:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
	names := slices.Sorted(maps.Keys(platforms))
	target := fs.String(
		"target", "auto", "select the target device:\n"+
			"auto:   try to determine the target device automatically\n"+
			strings.Join(names, "\n"),
	)
	busAddr := fs.String("usb", "", "select the USB device by `BUS:ADDR`")
	addr := fs.Uint("addr", 0, "load `address` (default: the user firmware address of the target)")
	quiet := fs.Bool("quiet", false, "do not print diagnostic information")
	extractConfig := bin.ExtractFlags(fs)
	fs.Parse(args)
	if fs.NArg() > 1 {
		fs.Usage()
		os.Exit(1)
	}
	if *addr > 0xffff_ffff {
		util.Fatal("load address out of range: %#x", *addr)
	}
	var ids []util.USBID
	if *target == "auto" {
		for _, name := range names {
			ids = append(ids, platforms[name].id)
		}
	} else {
		p, ok := platforms[*target]
		if !ok {
			util.Fatal("unknown target: %s", *target)
		}
		ids = []util.USBID{p.id}
	}
	elf, _ := util.InOutFiles(fs.Arg(0), ".elf", "", "")
	img, err := bin.Sealed(elf, extractConfig())
	util.FatalErr(cmd, err)
	dfuDev(ids, img, uint32(*addr), *busAddr, *quiet)
}
