// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bin

import (
	"bytes"
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/embeddedgo/particle/elf2bin/internal/trailer"
	"github.com/embeddedgo/particle/elf2bin/internal/util"
)

const (
	DescrBin = "convert an ELF file to a flashable binary image with a sealed trailer"
	DescrUF2 = "convert an ELF file to the UF2 format with a sealed trailer"
)

// ExtractFlags registers the flags that control how the raw image is
// extracted from the ELF file.
func ExtractFlags(fs *flag.FlagSet) func() util.ExtractConfig {
	objcopy := fs.String(
		"objcopy", "",
		"external `tool` used to extract the raw image, e.g. arm-none-eabi-objcopy\n"+
			"(the built-in ELF reader is used if empty)",
	)
	inc := fs.String(
		"inc", "",
		"binary files to be included BIN1:ADDR1[,BIN2:ADDR2[,...]]",
	)
	pad := fs.Uint(
		"pad", 0xff,
		"pad `byte` used to fill gaps between sections",
	)
	verbose := fs.Bool("v", false, "print the loadable sections")
	return func() util.ExtractConfig {
		if *pad > 0xff {
			util.Fatal("pad byte out of range: %#x", *pad)
		}
		return util.ExtractConfig{
			Objcopy: *objcopy,
			Pad:     byte(*pad),
			Inc:     *inc,
			Verbose: *verbose,
		}
	}
}

// Sealed extracts the raw image from the ELF file and seals its trailer.
func Sealed(elf string, cfg util.ExtractConfig) (util.Image, error) {
	img, err := util.Extract(elf, cfg)
	if err != nil {
		return img, fmt.Errorf("extract: %w", err)
	}
	img.Data, err = trailer.Seal(img.Data)
	if err != nil {
		return img, fmt.Errorf("%s: %w", elf, err)
	}
	return img, nil
}

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
	extractConfig := ExtractFlags(fs)
	var family string
	if cmd == "uf2" {
		fs.StringVar(
			&family, "family", "",
			"UF2 family `ID` (32-bit number) or a known family name:\n"+
				strings.Join(slices.Sorted(maps.Keys(uf2FamilyMap)), "\n"),
		)
	}
	fs.Parse(args)
	if fs.NArg() > 2 {
		fs.Usage()
		os.Exit(1)
	}
	elf, out := util.InOutFiles(fs.Arg(0), ".elf", fs.Arg(1), "."+cmd)
	var (
		flags    uint32
		familyID uint32
	)
	if family != "" {
		var ok bool
		familyID, ok = uf2FamilyMap[family]
		if !ok {
			u, err := strconv.ParseUint(family, 0, 32)
			if err != nil {
				util.Fatal(`uf2: bad family ID: "%s"`, family)
			}
			familyID = uint32(u)
		}
		flags = uf2FamilyIDPresent
	}
	util.FatalErr(cmd, run(cmd, elf, out, extractConfig(), flags, familyID))
}

func run(cmd, elf, out string, cfg util.ExtractConfig, flags, familyID uint32) error {
	img, err := Sealed(elf, cfg)
	if err != nil {
		return err
	}
	var data []byte
	switch cmd {
	case "bin":
		data = img.Data
	case "uf2":
		addr := uint32(img.Addr)
		if uint64(addr) != img.Addr {
			return fmt.Errorf("the target address %#x doesn't fit in 32 bits", img.Addr)
		}
		buf := bytes.NewBuffer(make([]byte, 0, len(img.Data)*2))
		w := newUF2Writer(buf, addr, flags, familyID, len(img.Data))
		// Writes to bytes.Buffer never fail.
		w.Write(img.Data)
		w.Flush()
		data = buf.Bytes()
	default:
		return fmt.Errorf("unknown output format: %s", cmd)
	}
	return os.WriteFile(out, data, 0o666)
}
