// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"errors"

	"github.com/embeddedgo/particle/elf2bin/internal/dfu"
	"github.com/embeddedgo/particle/elf2bin/internal/util"
)

// flasher is the subset of *dfu.Conn used to write the Flash.
type flasher interface {
	Erase(addr uint32) error
	SetAddress(addr uint32) error
	Download(blockNum uint16, p []byte) error
	Leave(addr uint32) error
}

func dfuDev(ids []util.USBID, img util.Image, addr uint32, busAddr string, quiet bool) {
	conn, err := dfu.Connect(ids, busAddr, 1)
	util.FatalErr("", err)
	defer conn.Close()

	name, _ := platformByID(conn.ID)
	p := platforms[name]
	if !quiet {
		util.Warn("Found %s (%s) in DFU mode", p.descr, conn.ID)
	}
	if addr == 0 {
		addr = p.addr
	}
	if uint64(addr) != img.Addr && !quiet {
		util.Warn("image linked at %#x, loading at %#x", img.Addr, addr)
	}
	if len(img.Data) > p.maxSize {
		util.Fatal(
			"image too large for %s: %d bytes (max %d)",
			p.descr, len(img.Data), p.maxSize,
		)
	}
	var progress func(cur, max int)
	if !quiet {
		progress = func(cur, max int) {
			util.Progress("Loading:", cur, max, 1024, "KiB")
		}
	}
	util.FatalErr("", flash(conn, addr, img.Data, p.sector, p.blkSize, progress))
}

// flash erases the sectors that will hold data, writes data at addr and
// makes the device start the new program.
func flash(c flasher, addr uint32, data []byte, sector uint32, blkSize int, progress func(cur, max int)) error {
	if len(data) == 0 {
		return errors.New("empty image")
	}
	end := uint64(addr) + uint64(len(data))
	for a := uint64(addr &^ (sector - 1)); a < end; a += uint64(sector) {
		if err := c.Erase(uint32(a)); err != nil {
			return err
		}
	}
	if err := c.SetAddress(addr); err != nil {
		return err
	}
	blkNum := uint16(2)
	for i := 0; i < len(data); i += blkSize {
		if progress != nil {
			progress(i, len(data))
		}
		blk := data[i:]
		if len(blk) > blkSize {
			blk = blk[:blkSize]
		}
		if err := c.Download(blkNum, blk); err != nil {
			return err
		}
		blkNum++
	}
	if progress != nil {
		progress(len(data), len(data))
	}
	return c.Leave(addr)
}
