// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/embeddedgo/particle/elf2bin/internal/util"
)

type fakeConn struct {
	ops    []string
	flash  map[uint32]byte
	ptr    uint32
	failAt int
}

var errFake = errors.New("fake failure")

func (c *fakeConn) op(f string, args ...any) error {
	c.ops = append(c.ops, fmt.Sprintf(f, args...))
	if c.failAt != 0 && len(c.ops) == c.failAt {
		return errFake
	}
	return nil
}

func (c *fakeConn) Erase(addr uint32) error { return c.op("erase %#x", addr) }

func (c *fakeConn) SetAddress(addr uint32) error {
	c.ptr = addr
	return c.op("addr %#x", addr)
}

func (c *fakeConn) Download(blk uint16, p []byte) error {
	a := c.ptr + uint32(blk-2)*4
	for i, b := range p {
		c.flash[a+uint32(i)] = b
	}
	return c.op("dnload %d %d", blk, len(p))
}

func (c *fakeConn) Leave(addr uint32) error { return c.op("leave %#x", addr) }

func TestFlash(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	c := &fakeConn{flash: make(map[uint32]byte)}
	var steps []int
	progress := func(cur, max int) { steps = append(steps, cur) }
	if err := flash(c, 0x0802_0ffe, data, 0x1000, 4, progress); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"erase 0x8020000",
		"erase 0x8021000",
		"addr 0x8020ffe",
		"dnload 2 4",
		"dnload 3 4",
		"dnload 4 2",
		"leave 0x8020ffe",
	}
	if !slices.Equal(c.ops, want) {
		t.Fatalf("got %q\nwant %q", c.ops, want)
	}
	for i, b := range data {
		if got := c.flash[0x0802_0ffe+uint32(i)]; got != b {
			t.Fatalf("flash[%d] = %d, want %d", i, got, b)
		}
	}
	if !slices.Equal(steps, []int{0, 4, 8, 10}) {
		t.Errorf("progress %v", steps)
	}
}

func TestFlashError(t *testing.T) {
	c := &fakeConn{flash: make(map[uint32]byte), failAt: 3}
	err := flash(c, 0x080a_0000, make([]byte, 100), 128*1024, 16, nil)
	if !errors.Is(err, errFake) {
		t.Fatalf("got %v", err)
	}
	if len(c.ops) != 3 {
		t.Fatalf("continued after error: %q", c.ops)
	}
	if err := flash(c, 0x080a_0000, nil, 128*1024, 16, nil); err == nil {
		t.Fatal("empty image accepted")
	}
}

func TestPlatforms(t *testing.T) {
	name, ok := platformByID(util.USBID{Vendor: 0x2b04, Product: 0xd00a})
	if !ok || name != "electron" {
		t.Fatalf("got %q %v", name, ok)
	}
	if _, ok := platformByID(util.USBID{Vendor: 0x0483, Product: 0xdf11}); ok {
		t.Fatal("stm32 bootloader treated as Particle device")
	}
	for name, p := range platforms {
		if p.addr%p.sector != 0 {
			t.Errorf("%s: address %#x not sector aligned", name, p.addr)
		}
	}
}
