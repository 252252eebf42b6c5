// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bin

import (
	"encoding/binary"
	"io"
)

// UF2 flags
const (
	uf2NotMainFlash         = 0x00000001
	uf2FileContainer        = 0x00001000
	uf2FamilyIDPresent      = 0x00002000
	uf2MD5ChecksumPresent   = 0x00004000
	uf2ExtensionTagsPresent = 0x00008000
)

const (
	uf2Magic0   = 0x0a324655
	uf2Magic1   = 0x9e5d5157
	uf2Magic2   = 0x0ab16f30
	uf2DataSize = 256
)

var uf2FamilyMap = map[string]uint32{
	"stm32f2":       0x5d1a0a2e, // photon, p1, electron
	"nrf52840":      0xada52840, // argon, boron, xenon
	"rp2040":        0xe48bff56,
	"absolute":      0xe48bff57,
	"data":          0xe48bff58,
	"rp2350_arm_s":  0xe48bff59,
	"rp2350_riscv":  0xe48bff5a,
	"rp2350_arm_ns": 0xe48bff5b,
}

type uf2block struct {
	Magic0 uint32
	Magic1 uint32
	Flags  uint32
	Addr   uint32
	Len    uint32
	Seq    uint32
	Total  uint32
	Family uint32
	Data   [uf2DataSize]byte
	_      [476 - uf2DataSize]byte
	Magic2 uint32
}

// uf2Writer splits the written image into 512-byte UF2 blocks, each carrying
// 256 bytes of payload. The last block is zero padded by Flush.
type uf2Writer struct {
	w   io.Writer
	b   uf2block
	err error
}

func newUF2Writer(w io.Writer, addr, flags, family uint32, size int) *uf2Writer {
	u := &uf2Writer{w: w}
	u.b.Magic0 = uf2Magic0
	u.b.Magic1 = uf2Magic1
	u.b.Flags = flags
	u.b.Addr = addr
	u.b.Total = uint32((size + uf2DataSize - 1) / uf2DataSize)
	u.b.Family = family
	u.b.Magic2 = uf2Magic2
	return u
}

func (u *uf2Writer) writeBlock() error {
	b := &u.b
	u.err = binary.Write(u.w, binary.LittleEndian, b)
	b.Addr += b.Len
	b.Seq++
	b.Len = 0
	return u.err
}

func (u *uf2Writer) Write(p []byte) (n int, err error) {
	if u.err != nil {
		return 0, u.err
	}
	b := &u.b
	for len(p) != 0 {
		m := copy(b.Data[b.Len:], p)
		n += m
		p = p[m:]
		b.Len += uint32(m)
		if b.Len == uf2DataSize {
			if err = u.writeBlock(); err != nil {
				return
			}
		}
	}
	return
}

// Flush writes the incomplete last block.
func (u *uf2Writer) Flush() error {
	if u.err != nil || u.b.Len == 0 {
		return u.err
	}
	clear(u.b.Data[u.b.Len:])
	u.b.Len = uf2DataSize
	return u.writeBlock()
}
