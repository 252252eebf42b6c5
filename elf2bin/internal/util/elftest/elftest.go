// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elftest writes minimal ARM ELF32 executables for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"testing"
)

// Section describes a loadable section. Each section is placed in its own
// PT_LOAD segment.
type Section struct {
	Name  string
	Vaddr uint32
	Paddr uint32
	Data  []byte
}

const (
	ehsize = 52
	phsize = 32
	shsize = 40
)

// Bytes returns the ELF file containing ss.
func Bytes(ss []Section) []byte {
	shstr := []byte{0}
	names := make([]uint32, len(ss))
	for i, s := range ss {
		names[i] = uint32(len(shstr))
		shstr = append(shstr, s.Name...)
		shstr = append(shstr, 0)
	}
	shstrName := uint32(len(shstr))
	shstr = append(shstr, ".shstrtab\x00"...)

	off := uint32(ehsize + phsize*len(ss))
	offs := make([]uint32, len(ss))
	for i, s := range ss {
		offs[i] = off
		off += uint32(len(s.Data))
	}
	shstrOff := off
	shoff := (shstrOff + uint32(len(shstr)) + 3) &^ 3

	h := elf.Header32{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     ss[0].Vaddr,
		Phoff:     ehsize,
		Shoff:     shoff,
		Ehsize:    ehsize,
		Phentsize: phsize,
		Phnum:     uint16(len(ss)),
		Shentsize: shsize,
		Shnum:     uint16(len(ss) + 2),
		Shstrndx:  uint16(len(ss) + 1),
	}
	copy(h.Ident[:], elf.ELFMAG)
	h.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	h.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	h.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	buf := new(bytes.Buffer)
	le := binary.LittleEndian
	binary.Write(buf, le, &h)
	for i, s := range ss {
		n := uint32(len(s.Data))
		binary.Write(buf, le, &elf.Prog32{
			Type:   uint32(elf.PT_LOAD),
			Off:    offs[i],
			Vaddr:  s.Vaddr,
			Paddr:  s.Paddr,
			Filesz: n,
			Memsz:  n,
			Flags:  uint32(elf.PF_R | elf.PF_X),
			Align:  1,
		})
	}
	for _, s := range ss {
		buf.Write(s.Data)
	}
	buf.Write(shstr)
	for uint32(buf.Len()) < shoff {
		buf.WriteByte(0)
	}
	binary.Write(buf, le, &elf.Section32{})
	for i, s := range ss {
		binary.Write(buf, le, &elf.Section32{
			Name:      names[i],
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Addr:      s.Vaddr,
			Off:       offs[i],
			Size:      uint32(len(s.Data)),
			Addralign: 1,
		})
	}
	binary.Write(buf, le, &elf.Section32{
		Name:      shstrName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       shstrOff,
		Size:      uint32(len(shstr)),
		Addralign: 1,
	})
	return buf.Bytes()
}

// Write writes the ELF file containig ss to name.
func Write(t testing.TB, name string, ss []Section) {
	t.Helper()
	if err := os.WriteFile(name, Bytes(ss), 0o666); err != nil {
		t.Fatal(err)
	}
}
