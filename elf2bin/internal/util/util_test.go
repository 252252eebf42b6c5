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
	"runtime"
	"strings"
	"testing"

	"github.com/embeddedgo/particle/elf2bin/internal/util/elftest"
	usb "github.com/google/gousb"
)

func TestFlatten(t *testing.T) {
	ss := Sections{
		{Name: ".data", Paddr: 0x106, Data: []byte{6, 7}},
		{Name: ".text", Paddr: 0x100, Data: []byte{1, 2, 3}},
		{Name: ".tail", Paddr: 0x108, Data: []byte{8}},
	}
	var buf bytes.Buffer
	n, err := ss.Flatten(&buf, 0xff)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 0xff, 0xff, 0xff, 6, 7, 8}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got %x, want %x", buf.Bytes(), want)
	}
	if n != len(want) {
		t.Fatalf("n = %d, want %d", n, len(want))
	}
	if ss[0].Name != ".text" {
		t.Fatalf("sections not sorted: %s", ss[0].Name)
	}
	if ss.Size() != 6 {
		t.Fatalf("Size() = %d", ss.Size())
	}
}

func TestFlattenOverlap(t *testing.T) {
	ss := Sections{
		{Name: "a", Paddr: 0x10, Data: make([]byte, 4)},
		{Name: "b", Paddr: 0x12, Data: make([]byte, 4)},
	}
	if _, err := ss.Flatten(new(bytes.Buffer), 0); err == nil {
		t.Fatal("overlap not detected")
	}
}

func TestReadBins(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(a, []byte("abc"), 0o666); err != nil {
		t.Fatal(err)
	}
	ss, err := ReadBins(a + ":0x8000")
	if err != nil {
		t.Fatal(err)
	}
	if len(ss) != 1 || ss[0].Paddr != 0x8000 || string(ss[0].Data) != "abc" {
		t.Fatalf("bad section: %+v", ss[0])
	}
	for _, bad := range []string{"noaddr", a + ":zz", filepath.Join(dir, "none") + ":1"} {
		if _, err := ReadBins(bad); err == nil {
			t.Errorf("%s: no error", bad)
		}
	}
}

func TestOutName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"photon.elf", "photon.bin"},
		{"build/target/app.elf", "app.bin"},
		{"firmware", "firmware.bin"},
	}
	for _, tc := range tests {
		if got := OutName(tc.in, ".elf", ".bin"); got != tc.want {
			t.Errorf("OutName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	in, out := InOutFiles("x.elf", ".elf", "y.hex", ".hex")
	if in != "x.elf" || out != "y.hex" {
		t.Errorf("InOutFiles: %s %s", in, out)
	}
}

func TestModulePath(t *testing.T) {
	mod, err := modulePath(strings.NewReader("// x\nmodule example.com/blinky\n\ngo 1.23\n"))
	if err != nil || mod != "example.com/blinky" {
		t.Fatalf("got %q, %v", mod, err)
	}
	if _, err := modulePath(strings.NewReader("go 1.23\n")); err == nil {
		t.Fatal("missing module directive not reported")
	}
}

func TestParseBusAddr(t *testing.T) {
	tests := []struct {
		in       string
		bus, dev int
	}{
		{"1:12", 1, 12},
		{"", -1, -1},
		{"1", -1, -1},
		{"1:x", -1, -1},
		{"300:1", -1, -1},
	}
	for _, tc := range tests {
		bus, dev := parseBusAddr(tc.in)
		if bus != tc.bus || dev != tc.dev {
			t.Errorf("%q: got %d:%d", tc.in, bus, dev)
		}
	}
}

func TestMatchID(t *testing.T) {
	ids := []USBID{{0x2b04, 0xd006}, {0x2b04, 0xd00a}}
	if !matchID(ids, 0x2b04, 0xd00a) {
		t.Error("electron not matched")
	}
	if matchID(ids, 0x0483, 0xdf11) {
		t.Error("stm32 matched")
	}
	if s := (USBID{0x2b04, usb.ID(0xd006)}).String(); s != "2b04:d006" {
		t.Errorf("String() = %s", s)
	}
}

func fakeObjcopy(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools not supported")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh")
	}
	tool := filepath.Join(t.TempDir(), "objcopy")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\n"+script), 0o777); err != nil {
		t.Fatal(err)
	}
	return tool
}

func TestObjcopy(t *testing.T) {
	tool := fakeObjcopy(t, `[ "$1" = -O ] && [ "$2" = binary ] && cp "$3" "$4"`+"\n")
	in := filepath.Join(t.TempDir(), "app.elf")
	if err := os.WriteFile(in, []byte("raw image"), 0o666); err != nil {
		t.Fatal(err)
	}
	data, err := Objcopy(tool, in)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "raw image" {
		t.Fatalf("got %q", data)
	}
}

func TestObjcopyFail(t *testing.T) {
	tool := fakeObjcopy(t, "echo 'bad ELF' >&2\nexit 3\n")
	_, err := Objcopy(tool, "app.elf")
	var oe *ObjcopyError
	if !errors.As(err, &oe) {
		t.Fatalf("got %v", err)
	}
	if !strings.Contains(err.Error(), "bad ELF") {
		t.Errorf("stderr missing from %q", err)
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) || ee.ExitCode() != 3 {
		t.Errorf("exit code not wrapped: %v", err)
	}
}

func TestExtractNotELF(t *testing.T) {
	in := filepath.Join(t.TempDir(), "app.elf")
	if err := os.WriteFile(in, []byte("not an ELF file"), 0o666); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(in, ExtractConfig{Pad: 0xff}); err == nil {
		t.Fatal("no error")
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "app.elf")
	elftest.Write(t, in, []elftest.Section{
		{".text", 0x08020000, 0x08020000, []byte{1, 2, 3, 4}},
		{".data", 0x20000000, 0x08020006, []byte{6, 7}},
	})
	inc := filepath.Join(dir, "inc.bin")
	if err := os.WriteFile(inc, []byte{9}, 0o666); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		cfg  ExtractConfig
		want []byte
	}{
		{"pad ff", ExtractConfig{Pad: 0xff}, []byte{1, 2, 3, 4, 0xff, 0xff, 6, 7}},
		{"pad 00", ExtractConfig{}, []byte{1, 2, 3, 4, 0, 0, 6, 7}},
		{
			"inc", ExtractConfig{Inc: inc + ":0x08020009"},
			[]byte{1, 2, 3, 4, 0, 0, 6, 7, 0, 9},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img, err := Extract(in, tc.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if img.Addr != 0x08020000 {
				t.Errorf("Addr = %#x", img.Addr)
			}
			if !bytes.Equal(img.Data, tc.want) {
				t.Errorf("got %x, want %x", img.Data, tc.want)
			}
		})
	}
	_, err := Extract(in, ExtractConfig{Objcopy: "objcopy", Inc: inc + ":0"})
	if err == nil {
		t.Error("-inc accepted together with objcopy")
	}
}
