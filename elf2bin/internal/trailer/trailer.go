// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trailer validates and seals the integrity trailer that Particle
// firmware images carry in their last Size bytes.
//
// An unsealed image ends with the Magic pattern. Sealing replaces its first
// 32 bytes with the SHA-256 digest of the body (everything before the
// trailer) and its last 4 bytes with the big-endian CRC-32 (IEEE) of all
// preceding bytes. The 2 bytes in between are left untouched.
package trailer

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash/crc32"
	"strconv"
)

const (
	Size    = 38 // trailer length
	hashLen = sha256.Size
	crcLen  = 4
)

// Magic is the hex form of an unsealed trailer.
const Magic = "0102030405060708090a0b0c0d0e0f10" +
	"1112131415161718191a1b1c1d1e1f20" +
	"2800" +
	"78563412"

var magic = mustDecode(Magic)

func mustDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != Size {
		panic("trailer: bad magic: " + s)
	}
	return b
}

// Fixed returns the 2 bytes that both the magic and the sealed trailer carry
// at trailer offset 32.
func Fixed() [2]byte {
	return [2]byte(magic[hashLen : hashLen+2])
}

type Kind uint8

const (
	TooShort Kind = iota + 1
	MagicMismatch
)

var kindStr = [...]string{
	TooShort:      "image shorter than the trailer",
	MagicMismatch: "magic string mismatch",
}

func (k Kind) String() string {
	if int(k) < len(kindStr) && kindStr[k] != "" {
		return kindStr[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// FormatError reports an image that cannot be sealed.
type FormatError struct {
	Kind Kind
	Len  int // length of the rejected image
}

func (e *FormatError) Error() string {
	return "trailer: " + e.Kind.String() + " (" + strconv.Itoa(e.Len) + " bytes)"
}

// Is reports whether target is a *FormatError of the same kind, so the
// sentinels below can be used with errors.Is.
func (e *FormatError) Is(target error) bool {
	t, ok := target.(*FormatError)
	return ok && t.Kind == e.Kind
}

var (
	ErrTooShort      = &FormatError{Kind: TooShort}
	ErrMagicMismatch = &FormatError{Kind: MagicMismatch}

	ErrDigest = errors.New("trailer: SHA-256 digest mismatch")
	ErrCRC    = errors.New("trailer: CRC-32 mismatch")
	ErrFixed  = errors.New("trailer: fixed field mismatch")
)

func split(img []byte) (int, error) {
	n := len(img) - Size
	if n < 0 {
		return 0, &FormatError{TooShort, len(img)}
	}
	return n, nil
}

// Check checks that img ends with the unsealed trailer. It does not inspect
// any other part of img.
func Check(img []byte) error {
	n, err := split(img)
	if err != nil {
		return err
	}
	if hex.EncodeToString(img[n:]) != Magic {
		return &FormatError{MagicMismatch, len(img)}
	}
	return nil
}

// Rewrite returns a copy of img with the digest and CRC fields of the trailer
// filled in. The image must already have passed Check.
func Rewrite(img []byte) []byte {
	n := len(img) - Size
	out := bytes.Clone(img)
	sum := sha256.Sum256(out[:n])
	copy(out[n:n+hashLen], sum[:])
	crc := crc32.ChecksumIEEE(out[:len(out)-crcLen])
	binary.BigEndian.PutUint32(out[len(out)-crcLen:], crc)
	return out
}

// Seal checks img and returns its sealed copy. On error img is not modified
// and no output is returned.
func Seal(img []byte) ([]byte, error) {
	if err := Check(img); err != nil {
		return nil, err
	}
	return Rewrite(img), nil
}

// Trailer is the decoded form of a sealed trailer.
type Trailer struct {
	Digest [hashLen]byte
	Fixed  [2]byte
	CRC    uint32
}

// Parse decodes the last Size bytes of img. It does not verify them.
func Parse(img []byte) (t Trailer, err error) {
	n, err := split(img)
	if err != nil {
		return
	}
	tb := img[n:]
	copy(t.Digest[:], tb)
	copy(t.Fixed[:], tb[hashLen:])
	t.CRC = binary.BigEndian.Uint32(tb[Size-crcLen:])
	return
}

// Verify checks a sealed image: the fixed field, the digest of the body and
// the CRC of all bytes before the CRC field.
func Verify(img []byte) (Trailer, error) {
	t, err := Parse(img)
	if err != nil {
		return t, err
	}
	n := len(img) - Size
	if t.Fixed != Fixed() {
		return t, ErrFixed
	}
	if t.Digest != sha256.Sum256(img[:n]) {
		return t, ErrDigest
	}
	if t.CRC != crc32.ChecksumIEEE(img[:len(img)-crcLen]) {
		return t, ErrCRC
	}
	return t, nil
}
