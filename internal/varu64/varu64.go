// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package varu64 implements the variable-length unsigned integer encoding
// used by the compact legacy message representation.
//
// Values 0 through 247 occupy a single byte. Larger values start with a
// marker byte 247+n (n between 1 and 8) followed by the value's n
// significant bytes in big-endian order. Every value has exactly one valid
// encoding; the decoder rejects anything longer than necessary.
package varu64

import (
	"errors"
	"io"
)

// MaxLen is the longest possible encoding: one marker byte plus eight
// payload bytes for values that need the full 64 bits.
const MaxLen = 9

// ErrNonCanonical is returned when a value was encoded with more bytes
// than it needs.
var ErrNonCanonical = errors.New("varu64: encoding is not length-minimal")

// EncodedLen returns the number of bytes Write will emit for v.
func EncodedLen(v uint64) int {
	if v < 248 {
		return 1
	}
	n := 0
	for x := v; x > 0; x >>= 8 {
		n++
	}
	return n + 1
}

// Append appends the encoding of v to dst and returns the extended slice.
func Append(dst []byte, v uint64) []byte {
	if v < 248 {
		return append(dst, byte(v))
	}
	n := EncodedLen(v) - 1
	dst = append(dst, byte(247+n))
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}

// Write encodes v into w and reports the number of bytes written.
func Write(w io.Writer, v uint64) (int, error) {
	var buf [MaxLen]byte
	return w.Write(Append(buf[:0], v))
}

// Decode reads one encoded value from the start of data. It returns the
// value and the number of bytes consumed. Inputs that are too short
// produce io.ErrUnexpectedEOF, non-minimal encodings produce
// ErrNonCanonical.
func Decode(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	first := data[0]
	if first < 248 {
		return uint64(first), 1, nil
	}

	n := int(first) - 247
	if len(data) < 1+n {
		return 0, 0, io.ErrUnexpectedEOF
	}

	var v uint64
	for _, b := range data[1 : 1+n] {
		v = v<<8 | uint64(b)
	}

	// a marker byte is only allowed when the single-byte form (or a
	// shorter multi-byte form) cannot hold the value
	if v < 248 || EncodedLen(v) != 1+n {
		return 0, 0, ErrNonCanonical
	}
	return v, 1 + n, nil
}
