// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package clmr

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ssbc/go-clmr/internal/varu64"
)

// Box is the opaque ciphertext of a private message. The codec never
// looks inside it; unboxing belongs to the private-message layer.
type Box []byte

var boxSuffix = []byte(".box")

// NewBoxFromBase64 decodes the legacy-JSON content form of an encrypted
// message, a std base64 string with the .box suffix.
func NewBoxFromBase64(input []byte) (Box, error) {
	if !bytes.HasSuffix(input, boxSuffix) {
		return nil, errors.New("clmr/box: unexpected suffix")
	}
	b64 := bytes.TrimSuffix(input, boxSuffix)

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(b64)))
	n, err := base64.StdEncoding.Decode(decoded, b64)
	if err != nil {
		return nil, fmt.Errorf("clmr/box: invalid base64 data: %w", err)
	}
	return decoded[:n], nil
}

// MarshalCompactTo writes the self-describing compact form, a varu64
// length followed by the ciphertext.
func (b Box) MarshalCompactTo(w io.Writer) (int64, error) {
	n, err := varu64.Write(w, uint64(len(b)))
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(b)
	return int64(n + m), err
}

// MarshalJSON turns the ciphertext back into the legacy base64 string
// form.
func (b Box) MarshalJSON() ([]byte, error) {
	dataLen := base64.StdEncoding.EncodedLen(len(b))
	totalLen := 2 + dataLen + len(boxSuffix)

	enc := make([]byte, totalLen)
	enc[0] = '"'
	enc[totalLen-1] = '"'

	base64.StdEncoding.Encode(enc[1:1+dataLen], b)
	copy(enc[1+dataLen:], boxSuffix)

	return enc, nil
}

// UnmarshalJSON decodes the legacy-JSON .box string form.
func (b *Box) UnmarshalJSON(input []byte) error {
	if len(input) < 2 || !(input[0] == '"' && input[len(input)-1] == '"') {
		return errors.New("clmr/box: not a string")
	}

	newBox, err := NewBoxFromBase64(input[1 : len(input)-1])
	if err != nil {
		return err
	}

	*b = newBox
	return nil
}
