// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package clmr

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ssbc/go-clmr/internal/varu64"
)

// Signature holds the raw bytes of a message signature. Verification
// happens against the canonical encoding and is not this package's job;
// here the signature is just a value with a compact and a legacy-JSON
// form.
type Signature []byte

var signatureSuffix = []byte(".sig.ed25519")

func NewSignatureFromBase64(input []byte) (Signature, error) {
	// check for and split off the suffix
	if !bytes.HasSuffix(input, signatureSuffix) {
		return nil, errors.New("clmr/signature: unexpected suffix")
	}
	b64 := bytes.TrimSuffix(input, signatureSuffix)

	// initial length check before decoding, mainly to avoid decoding a
	// huge bogus signature and filling up RAM in the process
	gotLen := base64.StdEncoding.DecodedLen(len(b64))
	if gotLen < ed25519.SignatureSize {
		return nil, fmt.Errorf("clmr/signature: expected more signature data but only got %d", gotLen)
	}
	if gotLen > ed25519.SignatureSize+2 {
		return nil, fmt.Errorf("clmr/signature: expected less signature data but got a string that could decode to up to %d bytes", gotLen)
	}

	decoded := make([]byte, gotLen)
	n, err := base64.StdEncoding.Decode(decoded, b64)
	if err != nil {
		return nil, fmt.Errorf("clmr/signature: invalid base64 data: %w", err)
	}
	decoded = decoded[:n]

	if len(decoded) != ed25519.SignatureSize {
		return nil, fmt.Errorf("clmr/signature: decoded data is %d bytes long and should be %d", len(decoded), ed25519.SignatureSize)
	}

	return decoded, nil
}

// MarshalCompactTo writes the self-describing compact form, a varu64
// length followed by the raw signature bytes.
func (s Signature) MarshalCompactTo(w io.Writer) (int64, error) {
	n, err := varu64.Write(w, uint64(len(s)))
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(s)
	return int64(n + m), err
}

// UnmarshalJSON decodes the legacy-JSON signature form, a std base64
// string with the .sig.ed25519 suffix.
func (s *Signature) UnmarshalJSON(input []byte) error {
	if len(input) < 2 || !(input[0] == '"' && input[len(input)-1] == '"') {
		return errors.New("clmr/signature: not a string")
	}

	newSig, err := NewSignatureFromBase64(input[1 : len(input)-1])
	if err != nil {
		return err
	}

	*s = newSig
	return nil
}

// MarshalJSON turns the binary signature data back into the legacy base64
// string form.
func (s Signature) MarshalJSON() ([]byte, error) {
	// 2 for the string markers
	dataLen := base64.StdEncoding.EncodedLen(len(s))
	totalLen := 2 + dataLen + len(signatureSuffix)

	enc := make([]byte, totalLen)
	enc[0] = '"'
	enc[totalLen-1] = '"'

	base64.StdEncoding.Encode(enc[1:1+dataLen], s)
	copy(enc[1+dataLen:], signatureSuffix)

	return enc, nil
}
