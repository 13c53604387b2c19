// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package clmr

import (
	"fmt"
	"io"

	refs "github.com/ssbc/go-ssb-refs"
	"github.com/ssbc/go-ssb-refs/tfk"

	"github.com/ssbc/go-clmr/internal/varu64"
)

// CompactMarshaler is implemented by values that know their own
// self-describing compact binary form. It reports the number of bytes
// written so callers can account for variable-length fields, and it is
// shaped like io.WriterTo so tests can hand it a failing sink.
type CompactMarshaler interface {
	MarshalCompactTo(w io.Writer) (int64, error)
}

// compactRefLen is the size of a tfk-encoded ref: one type byte, one
// format byte and 32 bytes of key or hash material. All currently defined
// feed and message formats carry 32-byte payloads.
const compactRefLen = 34

func decodeFeedRef(data []byte) (refs.FeedRef, int, error) {
	if len(data) < compactRefLen {
		return refs.FeedRef{}, 0, io.ErrUnexpectedEOF
	}

	var f tfk.Feed
	if err := f.UnmarshalBinary(data[:compactRefLen]); err != nil {
		return refs.FeedRef{}, 0, fmt.Errorf("clmr: invalid compact feed ref: %w", err)
	}

	ref, err := f.Feed()
	if err != nil {
		return refs.FeedRef{}, 0, fmt.Errorf("clmr: invalid compact feed ref: %w", err)
	}
	return ref, compactRefLen, nil
}

func decodeMessageRef(data []byte) (refs.MessageRef, int, error) {
	if len(data) < compactRefLen {
		return refs.MessageRef{}, 0, io.ErrUnexpectedEOF
	}

	var m tfk.Message
	if err := m.UnmarshalBinary(data[:compactRefLen]); err != nil {
		return refs.MessageRef{}, 0, fmt.Errorf("clmr: invalid compact message ref: %w", err)
	}

	ref, err := m.Message()
	if err != nil {
		return refs.MessageRef{}, 0, fmt.Errorf("clmr: invalid compact message ref: %w", err)
	}
	return ref, compactRefLen, nil
}

// maxBlobLen caps length-prefixed fields (signature, box ciphertext) on
// decode. Legacy messages top out at 8k of canonical JSON, so anything
// bigger than this is garbage and would only serve to balloon allocations.
const maxBlobLen = 1 << 16

// decodeBlob reads a varu64 length followed by that many bytes.
func decodeBlob(data []byte) ([]byte, int, error) {
	l, n, err := varu64.Decode(data)
	if err != nil {
		return nil, 0, err
	}
	if l > maxBlobLen {
		return nil, 0, fmt.Errorf("clmr: blob of %d bytes exceeds maximum", l)
	}
	if uint64(len(data)-n) < l {
		return nil, 0, io.ErrUnexpectedEOF
	}

	blob := make([]byte, l)
	copy(blob, data[n:n+int(l)])
	return blob, n + int(l), nil
}
