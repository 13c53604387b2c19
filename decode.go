// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package clmr

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/ugorji/go/codec"

	"github.com/ssbc/go-clmr/internal/varu64"
)

// Decode parses one compact message from data. The whole slice must be
// consumed; trailing bytes are an error since the format carries no outer
// framing that would make them attributable to anything.
//
// Plain content comes back as the generic CBOR value shapes
// (map[interface{}]interface{}, []interface{}, string, numbers); callers
// wanting a concrete type re-decode from there.
func Decode(data []byte) (Message, error) {
	var msg Message

	if len(data) == 0 {
		return msg, fmt.Errorf("clmr: missing flags byte: %w", io.ErrUnexpectedEOF)
	}
	flags := data[0]
	if flags&flagsReserved != 0 {
		return msg, ErrReservedFlags
	}
	msg.Swapped = flags&flagSwapped != 0
	off := 1

	author, n, err := decodeFeedRef(data[off:])
	if err != nil {
		return msg, fieldErr("author", err)
	}
	msg.Author = author
	off += n

	seq, n, err := varu64.Decode(data[off:])
	if err != nil {
		return msg, fieldErr("sequence", err)
	}
	msg.Sequence = seq
	off += n

	ts, n, err := decodeTimestamp(data[off:])
	if err != nil {
		return msg, fieldErr("timestamp", err)
	}
	msg.Timestamp = ts
	off += n

	if flags&flagHasPrevious != 0 {
		prev, n, err := decodeMessageRef(data[off:])
		if err != nil {
			return msg, fieldErr("previous", err)
		}
		msg.Previous = &prev
		off += n
	}

	if flags&flagEncrypted != 0 {
		ciphertext, n, err := decodeBlob(data[off:])
		if err != nil {
			return msg, fieldErr("content", err)
		}
		msg.Content = EncryptedContent(Box(ciphertext))
		off += n
	} else {
		var v interface{}
		var ch codec.CborHandle
		dec := codec.NewDecoderBytes(data[off:], &ch)
		if err := dec.Decode(&v); err != nil {
			return msg, fieldErr("content", err)
		}
		msg.Content = PlainContent(v)
		off += dec.NumBytesRead()
	}

	sig, n, err := decodeBlob(data[off:])
	if err != nil {
		return msg, fieldErr("signature", err)
	}
	msg.Signature = Signature(sig)
	off += n

	if off != len(data) {
		return msg, fmt.Errorf("clmr: %d trailing bytes after message", len(data)-off)
	}
	return msg, nil
}

// DecodeReader drains r and decodes the result. The content field's
// length is only discoverable by parsing it, so there is no way to read
// exactly one message from an unframed stream without buffering it.
func DecodeReader(r io.Reader) (Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Message{}, fmt.Errorf("clmr: reading message: %w", err)
	}
	return Decode(data)
}

func decodeTimestamp(data []byte) (float64, int, error) {
	if len(data) < 8 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	bits := binary.BigEndian.Uint64(data[:8])
	return math.Float64frombits(bits), 8, nil
}

func fieldErr(field string, err error) error {
	return fmt.Errorf("clmr: decoding %s field: %w", field, err)
}
