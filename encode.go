// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package clmr

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	refs "github.com/ssbc/go-ssb-refs"
	"github.com/ssbc/go-ssb-refs/tfk"
	"github.com/ugorji/go/codec"

	"github.com/ssbc/go-clmr/internal/varu64"
)

// Encode writes the compact representation of msg to w.
//
// The layout is one flags byte, the compact author ref, the varu64
// sequence number, eight bytes of big-endian IEEE-754 timestamp, the
// compact previous ref (only when the message has one), the content
// (compact box ciphertext or canonical CBOR) and the compact signature.
// No padding between fields, no outer framing.
//
// The first failure aborts the call. Bytes already accepted by w are not
// rolled back; encode to a buffer first if the destination needs the
// message in one piece.
func Encode(w io.Writer, msg Message) error {
	if _, err := w.Write([]byte{msg.flags()}); err != nil {
		return SinkError{Field: "flags", cause: err}
	}

	if err := writeRefField(w, "author", msg.Author); err != nil {
		return err
	}

	if _, err := varu64.Write(w, msg.Sequence); err != nil {
		return SinkError{Field: "sequence", cause: err}
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], math.Float64bits(msg.Timestamp))
	if _, err := w.Write(ts[:]); err != nil {
		return SinkError{Field: "timestamp", cause: err}
	}

	if msg.Previous != nil {
		if err := writeRefField(w, "previous", *msg.Previous); err != nil {
			return err
		}
	}

	if msg.Content.IsEncrypted() {
		if err := writeCompactField(w, "content", *msg.Content.Box); err != nil {
			return err
		}
	} else {
		if err := writePlainContent(w, msg.Content.Plain); err != nil {
			return err
		}
	}

	return writeCompactField(w, "signature", msg.Signature)
}

// EncodeBytes encodes msg into a fresh byte slice.
func EncodeBytes(msg Message) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 256))
	if err := Encode(buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeBase64 encodes msg and wraps the result in std base64. The
// compact representation is binary and generally not valid text, so this
// is the form to use when a message has to pass through a string-typed
// channel.
func EncodeBase64(msg Message) (string, error) {
	b, err := EncodeBytes(msg)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func writeRefField(w io.Writer, field string, r refs.Ref) error {
	b, err := tfk.Encode(r)
	if err != nil {
		return fmt.Errorf("clmr: %s ref has no compact form: %w", field, err)
	}
	if _, err := w.Write(b); err != nil {
		return SinkError{Field: field, cause: err}
	}
	return nil
}

func writePlainContent(w io.Writer, v interface{}) error {
	// the CBOR encoder reports sink errors and value errors through the
	// same return; the tee remembers whether the sink was at fault
	tee := &errTrackingWriter{w: w}

	var ch codec.CborHandle
	ch.Canonical = true
	if err := codec.NewEncoder(tee, &ch).Encode(v); err != nil {
		if tee.err != nil {
			return SinkError{Field: "content", cause: tee.err}
		}
		return ContentEncodeError{cause: err}
	}
	return nil
}

func writeCompactField(w io.Writer, field string, cm CompactMarshaler) error {
	if _, err := cm.MarshalCompactTo(w); err != nil {
		return SinkError{Field: field, cause: err}
	}
	return nil
}

type errTrackingWriter struct {
	w   io.Writer
	err error
}

func (t *errTrackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}
