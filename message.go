// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package clmr implements the compact legacy message representation, a
// dense deterministic binary re-serialization of an SSB legacy feed
// message. The canonical verbose (JSON) encoding stays the source of a
// message's cryptographic identity; clmr only changes how the same
// logical message is laid out for transmission or storage.
package clmr

import (
	refs "github.com/ssbc/go-ssb-refs"
)

// Message is a read-only view of one legacy feed message. It is expected
// to be already built and verified by the canonical encoding layer; the
// codec here never mutates it, so encoding the same Message from multiple
// goroutines is fine as long as each call gets its own sink.
type Message struct {
	Author    refs.FeedRef
	Sequence  uint64 // 1-based position in the feed
	Timestamp float64
	Previous  *refs.MessageRef // nil only for the first message of a feed
	Swapped   bool
	Content   Content
	Signature Signature
}

// flag bits of the lead byte, bit 0 being the least significant
const (
	flagEncrypted   byte = 0x01
	flagSwapped     byte = 0x02
	flagHasPrevious byte = 0x04

	flagsReserved byte = 0xf8 // bits 3-7, must be zero
)

func (msg Message) flags() byte {
	var f byte
	if msg.Previous != nil {
		f |= flagHasPrevious
	}
	if msg.Swapped {
		f |= flagSwapped
	}
	if msg.Content.IsEncrypted() {
		f |= flagEncrypted
	}
	return f
}

// Content is the body of a message, either an arbitrary serializable
// value or an opaque encrypted box. Use the two constructors; a Content
// holding both (or neither) set is still encoded by whichever variant
// IsEncrypted picks.
type Content struct {
	Plain interface{}
	Box   *Box
}

// PlainContent wraps a value that will be serialized as canonical CBOR.
func PlainContent(v interface{}) Content {
	return Content{Plain: v}
}

// EncryptedContent wraps an opaque ciphertext box.
func EncryptedContent(b Box) Content {
	return Content{Box: &b}
}

// IsEncrypted reports whether the content is the encrypted variant. The
// encoder derives both the flag bit and the content branch from this one
// predicate, so the two can never disagree on the wire.
func (c Content) IsEncrypted() bool {
	return c.Box != nil
}
