// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package clmr

import (
	"errors"
	"fmt"
)

// ErrReservedFlags is returned by Decode when bits 3-7 of the flags byte
// are set. The encoder never emits them, so input carrying them is either
// corrupt or from a future format revision we can't interpret.
var ErrReservedFlags = errors.New("clmr: reserved flag bits set")

// SinkError means the output destination rejected a write. The codec does
// not retry; bytes already flushed before the failure stay written.
// Callers that need atomicity should encode to a buffer first.
type SinkError struct {
	Field string // wire field being written when the sink failed
	cause error
}

func (e SinkError) Error() string {
	return fmt.Sprintf("clmr: sink failed while writing %s field: %v", e.Field, e.cause)
}

func (e SinkError) Unwrap() error { return e.cause }

// ContentEncodeError means the plain content value could not be
// serialized as canonical CBOR.
type ContentEncodeError struct {
	cause error
}

func (e ContentEncodeError) Error() string {
	return fmt.Sprintf("clmr: content not representable as canonical CBOR: %v", e.cause)
}

func (e ContentEncodeError) Unwrap() error { return e.cause }
