// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package clmr

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	refs "github.com/ssbc/go-ssb-refs"
	"github.com/ssbc/go-ssb-refs/tfk"
	"github.com/stretchr/testify/require"
	"github.com/ugorji/go/codec"

	"github.com/ssbc/go-clmr/internal/varu64"
)

func testAuthor(t *testing.T) refs.FeedRef {
	fr, err := refs.NewFeedRefFromBytes(bytes.Repeat([]byte("ab"), 16), refs.RefAlgoFeedSSB1)
	require.NoError(t, err)
	return fr
}

func testPrevious(t *testing.T) *refs.MessageRef {
	mr, err := refs.NewMessageRefFromBytes(bytes.Repeat([]byte("acab"), 8), refs.RefAlgoMessageSSB1)
	require.NoError(t, err)
	return &mr
}

func testSignature() Signature {
	return Signature(bytes.Repeat([]byte{0x04}, ed25519.SignatureSize))
}

func compactRef(t *testing.T, r refs.Ref) []byte {
	b, err := tfk.Encode(r)
	require.NoError(t, err)
	return b
}

func canonicalCBOR(t *testing.T, v interface{}) []byte {
	var ch codec.CborHandle
	ch.Canonical = true
	var buf bytes.Buffer
	require.NoError(t, codec.NewEncoder(&buf, &ch).Encode(v))
	return buf.Bytes()
}

func TestEncodeFirstMessage(t *testing.T) {
	r := require.New(t)

	msg := Message{
		Author:    testAuthor(t),
		Sequence:  1,
		Timestamp: 0.0,
		Content:   PlainContent(map[string]interface{}{}),
		Signature: testSignature(),
	}

	got, err := EncodeBytes(msg)
	r.NoError(err)

	author := compactRef(t, msg.Author)

	r.EqualValues(0x00, got[0], "flags byte")
	r.Equal(author, got[1:1+len(author)], "author field")

	rest := got[1+len(author):]
	r.EqualValues(0x01, rest[0], "sequence varu64")
	r.Equal(bytes.Repeat([]byte{0x00}, 8), rest[1:9], "zero timestamp")

	// no previous field, straight into content: the canonical CBOR
	// empty map, then the signature blob
	r.EqualValues(0xa0, rest[9], "empty map content")
	r.EqualValues(0x40, rest[10], "signature length prefix")
	r.Equal([]byte(msg.Signature), rest[11:])
}

func TestFlagsByte(t *testing.T) {
	r := require.New(t)

	box := Box(bytes.Repeat([]byte{0xee}, 80))

	cases := []struct {
		name     string
		previous *refs.MessageRef
		swapped  bool
		content  Content
		want     byte
	}{
		{"all clear", nil, false, PlainContent("hi"), 0x00},
		{"encrypted", nil, false, EncryptedContent(box), 0x01},
		{"swapped", nil, true, PlainContent("hi"), 0x02},
		{"previous", testPrevious(t), false, PlainContent("hi"), 0x04},
		{"previous and swapped", testPrevious(t), true, PlainContent("hi"), 0x06},
		{"everything", testPrevious(t), true, EncryptedContent(box), 0x07},
	}

	for _, tc := range cases {
		msg := Message{
			Author:    testAuthor(t),
			Sequence:  2,
			Timestamp: 1449808143436,
			Previous:  tc.previous,
			Swapped:   tc.swapped,
			Content:   tc.content,
			Signature: testSignature(),
		}

		got, err := EncodeBytes(msg)
		r.NoError(err, tc.name)
		r.Equal(tc.want, got[0], tc.name)
		r.Equal(tc.content.IsEncrypted(), got[0]&0x01 != 0, tc.name)
	}
}

func TestFieldLayout(t *testing.T) {
	r := require.New(t)

	content := map[string]interface{}{
		"type": "post",
		"text": "hello world",
	}
	msg := Message{
		Author:    testAuthor(t),
		Sequence:  3000,
		Timestamp: 1514517078157.0,
		Previous:  testPrevious(t),
		Content:   PlainContent(content),
		Signature: testSignature(),
	}

	got, err := EncodeBytes(msg)
	r.NoError(err)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], math.Float64bits(msg.Timestamp))

	var want []byte
	want = append(want, 0x04)
	want = append(want, compactRef(t, msg.Author)...)
	want = varu64.Append(want, msg.Sequence)
	want = append(want, ts[:]...)
	want = append(want, compactRef(t, *msg.Previous)...)
	want = append(want, canonicalCBOR(t, content)...)
	want = varu64.Append(want, uint64(len(msg.Signature)))
	want = append(want, msg.Signature...)

	r.Equal(want, got)
}

func TestEncryptedContentLayout(t *testing.T) {
	r := require.New(t)

	box := Box(bytes.Repeat([]byte{0xbe, 0xef}, 150))
	msg := Message{
		Author:    testAuthor(t),
		Sequence:  8,
		Timestamp: 1449808143436.034,
		Content:   EncryptedContent(box),
		Signature: testSignature(),
	}

	got, err := EncodeBytes(msg)
	r.NoError(err)
	r.EqualValues(0x01, got[0])

	// the content field is the length-prefixed ciphertext, not CBOR
	contentOff := 1 + compactRefLen + len(varu64.Append(nil, msg.Sequence)) + 8
	wantLen := varu64.Append(nil, uint64(len(box)))
	r.Equal(wantLen, got[contentOff:contentOff+len(wantLen)])
	r.Equal([]byte(box), got[contentOff+len(wantLen):len(got)-1-len(msg.Signature)])
}

func TestTimestampBits(t *testing.T) {
	r := require.New(t)

	for _, ts := range []float64{
		0.0,
		math.Copysign(0, -1),
		-1.5,
		1514517078157.0,
		math.SmallestNonzeroFloat64, // subnormal
		math.MaxFloat64,
	} {
		msg := Message{
			Author:    testAuthor(t),
			Sequence:  1,
			Timestamp: ts,
			Content:   PlainContent(nil),
			Signature: testSignature(),
		}

		got, err := EncodeBytes(msg)
		r.NoError(err)

		off := 1 + compactRefLen + 1 // flags, author, one-byte sequence
		gotBits := binary.BigEndian.Uint64(got[off : off+8])
		r.Equal(math.Float64bits(ts), gotBits, "timestamp %v", ts)
	}
}

func TestSequenceBoundaries(t *testing.T) {
	r := require.New(t)

	for _, seq := range []uint64{0, 1, 127, 128, 247, 248, 1 << 63, math.MaxUint64} {
		msg := Message{
			Author:    testAuthor(t),
			Sequence:  seq,
			Timestamp: 1.0,
			Content:   PlainContent(nil),
			Signature: testSignature(),
		}

		got, err := EncodeBytes(msg)
		r.NoError(err)

		want := varu64.Append(nil, seq)
		off := 1 + compactRefLen
		r.Equal(want, got[off:off+len(want)], "sequence %d", seq)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	r := require.New(t)

	msg := Message{
		Author:    testAuthor(t),
		Sequence:  99,
		Timestamp: 1514517078157.0,
		Previous:  testPrevious(t),
		Content: PlainContent(map[string]interface{}{
			"type":     "contact",
			"contact":  "@somebody",
			"blocking": false,
			"numbers":  []interface{}{1.0, 2.0, 3.0},
		}),
		Signature: testSignature(),
	}

	first, err := EncodeBytes(msg)
	r.NoError(err)

	for i := 0; i < 5; i++ {
		again, err := EncodeBytes(msg)
		r.NoError(err)
		r.Equal(first, again)
	}
}

func TestEncodeBase64(t *testing.T) {
	r := require.New(t)

	msg := Message{
		Author:    testAuthor(t),
		Sequence:  1,
		Timestamp: 42.0,
		Content:   PlainContent("howdy"),
		Signature: testSignature(),
	}

	b, err := EncodeBytes(msg)
	r.NoError(err)
	s, err := EncodeBase64(msg)
	r.NoError(err)
	r.Equal(base64.StdEncoding.EncodeToString(b), s)

	decoded, err := base64.StdEncoding.DecodeString(s)
	r.NoError(err)
	r.Equal(b, decoded)
}

type failingSink struct {
	remaining int
	err       error

	wrote int
}

func (f *failingSink) Write(p []byte) (int, error) {
	if f.remaining <= 0 {
		return 0, f.err
	}
	if len(p) > f.remaining {
		n := f.remaining
		f.remaining = 0
		f.wrote += n
		return n, f.err
	}
	f.remaining -= len(p)
	f.wrote += len(p)
	return len(p), nil
}

func TestSinkFailure(t *testing.T) {
	r := require.New(t)

	msg := Message{
		Author:    testAuthor(t),
		Sequence:  300,
		Timestamp: 1514517078157.0,
		Previous:  testPrevious(t),
		Content:   PlainContent(map[string]interface{}{"type": "post"}),
		Signature: testSignature(),
	}

	full, err := EncodeBytes(msg)
	r.NoError(err)

	broken := errors.New("device full")
	for n := 0; n < len(full); n++ {
		sink := &failingSink{remaining: n, err: broken}
		err := Encode(sink, msg)

		var se SinkError
		r.ErrorAs(err, &se, "fail after %d bytes", n)
		r.ErrorIs(err, broken, "fail after %d bytes", n)
		r.NotEmpty(se.Field)
		r.LessOrEqual(sink.wrote, n, "no bytes written past the failure")
	}
}

func TestContentEncodeError(t *testing.T) {
	r := require.New(t)

	msg := Message{
		Author:    testAuthor(t),
		Sequence:  1,
		Timestamp: 0,
		Content:   PlainContent(map[string]interface{}{"oops": make(chan int)}),
		Signature: testSignature(),
	}

	_, err := EncodeBytes(msg)
	var ce ContentEncodeError
	r.ErrorAs(err, &ce)

	// a content failure on a healthy sink is not a sink failure
	var se SinkError
	r.False(errors.As(err, &se))
}

func TestSinkFailureDuringContent(t *testing.T) {
	r := require.New(t)

	msg := Message{
		Author:    testAuthor(t),
		Sequence:  1,
		Timestamp: 0,
		Content:   PlainContent(map[string]interface{}{"type": "post", "text": "cut short"}),
		Signature: testSignature(),
	}

	full, err := EncodeBytes(msg)
	r.NoError(err)

	// fail inside the content field: everything before it plus one byte
	headLen := 1 + compactRefLen + 1 + 8
	r.Greater(len(full), headLen+1)

	broken := fmt.Errorf("broken pipe")
	sink := &failingSink{remaining: headLen + 1, err: broken}
	err = Encode(sink, msg)

	var se SinkError
	r.ErrorAs(err, &se)
	r.Equal("content", se.Field)
	r.ErrorIs(err, broken)
}
