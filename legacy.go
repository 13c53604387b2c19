// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package clmr

import (
	"bytes"
	"encoding/json"
	"fmt"

	refs "github.com/ssbc/go-ssb-refs"
)

// MessageFromLegacyJSON builds a Message from the canonical verbose
// encoding of a signed legacy message. No signature or hash-chain checks
// happen here; the input is assumed to come from a layer that already
// verified it.
//
// Encrypted messages carry their content as a base64 ".box" string, which
// becomes the Box variant. Any other content value becomes the Plain
// variant as decoded JSON.
func MessageFromLegacyJSON(raw []byte) (Message, error) {
	var dm struct {
		Previous  *refs.MessageRef `json:"previous"`
		Author    refs.FeedRef     `json:"author"`
		Sequence  uint64           `json:"sequence"`
		Timestamp float64          `json:"timestamp"`
		Hash      string           `json:"hash"`
		Content   json.RawMessage  `json:"content"`
		Signature Signature        `json:"signature"`
	}
	if err := json.Unmarshal(raw, &dm); err != nil {
		return Message{}, fmt.Errorf("clmr: unmarshaling legacy message: %w", err)
	}

	if dm.Hash != "sha256" {
		return Message{}, fmt.Errorf("clmr: unexpected hash algorithm %q", dm.Hash)
	}

	content, err := contentFromLegacyJSON(dm.Content)
	if err != nil {
		return Message{}, err
	}

	swapped, err := legacyFieldOrderSwapped(raw)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Author:    dm.Author,
		Sequence:  dm.Sequence,
		Timestamp: dm.Timestamp,
		Previous:  dm.Previous,
		Swapped:   swapped,
		Content:   content,
		Signature: dm.Signature,
	}, nil
}

func contentFromLegacyJSON(raw json.RawMessage) (Content, error) {
	if len(raw) > 0 && raw[0] == '"' {
		// private messages are a base64 string with a box suffix
		var b Box
		if err := b.UnmarshalJSON(raw); err != nil {
			return Content{}, fmt.Errorf("clmr: string content that is not a box: %w", err)
		}
		return EncryptedContent(b), nil
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return Content{}, fmt.Errorf("clmr: unmarshaling plain content: %w", err)
	}
	return PlainContent(v), nil
}

// legacyFieldOrderSwapped walks the top-level keys of the verbose
// encoding. The canonical field order puts timestamp before hash; some
// old feeds have the two swapped, and that ordering has to survive
// re-serialization or the message would hash differently when converted
// back.
func legacyFieldOrderSwapped(raw []byte) (bool, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	t, err := dec.Token()
	if err != nil {
		return false, fmt.Errorf("clmr: legacy message is not a JSON object: %w", err)
	}
	if d, ok := t.(json.Delim); !ok || d != '{' {
		return false, fmt.Errorf("clmr: legacy message is not a JSON object, starts with %v", t)
	}

	var seenHash bool
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return false, fmt.Errorf("clmr: walking legacy message keys: %w", err)
		}
		key, ok := t.(string)
		if !ok {
			return false, fmt.Errorf("clmr: expected object key, got %v", t)
		}

		switch key {
		case "hash":
			seenHash = true
		case "timestamp":
			return seenHash, nil
		}

		if err := skipJSONValue(dec); err != nil {
			return false, fmt.Errorf("clmr: skipping value of %q: %w", key, err)
		}
	}

	return false, nil
}

func skipJSONValue(dec *json.Decoder) error {
	t, err := dec.Token()
	if err != nil {
		return err
	}

	d, ok := t.(json.Delim)
	if !ok {
		return nil // scalar, already consumed
	}

	switch d {
	case '{', '[':
		depth := 1
		for depth > 0 {
			t, err := dec.Token()
			if err != nil {
				return err
			}
			if d, ok := t.(json.Delim); ok {
				switch d {
				case '{', '[':
					depth++
				case '}', ']':
					depth--
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unexpected delimiter %v", d)
	}
}
