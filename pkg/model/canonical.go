// Copyright 2025 Certen Protocol
//
// Canonical JSON serialization: every block and stripped transaction is
// hashed over a form with stable, sorted key ordering so that signing and
// verification are deterministic regardless of map iteration order.

package model

import (
	"bytes"
	"encoding/json"
	"sort"
)

// canonicalJSON marshals a map with its keys sorted, recursively, so the
// same logical value always serializes to the same bytes.
func canonicalJSON(v map[string]interface{}) ([]byte, error) {
	return marshalCanonical(v)
}

func marshalCanonical(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []interface{}:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// stripNonCanonical removes fields explicitly marked as non-canonical
// before hashing a block (proof, nonce, transaction_hash,
// block_last_sent_at — §4.2 "Determinism of signing").
func stripNonCanonical(fields map[string]interface{}) map[string]interface{} {
	nonCanonical := map[string]bool{
		"proof":              true,
		"nonce":              true,
		"transaction_hash":   true,
		"block_last_sent_at": true,
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if nonCanonical[k] {
			continue
		}
		out[k] = v
	}
	return out
}
