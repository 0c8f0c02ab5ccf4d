package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// CanonicalJSON serializes a result payload with deterministically sorted
// object keys at every nesting level. The same payload always produces the
// same bytes, so the hash below is a stable fingerprint.
func CanonicalJSON(payload map[string]interface{}) ([]byte, error) {
	var buf []byte
	var err error
	buf, err = appendCanonical(buf, payload)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// ResultHash computes the SHA-256 of the canonical serialization of payload,
// hex-encoded. Recomputing from a stored result reproduces the stored hash.
func ResultHash(payload map[string]interface{}) (string, error) {
	data, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func appendCanonical(buf []byte, v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		return strconv.AppendBool(buf, val), nil
	case string:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return append(buf, data...), nil
	case float64:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return append(buf, data...), nil
	case int:
		return strconv.AppendInt(buf, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(buf, val, 10), nil
	case json.Number:
		return append(buf, val.String()...), nil
	case []interface{}:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendCanonical(buf, item)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyData, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyData...)
			buf = append(buf, ':')
			buf, err = appendCanonical(buf, val[k])
			if err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	default:
		// Uncommon scalar: round-trip through encoding/json, then
		// re-canonicalize in case it decoded to a composite.
		data, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("unsupported result value %T: %w", val, err)
		}
		var decoded interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, err
		}
		if _, ok := decoded.(map[string]interface{}); ok {
			return appendCanonical(buf, decoded)
		}
		if _, ok := decoded.([]interface{}); ok {
			return appendCanonical(buf, decoded)
		}
		return append(buf, data...), nil
	}
}
