// Package canonical produces deterministic JSON encodings for hashing.
package canonical

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Marshal produces a compact JSON encoding with object keys sorted at every
// level. Numbers are carried through verbatim, so int64 values keep full
// precision.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return encode(raw)
}

func encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyBytes, _ := json.Marshal(k)
			buf = append(buf, keyBytes...)
			buf = append(buf, ':')
			valBytes, err := encode(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, valBytes...)
		}
		return append(buf, '}'), nil

	case []any:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			itemBytes, err := encode(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, itemBytes...)
		}
		return append(buf, ']'), nil

	default:
		return json.Marshal(v)
	}
}
