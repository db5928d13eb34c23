package store

import (
	"encoding/json"
	"fmt"
)

// marshalAttrs serializes event attributes. encoding/json sorts map keys,
// so equal attribute sets always produce the same column value.
func marshalAttrs(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(data), nil
}

// unmarshalAttrs is the inverse of marshalAttrs. An empty object yields nil
// so events round-trip unchanged.
func unmarshalAttrs(data string) (map[string]string, error) {
	var attrs map[string]string
	if err := json.Unmarshal([]byte(data), &attrs); err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}
