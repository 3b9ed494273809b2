package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/brewtune/internal/space"
)

// encodeJSON encodes v as compact JSON TEXT with HTML escaping disabled,
// so "<" in a note label or choice is stored as written.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder appends a newline
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// marshalValues converts a value map to JSON TEXT. Map keys are sorted by
// encoding/json, so equal maps give equal text.
func marshalValues(vals space.Values) (string, error) {
	if vals == nil {
		vals = space.Values{}
	}
	s, err := encodeJSON(vals)
	if err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return s, nil
}

func unmarshalValues(s string) (space.Values, error) {
	vals := space.Values{}
	if s == "" {
		return vals, nil
	}
	if err := json.Unmarshal([]byte(s), &vals); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return vals, nil
}

func marshalValue(v space.Value) (string, error) {
	if !v.IsValid() {
		return "", fmt.Errorf("marshal value: zero value")
	}
	s, err := encodeJSON(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return s, nil
}

func unmarshalValue(s string) (space.Value, error) {
	var v space.Value
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return space.Value{}, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

func marshalDescriptor(d space.Descriptor) (string, error) {
	if d.Params == nil {
		d.Params = []space.ParamDescriptor{}
	}
	s, err := encodeJSON(d)
	if err != nil {
		return "", fmt.Errorf("marshal descriptor: %w", err)
	}
	return s, nil
}

func unmarshalDescriptor(s string) (space.Descriptor, error) {
	var d space.Descriptor
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return space.Descriptor{}, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	return d, nil
}

// normalizeSampler stores an empty sampler config as "{}" and rejects
// anything that is not JSON.
func normalizeSampler(raw []byte) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "{}", nil
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("sampler config is not valid JSON")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("compact sampler config: %w", err)
	}
	return buf.String(), nil
}
