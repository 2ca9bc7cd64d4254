package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize serializes v as compact JSON with object keys sorted
// lexicographically at every level and without HTML escaping. Values that
// are equal as JSON documents yield identical strings regardless of map
// iteration or struct field order. Numbers are kept verbatim.
func Canonicalize(v any) (string, error) {
	raw, err := marshal(v)
	if err != nil {
		return "", err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize: %w", err)
	}
	out, err := marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("cache: failed to encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Hash returns the hex encoded SHA-256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ConfigHash returns the hash of the canonical form of a module's arguments.
// Absent arguments hash like an empty mapping.
func ConfigHash(args map[string]any) (hash, canonical string, err error) {
	if args == nil {
		args = map[string]any{}
	}
	canonical, err = Canonicalize(args)
	if err != nil {
		return "", "", err
	}
	return Hash(canonical), canonical, nil
}
