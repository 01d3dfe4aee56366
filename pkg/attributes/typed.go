package attributes

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// String returns the value at path rendered as a string, or "" when absent.
func (s *Store) String(path string) string {
	v, ok := s.Get(path)
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// StringOr returns the string at path, or def when it is absent or empty.
func (s *Store) StringOr(path, def string) string {
	if v := s.String(path); v != "" {
		return v
	}
	return def
}

// Bool returns the value at path as a boolean. Strings "true"/"false" are
// accepted; anything else is false.
func (s *Store) Bool(path string) bool {
	v, ok := s.Get(path)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}

// Int returns the value at path as an int. Numbers that arrived as floats
// from JSON are truncated; numeric strings are parsed.
func (s *Store) Int(path string) (int, bool) {
	v, ok := s.Get(path)
	if !ok {
		return 0, false
	}
	return toInt(v)
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if math.Trunc(t) != t {
			return 0, false
		}
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(t)
		return i, err == nil
	}
	return 0, false
}

// Strings returns the list at path as strings. A scalar string is returned
// as a one-element list.
func (s *Store) Strings(path string) []string {
	v, ok := s.Get(path)
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if e == nil {
				continue
			}
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}

// Decode converts the subtree at path into out by round-tripping it
// through YAML, so yaml struct tags apply.
func (s *Store) Decode(path string, out any) error {
	v, ok := s.Get(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return decodeValue(v, out)
}

// DecodeMerged decodes the whole merged tree into out.
func (s *Store) DecodeMerged(out any) error {
	return decodeValue(s.Merged(), out)
}

func decodeValue(v any, out any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode attributes: %w", err)
	}
	return nil
}
