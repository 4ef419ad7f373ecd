// Package customfields validates the opaque, client-supplied key-value maps
// stored alongside scheduling records.
package customfields

import (
	"errors"
	"fmt"
)

// Limits bounds the shape of a custom field map.
type Limits struct {
	MaxKeys      int // per map, at every level
	MaxDepth     int // nesting of maps and lists, the top-level map is depth 1
	MaxStringLen int // keys and string values
	MaxListLen   int
}

var DefaultLimits = Limits{
	MaxKeys:      64,
	MaxDepth:     4,
	MaxStringLen: 1024,
	MaxListLen:   256,
}

var ErrInvalid = errors.New("invalid custom_fields")

// Validate checks m against DefaultLimits.
func Validate(m map[string]interface{}) error {
	return DefaultLimits.Validate(m)
}

// Validate accepts nil, and maps whose values are strings, numbers, booleans,
// nulls, or nested lists and maps within the limits. These are exactly the
// shapes encoding/json produces when decoding into interface{}.
func (l Limits) Validate(m map[string]interface{}) error {
	if m == nil {
		return nil
	}
	return l.checkMap(m, "", 1)
}

func (l Limits) checkMap(m map[string]interface{}, path string, depth int) error {
	if depth > l.MaxDepth {
		return fmt.Errorf("%w: %s nested deeper than %d levels", ErrInvalid, label(path), l.MaxDepth)
	}
	if len(m) > l.MaxKeys {
		return fmt.Errorf("%w: %s has more than %d keys", ErrInvalid, label(path), l.MaxKeys)
	}
	for k, v := range m {
		if k == "" {
			return fmt.Errorf("%w: empty key in %s", ErrInvalid, label(path))
		}
		if len(k) > l.MaxStringLen {
			return fmt.Errorf("%w: key in %s longer than %d characters", ErrInvalid, label(path), l.MaxStringLen)
		}
		if err := l.checkValue(v, join(path, k), depth); err != nil {
			return err
		}
	}
	return nil
}

func (l Limits) checkValue(v interface{}, path string, depth int) error {
	switch t := v.(type) {
	case nil, bool, float64, float32, int, int32, int64:
		return nil
	case string:
		if len(t) > l.MaxStringLen {
			return fmt.Errorf("%w: %s longer than %d characters", ErrInvalid, path, l.MaxStringLen)
		}
		return nil
	case map[string]interface{}:
		return l.checkMap(t, path, depth+1)
	case []interface{}:
		if depth+1 > l.MaxDepth {
			return fmt.Errorf("%w: %s nested deeper than %d levels", ErrInvalid, path, l.MaxDepth)
		}
		if len(t) > l.MaxListLen {
			return fmt.Errorf("%w: %s has more than %d items", ErrInvalid, path, l.MaxListLen)
		}
		for i, item := range t {
			if err := l.checkValue(item, fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s has unsupported type %T", ErrInvalid, path, v)
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func label(path string) string {
	if path == "" {
		return "custom_fields"
	}
	return path
}
