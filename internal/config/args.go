package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Module arguments come from YAML (ints, floats) or JSON (float64 only), so the
// accessors below accept every numeric representation that is lossless for
// the requested type.

// String returns the string argument key, or def when it is absent.
func String(args map[string]any, key, def string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %q must be a string, got %T", ErrConfiguration, key, v)
	}
	return s, nil
}

// RequiredString returns the non-empty string argument key.
func RequiredString(args map[string]any, key string) (string, error) {
	s, err := String(args, key, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: missing required argument %q", ErrConfiguration, key)
	}
	return s, nil
}

// Int returns the integer argument key, or def when it is absent.
func Int(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: argument %q must be an integer, got %v", ErrConfiguration, key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%w: argument %q must be an integer, got %q", ErrConfiguration, key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: argument %q must be an integer, got %T", ErrConfiguration, key, v)
	}
}

// NonNegativeInt is Int restricted to values >= 0.
func NonNegativeInt(args map[string]any, key string, def int) (int, error) {
	i, err := Int(args, key, def)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("%w: argument %q must not be negative, got %d", ErrConfiguration, key, i)
	}
	return i, nil
}

// Float returns the numeric argument key, or def when it is absent.
func Float(args map[string]any, key string, def float64) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: argument %q must be a number, got %q", ErrConfiguration, key, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: argument %q must be a number, got %T", ErrConfiguration, key, v)
	}
}

// Bool returns the boolean argument key, or def when it is absent.
func Bool(args map[string]any, key string, def bool) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("%w: argument %q must be a boolean, got %q", ErrConfiguration, key, b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%w: argument %q must be a boolean, got %T", ErrConfiguration, key, v)
	}
}

// StringList returns the list argument key. A single string is treated as a
// one-element list.
func StringList(args map[string]any, key string, def []string) ([]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch l := v.(type) {
	case string:
		return []string{l}, nil
	case []string:
		return l, nil
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: argument %q must be a list of strings, found %T", ErrConfiguration, key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: argument %q must be a list of strings, got %T", ErrConfiguration, key, v)
	}
}
