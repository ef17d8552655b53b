package utils

import (
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a duration string like "5m", returning fallback when
// it is empty, invalid or not positive.
func ParseDuration(d string, fallback time.Duration) time.Duration {
	if d == "" {
		return fallback
	}
	duration, err := time.ParseDuration(d)
	if err != nil || duration <= 0 {
		return fallback
	}
	return duration
}

// ParseValue turns a cell into an int, a float, a bool or the trimmed
// string. Zero-padded codes such as "00123" stay strings.
func ParseValue(s string) interface{} {
	s = strings.TrimSpace(s)

	switch {
	case strings.EqualFold(s, "true"):
		return true
	case strings.EqualFold(s, "false"):
		return false
	case len(s) > 1 && s[0] == '0' && s[1] != '.':
		return s
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// ToFloat converts any Go number to float64. ok is false for other types.
func ToFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case nil:
		return 0, false
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Float64 {
			return rv.Convert(reflect.TypeOf(float64(0))).Float(), true
		}
		return 0, false
	}
}

// Numeric is ToFloat with 0 for non-numbers.
func Numeric(v interface{}) float64 {
	f, _ := ToFloat(v)
	return f
}
