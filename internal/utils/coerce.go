package utils

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/yukikurage/priority-matrix/internal/constants"
)

// ParseNumber converts loosely typed input (JSON numbers, numeric strings)
// into a float. ok is false for missing, empty or non-numeric values.
func ParseNumber(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseScore coerces an importance/urgency value. Invalid or missing input
// becomes the default score; numbers are rounded and clamped to the scale.
func ParseScore(value any) int {
	f, ok := ParseNumber(value)
	if !ok {
		return constants.DefaultScore
	}
	score := int(math.Round(f))
	if score < constants.MinScore {
		return constants.MinScore
	}
	if score > constants.MaxScore {
		return constants.MaxScore
	}
	return score
}

// ParseCount coerces a non-negative counter, defaulting to zero.
func ParseCount(value any) int64 {
	f, ok := ParseNumber(value)
	if !ok || f < 0 {
		return 0
	}
	return int64(math.Round(f))
}

// ParseOptionalInt returns nil when value is missing or not numeric.
func ParseOptionalInt(value any) *int {
	f, ok := ParseNumber(value)
	if !ok {
		return nil
	}
	n := int(math.Round(f))
	return &n
}

// ParseBool accepts true/1 in their usual encodings.
func ParseBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v == 1
	case int:
		return v == 1
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "1"
	default:
		return false
	}
}

// OptionalString trims s and returns nil when nothing is left.
func OptionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
