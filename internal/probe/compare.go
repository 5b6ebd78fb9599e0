// Package probe implements the network checks behind the obtmon-ping,
// obtmon-http and obtmon-dns monitors.
package probe

import (
	"fmt"
	"strconv"
	"strings"
)

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

// matchValue compares a decoded JSON value with the expected text. Numbers
// compare numerically so that 1 matches "1.0".
func matchValue(actual interface{}, expected string) bool {
	if a, ok := toFloat(actual); ok {
		if _, isString := actual.(string); !isString {
			if e, ok := toFloat(expected); ok {
				return a == e
			}
		}
	}
	return fmt.Sprintf("%v", actual) == expected
}

func containsAny(actual, expected []string) bool {
	for _, exp := range expected {
		for _, act := range actual {
			if act == exp {
				return true
			}
		}
	}
	return false
}
