package subscriptions

import (
	"reflect"
	"strings"
)

// Matcher evaluates events against subscription patterns
type Matcher struct{}

// NewMatcher creates a new pattern matcher
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match reports whether an event satisfies every criterion the pattern sets.
// Empty criteria match anything.
func (m *Matcher) Match(event Event, pattern SubscriptionPattern) bool {
	if len(pattern.EventTypes) > 0 && !containsFold(pattern.EventTypes, event.Type) {
		return false
	}

	if len(pattern.ResourceTypes) > 0 && !containsFold(pattern.ResourceTypes, event.ResourceType) {
		return false
	}

	if pattern.ResourcePrefix != "" && !strings.HasPrefix(event.Resource, pattern.ResourcePrefix) {
		return false
	}

	// Check metadata matching
	for key, expectedValue := range pattern.MetaMatch {
		actualValue, exists := event.Meta[key]
		if !exists {
			return false
		}
		if !matchValue(expectedValue, actualValue) {
			return false
		}
	}

	return true
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// matchValue compares expected and actual values with type flexibility
func matchValue(expected, actual interface{}) bool {
	// Direct equality
	if reflect.DeepEqual(expected, actual) {
		return true
	}

	// String comparison (case-insensitive)
	expectedStr, ok1 := expected.(string)
	actualStr, ok2 := actual.(string)
	if ok1 && ok2 {
		return strings.EqualFold(expectedStr, actualStr)
	}

	// Numeric comparison with type coercion
	expectedNum, ok1 := toFloat64(expected)
	actualNum, ok2 := toFloat64(actual)
	if ok1 && ok2 {
		return expectedNum == actualNum
	}

	return false
}

// toFloat64 converts various numeric types to float64
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
