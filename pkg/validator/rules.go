package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func rule(field, code, message string, check func() bool) Rule {
	return Rule{
		Check: check,
		Error: ValidationError{Field: field, Code: code, Message: message},
	}
}

// Check turns a precomputed condition into a rule.
func Check(field string, ok bool, message string) Rule {
	return rule(field, "invalid", message, func() bool { return ok })
}

// Required rejects empty or whitespace-only strings.
func Required(field, value string) Rule {
	return rule(field, "required", "field is required", func() bool {
		return strings.TrimSpace(value) != ""
	})
}

// MaxLen counts runes, not bytes.
func MaxLen(field, value string, max int) Rule {
	return rule(field, "max_length", fmt.Sprintf("must be at most %d characters long", max), func() bool {
		return utf8.RuneCountInString(value) <= max
	})
}

func Between[T Numeric](field string, value, min, max T) Rule {
	return rule(field, "out_of_range", fmt.Sprintf("must be between %v and %v", min, max), func() bool {
		return value >= min && value <= max
	})
}

func RequiredSlice[T any](field string, value []T) Rule {
	return rule(field, "required", "field is required", func() bool {
		return len(value) > 0
	})
}

func MaxLenMap[K comparable, V any](field string, value map[K]V, max int) Rule {
	return rule(field, "max_items", fmt.Sprintf("must have at most %d items", max), func() bool {
		return len(value) <= max
	})
}
