// Package message renders personalized SMS texts and validates phone
// numbers for dispatch.
package message

import (
	"fmt"
	"strings"
)

// NamePlaceholder is the substitution token recognized in templates.
const NamePlaceholder = "{name}"

// Render substitutes every name placeholder with the recipient's
// display name. All other template content passes through unchanged.
// Template well-formedness is not validated here; the dispatch layer
// rejects blank templates before rendering.
func Render(template, name string) string {
	return strings.ReplaceAll(template, NamePlaceholder, name)
}

// NormalizePhone strips every non-digit rune.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPhone reports whether the number normalizes to 10 or 11 digits.
func ValidPhone(phone string) bool {
	n := len(NormalizePhone(phone))
	return n >= 10 && n <= 11
}

// FormatPhone renders a normalized number for display
// (3-3-4 grouping for 10 digits, 3-4-4 for 11). Anything else is
// returned as given.
func FormatPhone(phone string) string {
	d := NormalizePhone(phone)
	switch len(d) {
	case 10:
		return fmt.Sprintf("%s-%s-%s", d[:3], d[3:6], d[6:])
	case 11:
		return fmt.Sprintf("%s-%s-%s", d[:3], d[3:7], d[7:])
	default:
		return phone
	}
}
