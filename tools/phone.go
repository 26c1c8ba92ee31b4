package tools

import (
	"fmt"
	"strings"
)

// NormalizePhoneNumber returns the routing form of a phone number. Numbers with a
// country code (a leading '+', or 11 to 15 digits) become '+' followed by digits,
// so "+1 (555) 123-4567", "15551234567" and "+15551234567" route to the same
// conversation. Shorter national numbers without '+' stay digits only.
func NormalizePhoneNumber(raw string) (string, error) {
	if !ValidatePhoneNumber(raw) {
		return "", fmt.Errorf("invalid phone: %q", raw)
	}
	digits, _ := phoneDigits(raw)
	if strings.HasPrefix(strings.TrimSpace(raw), "+") || len(digits) >= minInternationalDigits {
		return "+" + digits, nil
	}
	return digits, nil
}

// phoneDigits strips the accepted separators and reports false when anything else
// besides digits (and one leading '+') is present.
func phoneDigits(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "+")
	if raw == "" {
		return "", false
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separador, ignora
		default:
			return "", false
		}
	}
	return b.String(), b.Len() > 0
}
