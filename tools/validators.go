package tools

import (
	"net/mail"
	"strings"
	"unicode"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
	maxEmailLength = 254

	// a partir daqui o número já inclui o código do país
	minInternationalDigits = 11
)

// ValidatePhoneNumber accepts E.164-like numbers: optional leading '+', separators
// (space, '-', '.', '(', ')') ignored, then 7 to 15 digits.
func ValidatePhoneNumber(phone string) bool {
	digits, ok := phoneDigits(phone)
	if !ok {
		return false
	}
	return len(digits) >= minPhoneDigits && len(digits) <= maxPhoneDigits
}

// ValidateEmail aceita só um subconjunto conservador do RFC 5322, sem consulta DNS/MX.
func ValidateEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	for _, r := range email {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	if strings.Count(email, "@") != 1 {
		return false
	}
	at := strings.IndexByte(email, '@')
	local, domain := email[:at], email[at+1:]
	if local == "" || domain == "" || len(local) > 64 {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}
	for _, r := range local {
		if strings.ContainsRune(`"(),:;<>[\]`, r) {
			return false
		}
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	labels := strings.Split(domain, ".")
	for _, label := range labels {
		if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if r != '-' && !isASCIIAlnum(r) {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// ExtractEmailAddress pulls the bare address out of header-style values
// like `"Jane Doe" <jane@example.com>`. Returns "" when nothing parses.
func ExtractEmailAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(addr.Address)
	}
	// alguns provedores mandam só "<jane@example.com>"
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
	return strings.ToLower(strings.TrimSpace(raw))
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
