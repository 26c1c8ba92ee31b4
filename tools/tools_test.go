package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhoneNumber(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"+15551234567", true},
		{"+1 (555) 123-4567", true},
		{"555.123.4567", true},
		{"1234567", true},
		{"123456", false},
		{"+1234567890123456", false},
		{"", false},
		{"+", false},
		{"555-CALL-NOW", false},
		{"++15551234567", false},
		{"15551234567;", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidatePhoneNumber(tc.in), tc.in)
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	got, err := NormalizePhoneNumber(" +1 (555) 123-4567 ")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", got)

	got, err = NormalizePhoneNumber("555-123-4567")
	require.NoError(t, err)
	assert.Equal(t, "5551234567", got)

	_, err = NormalizePhoneNumber("12")
	require.Error(t, err)
}

func TestNormalizePhoneNumber_CountryCodeWithoutPlus(t *testing.T) {
	withPlus, err := NormalizePhoneNumber("+15551234567")
	require.NoError(t, err)
	withoutPlus, err := NormalizePhoneNumber("1 555 123 4567")
	require.NoError(t, err)
	assert.Equal(t, withPlus, withoutPlus)
	assert.Equal(t, "+15551234567", withoutPlus)

	got, err := NormalizePhoneNumber("1234567")
	require.NoError(t, err)
	assert.Equal(t, "1234567", got)
}

func TestValidateEmail(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"customer@example.com", true},
		{"first.last+tag@mail.example.co", true},
		{"", false},
		{"no-at-sign.example.com", false},
		{"two@@example.com", false},
		{"a@b@example.com", false},
		{"@example.com", false},
		{"user@", false},
		{"user@localhost", false},
		{"user@example.c", false},
		{"user name@example.com", false},
		{"user@exa mple.com", false},
		{"user\x00@example.com", false},
		{".user@example.com", false},
		{"us..er@example.com", false},
		{"user@-example.com", false},
		{"user@example..com", false},
		{"user@example.123", false},
		{strings.Repeat("a", 65) + "@example.com", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidateEmail(tc.in), tc.in)
	}
}

func TestExtractEmailAddress(t *testing.T) {
	assert.Equal(t, "jane@example.com", ExtractEmailAddress(`"Jane Doe" <Jane@Example.com>`))
	assert.Equal(t, "jane@example.com", ExtractEmailAddress("jane@example.com"))
	assert.Equal(t, "", ExtractEmailAddress("   "))
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><style>p{color:red}</style></head><body>
<p>Hello,</p><p>Do you have <b>225/65R17</b> tires?<br>Thanks</p>
<div>Jane</div></body></html>`

	got := HTMLToText(html)
	assert.Equal(t, "Hello,\nDo you have 225/65R17 tires?\nThanks\n\nJane", got)
	assert.Equal(t, "", HTMLToText("   "))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "line one\n\nline two", SanitizeText("  line one\r\n\r\n\r\n\r\nline two\x07  "))
	assert.Equal(t, "tab\tkept", SanitizeText("tab\tkept"))
}
