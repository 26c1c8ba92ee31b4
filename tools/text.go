package tools

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
)

// NormalizeLineBreaks converts CRLF/CR to LF, trims trailing spaces on each line
// and collapses runs of blank lines to a single blank line.
func NormalizeLineBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SanitizeText removes control characters (keeping newlines and tabs) and normalizes line breaks.
func SanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
	return NormalizeLineBreaks(s)
}

// HTMLToText derives a plain-text body from an HTML email: markup is dropped,
// <br> and block elements become line breaks.
func HTMLToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return NormalizeLineBreaks(tagRe.ReplaceAllString(html, ""))
	}

	doc.Find("script, style, head, title").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	text := strings.ReplaceAll(doc.Text(), "\u00a0", " ")
	return NormalizeLineBreaks(text)
}
