package security

import (
	"fmt"
	"regexp"
)

// Signature is one entry of the suspicious-content set.
type Signature struct {
	Name     string
	Category string
	Severity Severity
	re       *regexp.Regexp
}

const (
	CategoryInjection = "markup_injection"
	CategorySQL       = "sql_injection"
	CategorySpam      = "spam"
	CategoryFlood     = "flood"
	CategoryCustom    = "custom"
)

func sig(name, category string, severity Severity, pattern string) Signature {
	return Signature{Name: name, Category: category, Severity: severity, re: regexp.MustCompile(pattern)}
}

// defaultSignatures are compiled once; configuration can only add to them.
var defaultSignatures = []Signature{
	// markup / script injection
	sig("script_tag", CategoryInjection, SeverityHigh, `(?i)<\s*/?\s*script\b`),
	sig("javascript_uri", CategoryInjection, SeverityHigh, `(?i)(java|vb)script\s*:`),
	sig("html_data_uri", CategoryInjection, SeverityHigh, `(?i)data\s*:\s*text/html`),
	sig("embed_tag", CategoryInjection, SeverityHigh, `(?i)<\s*(iframe|object|embed|applet|base|form|meta)\b`),
	sig("event_handler", CategoryInjection, SeverityHigh, `(?i)<[a-z][^>]*\bon[a-z]+\s*=`),

	// SQL injection
	sig("union_select", CategorySQL, SeverityHigh, `(?i)\bunion\b(\s+all)?\s+select\b`),
	sig("ddl_statement", CategorySQL, SeverityHigh, `(?i)\b(drop|truncate|alter)\s+(table|database|schema)\b`),
	sig("tautology", CategorySQL, SeverityHigh, `(?i)['"]\s*or\s+(['"]?\d+['"]?\s*=\s*['"]?\d+|'[^']*'\s*=\s*')`),
	sig("stacked_query", CategorySQL, SeverityHigh, `(?i);\s*(delete\s+from|insert\s+into|update\s+\w+\s+set|exec(ute)?\s)`),
	sig("comment_terminator", CategorySQL, SeverityMedium, `(?im)['"]\s*;?\s*(--|#)\s*$`),
	sig("db_functions", CategorySQL, SeverityHigh, `(?i)\b(xp_cmdshell|pg_sleep|benchmark\s*\(|sleep\s*\(\s*\d+\s*\)|information_schema)`),

	// spam / phishing
	sig("pharma_spam", CategorySpam, SeverityMedium, `(?i)\b(viagra|cialis|levitra)\b`),
	sig("account_phishing", CategorySpam, SeverityMedium, `(?i)\b(verify|confirm|update)\s+your\s+(account|password|identity|banking|login)\b`),
	sig("prize_scam", CategorySpam, SeverityMedium, `(?i)\b(you('ve|\s+have)\s+won|claim\s+your\s+(prize|reward|gift))\b`),
	sig("click_bait", CategorySpam, SeverityMedium, `(?i)\bclick\s+(here|this\s+link)\s+(to|and)\s+(claim|verify|unlock|win)\b`),
	sig("crypto_scam", CategorySpam, SeverityMedium, `(?i)\b(send|transfer)\b.{0,40}\b(bitcoin|btc|usdt|gift\s+cards?)\b`),
	sig("url_shortener", CategorySpam, SeverityLow, `(?i)\b(bit\.ly|tinyurl\.com|t\.co|goo\.gl)/\w+`),
}

// floodSignature is reported by the repeated-character check, which RE2 cannot express.
var floodSignature = Signature{Name: "repeated_characters", Category: CategoryFlood, Severity: SeverityMedium}

// Scanner flags text matching any risk signature. It is a deny gate, not a sanitizer:
// callers reject flagged content, they never clean it.
type Scanner struct {
	signatures []Signature
	floodRun   int
}

// NewScanner builds a scanner with the built-in signatures plus extra patterns.
// floodRun is the length of a single-character run that counts as flooding.
func NewScanner(extra []string, floodRun int) (*Scanner, error) {
	sigs := make([]Signature, 0, len(defaultSignatures)+len(extra))
	sigs = append(sigs, defaultSignatures...)
	for i, pattern := range extra {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		sigs = append(sigs, Signature{
			Name:     fmt.Sprintf("custom_%d", i),
			Category: CategoryCustom,
			Severity: SeverityMedium,
			re:       re,
		})
	}
	if floodRun <= 1 {
		floodRun = 20
	}
	return &Scanner{signatures: sigs, floodRun: floodRun}, nil
}

var defaultScanner, _ = NewScanner(nil, 20)

// DefaultScanner returns the scanner built from the built-in signatures only.
func DefaultScanner() *Scanner {
	return defaultScanner
}

// ContainsSuspiciousPatterns reports whether text hits a built-in signature.
func ContainsSuspiciousPatterns(text string) bool {
	return defaultScanner.ContainsSuspiciousPatterns(text)
}

func (s *Scanner) ContainsSuspiciousPatterns(text string) bool {
	_, hit := s.Scan(text)
	return hit
}

// Scan returns the first signature text matches.
func (s *Scanner) Scan(text string) (Signature, bool) {
	if text == "" {
		return Signature{}, false
	}
	for _, sg := range s.signatures {
		if sg.re.MatchString(text) {
			return sg, true
		}
	}
	if hasCharacterRun(text, s.floodRun) {
		return floodSignature, true
	}
	return Signature{}, false
}

// hasCharacterRun reports a run of at least n identical non-space runes.
func hasCharacterRun(text string, n int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && r != ' ' {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= n {
			return true
		}
	}
	return false
}
