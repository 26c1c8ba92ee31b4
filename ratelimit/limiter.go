// Package ratelimit throttles operations per (identity, operation class) with fixed windows.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"switchboard/config"
)

/************************************************
/**** MARK: OPERATION CLASSES ****/
/************************************************/
const (
	ClassAPI          = "api"
	ClassReply        = "reply"
	ClassSMSInbound   = "sms_inbound"
	ClassEmailInbound = "email_inbound"
	ClassFormInbound  = "form_inbound"
)

// Rule is the threshold of one operation class.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result is the outcome of a Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type key struct {
	identity string
	class    string
}

type record struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	evicted     bool
}

// Limiter keeps one counter per key. It is safe for concurrent use; the
// check-and-increment of a key happens under that key's mutex.
type Limiter struct {
	mu      sync.Mutex
	records map[key]*record
	rules   map[string]Rule
	now     func() time.Time
}

// New builds a limiter from per-class rules. Rules with a non-positive limit or
// window are ignored; a missing "api" rule falls back to 60 per minute.
func New(rules map[string]Rule) *Limiter {
	r := make(map[string]Rule, len(rules)+1)
	for class, rule := range rules {
		if rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		r[strings.ToLower(class)] = rule
	}
	if _, ok := r[ClassAPI]; !ok {
		r[ClassAPI] = Rule{Limit: 60, Window: time.Minute}
	}
	return &Limiter{
		records: make(map[key]*record),
		rules:   r,
		now:     time.Now,
	}
}

// NewFromConfig builds a limiter from the rate_limits configuration section.
func NewFromConfig(rules map[string]config.RateLimitRule) *Limiter {
	r := make(map[string]Rule, len(rules))
	for class, rule := range rules {
		r[class] = Rule{Limit: rule.Limit, Window: rule.Window}
	}
	return New(r)
}

// SetClock replaces the time source (tests).
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// RuleFor returns the rule applied to class; unknown classes use the api rule.
func (l *Limiter) RuleFor(class string) Rule {
	if rule, ok := l.rules[strings.ToLower(class)]; ok {
		return rule
	}
	return l.rules[ClassAPI]
}

// Check counts one operation for (identity, class) and reports whether it is allowed.
func (l *Limiter) Check(identity, class string) Result {
	class = strings.ToLower(class)
	if _, ok := l.rules[class]; !ok {
		class = ClassAPI
	}
	rule := l.rules[class]
	k := key{identity: identity, class: class}

	for {
		l.mu.Lock()
		rec, ok := l.records[k]
		if !ok {
			rec = &record{}
			l.records[k] = rec
		}
		now := l.now()
		l.mu.Unlock()

		rec.mu.Lock()
		if rec.evicted {
			// o sweeper removeu o registro entre o lookup e o lock
			rec.mu.Unlock()
			continue
		}
		res := rec.hit(now, rule)
		rec.mu.Unlock()
		return res
	}
}

func (r *record) hit(now time.Time, rule Rule) Result {
	if r.count == 0 || !now.Before(r.windowStart.Add(rule.Window)) {
		r.windowStart = now
		r.count = 0
	}
	r.count++
	resetAt := r.windowStart.Add(rule.Window)

	if r.count > rule.Limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	return Result{Allowed: true, Remaining: rule.Limit - r.count, ResetAt: resetAt}
}

// Sweep drops records whose window ended more than one window before now and
// returns how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, rec := range l.records {
		rule := l.RuleFor(k.class)
		rec.mu.Lock()
		if now.Sub(rec.windowStart) >= 2*rule.Window {
			rec.evicted = true
			delete(l.records, k)
			removed++
		}
		rec.mu.Unlock()
	}
	return removed
}

// Len is the number of live records.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
