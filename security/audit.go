// Package security holds the content-safety gate and the security audit trail.
package security

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Kind string

const (
	KindSuspiciousContent Kind = "suspicious_content"
	KindInvalidIdentity   Kind = "invalid_identity"
	KindInvalidPayload    Kind = "invalid_payload"
	KindInvalidSignature  Kind = "invalid_signature"
	KindRateLimited       Kind = "rate_limited"
	KindAuthFailure       Kind = "authentication_failure"
	KindForbidden         Kind = "forbidden"
	KindInternalFailure   Kind = "internal_failure"
)

const (
	maxContextKeys     = 16
	maxContextValueLen = 256
)

// Event is an immutable audit record.
type Event struct {
	ID        string
	Kind      Kind
	Severity  Severity
	Context   map[string]string
	Timestamp time.Time
}

// Sink receives drained audit events.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// Auditor is a bounded queue in front of the audit sinks. LogSecurityEvent never
// blocks and never panics: when the queue is full the event is dropped and counted.
type Auditor struct {
	queue   chan Event
	sinks   []Sink
	logger  *slog.Logger
	now     func() time.Time
	dropped atomic.Int64

	// mu serializes enqueues against the final flush: once stopped is set no
	// event can enter the queue, so the flush sees every accepted event.
	mu      sync.RWMutex
	stopped bool

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	startOnce sync.Once
}

func NewAuditor(logger *slog.Logger, queueSize int, sinks ...Sink) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Auditor{
		queue:  make(chan Event, queueSize),
		sinks:  sinks,
		logger: logger.With(slog.String("component", "audit")),
		now:    time.Now,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// LogSecurityEvent enqueues an event for the background drain.
func (a *Auditor) LogSecurityEvent(kind Kind, fields map[string]string, severity Severity) {
	if a == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.dropped.Add(1)
		}
	}()

	ev := Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  severity,
		Context:   boundContext(fields),
		Timestamp: a.now().UTC(),
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		a.dropped.Add(1)
		return
	}

	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of events lost to a full queue or a closed auditor.
func (a *Auditor) Dropped() int64 {
	return a.dropped.Load()
}

// Start launches the drain loop. It stops when ctx is cancelled or Close is called,
// flushing whatever is still queued; events logged after that count as dropped.
func (a *Auditor) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		go a.drain(ctx)
	})
}

// Close stops accepting events and waits for the drain loop to flush.
func (a *Auditor) Close() {
	a.closeOnce.Do(func() { close(a.closed) })
	a.startOnce.Do(func() {
		// nunca iniciado: o que estiver na fila não será escrito
		a.stopAccepting()
		a.dropped.Add(int64(len(a.queue)))
		close(a.done)
	})
	<-a.done
}

func (a *Auditor) stopAccepting() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
}

func (a *Auditor) drain(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case ev := <-a.queue:
			a.write(ev)
		case <-ctx.Done():
			a.stopAccepting()
			a.flush()
			return
		case <-a.closed:
			a.stopAccepting()
			a.flush()
			return
		}
	}
}

func (a *Auditor) flush() {
	for {
		select {
		case ev := <-a.queue:
			a.write(ev)
		default:
			return
		}
	}
}

func (a *Auditor) write(ev Event) {
	// sink de auditoria nunca pode derrubar o drain
	for _, sink := range a.sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("audit sink panic", slog.Any("panic", r))
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sink.Write(ctx, ev); err != nil {
				a.logger.Warn("audit sink write failed", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
			}
		}()
	}
}

// boundContext keeps at most maxContextKeys entries (sorted by key) and truncates values.
func boundContext(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > maxContextKeys {
		keys = keys[:maxContextKeys]
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = truncate(in[k], maxContextValueLen)
	}
	return out
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}
