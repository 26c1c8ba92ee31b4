package security

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestContainsSuspiciousPatterns(t *testing.T) {
	flagged := []string{
		"<script>alert(1)</script>",
		"< SCRIPT src=//evil.example/x.js>",
		`<a href="javascript:alert(1)">x</a>`,
		`<img src=x onerror=alert(1)>`,
		"<iframe src=//evil.example>",
		"1 UNION SELECT password FROM users",
		"'; DROP TABLE conversations;",
		"admin' OR 1=1",
		"x'; delete from messages",
		"Buy cheap viagra now",
		"Please verify your account at our portal",
		"Congratulations, you have won a car",
		"click here to claim",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"!!!!!!!!!!!!!!!!!!!!!!!!!",
	}
	for _, text := range flagged {
		assert.True(t, ContainsSuspiciousPatterns(text), text)
	}

	clean := []string{
		"Looking for 225/65R17 tires",
		"We have those in stock",
		"Can I come by at 3pm? My number is +1 (555) 123-4567.",
		"Is the price < $200 or more?",
		"I'd like a quote for four tires and an alignment",
		"Thanks!!!",
		"",
	}
	for _, text := range clean {
		assert.False(t, ContainsSuspiciousPatterns(text), text)
	}
}

func TestScanner_ReportsSignatureAndSeverity(t *testing.T) {
	s := DefaultScanner()

	got, hit := s.Scan("<script>alert(1)</script>")
	require.True(t, hit)
	assert.Equal(t, "script_tag", got.Name)
	assert.Equal(t, SeverityHigh, got.Severity)

	got, hit = s.Scan(strings.Repeat("z", 25))
	require.True(t, hit)
	assert.Equal(t, CategoryFlood, got.Category)
	assert.Equal(t, SeverityMedium, got.Severity)
}

func TestNewScanner_CustomSignatures(t *testing.T) {
	s, err := NewScanner([]string{`(?i)free\s+money`}, 5)
	require.NoError(t, err)

	got, hit := s.Scan("get FREE   money today")
	require.True(t, hit)
	assert.Equal(t, CategoryCustom, got.Category)

	assert.True(t, s.ContainsSuspiciousPatterns("hmmmmm"))
	assert.False(t, DefaultScanner().ContainsSuspiciousPatterns("hmmmmm"))

	_, err = NewScanner([]string{"("}, 5)
	require.Error(t, err)
}

func TestAuditor_DrainsToSinks(t *testing.T) {
	sink := NewMemorySink(10)
	a := NewAuditor(testLogger(), 10, sink, LogSink{Logger: testLogger()})
	a.Start(context.Background())

	a.LogSecurityEvent(KindSuspiciousContent, map[string]string{"identity": "+15551234567"}, SeverityHigh)

	select {
	case ev := <-sink.Events():
		assert.Equal(t, KindSuspiciousContent, ev.Kind)
		assert.Equal(t, SeverityHigh, ev.Severity)
		assert.Equal(t, "+15551234567", ev.Context["identity"])
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event was not drained")
	}
	a.Close()
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Write(ctx context.Context, _ Event) error {
	<-s.release
	return nil
}

func TestAuditor_NeverBlocksWhenQueueIsFull(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	a := NewAuditor(testLogger(), 2, sink)
	a.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			a.LogSecurityEvent(KindRateLimited, nil, SeverityLow)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LogSecurityEvent blocked on a slow sink")
	}
	assert.Greater(t, a.Dropped(), int64(0))

	close(sink.release)
	a.Close()
}

type failingSink struct{}

func (failingSink) Write(context.Context, Event) error { return errors.New("disk full") }

type panickingSink struct{}

func (panickingSink) Write(context.Context, Event) error { panic("boom") }

func TestAuditor_SinkFailuresDoNotStopDrain(t *testing.T) {
	sink := NewMemorySink(10)
	a := NewAuditor(testLogger(), 10, failingSink{}, panickingSink{}, sink)
	a.Start(context.Background())

	a.LogSecurityEvent(KindInternalFailure, nil, SeverityMedium)
	a.LogSecurityEvent(KindInternalFailure, nil, SeverityMedium)
	a.Close()

	assert.Len(t, sink.Events(), 2)
}

func TestAuditor_AfterCloseDropsSilently(t *testing.T) {
	a := NewAuditor(testLogger(), 4)
	a.Close()

	require.NotPanics(t, func() {
		a.LogSecurityEvent(KindForbidden, nil, SeverityLow)
	})
	assert.Equal(t, int64(1), a.Dropped())

	var nilAuditor *Auditor
	require.NotPanics(t, func() {
		nilAuditor.LogSecurityEvent(KindForbidden, nil, SeverityLow)
	})
}

func TestAuditor_ConcurrentProducers(t *testing.T) {
	sink := NewMemorySink(1000)
	a := NewAuditor(testLogger(), 1000, sink)
	a.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				a.LogSecurityEvent(KindSuspiciousContent, nil, SeverityMedium)
			}
		}()
	}
	wg.Wait()
	a.Close()

	assert.Equal(t, 200, len(sink.Events())+int(a.Dropped()))
}

func TestAuditor_CancelMidStreamLosesNothingUncounted(t *testing.T) {
	sink := NewMemorySink(1000)
	a := NewAuditor(testLogger(), 1000, sink)
	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i == 0 && j == 25 {
					cancel()
				}
				a.LogSecurityEvent(KindRateLimited, nil, SeverityLow)
			}
		}(i)
	}
	wg.Wait()
	a.Close()

	// cada evento ou foi escrito ou foi contado como descartado
	assert.Equal(t, 500, len(sink.Events())+int(a.Dropped()))
}

func TestAuditor_AfterCancelCountsDropped(t *testing.T) {
	sink := NewMemorySink(10)
	a := NewAuditor(testLogger(), 10, sink)
	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)

	a.LogSecurityEvent(KindForbidden, nil, SeverityLow)
	cancel()
	a.Close()
	a.LogSecurityEvent(KindForbidden, nil, SeverityLow)

	assert.Len(t, sink.Events(), 1)
	assert.Equal(t, int64(1), a.Dropped())
}

func TestAuditor_CloseWithoutStartCountsQueued(t *testing.T) {
	a := NewAuditor(testLogger(), 10)
	a.LogSecurityEvent(KindForbidden, nil, SeverityLow)
	a.LogSecurityEvent(KindForbidden, nil, SeverityLow)
	a.Close()

	assert.Equal(t, int64(2), a.Dropped())
}

func TestBoundContext(t *testing.T) {
	in := map[string]string{}
	for i := 0; i < 40; i++ {
		in[string(rune('a'+i%26))+strings.Repeat("k", i/26)] = strings.Repeat("v", 1000)
	}
	out := boundContext(in)
	assert.Len(t, out, maxContextKeys)
	for _, v := range out {
		assert.LessOrEqual(t, len([]rune(v)), maxContextValueLen+1)
	}
	assert.Nil(t, boundContext(nil))
}
