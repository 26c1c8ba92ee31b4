package security

import (
	"context"
	"log/slog"

	"github.com/jinzhu/gorm"

	"switchboard/models"
)

// LogSink writes audit events to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Write(ctx context.Context, ev Event) error {
	level := slog.LevelInfo
	switch ev.Severity {
	case SeverityHigh, SeverityMedium:
		level = slog.LevelWarn
	}
	attrs := []any{
		slog.String("event_id", ev.ID),
		slog.String("kind", string(ev.Kind)),
		slog.String("severity", string(ev.Severity)),
		slog.Time("at", ev.Timestamp),
	}
	for k, v := range ev.Context {
		attrs = append(attrs, slog.String("ctx."+k, v))
	}
	s.Logger.Log(ctx, level, "security event", attrs...)
	return nil
}

// GormSink persists audit events in the security_events table.
type GormSink struct {
	DB *gorm.DB
}

func (s GormSink) Write(_ context.Context, ev Event) error {
	row := models.SecurityEvent{
		ID:        ev.ID,
		Kind:      string(ev.Kind),
		Severity:  string(ev.Severity),
		Context:   models.Metadata(ev.Context),
		Timestamp: ev.Timestamp,
	}
	return s.DB.Create(&row).Error
}

// MemorySink buffers events in a channel so callers can wait on them.
type MemorySink struct {
	events chan Event
}

func NewMemorySink(capacity int) *MemorySink {
	return &MemorySink{events: make(chan Event, capacity)}
}

func (s *MemorySink) Write(_ context.Context, ev Event) error {
	select {
	case s.events <- ev:
	default:
	}
	return nil
}

// Events exposes received events in arrival order.
func (s *MemorySink) Events() <-chan Event {
	return s.events
}
