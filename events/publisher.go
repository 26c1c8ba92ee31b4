package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

// AMQPPublisher publishes JSON envelopes to a durable topic exchange with publisher confirms.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      *slog.Logger
}

// NewAMQPPublisher dials url and declares the exchange.
func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		log:      logger.With(slog.String("component", "events")),
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if msg.Meta.CorrelationID != nil {
		cid = *msg.Meta.CorrelationID
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msgID,
		CorrelationId: cid,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		return err
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return fmt.Errorf("publish %s: nacked by broker", key)
	}
	p.log.Debug("published", slog.String("key", key), slog.String("exchange", p.exchange))
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// LogPublisher only logs envelopes; used when no broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	p.Logger.Log(ctx, slog.LevelDebug, "event",
		slog.String("key", key),
		slog.String("id", msg.Meta.ID),
		slog.String("type", msg.Meta.Type),
	)
	return nil
}

func (LogPublisher) Close() error { return nil }

// MemoryPublisher records envelopes in memory.
type MemoryPublisher struct {
	mu        sync.Mutex
	published []Published
}

type Published struct {
	Key      string
	Envelope Envelope
}

func (p *MemoryPublisher) Publish(_ context.Context, key string, msg Envelope) error {
	p.mu.Lock()
	p.published = append(p.published, Published{Key: key, Envelope: msg})
	p.mu.Unlock()
	return nil
}

func (*MemoryPublisher) Close() error { return nil }

// Keys returns the routing keys published so far, in order.
func (p *MemoryPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, len(p.published))
	for i, pub := range p.published {
		keys[i] = pub.Key
	}
	return keys
}

func (p *MemoryPublisher) Published() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.published...)
}

// PublishAsync publishes in the background with a timeout; failures are only logged
// so event publication never fails the request that caused it.
func PublishAsync(pub Publisher, logger *slog.Logger, key string, msg Envelope) {
	if pub == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pub.Publish(ctx, key, msg); err != nil {
			logger.Warn("event publish failed", slog.String("key", key), slog.Any("error", err))
		}
	}()
}
