package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"switchboard/delivery"
	"switchboard/events"
	"switchboard/models"

	"github.com/jinzhu/gorm"
)

// RETRY_BASE_DELAY multiplies the attempt count to get the wait before the next attempt.
const RETRY_BASE_DELAY = 30 * time.Second

// DEFAULT_LEASE is how long a claimed row may stay "processing" before another
// pass takes it back (the worker that claimed it died or was stopped mid-send).
const DEFAULT_LEASE = 5 * time.Minute

// DeliveryDispatcher sends pending outbox rows through the channel senders.
type DeliveryDispatcher struct {
	DB          *gorm.DB
	Senders     delivery.Registry
	Publisher   events.Publisher
	Logger      *slog.Logger
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	// Lease must be longer than one send (60s timeout); zero means DEFAULT_LEASE.
	Lease time.Duration
	Now   func() time.Time
}

// StartDeliveryDispatcher starts a loop that processes due deliveries until ctx is done.
// The returned channel closes once the loop and its in-flight sends have returned.
func StartDeliveryDispatcher(ctx context.Context, d *DeliveryDispatcher) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(d.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.ProcessDue(ctx)
			}
		}
	}()
	return done
}

// ProcessDue claims up to BatchSize due rows, sends them concurrently and waits.
// Due rows are pending ones whose retry time has come, and processing ones whose
// lease expired. It returns how many rows it claimed.
func (d *DeliveryDispatcher) ProcessDue(ctx context.Context) int {
	now := d.now()
	leaseCutoff := now.Add(-d.lease())

	var due []models.OutboundDelivery
	if err := d.DB.
		Where("(status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)) OR (status = ? AND (claimed_at IS NULL OR claimed_at <= ?))",
			models.DELIVERY_STATUS_PENDING, now, models.DELIVERY_STATUS_PROCESSING, leaseCutoff).
		Order("id asc").
		Limit(d.batchSize()).
		Find(&due).Error; err != nil {
		d.Logger.Error("delivery worker: query error", slog.Any("error", err))
		return 0
	}

	var wg sync.WaitGroup
	claimed := 0
	for _, row := range due {
		// lock otimista: só processa se conseguir mudar status (ou renovar um lease vencido)
		claim := d.DB.Model(&models.OutboundDelivery{})
		if row.Status == models.DELIVERY_STATUS_PROCESSING {
			claim = claim.Where("id = ? AND status = ? AND (claimed_at IS NULL OR claimed_at <= ?)",
				row.ID, models.DELIVERY_STATUS_PROCESSING, leaseCutoff)
		} else {
			claim = claim.Where("id = ? AND status = ?", row.ID, models.DELIVERY_STATUS_PENDING)
		}
		res := claim.UpdateColumns(map[string]any{
			"status":     models.DELIVERY_STATUS_PROCESSING,
			"claimed_at": &now,
		})
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}
		if row.Status == models.DELIVERY_STATUS_PROCESSING {
			d.Logger.Warn("delivery lease expired, reclaiming", slog.Int64("delivery_id", row.ID), slog.Int("attempts", row.Attempts))
		}
		claimed++

		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			d.handleDelivery(ctx, id)
		}(row.ID)
	}
	wg.Wait()
	return claimed
}

func (d *DeliveryDispatcher) handleDelivery(ctx context.Context, id int64) {
	var row models.OutboundDelivery
	if err := d.DB.First(&row, id).Error; err != nil {
		return
	}
	if row.Status != models.DELIVERY_STATUS_PROCESSING {
		return
	}
	logger := d.Logger.With(slog.Int64("delivery_id", row.ID), slog.String("channel", row.Channel))

	sender, err := d.Senders.For(row.Channel)
	if err != nil {
		d.finish(row, "", err, true)
		logger.Warn("delivery dropped", slog.Any("error", err))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	receipt, err := sender.Send(sendCtx, delivery.Outbound{
		Channel:   row.Channel,
		To:        row.Recipient,
		Subject:   row.Subject,
		Body:      row.Body,
		InReplyTo: row.InReplyTo,
	})
	if err != nil {
		final := row.Attempts+1 >= d.maxAttempts()
		d.finish(row, "", err, final)
		logger.Warn("delivery attempt failed",
			slog.Int("attempt", row.Attempts+1),
			slog.Bool("final", final),
			slog.Any("error", err),
		)
		return
	}

	d.finish(row, receipt, nil, true)
	logger.Info("reply delivered", slog.String("receipt", receipt))
}

// finish records the outcome of one attempt. A failed non-final attempt goes back to pending.
func (d *DeliveryDispatcher) finish(row models.OutboundDelivery, receipt string, sendErr error, final bool) {
	now := d.now()
	attempts := row.Attempts + 1
	updates := map[string]any{
		"attempts":   attempts,
		"updated_at": &now,
	}

	key := events.KEY_REPLY_DELIVERED
	switch {
	case sendErr == nil:
		updates["status"] = models.DELIVERY_STATUS_SENT
		updates["provider_receipt"] = receipt
		updates["sent_at"] = &now
		updates["last_error"] = ""
	case final:
		updates["status"] = models.DELIVERY_STATUS_FAILED
		updates["last_error"] = sendErr.Error()
		key = events.KEY_REPLY_UNDELIVERED
	default:
		next := now.Add(time.Duration(attempts) * RETRY_BASE_DELAY)
		updates["status"] = models.DELIVERY_STATUS_PENDING
		updates["last_error"] = sendErr.Error()
		updates["next_attempt_at"] = &next
		key = ""
	}

	if err := d.DB.Model(&models.OutboundDelivery{}).Where("id = ?", row.ID).UpdateColumns(updates).Error; err != nil {
		d.Logger.Error("delivery worker: update error", slog.Int64("delivery_id", row.ID), slog.Any("error", err))
		return
	}

	if key != "" {
		ev := events.DeliveryEvent{
			ConversationID:  row.ConversationID,
			MessageID:       row.MessageID,
			Channel:         row.Channel,
			Attempts:        attempts,
			ProviderReceipt: receipt,
		}
		if sendErr != nil {
			ev.Error = sendErr.Error()
		}
		events.PublishAsync(d.Publisher, d.Logger, key, events.NewEnvelope(key, ev).WithCorrelation(row.ConversationID))
	}
}

func (d *DeliveryDispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *DeliveryDispatcher) lease() time.Duration {
	if d.Lease > 0 {
		return d.Lease
	}
	return DEFAULT_LEASE
}

func (d *DeliveryDispatcher) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return 50
}

func (d *DeliveryDispatcher) maxAttempts() int {
	if d.MaxAttempts > 0 {
		return d.MaxAttempts
	}
	return 5
}
