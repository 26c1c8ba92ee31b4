package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"switchboard/models"
	"switchboard/ratelimit"

	"github.com/jinzhu/gorm"
	"github.com/robfig/cron/v3"
)

// Job is one periodic housekeeping task.
type Job struct {
	Name string
	// Spec is a cron expression or descriptor such as "@every 5m".
	Spec string
	Run  func(now time.Time)
}

// StartMaintenance schedules jobs on a cron scheduler and stops it when ctx is done.
// A panicking job is logged and does not stop the others.
func StartMaintenance(ctx context.Context, jobs []Job, logger *slog.Logger) error {
	c := cron.New(cron.WithLocation(time.UTC))
	for _, job := range jobs {
		job := job
		if _, err := c.AddFunc(job.Spec, func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("maintenance job panic", slog.String("job", job.Name), slog.Any("panic", r))
				}
			}()
			job.Run(time.Now())
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// RateLimitSweepJob drops rate-limit records whose window is long gone.
func RateLimitSweepJob(limiter *ratelimit.Limiter, interval time.Duration, logger *slog.Logger) Job {
	return Job{
		Name: "ratelimit-sweep",
		Spec: "@every " + interval.String(),
		Run: func(now time.Time) {
			if n := limiter.Sweep(now); n > 0 {
				logger.Debug("rate limit records swept", slog.Int("removed", n), slog.Int("live", limiter.Len()))
			}
		},
	}
}

// DeliveryPurgeJob deletes finished outbox rows (sent or failed) older than retention.
func DeliveryPurgeJob(db *gorm.DB, retention time.Duration, logger *slog.Logger) Job {
	return Job{
		Name: "delivery-purge",
		Spec: "@every 1h",
		Run: func(now time.Time) {
			if n, err := PurgeDeliveries(db, now.Add(-retention)); err != nil {
				logger.Error("delivery purge failed", slog.Any("error", err))
			} else if n > 0 {
				logger.Info("finished deliveries purged", slog.Int64("removed", n))
			}
		},
	}
}

// PurgeDeliveries removes sent and failed deliveries last updated before cutoff.
func PurgeDeliveries(db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.
		Where("status IN (?)", []string{models.DELIVERY_STATUS_SENT, models.DELIVERY_STATUS_FAILED}).
		Where("updated_at < ?", cutoff.UTC()).
		Delete(&models.OutboundDelivery{})
	return res.RowsAffected, res.Error
}
