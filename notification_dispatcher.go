package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationDispatcher drains the outbox: claims pending rows, publishes
// them to the notification sink and marks the result. Claiming uses
// SKIP LOCKED plus a stale locked_at cutoff, so crashed workers release
// their rows after LockTTL and multiple dispatchers can run safely.
type NotificationDispatcher struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewNotificationDispatcher(db *gorm.DB, logger *logrus.Logger) *NotificationDispatcher {
	d := &NotificationDispatcher{
		DB:        db,
		Logger:    logger,
		WorkerID:  "dispatcher-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
	if v := os.Getenv("NOTIFICATION_DISPATCH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			d.BatchSize = n
		}
	}
	if v := os.Getenv("NOTIFICATION_DISPATCH_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			d.Interval = time.Duration(n) * time.Second
		}
	}
	return d
}

func (d *NotificationDispatcher) Run(ctx context.Context) {
	if d == nil || d.DB == nil {
		return
	}
	if !config.NotificationSinkConfigured() {
		if d.Logger != nil {
			d.Logger.Warn("notification sink not configured; outbox rows will stay pending")
		}
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.Interval):
		}
	}
}

func (d *NotificationDispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTTL)

	var claimed []models.NotificationRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("publish_status IN ?", []models.OutboxPublishStatus{
				models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed,
			}).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if err := tx.Model(&models.NotificationRecord{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at": &now,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, rec := range claimed {
		msg := config.NotificationMessage{
			ID:            rec.ID,
			BrokerId:      rec.BrokerId,
			EmployeeId:    rec.EmployeeId,
			PendencyId:    rec.PendencyId,
			EventType:     string(rec.EventType),
			OccurredAt:    rec.CreatedAt,
			CorrelationId: rec.CorrelationId,
		}

		if _, err := config.PublishNotification(ctx, msg); err != nil {
			errMsg := err.Error()
			_ = d.DB.WithContext(ctx).Model(&models.NotificationRecord{}).
				Where("id = ?", rec.ID).
				Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusFailed,
					"publish_attempts":   rec.PublishAttempts + 1,
					"last_publish_error": &errMsg,
					"locked_at":          nil,
				}).Error
			if d.Logger != nil {
				d.Logger.WithFields(logrus.Fields{
					"recordId":   rec.ID,
					"brokerId":   rec.BrokerId,
					"pendencyId": rec.PendencyId,
					"eventType":  rec.EventType,
				}).Error("notification publish failed: " + errMsg)
			}
			continue
		}

		publishedAt := time.Now().UTC()
		_ = d.DB.WithContext(ctx).Model(&models.NotificationRecord{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusSent,
				"publish_attempts":   rec.PublishAttempts + 1,
				"last_publish_error": nil,
				"locked_at":          nil,
				"published_at":       &publishedAt,
			}).Error
	}
}
