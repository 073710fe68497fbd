package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"gorm.io/gorm"
)

// NotificationRecord is a transactional-outbox row: written in the same
// transaction as the pendency change, published to the sink asynchronously
// by the dispatcher. At-least-once delivery; consumers deduplicate on id.
type NotificationRecord struct {
	ID               int                   `gorm:"primary_key" json:"id"`
	BrokerId         string                `gorm:"index;not null;size:36" json:"broker_id"`
	PendencyId       int                   `gorm:"index;not null" json:"pendency_id"`
	EmployeeId       *int                  `json:"employee_id"`
	EventType        NotificationEventType `gorm:"size:40;not null" json:"event_type"`
	PublishStatus    OutboxPublishStatus   `gorm:"size:10;not null;default:'PENDING';index" json:"publish_status"`
	PublishAttempts  int                   `gorm:"not null;default:0" json:"publish_attempts"`
	LastPublishError *string               `gorm:"type:text" json:"last_publish_error"`
	LockedAt         *time.Time            `json:"locked_at"`
	PublishedAt      *time.Time            `json:"published_at"`
	CorrelationId    string                `gorm:"size:36" json:"correlation_id"`
	CreatedAt        time.Time             `gorm:"autoCreateTime" json:"created_at"`
}

// QueueNotification writes the outbox row inside the caller's transaction.
// It never publishes directly; the dispatcher owns delivery.
func QueueNotification(ctx context.Context, tx *gorm.DB, pendency *Pendency, eventType NotificationEventType) error {
	record := NotificationRecord{
		BrokerId:      pendency.BrokerId,
		PendencyId:    pendency.ID,
		EmployeeId:    pendency.EmployeeId,
		EventType:     eventType,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
