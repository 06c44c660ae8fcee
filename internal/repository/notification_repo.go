package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

// NotificationRepository handles the notification outbox and user inboxes.
type NotificationRepository interface {
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uint, userID uint) (models.Notification, error)
	ClaimPending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]models.Notification, error)
	MarkDispatched(ctx context.Context, id uint, at time.Time) error
	RecordFailure(ctx context.Context, id uint, reason string, delivered []string, maxAttempts int) error
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var notifications []models.Notification
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uint, userID uint) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	if notification.Read {
		return notification, nil
	}

	notification.Read = true
	if err := r.db.WithContext(ctx).Model(&notification).Update("read", true).Error; err != nil {
		return models.Notification{}, err
	}

	return notification, nil
}

// ClaimPending leases up to limit pending rows to the caller until now+lease.
// Rows held by another dispatcher are skipped, both through the row lock and
// through an unexpired claim, so two nodes never deliver the same batch.
func (r *notificationRepository) ClaimPending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	var notifications []models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.NotificationStatusPending).
			Where("claimed_until IS NULL OR claimed_until < ?", now).
			Order("id ASC").
			Limit(limit).
			Find(&notifications).Error; err != nil {
			return err
		}
		if len(notifications) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(notifications))
		for _, n := range notifications {
			ids = append(ids, n.ID)
		}
		until := now.Add(lease)
		if err := tx.Model(&models.Notification{}).
			Where("id IN ?", ids).
			Update("claimed_until", until).Error; err != nil {
			return err
		}
		for i := range notifications {
			notifications[i].ClaimedUntil = &until
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *notificationRepository) MarkDispatched(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.NotificationStatusDispatched,
			"dispatched_at": at,
			"attempts":      gorm.Expr("attempts + 1"),
			"last_error":    "",
			"claimed_until": nil,
		}).Error
}

// RecordFailure bumps the attempt counter, remembers which sinks already
// accepted the row, releases the claim and parks the row as failed once
// maxAttempts is reached.
func (r *notificationRepository) RecordFailure(ctx context.Context, id uint, reason string, delivered []string, maxAttempts int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var notification models.Notification
		if err := tx.First(&notification, id).Error; err != nil {
			return err
		}

		attempts := notification.Attempts + 1
		status := models.NotificationStatusPending
		if maxAttempts > 0 && attempts >= maxAttempts {
			status = models.NotificationStatusFailed
		}

		return tx.Model(&models.Notification{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":          status,
				"attempts":        attempts,
				"last_error":      reason,
				"delivered_sinks": datatypes.JSONSlice[string](delivered),
				"claimed_until":   nil,
			}).Error
	})
}
