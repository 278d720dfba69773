package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"deadline-bot/internal/model"
)

// NotificationRepository tracks which reminders already fired.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) IsNotified(ctx context.Context, userID uint, uid, threshold string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.NotificationLog{}).
		Where("user_id = ? AND uid = ? AND threshold = ?", userID, uid, threshold).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return count > 0, nil
}

// MarkNotified records that the (user, uid, threshold) reminder was sent.
// The insert ignores conflicts on the unique key, so a racing sweep cannot
// create a second row.
func (r *NotificationRepository) MarkNotified(ctx context.Context, userID uint, uid, threshold string) error {
	entry := model.NotificationLog{UserID: userID, UID: uid, Threshold: threshold}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry).Error; err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}
