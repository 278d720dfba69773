package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"deadline-bot/internal/model"
)

// EventRepository handles calendar deadlines.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Upsert inserts the event or, if (user, uid) already exists, overwrites
// title/description/time/category. The completion flag survives re-ingestion.
func (r *EventRepository) Upsert(ctx context.Context, event *model.Event) error {
	db := r.db.WithContext(ctx)

	var existing model.Event
	err := db.Where("user_id = ? AND uid = ?", event.UserID, event.UID).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"title":       event.Title,
			"description": event.Description,
			"end_time":    event.EndTime,
			"category":    event.Category,
		}
		if err := db.Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("update event %s: %w", event.UID, err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Create(event).Error; err != nil {
			return fmt.Errorf("create event %s: %w", event.UID, err)
		}
		return nil
	default:
		return fmt.Errorf("find event %s: %w", event.UID, err)
	}
}

// ListIncomplete returns all open deadlines for a user, soonest first.
// Events without an end time sort last.
func (r *EventRepository) ListIncomplete(ctx context.Context, userID uint) ([]model.Event, error) {
	var events []model.Event
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_completed = ?", userID, false).
		Order("end_time IS NULL, end_time ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ListUpcoming returns incomplete events that actually carry a due time,
// i.e. the ones the notifier can evaluate.
func (r *EventRepository) ListUpcoming(ctx context.Context, userID uint) ([]model.Event, error) {
	var events []model.Event
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_completed = ? AND end_time IS NOT NULL", userID, false).
		Order("end_time ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *EventRepository) MarkCompleted(ctx context.Context, userID uint, uid string) error {
	if err := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("user_id = ? AND uid = ?", userID, uid).
		Update("is_completed", true).Error; err != nil {
		return fmt.Errorf("mark completed %s: %w", uid, err)
	}
	return nil
}

// PurgeExpired deletes every event whose deadline has passed, completed or
// not. Events without an end time are never purged.
func (r *EventRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("end_time IS NOT NULL AND end_time < ?", now).
		Delete(&model.Event{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}
