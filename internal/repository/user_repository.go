package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"deadline-bot/internal/model"
)

// UserRepository handles CRUD for registered portal accounts.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Exists reports whether a user is already registered for this chat.
func (r *UserRepository) Exists(ctx context.Context, telegramID int64) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("telegram_id = ?", telegramID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count user: %w", err)
	}
	return count > 0, nil
}

// Create registers a new user, or refreshes the stored credentials if the
// chat already has one.
func (r *UserRepository) Create(ctx context.Context, telegramID int64, portalUsername, portalPassword string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"portal_username": portalUsername,
			"portal_password": portalPassword,
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			TelegramID:     telegramID,
			PortalUsername: portalUsername,
			PortalPassword: portalPassword,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) SetNotificationsEnabled(ctx context.Context, telegramID int64, enabled bool) error {
	if err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("telegram_id = ?", telegramID).
		Update("notifications_enabled", enabled).Error; err != nil {
		return fmt.Errorf("set notifications: %w", err)
	}
	return nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Delete removes the user and all of their events. NotificationLog rows are
// left behind on purpose: they only block re-sends for uids that no longer
// exist.
func (r *UserRepository) Delete(ctx context.Context, telegramID int64) error {
	user, err := r.FindByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", user.ID).Delete(&model.Event{}).Error; err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	if err := db.Delete(user).Error; err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
