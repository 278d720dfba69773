package model

import "time"

// Event is a single calendar deadline pulled from the portal export.
// (UserID, UID) is the identity: re-ingesting the same export overwrites
// the mutable fields but never touches IsCompleted.
type Event struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"index;uniqueIndex:idx_user_event_uid"`
	UID         string `gorm:"uniqueIndex:idx_user_event_uid"`
	Title       string
	Description string
	EndTime     *time.Time
	Category    string
	IsCompleted bool `gorm:"default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
