package model

import "time"

// NotificationLog marks that one reminder threshold already fired for one
// event. Rows are write-once: never updated, never deleted, even after the
// event itself is purged.
type NotificationLog struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"uniqueIndex:idx_notification_once"`
	UID       string `gorm:"uniqueIndex:idx_notification_once"`
	Threshold string `gorm:"uniqueIndex:idx_notification_once"`
	CreatedAt time.Time
}
