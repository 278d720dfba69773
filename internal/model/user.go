package model

import "time"

// User stores the Telegram identity together with the portal account the
// bot logs in with.
//
// PortalPassword is kept in plaintext because the scraper has to replay it
// into the portal's login form on every refresh. TODO: encrypt at rest once
// there is a place to keep the key.
type User struct {
	ID                   uint  `gorm:"primaryKey"`
	TelegramID           int64 `gorm:"uniqueIndex"`
	PortalUsername       string
	PortalPassword       string
	NotificationsEnabled bool `gorm:"default:false"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Events               []Event `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
