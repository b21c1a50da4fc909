package models

import "time"

// Click is an append-only record of one resolution of a short code.
type Click struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	ShortID    string    `gorm:"not null;index;size:16" json:"short_id"`
	ClickedAt  time.Time `gorm:"not null;index" json:"clicked_at"`
	Referrer   string    `gorm:"type:text" json:"referrer"`
	UserAgent  string    `gorm:"type:text" json:"user_agent"`
	Browser    string    `gorm:"size:64" json:"browser"`
	OS         string    `gorm:"size:100" json:"os"`
	DeviceType string    `gorm:"size:16" json:"device_type"`
}
