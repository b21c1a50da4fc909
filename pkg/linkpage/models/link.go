package models

import "time"

// Link is one entry on a user's page, reachable through its short code.
type Link struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UserID     string    `gorm:"not null;index;size:36" json:"user_id"`
	Title      string    `json:"title"`
	URL        string    `gorm:"not null" json:"url"`
	ShortID    string    `gorm:"uniqueIndex;not null;size:16" json:"short_id"`
	OrderIndex int       `gorm:"not null;default:0" json:"order_index"`
}

// DisplayTitle falls back to the destination when no title was given.
func (l Link) DisplayTitle() string {
	if l.Title != "" {
		return l.Title
	}
	return l.URL
}
