package models

import "time"

// Profile is the application-level user record. Its ID is the user id issued
// by the identity provider, so profiles and identities are 1:1.
type Profile struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Username  string    `gorm:"uniqueIndex;not null;size:32" json:"username"`

	Links []Link `gorm:"foreignKey:UserID" json:"links,omitempty"`
}
