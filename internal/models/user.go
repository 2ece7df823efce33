package models

import (
	"time"
)

// User mirrors the profile handed over by the external identity provider.
// ID is the provider's stable subject identifier.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(255)" json:"id"`
	Email     string    `gorm:"type:varchar(255);not null" json:"email"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Avatar    string    `gorm:"type:text" json:"avatar"`
	Provider  string    `gorm:"type:varchar(50);not null" json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
}
