package models

import "gorm.io/gorm"

// User represents a user in the system.
type User struct {
	gorm.Model
	Nickname     string `gorm:"size:255;unique;not null"`
	Email        string `gorm:"size:255;unique;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:50;not null;default:'user';index"`
	ProfileImg   string `gorm:"size:512"`

	// LeaguePoint is the accumulated standing match settlement credits into.
	LeaguePoint int `gorm:"not null;default:0"`
}
