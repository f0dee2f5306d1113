package models

import "gorm.io/gorm"

// Problem is one entry of the synced problem catalog. Rooms reference
// problems by id; the coordinator only ever reads titles for lobby payloads.
type Problem struct {
	gorm.Model
	ExternalID string `gorm:"size:100;unique;not null"`
	Title      string `gorm:"size:255;not null"`
	Tier       string `gorm:"size:50"`
	URL        string `gorm:"size:512"`
	Tags       []*Tag `gorm:"many2many:problem_tags;"`
}
