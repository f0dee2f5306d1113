package models

import "gorm.io/gorm"

// Tag represents a problem tag (e.g., "dp", "graphs", "greedy"). Key is the
// canonical lookup key used in room configs; Name is the display name.
type Tag struct {
	gorm.Model
	Key  string `gorm:"size:100;unique;not null;index"`
	Name string `gorm:"size:100;not null"`
}
