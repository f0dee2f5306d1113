package models

import "gorm.io/gorm"

// PointCategory groups point log entries by their source.
type PointCategory string

const (
	PointCategoryGame PointCategory = "GAME"
)

// PointLog is one immutable line of the reward ledger. Rows are append-only;
// a user's standing is the User.LeaguePoint column, this is the audit trail.
type PointLog struct {
	gorm.Model
	UserID      uint          `gorm:"not null;index"`
	Category    PointCategory `gorm:"size:50;not null"`
	Amount      int           `gorm:"not null"`
	Description string        `gorm:"size:512"`
	Metadata    string        `gorm:"type:text"` // JSON blob: rank, roomId, mode, teamType

	User User `gorm:"foreignKey:UserID"`
}
