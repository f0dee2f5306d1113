// Package repo adapts the relational database to the collaborator ports the
// room coordinator consumes: user directory, reward ledger and catalog
// enrichment.
package repo

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"codeclash/backend/internal/game"
	"codeclash/backend/internal/models"
)

// Users implements game.UserDirectory over the users table.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (r *Users) Lookup(ctx context.Context, userID int64) (game.UserRecord, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return game.UserRecord{}, err
	}
	return game.UserRecord{
		ID:          int64(user.ID),
		Nickname:    user.Nickname,
		ProfileImg:  user.ProfileImg,
		LeaguePoint: user.LeaguePoint,
	}, nil
}

func (r *Users) AddLeaguePoints(ctx context.Context, userID int64, points int) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("league_point", gorm.Expr("league_point + ?", points)).Error
}

// Ledger implements game.RewardLedger over the point_logs table.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (r *Ledger) Append(ctx context.Context, entry game.RewardEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	row := models.PointLog{
		UserID:      uint(entry.UserID),
		Category:    models.PointCategoryGame,
		Amount:      entry.Amount,
		Description: entry.Description,
		Metadata:    string(metadata),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// Catalog implements game.Enricher over the problem and tag tables. All
// lookups are best-effort: on error the input keys come back untranslated
// (or the list comes back empty) and the caller carries on.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (r *Catalog) ProblemTitles(ctx context.Context, problemIDs []uint) []string {
	if len(problemIDs) == 0 {
		return nil
	}
	var titles []string
	if err := r.db.WithContext(ctx).Model(&models.Problem{}).
		Where("id IN ?", problemIDs).
		Pluck("title", &titles).Error; err != nil {
		return nil
	}
	return titles
}

func (r *Catalog) TagNames(ctx context.Context, tagKeys []string) []string {
	names := make([]string, 0, len(tagKeys))
	for _, key := range tagKeys {
		var tag models.Tag
		if err := r.db.WithContext(ctx).Where("key = ?", key).First(&tag).Error; err != nil {
			names = append(names, key)
			continue
		}
		names = append(names, tag.Name)
	}
	return names
}
