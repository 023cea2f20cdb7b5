package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// GetPreferences returns the preference record owned by userID.
func GetPreferences(ctx context.Context, db *gorm.DB, userID string) (*domain.Preferences, error) {
	var p domain.Preferences
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// CreatePreferences inserts p unless the user already has a record, in which
// case the existing record wins and nothing is written.
func CreatePreferences(ctx context.Context, db *gorm.DB, p *domain.Preferences) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt, p.UpdatedAt = now, now
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(p).Error
	return mapErr(err)
}

// ReplacePreferences overwrites the stored flags of p.UserID with p.Flags,
// creating the record when missing. CreatedAt is only set on insert.
func ReplacePreferences(ctx context.Context, db *gorm.DB, p *domain.Preferences) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt, p.UpdatedAt = now, now

	flags, err := json.Marshal(p.Flags)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"preferences": string(flags),
		"updated_at":  now,
	}
	if p.SessionID != nil {
		updates["session_id"] = *p.SessionID
	}
	if p.ClerkSessionID != nil {
		updates["clerk_session_id"] = *p.ClerkSessionID
	}
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(p).Error
	return mapErr(err)
}
