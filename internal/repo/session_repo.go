package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// UpsertSession stores sessionID against mobile, creating the row on first
// use. An existing row is overwritten: the previous session ID stops
// working and Verified is reset to false.
func UpsertSession(ctx context.Context, db *gorm.DB, mobile, sessionID string) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		MobileNumber: mobile,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "mobile_number"}},
		DoUpdates: clause.Assignments(map[string]any{
			"session_id":  sessionID,
			"verified":    false,
			"verified_at": nil,
			"created_at":  now,
			"updated_at":  now,
		}),
	}).Create(s).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return GetSession(ctx, db, sessionID)
}

// GetSession fetches a session by its provider-issued ID.
func GetSession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// GetVerifiedSession is GetSession restricted to verified sessions.
func GetVerifiedSession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("session_id = ? AND verified = ?", sessionID, true).
		First(&s).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// MarkSessionVerified flips Verified and records the verification time.
func MarkSessionVerified(ctx context.Context, db *gorm.DB, sessionID string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"verified":    true,
			"verified_at": at.UTC(),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDetailsCompleted records that the session's owner saved a profile.
func MarkDetailsCompleted(ctx context.Context, db *gorm.DB, sessionID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"user_details_completed": true,
			"updated_at":             time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
