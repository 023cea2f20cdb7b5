package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

func byIdemKey(scope, key string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("scope = ? AND key = ?", scope, key)
	}
}

// GetIdempotency returns the live record for (scope, key). Expired records
// read as ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(scope) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Scopes(byIdemKey(scope, key)).
		Where("expires_at > ?", now.UTC()).
		Take(&rec).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

// CreateIdempotency records the outcome of a completed request for ttl. A
// live record for the same pair wins and the call returns ErrDuplicate; an
// expired one is replaced.
func CreateIdempotency(ctx context.Context, db *gorm.DB, scope, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        NewMessageID(),
		Scope:     scope,
		Key:       key,
		MessageID: messageID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Scopes(byIdemKey(scope, key)).Where("expires_at <= ?", now)
		if err := expired.Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return rec, nil
}
