package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// userColumn maps a natural key to its column.
func userColumn(f domain.UserKeyField) (string, error) {
	switch f {
	case domain.UserKeyID:
		return "id", nil
	case domain.UserKeyMobile:
		return "mobile_number", nil
	case domain.UserKeyEmail:
		return "email", nil
	case domain.UserKeyClerkSession:
		return "clerk_session_id", nil
	}
	return "", fmt.Errorf("unknown user key %q", f)
}

// FindUser returns the user addressed by key, or ErrNotFound.
func FindUser(ctx context.Context, db *gorm.DB, key domain.UserKey) (*domain.User, error) {
	col, err := userColumn(key.Field)
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := db.WithContext(ctx).Where(col+" = ?", key.Value).Order("created_at ASC").First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// CreateUser inserts u, assigning an ID and timestamps when absent.
// A second user with the same mobile number returns ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.AuthProvider == "" {
		u.AuthProvider = domain.ProviderMobile
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return mapErr(db.WithContext(ctx).Create(u).Error)
}

// UpdateUser applies patch to the user addressed by key. CreatedAt is never
// touched. Returns ErrNotFound when no row matches and ErrDuplicate when the
// patch would reuse another user's mobile number.
func UpdateUser(ctx context.Context, db *gorm.DB, key domain.UserKey, patch domain.UserPatch) error {
	col, err := userColumn(key.Field)
	if err != nil {
		return err
	}
	updates := patchColumns(patch)
	updates["updated_at"] = time.Now().UTC()

	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where(col+" = ?", key.Value).
		Updates(updates)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// patchColumns turns a UserPatch into a column map. Explicit nulls are kept
// as nil values so GORM writes NULL.
func patchColumns(p domain.UserPatch) map[string]any {
	m := map[string]any{}
	if p.FirstName != nil {
		m["first_name"] = *p.FirstName
	}
	if p.LastName.Set {
		m["last_name"] = p.LastName.Value
	}
	if p.Email.Set {
		m["email"] = p.Email.Value
	}
	if p.MobileNumber.Set {
		m["mobile_number"] = p.MobileNumber.Value
	}
	if p.ClerkSessionID != nil {
		m["clerk_session_id"] = *p.ClerkSessionID
	}
	if p.SessionID != nil {
		m["session_id"] = *p.SessionID
	}
	if p.AuthProvider != nil {
		m["auth_provider"] = string(*p.AuthProvider)
	}
	return m
}
