package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// PreferenceService reads and writes the notification flags of a user.
type PreferenceService struct {
	Prefs    PreferenceRepo
	Resolver *IdentityResolver
}

// Get returns the flags of the user behind sessionID, or the defaults when
// the user has no stored record.
func (s *PreferenceService) Get(ctx context.Context, sessionID string) (domain.PreferenceSet, error) {
	ctx, span := otel.Tracer("services/PreferenceService").Start(ctx, "Get")
	defer span.End()

	u, ok, err := s.Resolver.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	rec, err := s.Prefs.GetPreferences(ctx, u.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultPreferences(), nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if rec.Flags == nil {
		return domain.PreferenceSet{}, nil
	}
	return rec.Flags, nil
}

// Update validates raw and stores it as the user's flags. The stored set is
// replaced, not merged: flags the caller leaves out are dropped.
func (s *PreferenceService) Update(ctx context.Context, sessionID string, raw map[string]json.RawMessage) error {
	ctx, span := otel.Tracer("services/PreferenceService").Start(ctx, "Update")
	defer span.End()

	u, ok, err := s.Resolver.Resolve(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}

	flags, err := domain.ParsePreferenceSet(raw)
	switch {
	case errors.Is(err, domain.ErrUnknownFlag):
		return fmt.Errorf("%w: %w", ErrUnknownPreference, err)
	case errors.Is(err, domain.ErrNonBoolValue):
		return fmt.Errorf("%w: %w", ErrInvalidPreferenceValue, err)
	case err != nil:
		return err
	}

	rec := &domain.Preferences{UserID: u.ID, Flags: flags}
	s.stampSchemeKey(rec, sessionID)
	if err := s.Prefs.ReplacePreferences(ctx, rec); err != nil {
		return unavailable(err)
	}
	return nil
}

// SeedDefaults creates the default record for a newly created user. An
// existing record is left untouched.
func (s *PreferenceService) SeedDefaults(ctx context.Context, u *domain.User, sessionID string) error {
	rec := &domain.Preferences{UserID: u.ID, Flags: domain.DefaultPreferences()}
	s.stampSchemeKey(rec, sessionID)
	if err := s.Prefs.CreatePreferences(ctx, rec); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PreferenceService) stampSchemeKey(rec *domain.Preferences, sessionID string) {
	if sessionID == "" {
		return
	}
	id := sessionID
	if s.Resolver != nil && s.Resolver.IsExternal(sessionID) {
		rec.ClerkSessionID = &id
	} else {
		rec.SessionID = &id
	}
}
