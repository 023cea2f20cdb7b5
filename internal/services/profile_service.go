package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// MobileUserInput is the profile a verified mobile session submits.
// LastName and Email distinguish an omitted key from an explicit null.
type MobileUserInput struct {
	SessionID    string
	MobileNumber string
	FirstName    string
	LastName     domain.OptString
	Email        domain.OptString
}

// GoogleUserInput is the profile the external provider hands over.
type GoogleUserInput struct {
	ClerkSessionID string
	Email          string
	FirstName      string
	LastName       domain.OptString
}

// ProfileFields is a partial profile update; only present fields are
// written.
type ProfileFields struct {
	FirstName domain.OptString
	LastName  domain.OptString
	Email     domain.OptString
}

// ProfileService creates, links and updates user records.
type ProfileService struct {
	Users    UserRepo
	Sessions SessionRepo
	Prefs    *PreferenceService
	Resolver *IdentityResolver
}

func (s *ProfileService) tracer() trace.Tracer { return otel.Tracer("services/ProfileService") }

// UpsertMobileUser creates or updates the user keyed by in.MobileNumber and
// reports whether it was created. Default preferences are seeded on create.
func (s *ProfileService) UpsertMobileUser(ctx context.Context, in MobileUserInput) (*domain.User, bool, error) {
	ctx, span := s.tracer().Start(ctx, "UpsertMobileUser")
	defer span.End()

	existing, err := s.Users.FindUser(ctx, domain.ByMobile(in.MobileNumber))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, false, unavailable(err)
	}

	if existing != nil {
		return s.updateMobileUser(ctx, in)
	}

	mobile, sid := in.MobileNumber, in.SessionID
	u := &domain.User{
		AuthProvider: domain.ProviderMobile,
		MobileNumber: &mobile,
		SessionID:    &sid,
		FirstName:    in.FirstName,
		LastName:     in.LastName.Value,
		Email:        in.Email.Value,
	}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// Lost a create race; the other writer's row stands, apply ours on top.
			return s.updateMobileUser(ctx, in)
		}
		return nil, false, unavailable(err)
	}
	if err := s.Prefs.SeedDefaults(ctx, u, in.SessionID); err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, true, nil
}

func (s *ProfileService) updateMobileUser(ctx context.Context, in MobileUserInput) (*domain.User, bool, error) {
	patch := domain.UserPatch{
		FirstName: &in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		SessionID: &in.SessionID,
	}
	if err := s.Users.UpdateUser(ctx, domain.ByMobile(in.MobileNumber), patch); err != nil {
		return nil, false, unavailable(err)
	}
	u, err := s.Users.FindUser(ctx, domain.ByMobile(in.MobileNumber))
	if err != nil {
		return nil, false, unavailable(err)
	}
	return u, false, nil
}

// UpsertGoogleUser creates or refreshes the user keyed by email and reports
// whether the user already existed. The external session ID is replaced on
// every call since the provider rotates it per login.
func (s *ProfileService) UpsertGoogleUser(ctx context.Context, in GoogleUserInput) (bool, error) {
	ctx, span := s.tracer().Start(ctx, "UpsertGoogleUser")
	defer span.End()

	if strings.TrimSpace(in.ClerkSessionID) == "" || strings.TrimSpace(in.Email) == "" || strings.TrimSpace(in.FirstName) == "" {
		return false, ErrMissingField
	}

	existing, err := s.Users.FindUser(ctx, domain.ByEmail(in.Email))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, unavailable(err)
	}

	google := domain.ProviderGoogle
	if existing != nil {
		patch := domain.UserPatch{
			FirstName:      &in.FirstName,
			LastName:       in.LastName,
			Email:          domain.Some(in.Email),
			ClerkSessionID: &in.ClerkSessionID,
			AuthProvider:   &google,
		}
		if err := s.Users.UpdateUser(ctx, domain.ByID(existing.ID), patch); err != nil {
			return false, unavailable(err)
		}
		return true, nil
	}

	email, clerk := in.Email, in.ClerkSessionID
	u := &domain.User{
		AuthProvider:   domain.ProviderGoogle,
		Email:          &email,
		ClerkSessionID: &clerk,
		FirstName:      in.FirstName,
		LastName:       in.LastName.Value,
	}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		return false, unavailable(err)
	}
	if err := s.Prefs.SeedDefaults(ctx, u, in.ClerkSessionID); err != nil {
		return false, err
	}
	return false, nil
}

// AttachMobile links mobile to the external-identity user behind
// clerkSessionID. The number must be exactly ten characters long. Linking is
// one-directional: nothing ever clears it.
func (s *ProfileService) AttachMobile(ctx context.Context, clerkSessionID, mobile string) error {
	ctx, span := s.tracer().Start(ctx, "AttachMobile")
	defer span.End()

	switch {
	case strings.TrimSpace(clerkSessionID) == "":
		return ErrMissingField
	case mobile == "":
		return fmt.Errorf("%w: %w", ErrMissingField, ErrInvalidMobileFormat)
	}
	if !ValidMobile(mobile) {
		return ErrInvalidMobileFormat
	}

	if _, err := s.Users.FindUser(ctx, domain.ByClerkSession(clerkSessionID)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrUserNotFound
		}
		return unavailable(err)
	}

	err := s.Users.UpdateUser(ctx, domain.ByClerkSession(clerkSessionID), domain.UserPatch{MobileNumber: domain.Some(mobile)})
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		return ErrMobileTaken
	case errors.Is(err, domain.ErrNotFound):
		return ErrUserNotFound
	case err != nil:
		return unavailable(err)
	}
	return nil
}

// ValidMobile reports whether m is exactly ten characters long. Content is
// not checked: numbers are stored as entered.
func ValidMobile(m string) bool {
	return utf8.RuneCountInString(m) == 10
}

// UpdateProfileFields writes the present fields of f to the user behind
// sessionID. FirstName and Email are written only when non-blank; LastName
// whenever it is a string. It reports whether anything was written.
func (s *ProfileService) UpdateProfileFields(ctx context.Context, sessionID string, f ProfileFields) (bool, error) {
	ctx, span := s.tracer().Start(ctx, "UpdateProfileFields")
	defer span.End()

	u, ok, err := s.Resolver.Resolve(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrUserNotFound
	}

	var patch domain.UserPatch
	if f.FirstName.NonEmpty() {
		patch.FirstName = f.FirstName.Value
	}
	if f.LastName.Set && f.LastName.Value != nil {
		patch.LastName = f.LastName
	}
	if f.Email.NonEmpty() {
		patch.Email = f.Email
	}
	if patch.Empty() {
		return false, nil
	}

	if err := s.Users.UpdateUser(ctx, naturalKey(u), patch); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, ErrUserNotFound
		}
		return false, unavailable(err)
	}
	return true, nil
}

// ProfileByMobileSession returns the profile behind a verified OTP session.
// An unknown or unverified session is ErrSessionNotFound; a verified
// session without a saved profile is ErrUserNotFound.
func (s *ProfileService) ProfileByMobileSession(ctx context.Context, sessionID string) (*domain.User, error) {
	ctx, span := s.tracer().Start(ctx, "ProfileByMobileSession")
	defer span.End()

	sess, err := s.Sessions.GetVerifiedSession(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	u, err := s.Users.FindUser(ctx, domain.ByMobile(sess.MobileNumber))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return u, nil
}

// ProfileByClerkSession returns the profile behind an external session ID.
func (s *ProfileService) ProfileByClerkSession(ctx context.Context, clerkSessionID string) (*domain.User, error) {
	ctx, span := s.tracer().Start(ctx, "ProfileByClerkSession")
	defer span.End()

	u, err := s.Users.FindUser(ctx, domain.ByClerkSession(clerkSessionID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return u, nil
}
