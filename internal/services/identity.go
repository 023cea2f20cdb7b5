package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// DefaultExternalPrefix marks session IDs issued by the external identity
// provider.
const DefaultExternalPrefix = "user_"

// IdentityResolver maps a session identifier to at most one user. Every
// consumer (chat, profiles, preferences, console) goes through it.
type IdentityResolver struct {
	Sessions SessionRepo
	Users    UserRepo

	// ExternalPrefix classifies external-identity session IDs; defaults to
	// DefaultExternalPrefix.
	ExternalPrefix string
}

// IsExternal reports whether sessionID belongs to the external scheme.
func (r *IdentityResolver) IsExternal(sessionID string) bool {
	p := r.ExternalPrefix
	if p == "" {
		p = DefaultExternalPrefix
	}
	return strings.HasPrefix(sessionID, p)
}

// Resolve returns the user behind sessionID. A missing session, an
// unverified session or a missing user all yield (nil, false, nil); only
// store faults return an error, wrapped in ErrUnavailable.
func (r *IdentityResolver) Resolve(ctx context.Context, sessionID string) (*domain.User, bool, error) {
	ctx, span := otel.Tracer("services/IdentityResolver").Start(ctx, "Resolve")
	defer span.End()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, false, nil
	}

	external := r.IsExternal(sessionID)
	span.SetAttributes(attribute.Bool("session.external", external))

	if external {
		u, err := r.Users.FindUser(ctx, domain.ByClerkSession(sessionID))
		return r.found(span, u, err)
	}

	sess, err := r.Sessions.GetVerifiedSession(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable(err)
	}
	u, err := r.Users.FindUser(ctx, domain.ByMobile(sess.MobileNumber))
	return r.found(span, u, err)
}

func (r *IdentityResolver) found(span trace.Span, u *domain.User, err error) (*domain.User, bool, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, unavailable(err)
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, true, nil
}

// naturalKey picks the key a profile update is addressed by: the external
// session for google users, otherwise the mobile number.
func naturalKey(u *domain.User) domain.UserKey {
	if u.IsGoogle() && u.ClerkSessionID != nil {
		return domain.ByClerkSession(*u.ClerkSessionID)
	}
	if u.MobileNumber != nil {
		return domain.ByMobile(*u.MobileNumber)
	}
	return domain.ByID(u.ID)
}
