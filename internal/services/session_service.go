package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// SessionService drives the OTP session through
// created -> verified -> profile completed. Every step re-reads the session
// from the store; nothing is cached between calls.
type SessionService struct {
	Sessions SessionRepo
	Users    UserRepo
	Profiles *ProfileService
	OTP      OTPProvider

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SendOTP asks the provider for a code and stores the returned session ID
// against mobile, replacing any earlier session for that number.
func (s *SessionService) SendOTP(ctx context.Context, mobile string) (string, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "SendOTP")
	defer span.End()

	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return "", ErrMissingField
	}

	token, err := s.OTP.Send(ctx, mobile)
	otpRequests.WithLabelValues("send", outcome(err)).Inc()
	if err != nil {
		span.SetStatus(codes.Error, "otp send failed")
		return "", err
	}

	if _, err := s.Sessions.UpsertSession(ctx, mobile, token); err != nil {
		return "", unavailable(err)
	}
	return token, nil
}

// VerifyOTP checks code against the provider and marks the session verified.
// It reports whether a user already exists for the session's mobile number.
func (s *SessionService) VerifyOTP(ctx context.Context, sessionID, code string) (bool, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "VerifyOTP")
	defer span.End()

	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, ErrSessionNotFound
	}
	if err != nil {
		return false, unavailable(err)
	}

	err = s.OTP.Verify(ctx, sessionID, code)
	otpRequests.WithLabelValues("verify", outcome(err)).Inc()
	if err != nil {
		span.SetStatus(codes.Error, "otp verify failed")
		return false, err
	}

	if err := s.Sessions.MarkSessionVerified(ctx, sessionID, s.now()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Overwritten by a newer send while the provider was checking.
			return false, ErrSessionNotFound
		}
		return false, unavailable(err)
	}

	exists, err := s.userExists(ctx, sess.MobileNumber)
	span.SetAttributes(attribute.Bool("user.exists", exists))
	return exists, err
}

// ValidateSession reports whether sessionID is verified and has a user.
// Absence is never an error.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID string) (bool, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "ValidateSession")
	defer span.End()

	sess, err := s.Sessions.GetVerifiedSession(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	return s.userExists(ctx, sess.MobileNumber)
}

// SaveUserDetails upserts the profile of a verified session whose mobile
// number matches in.MobileNumber, then marks the session completed.
func (s *SessionService) SaveUserDetails(ctx context.Context, in MobileUserInput) error {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "SaveUserDetails")
	defer span.End()

	if strings.TrimSpace(in.FirstName) == "" {
		return ErrMissingField
	}

	sess, err := s.Sessions.GetVerifiedSession(ctx, in.SessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	if sess.MobileNumber != in.MobileNumber {
		return ErrMobileMismatch
	}

	if _, _, err := s.Profiles.UpsertMobileUser(ctx, in); err != nil {
		return err
	}
	if err := s.Sessions.MarkDetailsCompleted(ctx, in.SessionID); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *SessionService) userExists(ctx context.Context, mobile string) (bool, error) {
	_, err := s.Users.FindUser(ctx, domain.ByMobile(mobile))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	return true, nil
}
