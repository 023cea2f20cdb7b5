// Package services holds the business logic of the OTP/Google authentication
// flow and the support chat: identity resolution, the OTP session state
// machine, profile upserts, preferences, and the append-only chat channel.
//
// This file centralizes the service-level error values. Translation into
// HTTP status codes happens in the handler layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound indicates the OTP session is unknown or not verified.
	ErrSessionNotFound = errors.New("session not found")

	// ErrOtpInvalid is returned when the OTP provider rejects a code.
	ErrOtpInvalid = errors.New("otp invalid")

	// ErrMobileMismatch is returned when a profile save names a different
	// mobile number than the verified session.
	ErrMobileMismatch = errors.New("mobile number mismatch")

	// ErrInvalidMobileFormat is returned when a mobile number is not exactly
	// ten characters long.
	ErrInvalidMobileFormat = errors.New("mobile number must be 10 digits")

	// ErrMobileTaken is returned when a mobile number already belongs to
	// another user.
	ErrMobileTaken = errors.New("mobile number already registered")

	// ErrUserNotFound indicates the session resolved to no user.
	ErrUserNotFound = errors.New("user not found")

	// ErrUploadFailed is returned when the image host rejects an upload.
	ErrUploadFailed = errors.New("upload failed")

	// ErrInvalidImage is returned when the uploaded bytes are not an image.
	ErrInvalidImage = errors.New("file is not a supported image")

	// ErrUpstreamRejected is returned when the OTP provider refuses a send.
	ErrUpstreamRejected = errors.New("upstream rejected")

	// ErrUnavailable indicates a store or provider fault, including
	// unparsable provider responses.
	ErrUnavailable = errors.New("service unavailable")

	// ErrUnknownPreference is returned for a preference key outside the
	// fixed flag set.
	ErrUnknownPreference = errors.New("unknown preference")

	// ErrInvalidPreferenceValue is returned for a non-boolean preference.
	ErrInvalidPreferenceValue = errors.New("preference value must be boolean")

	// ErrMissingField is returned when a required request field is blank.
	ErrMissingField = errors.New("missing required field")

	// ErrEmptyMessage is returned when a chat message has no text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when a chat message exceeds the
	// configured length.
	ErrMessageTooLong = errors.New("message too long")
)

// OracleError carries the detail message an external provider returned
// alongside the sentinel it maps to. errors.Is matches the sentinel.
type OracleError struct {
	Kind   error
	Detail string
}

func (e *OracleError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *OracleError) Unwrap() error { return e.Kind }

// Rejected builds an OracleError for kind with the provider's detail.
func Rejected(kind error, detail string) error {
	return &OracleError{Kind: kind, Detail: detail}
}

// Detail extracts the provider message from err, or "" when err carries none.
func Detail(err error) string {
	var oe *OracleError
	if errors.As(err, &oe) {
		return oe.Detail
	}
	return ""
}

// unavailable wraps a store fault.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
