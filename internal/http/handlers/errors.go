// Error codes are lowercase snake_case and stable: clients branch on them,
// not on the message. Generic codes mirror the HTTP status; domain codes
// name the rule that failed (otp_invalid, mobile_mismatch, upload_failed).

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mobileauth-chat/internal/http/middleware"
	"github.com/tbourn/mobileauth-chat/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = middleware.CodeRateLimited
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "service_unavailable"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidSession    = "invalid_session"
	ErrCodeOtpSendFailed     = "otp_send_failed"
	ErrCodeOtpInvalid        = "otp_invalid"
	ErrCodeMobileMismatch    = "mobile_mismatch"
	ErrCodeInvalidMobile     = "invalid_mobile"
	ErrCodeInvalidPreference = "invalid_preference"
	ErrCodeInvalidImage      = "invalid_image"
	ErrCodeUploadFailed      = "upload_failed"
)

// serverError answers a fault no handler-specific case matched. The cause is
// logged and attached to the Gin context; the client only sees a generic
// message so store and provider internals never leak.
func serverError(c *gin.Context, err error) {
	_ = c.Error(err)
	middleware.LoggerFrom(c).Error().Err(err).Msg("request failed")
	if errors.Is(err, services.ErrUnavailable) {
		fail(c, http.StatusInternalServerError, ErrCodeUnavailable, "service temporarily unavailable")
		return
	}
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// detailOr returns the provider detail carried by err, or def.
func detailOr(err error, def string) string {
	if d := services.Detail(err); d != "" {
		return d
	}
	return def
}
