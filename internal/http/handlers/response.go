// Package handlers implements the /auth and /chat endpoints over the
// application services. Every failure answers with ErrorResponse and a
// stable code from errors.go; successes keep the response shapes the web
// and mobile clients already parse.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mobileauth-chat/internal/http/middleware"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"User profile not found"`
}

// SuccessResponse is the bare acknowledgement of the session endpoints.
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}

// MessageResponse acknowledges a profile or preference write.
type MessageResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"User details updated successfully"`
}

// StatusResponse acknowledges a chat write.
type StatusResponse struct {
	Status  string `json:"status" example:"ok"`
	Message string `json:"message" example:"Message received."`
}

// fail aborts with an ErrorResponse. 5xx answers are logged with the
// request-scoped logger; 4xx are the caller's problem and only show up in
// the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer 404 and 405 with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

// bindJSON decodes the request body into dst. It answers 413 when the body
// exceeded the router's size limit and 400 for anything else, and reports
// whether the handler may continue.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
		return false
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
	return false
}
