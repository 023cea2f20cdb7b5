// Authentication and profile HTTP handlers.
//
// This file exposes the /auth endpoints:
//   - OTP session lifecycle (send-otp, verify-otp, validate-session)
//   - mobile profiles (save-user-details, user-profile)
//   - external identity profiles (save-google-user-details,
//     user-profile-clerk, add-mobile-to-google-user)
//   - notification preferences and partial profile updates
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mobileauth-chat/internal/domain"
	"github.com/tbourn/mobileauth-chat/internal/services"
)

//
// DTOs
//

// SendOTPRequest is the JSON payload for requesting an OTP.
type SendOTPRequest struct {
	MobileNumber string `json:"mobileNumber" example:"9876543210"`
}

// SendOTPResponse carries the provider-issued session ID.
type SendOTPResponse struct {
	SessionID string `json:"sessionId" example:"2b3c4d5e-0000-1111-2222-333344445555"`
}

// VerifyOTPRequest is the JSON payload for checking an OTP.
type VerifyOTPRequest struct {
	SessionID string `json:"sessionId" example:"2b3c4d5e-0000-1111-2222-333344445555"`
	OTP       string `json:"otp"       example:"123456"`
}

// VerifyOTPResponse reports whether a profile already exists for the number.
type VerifyOTPResponse struct {
	Success    bool `json:"success"    example:"true"`
	UserExists bool `json:"userExists" example:"false"`
}

// SessionRequest names a session only.
type SessionRequest struct {
	SessionID string `json:"sessionId" example:"2b3c4d5e-0000-1111-2222-333344445555"`
}

// SaveUserDetailsRequest is the profile of a verified mobile session.
type SaveUserDetailsRequest struct {
	SessionID    string           `json:"sessionId"    example:"2b3c4d5e-0000-1111-2222-333344445555"`
	MobileNumber string           `json:"mobileNumber" example:"9876543210"`
	FirstName    string           `json:"firstName"    example:"Asha"`
	LastName     domain.OptString `json:"lastName"     swaggertype:"string" example:"Rao"`
	Email        domain.OptString `json:"email"        swaggertype:"string" example:"asha@example.com"`
}

// GoogleUserRequest is the profile of an external-identity login.
type GoogleUserRequest struct {
	ClerkSessionID string           `json:"clerkSessionId" example:"user_2abcDEF123"`
	Email          string           `json:"email"          example:"asha@example.com"`
	FirstName      string           `json:"firstName"      example:"Asha"`
	LastName       domain.OptString `json:"lastName"       swaggertype:"string" example:"Rao"`
}

// GoogleUserResponse acknowledges an external-identity upsert.
type GoogleUserResponse struct {
	Success    bool   `json:"success"    example:"true"`
	Message    string `json:"message"    example:"User details saved successfully"`
	UserExists bool   `json:"userExists" example:"false"`
}

// AddMobileRequest links a mobile number to an external-identity user.
type AddMobileRequest struct {
	ClerkSessionID string `json:"clerkSessionId" example:"user_2abcDEF123"`
	MobileNumber   string `json:"mobileNumber"   example:"9876543210"`
}

// UpdatePreferencesRequest replaces the caller's notification flags.
type UpdatePreferencesRequest struct {
	SessionID   string                     `json:"sessionId"   example:"user_2abcDEF123"`
	Preferences map[string]json.RawMessage `json:"preferences" swaggertype:"object,boolean"`
}

// UpdateUserDetailsRequest carries the profile fields to overwrite.
type UpdateUserDetailsRequest struct {
	SessionID string           `json:"sessionId" example:"user_2abcDEF123"`
	FirstName domain.OptString `json:"firstName" swaggertype:"string" example:"Asha"`
	LastName  domain.OptString `json:"lastName"  swaggertype:"string" example:"Rao"`
	Email     domain.OptString `json:"email"     swaggertype:"string" example:"asha@example.com"`
}

//
// OTP session lifecycle
//

// SendOTP godoc
// @ID          sendOtp
// @Summary     Send an OTP
// @Description Sends a one-time password to the mobile number and returns the provider session ID. A later send for the same number replaces the session.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.SendOTPRequest  true  "Mobile number"
// @Success     200   {object} handlers.SendOTPResponse
// @Failure     400   {object} handlers.ErrorResponse "Missing number or provider refused"
// @Failure     429   {object} handlers.ErrorResponse "Too many requests"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/send-otp [post]
func (h *Handlers) SendOTP(c *gin.Context) {
	var req SendOTPRequest
	if !bindJSON(c, &req) {
		return
	}
	mobile := strings.TrimSpace(req.MobileNumber)
	if mobile == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Mobile number is required")
		return
	}

	sid, err := h.sessSvc.SendOTP(c.Request.Context(), mobile)
	switch {
	case errors.Is(err, services.ErrUpstreamRejected):
		fail(c, http.StatusBadRequest, ErrCodeOtpSendFailed, detailOr(err, "Failed to send OTP"))
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, SendOTPResponse{SessionID: sid})
}

// VerifyOTP godoc
// @ID          verifyOtp
// @Summary     Verify an OTP
// @Description Checks the code for a session and marks it verified. userExists tells the client whether to prompt for profile details.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.VerifyOTPRequest  true  "Session and code"
// @Success     200   {object} handlers.VerifyOTPResponse
// @Failure     400   {object} handlers.ErrorResponse "Unknown session or wrong code"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/verify-otp [post]
func (h *Handlers) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	exists, err := h.sessSvc.VerifyOTP(c.Request.Context(), req.SessionID, req.OTP)
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSession, "Invalid or expired sessionId")
		return
	case errors.Is(err, services.ErrOtpInvalid):
		fail(c, http.StatusBadRequest, ErrCodeOtpInvalid, detailOr(err, "OTP verification failed"))
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, VerifyOTPResponse{Success: true, UserExists: exists})
}

// ValidateSession godoc
// @ID          validateSession
// @Summary     Validate a session
// @Description Reports whether the session is verified and a profile exists for its number. Unknown sessions report false.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.SessionRequest  true  "Session"
// @Success     200   {object} handlers.SuccessResponse
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/validate-session [post]
func (h *Handlers) ValidateSession(c *gin.Context) {
	var req SessionRequest
	if !bindJSON(c, &req) {
		return
	}
	valid, err := h.sessSvc.ValidateSession(c.Request.Context(), req.SessionID)
	if err != nil {
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, SuccessResponse{Success: valid})
}

//
// Mobile profiles
//

// SaveUserDetails godoc
// @ID          saveUserDetails
// @Summary     Save a mobile user's profile
// @Description Creates or updates the profile of a verified session. The mobile number must match the one the OTP was sent to.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.SaveUserDetailsRequest  true  "Profile"
// @Success     200   {object} handlers.SuccessResponse
// @Failure     400   {object} handlers.ErrorResponse "Unverified session or mismatched number"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/save-user-details [post]
func (h *Handlers) SaveUserDetails(c *gin.Context) {
	var req SaveUserDetailsRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.sessSvc.SaveUserDetails(c.Request.Context(), services.MobileUserInput{
		SessionID:    req.SessionID,
		MobileNumber: strings.TrimSpace(req.MobileNumber),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     req.LastName,
		Email:        req.Email,
	})
	switch {
	case errors.Is(err, services.ErrMissingField):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "First name is required")
		return
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSession, "Invalid or unverified session")
		return
	case errors.Is(err, services.ErrMobileMismatch):
		fail(c, http.StatusBadRequest, ErrCodeMobileMismatch, "Mobile number mismatch")
		return
	case errors.Is(err, services.ErrMobileTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, "Mobile number already registered")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, SuccessResponse{Success: true})
}

// UserProfile godoc
// @ID          userProfile
// @Summary     Get a mobile user's profile
// @Tags        Auth
// @Produce     json
// @Param       sessionId  path     string  true  "Verified OTP session ID"
// @Success     200        {object} domain.User
// @Failure     400        {object} handlers.ErrorResponse "Unverified session"
// @Failure     404        {object} handlers.ErrorResponse "No profile"
// @Failure     500        {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/user-profile/{sessionId} [get]
func (h *Handlers) UserProfile(c *gin.Context) {
	u, err := h.profSvc.ProfileByMobileSession(c.Request.Context(), c.Param("sessionId"))
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSession, "Invalid or unverified session")
		return
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "User profile not found")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

//
// External identity profiles
//

// SaveGoogleUserDetails godoc
// @ID          saveGoogleUserDetails
// @Summary     Save an external-identity user's profile
// @Description Creates the user keyed by email, or refreshes its session ID and profile fields when it exists.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.GoogleUserRequest  true  "Profile"
// @Success     200   {object} handlers.GoogleUserResponse
// @Failure     400   {object} handlers.ErrorResponse "Missing field"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/save-google-user-details [post]
func (h *Handlers) SaveGoogleUserDetails(c *gin.Context) {
	var req GoogleUserRequest
	if !bindJSON(c, &req) {
		return
	}
	in := services.GoogleUserInput{
		ClerkSessionID: strings.TrimSpace(req.ClerkSessionID),
		Email:          strings.TrimSpace(req.Email),
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       req.LastName,
	}
	switch {
	case in.ClerkSessionID == "":
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Clerk session ID is required")
		return
	case in.Email == "":
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Email is required")
		return
	case in.FirstName == "":
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "First name is required")
		return
	}

	existed, err := h.profSvc.UpsertGoogleUser(c.Request.Context(), in)
	if err != nil {
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, GoogleUserResponse{
		Success:    true,
		Message:    "User details saved successfully",
		UserExists: existed,
	})
}

// UserProfileClerk godoc
// @ID          userProfileClerk
// @Summary     Get an external-identity user's profile
// @Tags        Auth
// @Produce     json
// @Param       clerkSessionId  path     string  true  "External session ID"  example(user_2abcDEF123)
// @Success     200             {object} domain.User
// @Failure     404             {object} handlers.ErrorResponse "No profile"
// @Failure     500             {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/user-profile-clerk/{clerkSessionId} [get]
func (h *Handlers) UserProfileClerk(c *gin.Context) {
	u, err := h.profSvc.ProfileByClerkSession(c.Request.Context(), c.Param("clerkSessionId"))
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "User profile not found")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// AddMobileToGoogleUser godoc
// @ID          addMobileToGoogleUser
// @Summary     Link a mobile number to an external-identity user
// @Description Sets the mobile number of the user behind the external session. Linking is permanent.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.AddMobileRequest  true  "Session and number"
// @Success     200   {object} handlers.MessageResponse
// @Failure     400   {object} handlers.ErrorResponse "Missing field or malformed number"
// @Failure     404   {object} handlers.ErrorResponse "User not found"
// @Failure     409   {object} handlers.ErrorResponse "Number already registered"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/add-mobile-to-google-user [post]
func (h *Handlers) AddMobileToGoogleUser(c *gin.Context) {
	var req AddMobileRequest
	if !bindJSON(c, &req) {
		return
	}
	clerk := strings.TrimSpace(req.ClerkSessionID)
	mobile := strings.TrimSpace(req.MobileNumber)
	switch {
	case clerk == "":
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Clerk session ID is required")
		return
	case mobile == "":
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Mobile number is required")
		return
	}

	err := h.profSvc.AttachMobile(c.Request.Context(), clerk, mobile)
	switch {
	case errors.Is(err, services.ErrInvalidMobileFormat):
		fail(c, http.StatusBadRequest, ErrCodeInvalidMobile, "Mobile number must be 10 digits")
		return
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "User not found")
		return
	case errors.Is(err, services.ErrMobileTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, "Mobile number already registered")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Success: true, Message: "Mobile number added successfully"})
}

//
// Preferences and profile updates
//

// GetPreferences godoc
// @ID          getPreferences
// @Summary     Get notification preferences
// @Description Returns the caller's flags, or the defaults when none were stored.
// @Tags        Preferences
// @Produce     json
// @Param       sessionId  path     string  true  "OTP session ID or external session ID"
// @Success     200        {object} map[string]bool
// @Failure     404        {object} handlers.ErrorResponse "User not found"
// @Failure     500        {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/get-preferences/{sessionId} [get]
func (h *Handlers) GetPreferences(c *gin.Context) {
	prefs, err := h.prefSvc.Get(c.Request.Context(), c.Param("sessionId"))
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "User not found")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, prefs)
}

// UpdatePreferences godoc
// @ID          updatePreferences
// @Summary     Replace notification preferences
// @Description Stores the given flags as the caller's full preference set. Every value must be a boolean and every key a known flag.
// @Tags        Preferences
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.UpdatePreferencesRequest  true  "Session and flags"
// @Success     200   {object} handlers.MessageResponse
// @Failure     400   {object} handlers.ErrorResponse "Unknown key or non-boolean value"
// @Failure     404   {object} handlers.ErrorResponse "User not found"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/update-preferences [post]
func (h *Handlers) UpdatePreferences(c *gin.Context) {
	var req UpdatePreferencesRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.prefSvc.Update(c.Request.Context(), req.SessionID, req.Preferences)
	var flagErr *domain.FlagError
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "User not found")
		return
	case errors.Is(err, services.ErrInvalidPreferenceValue) && errors.As(err, &flagErr):
		fail(c, http.StatusBadRequest, ErrCodeInvalidPreference, fmt.Sprintf("Preference '%s' must be a boolean", flagErr.Key))
		return
	case errors.Is(err, services.ErrUnknownPreference) && errors.As(err, &flagErr):
		fail(c, http.StatusBadRequest, ErrCodeInvalidPreference, fmt.Sprintf("Unknown preference '%s'", flagErr.Key))
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Success: true, Message: "Preferences updated successfully"})
}

// UpdateUserDetails godoc
// @ID          updateUserDetails
// @Summary     Update profile fields
// @Description Overwrites the provided fields of the caller's profile. A request without fields succeeds without writing.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.UpdateUserDetailsRequest  true  "Session and fields"
// @Success     200   {object} handlers.MessageResponse
// @Failure     404   {object} handlers.ErrorResponse "User not found"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /auth/update-user-details [post]
func (h *Handlers) UpdateUserDetails(c *gin.Context) {
	var req UpdateUserDetailsRequest
	if !bindJSON(c, &req) {
		return
	}

	written, err := h.profSvc.UpdateProfileFields(c.Request.Context(), req.SessionID, services.ProfileFields{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "User not found or session invalid")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	if !written {
		ok(c, http.StatusOK, MessageResponse{Success: true, Message: "No data to update."})
		return
	}
	ok(c, http.StatusOK, MessageResponse{Success: true, Message: "User details updated successfully"})
}
