// Chat HTTP handlers.
//
// This file exposes REST endpoints for the per-user support channel:
//   - GET    /chat/history/{sessionId}  (ordered transcript, ETag support)
//   - POST   /chat/send-message         (user message, Idempotency-Key aware)
//   - POST   /chat/upload-image         (multipart image, hosted then appended)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mobileauth-chat/internal/domain"
	"github.com/tbourn/mobileauth-chat/internal/http/middleware"
	"github.com/tbourn/mobileauth-chat/internal/services"
)

//
// Service contracts (context-aware)
//

// SessionService defines the OTP session operations consumed by handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SessionService interface {
	// SendOTP sends a code to mobile and returns the new session ID.
	SendOTP(ctx context.Context, mobile string) (string, error)
	// VerifyOTP checks code and reports whether a profile already exists.
	VerifyOTP(ctx context.Context, sessionID, code string) (bool, error)
	// ValidateSession reports whether the session is verified and has a user.
	ValidateSession(ctx context.Context, sessionID string) (bool, error)
	// SaveUserDetails stores the profile of a verified session.
	SaveUserDetails(ctx context.Context, in services.MobileUserInput) error
}

// ProfileService defines profile reads and writes for both identity schemes.
type ProfileService interface {
	UpsertGoogleUser(ctx context.Context, in services.GoogleUserInput) (bool, error)
	AttachMobile(ctx context.Context, clerkSessionID, mobile string) error
	UpdateProfileFields(ctx context.Context, sessionID string, f services.ProfileFields) (bool, error)
	ProfileByMobileSession(ctx context.Context, sessionID string) (*domain.User, error)
	ProfileByClerkSession(ctx context.Context, clerkSessionID string) (*domain.User, error)
}

// PreferenceService defines notification preference operations.
type PreferenceService interface {
	Get(ctx context.Context, sessionID string) (domain.PreferenceSet, error)
	Update(ctx context.Context, sessionID string, raw map[string]json.RawMessage) error
}

// ChatService defines the support channel operations consumed by handlers.
type ChatService interface {
	// History returns the transcript behind sessionID, empty when unresolved.
	History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	// Stats summarizes the channel for ETag computation.
	Stats(ctx context.Context, sessionID string) (services.ChannelStats, bool, error)
	// SendUserMessageOnce appends a user message; a repeated key replays.
	SendUserMessageOnce(ctx context.Context, sessionID, text, key string) (*services.SendResult, error)
	// UploadImage hosts data and appends its URL as a user message.
	UploadImage(ctx context.Context, sessionID string, data []byte, filename string) (*domain.ChatMessage, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for authentication, profiles, preferences
// and chat. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	sessSvc   SessionService
	profSvc   ProfileService
	prefSvc   PreferenceService
	chatSvc   ChatService
	maxUpload int64
}

// New constructs and returns a Handlers instance bound to the given services.
// maxUpload caps the image size accepted by UploadImage; zero means 10 MiB.
func New(sess SessionService, prof ProfileService, prefs PreferenceService, chat ChatService, maxUpload int64) *Handlers {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handlers{sessSvc: sess, profSvc: prof, prefSvc: prefs, chatSvc: chat, maxUpload: maxUpload}
}

//
// DTOs
//

// MessageView is one transcript entry as rendered to chat clients.
type MessageView struct {
	ID        string    `json:"id"        example:"01927c3e-8f3a-7c2e-9d41-6b1f0a2c3d4e"`
	Text      string    `json:"text"      example:"Hello, I need help with my order"`
	Timestamp time.Time `json:"timestamp" example:"2025-01-02T15:04:05Z"`
	IsUser    bool      `json:"isUser"    example:"true"`
	Sender    string    `json:"sender"    example:"user"`
}

// SendMessageRequest is the JSON payload for posting a chat message.
type SendMessageRequest struct {
	SessionID string `json:"sessionId" example:"2b3c4d5e-0000-1111-2222-333344445555"`
	Text      string `json:"text"      example:"Hello, I need help with my order"`
}

func toViews(msgs []domain.ChatMessage) []MessageView {
	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = MessageView{
			ID:        m.ID,
			Text:      m.Text,
			Timestamp: m.Timestamp,
			IsUser:    m.Sender == domain.SenderUser,
			Sender:    string(m.Sender),
		}
	}
	return out
}

//
// Handlers
//

// ChatHistory godoc
// @ID          chatHistory
// @Summary     Get chat history
// @Description Returns the caller's support channel in ascending timestamp order. An unknown session yields an empty list. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chat
// @Produce     json
//
// @Param       sessionId      path    string  true  "OTP session ID or external session ID"  example(user_2abcDEF123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"             example(W/\"history:abc:3:1700000000000000000\")
//
// @Success     200  {array}  handlers.MessageView
// @Header      200  {string} ETag           "Weak ETag for current transcript"
// @Header      200  {string} Cache-Control  "private, no-cache"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat/history/{sessionId} [get]
func (h *Handlers) ChatHistory(c *gin.Context) {
	ctx := c.Request.Context()
	sid := c.Param("sessionId")

	st, found, err := h.chatSvc.Stats(ctx, sid)
	if err != nil {
		serverError(c, err)
		return
	}
	if found {
		var ts int64
		if st.Latest != nil {
			ts = st.Latest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"history:%s:%d:%d"`, st.ChannelID, st.Count, ts)
		middleware.AllowRevalidation(c)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	msgs, err := h.chatSvc.History(ctx, sid)
	if err != nil {
		serverError(c, err)
		return
	}
	ok(c, http.StatusOK, toViews(msgs))
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a chat message
// @Description Appends a user message to the caller's channel. The first user message of a channel triggers one bot welcome reply. Retrying with the same Idempotency-Key replays the earlier result.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Retry key (max 128 chars)"  example(5f1b3a1e-retry-1)
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     200  {object} handlers.StatusResponse
// @Header      200  {string} Idempotency-Replayed "true when the response replays an earlier send"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     413  {object} handlers.ErrorResponse "Payload too large"
// @Failure     429  {object} handlers.ErrorResponse "Too many requests"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat/send-message [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.chatSvc.SendUserMessageOnce(c.Request.Context(), strings.TrimSpace(req.SessionID), req.Text, key)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "User not found for the given session.")
		return
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Message text is required.")
		return
	case errors.Is(err, services.ErrMessageTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case err != nil:
		serverError(c, err)
		return
	}

	if res.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	msg := "Message received."
	if res.BotReplied {
		msg = "First message received and bot replied."
	}
	ok(c, http.StatusOK, StatusResponse{Status: "ok", Message: msg})
}

// UploadImage godoc
// @ID          uploadImage
// @Summary     Upload a chat image
// @Description Validates the file as an image, stores it with the image host and appends the hosted URL to the caller's channel.
// @Tags        Chat
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       sessionId  formData  string  true  "OTP session ID or external session ID"
// @Param       file       formData  file    true  "Image file"
//
// @Success     200  {object} handlers.StatusResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing or invalid image"
// @Failure     404  {object} handlers.ErrorResponse "User session not found"
// @Failure     413  {object} handlers.ErrorResponse "Payload too large"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Failure     502  {object} handlers.ErrorResponse "Image host rejected the upload"
// @Router      /chat/upload-image [post]
func (h *Handlers) UploadImage(c *gin.Context) {
	if c.Request.ContentLength > h.maxUpload+multipartSlack {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "image too large")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "image too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file is required")
		return
	}
	sid := strings.TrimSpace(c.PostForm("sessionId"))
	if sid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sessionId is required")
		return
	}
	if fh.Size > h.maxUpload {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "image too large")
		return
	}

	f, err := fh.Open()
	if err != nil {
		serverError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		serverError(c, err)
		return
	}

	_, err = h.chatSvc.UploadImage(c.Request.Context(), sid, data, fh.Filename)
	switch {
	case err == nil:
		ok(c, http.StatusOK, StatusResponse{Status: "ok", Message: "Image uploaded successfully."})
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "User session not found.")
	case errors.Is(err, services.ErrInvalidImage):
		fail(c, http.StatusBadRequest, ErrCodeInvalidImage, "File is not a supported image.")
	case errors.Is(err, services.ErrUploadFailed):
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeUploadFailed, "Failed to upload image to hosting service.")
	case errors.Is(err, services.ErrUnavailable):
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeUnavailable, "Image upload service is unavailable.")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "An internal error occurred during image upload.")
	}
}

// multipartSlack covers the form boundaries and the sessionId field around
// the file part.
const multipartSlack = 64 << 10

// MultipartLimit is the body limit the router should apply to multipart
// requests for a given image cap.
func MultipartLimit(maxUpload int64) int64 {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return maxUpload + multipartSlack
}
