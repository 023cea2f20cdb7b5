package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mobileauth-chat/internal/http/middleware"
	"github.com/tbourn/mobileauth-chat/internal/services"
)

func history(t *testing.T, e *testEnv, sid string) []MessageView {
	t.Helper()
	w := e.do(t, http.MethodGet, "/chat/history/"+sid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: %d %s", w.Code, w.Body.String())
	}
	var out []MessageView
	decode(t, w, &out)
	return out
}

func TestChatHistory_UnresolvedIsEmptyArray(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/chat/history/unknown", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") != "" {
		t.Fatalf("unresolved history must not carry an ETag")
	}
}

func TestSendMessage_WelcomeOnce_AndHistoryOrder(t *testing.T) {
	e := newTestEnv(t)
	sid := e.mobileUser(t, "9876543210", "Asha")

	send := func(text string) StatusResponse {
		w := e.do(t, http.MethodPost, "/chat/send-message", gin.H{"sessionId": sid, "text": text})
		if w.Code != http.StatusOK {
			t.Fatalf("send: %d %s", w.Code, w.Body.String())
		}
		var r StatusResponse
		decode(t, w, &r)
		return r
	}

	if r := send("hello"); r.Status != "ok" || r.Message != "First message received and bot replied." {
		t.Fatalf("first = %+v", r)
	}
	if r := send("anyone?"); r.Message != "Message received." {
		t.Fatalf("second = %+v", r)
	}

	msgs := history(t, e, sid)
	if len(msgs) != 3 {
		t.Fatalf("want 3 messages, got %+v", msgs)
	}
	wantSenders := []string{"user", "bot", "user"}
	for i, m := range msgs {
		if m.Sender != wantSenders[i] || m.IsUser != (wantSenders[i] == "user") {
			t.Fatalf("msg %d = %+v", i, m)
		}
		if i > 0 && m.Timestamp.Before(msgs[i-1].Timestamp) {
			t.Fatalf("history out of order: %+v", msgs)
		}
	}
	if msgs[1].Text != services.DefaultWelcomeText {
		t.Fatalf("welcome = %q", msgs[1].Text)
	}
}

func TestSendMessage_Errors(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/chat/send-message", gin.H{"sessionId": "nobody", "text": "hi"})
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound, "User not found for the given session.")
	w = e.do(t, http.MethodPost, "/chat/send-message", gin.H{"sessionId": "nobody", "text": " "})
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound, "User not found for the given session.")

	sid := e.mobileUser(t, "9876543210", "Asha")
	w = e.do(t, http.MethodPost, "/chat/send-message", gin.H{"sessionId": sid, "text": "   "})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest, "Message text is required.")

	w = e.do(t, http.MethodPost, "/chat/send-message", gin.H{"sessionId": sid, "text": strings.Repeat("x", 51)})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest, "")

	if n := len(history(t, e, sid)); n != 0 {
		t.Fatalf("rejected sends appended %d messages", n)
	}
}

func TestSendMessage_IdempotencyKeyReplays(t *testing.T) {
	e := newTestEnv(t)
	e.googleUser(t, "user_idem", "idem@example.com", "Ida")

	body := gin.H{"sessionId": "user_idem", "text": "once"}
	w := e.do(t, http.MethodPost, "/chat/send-message", body, middleware.HeaderIdempotencyKey, "key-1")
	if w.Code != http.StatusOK || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatalf("first send: %d replayed=%q", w.Code, w.Header().Get(middleware.HeaderIdempotencyReplayed))
	}
	var first StatusResponse
	decode(t, w, &first)

	w = e.do(t, http.MethodPost, "/chat/send-message", body, middleware.HeaderIdempotencyKey, "key-1")
	if w.Code != http.StatusOK || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("retry: %d replayed=%q", w.Code, w.Header().Get(middleware.HeaderIdempotencyReplayed))
	}
	var retry StatusResponse
	decode(t, w, &retry)
	if retry != first {
		t.Fatalf("retry = %+v, first = %+v", retry, first)
	}

	if n := len(history(t, e, "user_idem")); n != 2 {
		t.Fatalf("retry appended again: %d messages", n)
	}

	w = e.do(t, http.MethodPost, "/chat/send-message", body, middleware.HeaderIdempotencyKey, "bad key")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid key: %d", w.Code)
	}
}

func TestChatHistory_ETagRevalidation(t *testing.T) {
	e := newTestEnv(t)
	sid := e.mobileUser(t, "9876543210", "Asha")
	e.do(t, http.MethodPost, "/chat/send-message", gin.H{"sessionId": sid, "text": "hi"})

	w := e.do(t, http.MethodGet, "/chat/history/"+sid, nil)
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"history:`) {
		t.Fatalf("ETag = %q", etag)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "private, no-cache" {
		t.Fatalf("Cache-Control = %q", cc)
	}

	w = e.do(t, http.MethodGet, "/chat/history/"+sid, nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("want 304 with empty body, got %d %q", w.Code, w.Body.String())
	}

	e.do(t, http.MethodPost, "/chat/send-message", gin.H{"sessionId": sid, "text": "again"})
	w = e.do(t, http.MethodGet, "/chat/history/"+sid, nil, "If-None-Match", etag)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("ETag did not change after a new message: %d %q", w.Code, w.Header().Get("ETag"))
	}
}

func multipartUpload(t *testing.T, sid, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if sid != "" {
		_ = mw.WriteField("sessionId", sid)
	}
	if data != nil {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write(data)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, sid string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartUpload(t, sid, "pic.png", data)
	req := httptest.NewRequest(http.MethodPost, "/chat/upload-image", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func TestUploadImage_AppendsHostedURL(t *testing.T) {
	e := newTestEnv(t)
	sid := e.mobileUser(t, "9876543210", "Asha")

	w := e.upload(t, sid, pngBytes(t))
	var r StatusResponse
	decode(t, w, &r)
	if w.Code != http.StatusOK || r.Message != "Image uploaded successfully." {
		t.Fatalf("upload: %d %+v", w.Code, r)
	}
	msgs := history(t, e, sid)
	if len(msgs) != 1 || msgs[0].Text != e.host.url || !msgs[0].IsUser {
		t.Fatalf("history = %+v", msgs)
	}
}

func TestUploadImage_Errors(t *testing.T) {
	e := newTestEnv(t)
	sid := e.mobileUser(t, "9876543210", "Asha")

	expectError(t, e.upload(t, "nobody", pngBytes(t)), http.StatusNotFound, ErrCodeNotFound, "User session not found.")
	expectError(t, e.upload(t, sid, nil), http.StatusBadRequest, ErrCodeBadRequest, "file is required")
	expectError(t, e.upload(t, "", pngBytes(t)), http.StatusBadRequest, ErrCodeBadRequest, "sessionId is required")
	expectError(t, e.upload(t, sid, []byte("not an image")), http.StatusBadRequest, ErrCodeInvalidImage, "")
	if e.host.calls != 0 {
		t.Fatalf("host called for a rejected upload")
	}

	e.host.err = errors.New("imgbb: status 400")
	expectError(t, e.upload(t, sid, pngBytes(t)), http.StatusBadGateway, ErrCodeUploadFailed, "Failed to upload image to hosting service.")

	e.host.err = fmt.Errorf("%w: dial tcp", services.ErrUnavailable)
	expectError(t, e.upload(t, sid, pngBytes(t)), http.StatusInternalServerError, ErrCodeUnavailable, "Image upload service is unavailable.")

	if n := len(history(t, e, sid)); n != 0 {
		t.Fatalf("failed uploads appended %d messages", n)
	}

	e.host.err = nil
	big := make([]byte, (1<<20)+1)
	expectError(t, e.upload(t, sid, big), http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "")
}

func TestMultipartLimit(t *testing.T) {
	if got := MultipartLimit(100); got != 100+multipartSlack {
		t.Fatalf("MultipartLimit(100) = %d", got)
	}
	if got := MultipartLimit(0); got != (10<<20)+multipartSlack {
		t.Fatalf("MultipartLimit(0) = %d", got)
	}
}
