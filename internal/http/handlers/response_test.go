package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/mobileauth-chat/internal/http/middleware"
)

func TestFail_Envelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		status int
		code   string
		logged bool
	}{
		{"client error is not logged", http.StatusNotFound, ErrCodeNotFound, false},
		{"conflict", http.StatusConflict, ErrCodeConflict, false},
		{"server error is logged", http.StatusInternalServerError, ErrCodeInternal, true},
		{"upstream failure is logged", http.StatusBadGateway, ErrCodeUploadFailed, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var logs bytes.Buffer
			lg := zerolog.New(&logs)

			r := gin.New()
			r.Use(middleware.RequestID(), func(c *gin.Context) {
				c.Set("logger", &lg)
				c.Next()
			})
			r.GET("/auth/user-profile/:sessionId", func(c *gin.Context) {
				Fail(c, tc.status, tc.code, "it broke")
			})

			req := httptest.NewRequest(http.MethodGet, "/auth/user-profile/s1", nil)
			req.Header.Set(middleware.HeaderRequestID, "rid-42")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("status = %d", w.Code)
			}
			var er ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if er != (ErrorResponse{RequestID: "rid-42", Code: tc.code, Message: "it broke"}) {
				t.Fatalf("body = %+v", er)
			}
			if got := strings.Contains(logs.String(), `"message":"api error"`); got != tc.logged {
				t.Fatalf("logged = %v: %s", got, logs.String())
			}
		})
	}
}

func TestFail_WithoutRequestIDOmitsField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "bad") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if strings.Contains(w.Body.String(), "request_id") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestBindJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/chat/send-message", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 32)
		var req SendMessageRequest
		if !bindJSON(c, &req) {
			return
		}
		ok(c, http.StatusOK, StatusResponse{Status: "ok", Message: req.Text})
	})

	cases := []struct {
		name string
		body string
		code int
		want string
	}{
		{"valid", `{"text":"hi"}`, http.StatusOK, ""},
		{"truncated", `{"text":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"wrong type", `{"text":5}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"over limit", `{"text":"` + strings.Repeat("x", 64) + `"}`, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat/send-message", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.code {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.code, w.Body.String())
			}
			if tc.want == "" {
				var sr StatusResponse
				if err := json.Unmarshal(w.Body.Bytes(), &sr); err != nil || sr.Message != "hi" {
					t.Fatalf("body = %s", w.Body.String())
				}
				return
			}
			var er ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != tc.want {
				t.Fatalf("body = %s", w.Body.String())
			}
		})
	}
}
