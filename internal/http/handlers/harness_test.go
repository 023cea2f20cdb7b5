package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/mobileauth-chat/internal/http/middleware"
	"github.com/tbourn/mobileauth-chat/internal/repo"
	"github.com/tbourn/mobileauth-chat/internal/services"
)

const testCode = "123456"

// ---------- fake oracles ----------

type fakeOTP struct {
	mu      sync.Mutex
	n       int
	codes   map[string]string
	sendErr error
}

func (f *fakeOTP) Send(_ context.Context, mobile string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.n++
	tok := fmt.Sprintf("otp-%s-%d", mobile, f.n)
	if f.codes == nil {
		f.codes = map[string]string{}
	}
	f.codes[tok] = testCode
	return tok, nil
}

func (f *fakeOTP) Verify(_ context.Context, token, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes[token] != code {
		return services.Rejected(services.ErrOtpInvalid, "OTP Mismatch")
	}
	return nil
}

type fakeHost struct {
	url   string
	err   error
	calls int
}

func (h *fakeHost) Upload(context.Context, []byte, string) (string, error) {
	h.calls++
	if h.err != nil {
		return "", h.err
	}
	return h.url, nil
}

// ---------- wiring ----------

type testEnv struct {
	r     *gin.Engine
	store *repo.Store
	otp   *fakeOTP
	host  *fakeHost
	chat  *services.ChatService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// newTestEnv wires real services over an in-memory store and mounts every
// route the way the production router does, minus rate limiting.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := repo.NewStore(newTestDB(t))
	e := &testEnv{
		store: st,
		otp:   &fakeOTP{},
		host:  &fakeHost{url: "https://i.ibb.co/abc/pic.png"},
	}
	resolver := &services.IdentityResolver{Sessions: st, Users: st}
	prefs := &services.PreferenceService{Prefs: st, Resolver: resolver}
	profiles := &services.ProfileService{Users: st, Sessions: st, Prefs: prefs, Resolver: resolver}
	sessions := &services.SessionService{Sessions: st, Users: st, Profiles: profiles, OTP: e.otp}
	e.chat = &services.ChatService{Messages: st, Idem: st, Resolver: resolver, Images: e.host, MaxTextRunes: 50}

	h := New(sessions, profiles, prefs, e.chat, 1<<20)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.SessionKey())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, e.chat.HasReplay))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}))

	r.GET("/", Root)
	r.GET("/health", Health(st))

	auth := r.Group("/auth")
	auth.POST("/send-otp", h.SendOTP)
	auth.POST("/verify-otp", h.VerifyOTP)
	auth.POST("/validate-session", h.ValidateSession)
	auth.POST("/save-user-details", h.SaveUserDetails)
	auth.GET("/user-profile/:sessionId", h.UserProfile)
	auth.POST("/save-google-user-details", h.SaveGoogleUserDetails)
	auth.GET("/user-profile-clerk/:clerkSessionId", h.UserProfileClerk)
	auth.POST("/add-mobile-to-google-user", h.AddMobileToGoogleUser)
	auth.GET("/get-preferences/:sessionId", h.GetPreferences)
	auth.POST("/update-preferences", h.UpdatePreferences)
	auth.POST("/update-user-details", h.UpdateUserDetails)

	chat := r.Group("/chat")
	chat.GET("/history/:sessionId", h.ChatHistory)
	chat.POST("/send-message", h.SendMessage)
	chat.POST("/upload-image", h.UploadImage)

	e.r = r
	return e
}

// do sends a JSON request (body may be nil) and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// verified runs send-otp and verify-otp through HTTP and returns the session.
func (e *testEnv) verified(t *testing.T, mobile string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/auth/send-otp", gin.H{"mobileNumber": mobile})
	if w.Code != http.StatusOK {
		t.Fatalf("send-otp: %d %s", w.Code, w.Body.String())
	}
	var out SendOTPResponse
	decode(t, w, &out)
	w = e.do(t, http.MethodPost, "/auth/verify-otp", gin.H{"sessionId": out.SessionID, "otp": testCode})
	if w.Code != http.StatusOK {
		t.Fatalf("verify-otp: %d %s", w.Code, w.Body.String())
	}
	return out.SessionID
}

// mobileUser creates a verified session with a saved profile.
func (e *testEnv) mobileUser(t *testing.T, mobile, first string) string {
	t.Helper()
	sid := e.verified(t, mobile)
	w := e.do(t, http.MethodPost, "/auth/save-user-details", gin.H{
		"sessionId": sid, "mobileNumber": mobile, "firstName": first,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("save-user-details: %d %s", w.Code, w.Body.String())
	}
	return sid
}

// googleUser creates an external-identity user.
func (e *testEnv) googleUser(t *testing.T, clerk, email, first string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/auth/save-google-user-details", gin.H{
		"clerkSessionId": clerk, "email": email, "firstName": first,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("save-google-user-details: %d %s", w.Code, w.Body.String())
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
}

// expectError asserts status, code and message of an ErrorResponse.
func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code, msg string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, status, w.Body.String())
	}
	var er ErrorResponse
	decode(t, w, &er)
	if er.Code != code || (msg != "" && er.Message != msg) {
		t.Fatalf("error = %+v, want code=%q message=%q", er, code, msg)
	}
	if er.RequestID == "" {
		t.Fatalf("error envelope without request_id")
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(4, 4, color.NRGBA{G: 200, A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
