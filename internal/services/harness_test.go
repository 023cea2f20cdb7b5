package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/mobileauth-chat/internal/domain"
	"github.com/tbourn/mobileauth-chat/internal/repo"
)

const testCode = "123456"

// ----- Fake oracles -----

type fakeOTP struct {
	mu        sync.Mutex
	n         int
	codes     map[string]string
	sent      []string
	sendErr   error
	verifyErr error
}

func (f *fakeOTP) Send(_ context.Context, mobile string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.n++
	tok := fmt.Sprintf("otp-%d", f.n)
	if f.codes == nil {
		f.codes = map[string]string{}
	}
	f.codes[tok] = testCode
	f.sent = append(f.sent, mobile)
	return tok, nil
}

func (f *fakeOTP) Verify(_ context.Context, token, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return f.verifyErr
	}
	if f.codes[token] != code {
		return Rejected(ErrOtpInvalid, "OTP Mismatch")
	}
	return nil
}

type fakeHost struct {
	url   string
	err   error
	calls int
	name  string
}

func (h *fakeHost) Upload(_ context.Context, data []byte, filename string) (string, error) {
	h.calls++
	h.name = filename
	if h.err != nil {
		return "", h.err
	}
	return h.url, nil
}

// ----- Wiring -----

type env struct {
	db       *gorm.DB
	store    *repo.Store
	otp      *fakeOTP
	host     *fakeHost
	resolver *IdentityResolver
	sessions *SessionService
	profiles *ProfileService
	prefs    *PreferenceService
	chat     *ChatService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := newTestDB(t)
	st := repo.NewStore(db)

	e := &env{
		db:    db,
		store: st,
		otp:   &fakeOTP{},
		host:  &fakeHost{url: "https://i.ibb.co/abc/pic.png"},
	}
	e.resolver = &IdentityResolver{Sessions: st, Users: st}
	e.prefs = &PreferenceService{Prefs: st, Resolver: e.resolver}
	e.profiles = &ProfileService{Users: st, Sessions: st, Prefs: e.prefs, Resolver: e.resolver}
	e.sessions = &SessionService{Sessions: st, Users: st, Profiles: e.profiles, OTP: e.otp}
	e.chat = &ChatService{
		Messages: st,
		Idem:     st,
		Resolver: e.resolver,
		Images:   e.host,
	}
	return e
}

// verifiedSession runs send and verify for mobile and returns the session ID.
func (e *env) verifiedSession(t *testing.T, mobile string) string {
	t.Helper()
	ctx := context.Background()
	sid, err := e.sessions.SendOTP(ctx, mobile)
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if _, err := e.sessions.VerifyOTP(ctx, sid, testCode); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	return sid
}

// mobileUser creates a verified session with a saved profile.
func (e *env) mobileUser(t *testing.T, mobile, first string) string {
	t.Helper()
	sid := e.verifiedSession(t, mobile)
	err := e.sessions.SaveUserDetails(context.Background(), MobileUserInput{
		SessionID:    sid,
		MobileNumber: mobile,
		FirstName:    first,
	})
	if err != nil {
		t.Fatalf("SaveUserDetails: %v", err)
	}
	return sid
}

// googleUser creates an external-identity user and returns its session ID.
func (e *env) googleUser(t *testing.T, clerk, email, first string) string {
	t.Helper()
	if _, err := e.profiles.UpsertGoogleUser(context.Background(), GoogleUserInput{
		ClerkSessionID: clerk,
		Email:          email,
		FirstName:      first,
	}); err != nil {
		t.Fatalf("UpsertGoogleUser: %v", err)
	}
	return clerk
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(4, 4, color.NRGBA{R: 200, A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func senders(msgs []domain.ChatMessage) []domain.Sender {
	out := make([]domain.Sender, len(msgs))
	for i, m := range msgs {
		out[i] = m.Sender
	}
	return out
}

func wantErr(t *testing.T, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}
