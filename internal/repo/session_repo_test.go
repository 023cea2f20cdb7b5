package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUpsertSession_OverwritesAndResetsVerified(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s1, err := UpsertSession(ctx, db, "9876543210", "sess-1")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if s1.Verified || s1.SessionID != "sess-1" {
		t.Fatalf("unexpected session: %+v", s1)
	}
	if err := MarkSessionVerified(ctx, db, "sess-1", time.Now()); err != nil {
		t.Fatalf("verify: %v", err)
	}

	s2, err := UpsertSession(ctx, db, "9876543210", "sess-2")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if s2.Verified || s2.VerifiedAt != nil || s2.SessionID != "sess-2" {
		t.Fatalf("second send must reset verification: %+v", s2)
	}
	if s2.ID != s1.ID {
		t.Fatalf("upsert must keep one row per mobile number")
	}

	if _, err := GetSession(ctx, db, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old session id must be gone, got %v", err)
	}

	var n int64
	db.Table("sessions").Count(&n)
	if n != 1 {
		t.Fatalf("want 1 session row, got %d", n)
	}
}

func TestGetVerifiedSession_And_Marks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := UpsertSession(ctx, db, "9876543210", "sess-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := GetVerifiedSession(ctx, db, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unverified session must not be returned, got %v", err)
	}

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := MarkSessionVerified(ctx, db, "sess-1", at); err != nil {
		t.Fatal(err)
	}
	got, err := GetVerifiedSession(ctx, db, "sess-1")
	if err != nil {
		t.Fatalf("verified lookup: %v", err)
	}
	if got.VerifiedAt == nil || !got.VerifiedAt.Equal(at) {
		t.Fatalf("VerifiedAt not stored: %+v", got.VerifiedAt)
	}

	if err := MarkDetailsCompleted(ctx, db, "sess-1"); err != nil {
		t.Fatal(err)
	}
	got, _ = GetSession(ctx, db, "sess-1")
	if !got.UserDetailsCompleted {
		t.Fatalf("details flag not set")
	}

	if err := MarkSessionVerified(ctx, db, "missing", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := MarkDetailsCompleted(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
