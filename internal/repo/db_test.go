package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/mobileauth-chat/internal/domain"
	"github.com/tbourn/mobileauth-chat/internal/services"
)

// newTestDB opens a private in-memory database with every table migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "auth.db")
	db, err := OpenSQLite(bad)
	if db != nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("OpenSQLite(%q) = %v, %v", bad, db, err)
	}
}

func TestOpenSQLite_Tuning(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	for pragma, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	} {
		var got string
		if err := db.Raw("PRAGMA " + pragma).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", pragma, err)
		}
		if strings.ToLower(got) != want {
			t.Errorf("PRAGMA %s = %q, want %q", pragma, got, want)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != maxOpenConns {
		t.Errorf("MaxOpenConnections = %d", n)
	}
}

func TestAutoMigrate_StoreRoundTrip(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	// Migrating twice must be a no-op.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
	for _, model := range []any{&domain.Session{}, &domain.User{}, &domain.Preferences{}, &domain.ChatMessage{}, &domain.Idempotency{}} {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("no table for %T", model)
		}
	}

	st := NewStore(db)
	ctx := context.Background()
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	m, err := st.AppendMessage(ctx, "user-1", domain.SenderUser, "hi")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	latest, err := st.LatestMessage(ctx, "user-1")
	if err != nil || latest.ID != m.ID {
		t.Fatalf("LatestMessage = %+v, %v", latest, err)
	}
	if err := st.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Ping(ctx); err == nil {
		t.Fatalf("Ping after Close succeeded")
	}
}

func TestMapErr(t *testing.T) {
	disk := errors.New("disk I/O error")
	cases := []struct {
		in, want error
	}{
		{nil, nil},
		{gorm.ErrRecordNotFound, ErrNotFound},
		{fmt.Errorf("first: %w", gorm.ErrRecordNotFound), ErrNotFound},
		{gorm.ErrDuplicatedKey, ErrDuplicate},
		{errors.New("UNIQUE constraint failed: users.mobile_number"), ErrDuplicate},
		{errors.New("constraint failed: UNIQUE constraint failed: sessions.id (2067)"), ErrDuplicate},
		{disk, disk},
	}
	for _, tc := range cases {
		if got := mapErr(tc.in); got != tc.want {
			t.Errorf("mapErr(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

var _ services.Store = (*Store)(nil)
