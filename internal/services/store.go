package services

import (
	"context"
	"time"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// SessionRepo persists OTP sessions.
type SessionRepo interface {
	UpsertSession(ctx context.Context, mobile, sessionID string) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetVerifiedSession(ctx context.Context, sessionID string) (*domain.Session, error)
	MarkSessionVerified(ctx context.Context, sessionID string, at time.Time) error
	MarkDetailsCompleted(ctx context.Context, sessionID string) error
}

// UserRepo persists user profiles addressed by natural keys.
type UserRepo interface {
	FindUser(ctx context.Context, key domain.UserKey) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, key domain.UserKey, patch domain.UserPatch) error
}

// PreferenceRepo persists one preference record per user.
type PreferenceRepo interface {
	GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error)
	CreatePreferences(ctx context.Context, p *domain.Preferences) error
	ReplacePreferences(ctx context.Context, p *domain.Preferences) error
}

// MessageRepo persists append-only chat channels.
type MessageRepo interface {
	AppendMessage(ctx context.Context, channelID string, sender domain.Sender, text string) (*domain.ChatMessage, error)
	ListMessages(ctx context.Context, channelID string) ([]domain.ChatMessage, error)
	CountMessagesBySender(ctx context.Context, channelID string, sender domain.Sender) (int64, error)
	LatestMessage(ctx context.Context, channelID string) (*domain.ChatMessage, error)
	MessagesSince(ctx context.Context, channelID string, since time.Time, exclude domain.Sender) ([]domain.ChatMessage, error)
	GetMessage(ctx context.Context, channelID, id string) (*domain.ChatMessage, error)
	MessagesStats(ctx context.Context, channelID string) (int64, *time.Time, error)
}

// IdempotencyRepo persists replay records for retried writes.
type IdempotencyRepo interface {
	GetIdempotency(ctx context.Context, scope, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, scope, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// Store bundles every repository plus lifecycle hooks. Missing records are
// reported as domain.ErrNotFound and unique-key conflicts as
// domain.ErrDuplicate.
type Store interface {
	SessionRepo
	UserRepo
	PreferenceRepo
	MessageRepo
	IdempotencyRepo

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
