package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// Store binds the package functions to one *gorm.DB so the service layer can
// depend on an interface instead of GORM.
type Store struct {
	DB *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close(context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) UpsertSession(ctx context.Context, mobile, sessionID string) (*domain.Session, error) {
	return UpsertSession(ctx, s.DB, mobile, sessionID)
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return GetSession(ctx, s.DB, sessionID)
}

func (s *Store) GetVerifiedSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return GetVerifiedSession(ctx, s.DB, sessionID)
}

func (s *Store) MarkSessionVerified(ctx context.Context, sessionID string, at time.Time) error {
	return MarkSessionVerified(ctx, s.DB, sessionID, at)
}

func (s *Store) MarkDetailsCompleted(ctx context.Context, sessionID string) error {
	return MarkDetailsCompleted(ctx, s.DB, sessionID)
}

func (s *Store) FindUser(ctx context.Context, key domain.UserKey) (*domain.User, error) {
	return FindUser(ctx, s.DB, key)
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	return CreateUser(ctx, s.DB, u)
}

func (s *Store) UpdateUser(ctx context.Context, key domain.UserKey, patch domain.UserPatch) error {
	return UpdateUser(ctx, s.DB, key, patch)
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	return GetPreferences(ctx, s.DB, userID)
}

func (s *Store) CreatePreferences(ctx context.Context, p *domain.Preferences) error {
	return CreatePreferences(ctx, s.DB, p)
}

func (s *Store) ReplacePreferences(ctx context.Context, p *domain.Preferences) error {
	return ReplacePreferences(ctx, s.DB, p)
}

func (s *Store) AppendMessage(ctx context.Context, channelID string, sender domain.Sender, text string) (*domain.ChatMessage, error) {
	return AppendMessage(ctx, s.DB, channelID, sender, text)
}

func (s *Store) ListMessages(ctx context.Context, channelID string) ([]domain.ChatMessage, error) {
	return ListMessages(ctx, s.DB, channelID)
}

func (s *Store) CountMessagesBySender(ctx context.Context, channelID string, sender domain.Sender) (int64, error) {
	return CountMessagesBySender(ctx, s.DB, channelID, sender)
}

func (s *Store) LatestMessage(ctx context.Context, channelID string) (*domain.ChatMessage, error) {
	return LatestMessage(ctx, s.DB, channelID)
}

func (s *Store) MessagesSince(ctx context.Context, channelID string, since time.Time, exclude domain.Sender) ([]domain.ChatMessage, error) {
	return MessagesSince(ctx, s.DB, channelID, since, exclude)
}

func (s *Store) GetMessage(ctx context.Context, channelID, id string) (*domain.ChatMessage, error) {
	return GetMessage(ctx, s.DB, channelID, id)
}

func (s *Store) MessagesStats(ctx context.Context, channelID string) (int64, *time.Time, error) {
	return MessagesStats(ctx, s.DB, channelID)
}

func (s *Store) GetIdempotency(ctx context.Context, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, s.DB, scope, key, now)
}

func (s *Store) CreateIdempotency(ctx context.Context, scope, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return CreateIdempotency(ctx, s.DB, scope, key, messageID, status, ttl)
}
