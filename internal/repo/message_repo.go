package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// NewMessageID returns a time-ordered identifier, so ID order matches
// insertion order for messages that share a timestamp.
func NewMessageID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// MessageTime is the canonical timestamp for a new message. It is truncated
// to milliseconds so every backend round-trips it unchanged.
func MessageTime() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// AppendMessage inserts a message at the end of channelID. Channels are
// append-only; there is no update or delete.
func AppendMessage(ctx context.Context, db *gorm.DB, channelID string, sender domain.Sender, text string) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		ID:        NewMessageID(),
		ChannelID: channelID,
		Sender:    sender,
		Text:      text,
		Timestamp: MessageTime(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

// ListMessages returns the whole channel ordered deterministically
// (Timestamp ASC, ID ASC).
func ListMessages(ctx context.Context, db *gorm.DB, channelID string) ([]domain.ChatMessage, error) {
	out := []domain.ChatMessage{}
	err := db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountMessagesBySender counts the messages sender wrote in channelID.
func CountMessagesBySender(ctx context.Context, db *gorm.DB, channelID string, sender domain.Sender) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("channel_id = ? AND sender = ?", channelID, sender).
		Count(&total).Error
	return total, err
}

// LatestMessage returns the newest message of channelID, or ErrNotFound for
// an empty channel.
func LatestMessage(ctx context.Context, db *gorm.DB, channelID string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	err := db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("timestamp DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

// MessagesSince returns messages at or after since, skipping those written
// by exclude, in ascending order. The bound is inclusive so a caller that
// remembers which IDs it saw at since never misses a same-instant message.
// A zero since returns the whole channel.
func MessagesSince(ctx context.Context, db *gorm.DB, channelID string, since time.Time, exclude domain.Sender) ([]domain.ChatMessage, error) {
	out := []domain.ChatMessage{}
	q := db.WithContext(ctx).Where("channel_id = ?", channelID)
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since.UTC())
	}
	if exclude != "" {
		q = q.Where("sender <> ?", exclude)
	}
	err := q.Order("timestamp ASC, id ASC").Find(&out).Error
	return out, err
}

// GetMessage fetches one message of channelID by ID.
func GetMessage(ctx context.Context, db *gorm.DB, channelID, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.WithContext(ctx).Where("channel_id = ? AND id = ?", channelID, id).First(&m).Error; err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}
