package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// MessagesStats returns how many messages channelID holds and when the
// newest was written (nil for an empty channel). History ETags are derived
// from the pair.
func MessagesStats(ctx context.Context, db *gorm.DB, channelID string) (int64, *time.Time, error) {
	var count int64
	inChannel := db.WithContext(ctx).Model(&domain.ChatMessage{}).Where("channel_id = ?", channelID)
	if err := inChannel.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// ORDER BY instead of MAX(): SQLite returns MAX over a datetime as TEXT.
	latest, err := LatestMessage(ctx, db, channelID)
	if err != nil {
		return 0, nil, err
	}
	return count, &latest.Timestamp, nil
}
