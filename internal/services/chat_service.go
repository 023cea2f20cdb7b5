package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// DefaultWelcomeText is the bot reply to a user's first message.
const DefaultWelcomeText = "Thank you for contacting support! An agent will be with you shortly."

// SendResult describes the outcome of a user send.
type SendResult struct {
	Message    *domain.ChatMessage
	BotReplied bool
	// Replayed is set when an Idempotency-Key matched an earlier send and
	// nothing new was appended.
	Replayed bool
}

// ChannelStats summarizes a channel for conditional responses.
type ChannelStats struct {
	ChannelID string
	Count     int64
	Latest    *time.Time
}

// ChatService manages the per-user support channels. The channel of a user
// is keyed by the user's ID and is append-only.
type ChatService struct {
	Messages MessageRepo
	Idem     IdempotencyRepo
	Resolver *IdentityResolver
	Images   ImageHost

	WelcomeText    string
	MaxTextRunes   int
	IdempotencyTTL time.Duration
	MaxImagePixels int64
}

func (s *ChatService) tracer() trace.Tracer { return otel.Tracer("services/ChatService") }

func (s *ChatService) welcome() string {
	if s.WelcomeText != "" {
		return s.WelcomeText
	}
	return DefaultWelcomeText
}

// Channel resolves sessionID to the user whose channel it addresses.
func (s *ChatService) Channel(ctx context.Context, sessionID string) (*domain.User, error) {
	u, ok, err := s.Resolver.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// History returns the channel behind sessionID in ascending order. An
// unresolved session yields an empty list, not an error.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	ctx, span := s.tracer().Start(ctx, "History")
	defer span.End()

	u, ok, err := s.Resolver.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.ChatMessage{}, nil
	}
	return s.ChannelHistory(ctx, u.ID)
}

// ChannelHistory returns every message of channelID in ascending order.
func (s *ChatService) ChannelHistory(ctx context.Context, channelID string) ([]domain.ChatMessage, error) {
	out, err := s.Messages.ListMessages(ctx, channelID)
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// Stats returns the size and newest timestamp of the channel behind
// sessionID; ok is false when the session does not resolve.
func (s *ChatService) Stats(ctx context.Context, sessionID string) (ChannelStats, bool, error) {
	u, ok, err := s.Resolver.Resolve(ctx, sessionID)
	if err != nil || !ok {
		return ChannelStats{}, false, err
	}
	n, latest, err := s.Messages.MessagesStats(ctx, u.ID)
	if err != nil {
		return ChannelStats{}, false, unavailable(err)
	}
	return ChannelStats{ChannelID: u.ID, Count: n, Latest: latest}, true, nil
}

// SendUserMessage appends text as the user behind sessionID. Right after the
// user's first message the bot welcome is appended, exactly once.
func (s *ChatService) SendUserMessage(ctx context.Context, sessionID, text string) (bool, error) {
	res, err := s.SendUserMessageOnce(ctx, sessionID, text, "")
	if err != nil {
		return false, err
	}
	return res.BotReplied, nil
}

// SendUserMessageOnce is SendUserMessage with retry protection: a non-empty
// key that matches an earlier send by the same user replays that result.
func (s *ChatService) SendUserMessageOnce(ctx context.Context, sessionID, text, key string) (*SendResult, error) {
	ctx, span := s.tracer().Start(ctx, "SendUserMessage")
	defer span.End()

	u, err := s.Channel(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("channel.id", u.ID))
	if err := s.validateText(text); err != nil {
		return nil, err
	}

	scope := "send-message:" + u.ID
	if key != "" {
		if res, ok := s.replay(ctx, u.ID, scope, key); ok {
			span.SetAttributes(attribute.Bool("idempotent.replay", true))
			return res, nil
		}
	}

	msg, err := s.append(ctx, u.ID, domain.SenderUser, text)
	if err != nil {
		return nil, err
	}
	res := &SendResult{Message: msg}

	n, err := s.Messages.CountMessagesBySender(ctx, u.ID, domain.SenderUser)
	if err != nil {
		return nil, unavailable(err)
	}
	if n == 1 {
		if _, err := s.append(ctx, u.ID, domain.SenderBot, s.welcome()); err != nil {
			return nil, err
		}
		res.BotReplied = true
	}

	if key != "" && s.Idem != nil {
		ttl := s.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		// A concurrent retry may have recorded the key first; the message
		// is already stored either way.
		if _, err := s.Idem.CreateIdempotency(ctx, scope, key, msg.ID, 200, ttl); err != nil && !errors.Is(err, domain.ErrDuplicate) {
			span.RecordError(err)
		}
	}
	return res, nil
}

func (s *ChatService) replay(ctx context.Context, channelID, scope, key string) (*SendResult, bool) {
	if s.Idem == nil {
		return nil, false
	}
	rec, err := s.Idem.GetIdempotency(ctx, scope, key, time.Now())
	if err != nil {
		return nil, false
	}
	msg, err := s.Messages.GetMessage(ctx, channelID, rec.MessageID)
	if err != nil {
		return nil, false
	}
	return &SendResult{Message: msg, BotReplied: s.isFirstUserMessage(ctx, channelID, msg.ID), Replayed: true}, true
}

// HasReplay reports whether key already completed a send for the user
// behind sessionID and is still within its TTL at now.
func (s *ChatService) HasReplay(ctx context.Context, sessionID, key string, now time.Time) (bool, error) {
	if s.Idem == nil || key == "" {
		return false, nil
	}
	u, ok, err := s.Resolver.Resolve(ctx, sessionID)
	if err != nil || !ok {
		return false, err
	}
	_, err = s.Idem.GetIdempotency(ctx, "send-message:"+u.ID, key, now)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	case err != nil:
		return false, unavailable(err)
	}
	return true, nil
}

func (s *ChatService) isFirstUserMessage(ctx context.Context, channelID, id string) bool {
	all, err := s.Messages.ListMessages(ctx, channelID)
	if err != nil {
		return false
	}
	for _, m := range all {
		if m.Sender == domain.SenderUser {
			return m.ID == id
		}
	}
	return false
}

// SendAdminMessage appends text to channelID as the operator. The bot never
// reacts to operator messages.
func (s *ChatService) SendAdminMessage(ctx context.Context, channelID, text string) (*domain.ChatMessage, error) {
	ctx, span := s.tracer().Start(ctx, "SendAdminMessage",
		trace.WithAttributes(attribute.String("channel.id", channelID)))
	defer span.End()

	if err := s.validateText(text); err != nil {
		return nil, err
	}
	return s.append(ctx, channelID, domain.SenderAdmin, text)
}

// UploadImage stores data with the image host and appends the returned URL
// as a user message. Only the image header is read; images declaring more
// than MaxImagePixels are rejected. Nothing is appended when the host fails. Host errors
// become ErrUploadFailed unless the host is unavailable altogether.
func (s *ChatService) UploadImage(ctx context.Context, sessionID string, data []byte, filename string) (*domain.ChatMessage, error) {
	ctx, span := s.tracer().Start(ctx, "UploadImage",
		trace.WithAttributes(attribute.Int("image.bytes", len(data))))
	defer span.End()

	u, err := s.Channel(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	maxPixels := s.MaxImagePixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxImagePixels
	}
	format, err := sniffImage(data, maxPixels)
	if err != nil {
		imageUploads.WithLabelValues("invalid").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("image.format", format))

	url, err := s.Images.Upload(ctx, data, uploadName(filename, format))
	if err != nil {
		imageUploads.WithLabelValues("failed").Inc()
		span.SetStatus(codes.Error, "upload failed")
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, Rejected(ErrUploadFailed, err.Error())
	}
	imageUploads.WithLabelValues("ok").Inc()
	return s.append(ctx, u.ID, domain.SenderUser, url)
}

// Latest returns the newest message of channelID, or nil for an empty
// channel.
func (s *ChatService) Latest(ctx context.Context, channelID string) (*domain.ChatMessage, error) {
	m, err := s.Messages.LatestMessage(ctx, channelID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return m, nil
}

// Since returns the non-operator messages of channelID at or after since,
// oldest first. A zero since returns all of them.
func (s *ChatService) Since(ctx context.Context, channelID string, since time.Time) ([]domain.ChatMessage, error) {
	out, err := s.Messages.MessagesSince(ctx, channelID, since, domain.SenderAdmin)
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *ChatService) append(ctx context.Context, channelID string, sender domain.Sender, text string) (*domain.ChatMessage, error) {
	m, err := s.Messages.AppendMessage(ctx, channelID, sender, text)
	if err != nil {
		return nil, unavailable(err)
	}
	chatMessages.WithLabelValues(string(sender)).Inc()
	return m, nil
}

func (s *ChatService) validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if s.MaxTextRunes > 0 && utf8.RuneCountInString(text) > s.MaxTextRunes {
		return fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, s.MaxTextRunes)
	}
	return nil
}
