package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

var ascending = bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}

// channel returns the collection of channelID, creating its ordering index
// once per process.
func (s *Store) channel(ctx context.Context, channelID string) (*mongo.Collection, error) {
	name := ChannelCollection(channelID)
	coll := s.chats.Collection(name)
	if _, done := s.indexed.Load(name); done {
		return coll, nil
	}
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: ascending}); err != nil {
		return nil, err
	}
	s.indexed.Store(name, struct{}{})
	return coll, nil
}

func (s *Store) AppendMessage(ctx context.Context, channelID string, sender domain.Sender, text string) (*domain.ChatMessage, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	coll, err := s.channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	m := &domain.ChatMessage{
		ID:        newMessageID(),
		ChannelID: channelID,
		Sender:    sender,
		Text:      text,
		Timestamp: now(),
	}
	if _, err := coll.InsertOne(ctx, m); err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, channelID string) ([]domain.ChatMessage, error) {
	return s.findMessages(ctx, channelID, bson.M{})
}

func (s *Store) MessagesSince(ctx context.Context, channelID string, since time.Time, exclude domain.Sender) ([]domain.ChatMessage, error) {
	filter := bson.M{}
	if !since.IsZero() {
		filter["timestamp"] = bson.M{"$gte": since.UTC()}
	}
	if exclude != "" {
		filter["sender"] = bson.M{"$ne": exclude}
	}
	return s.findMessages(ctx, channelID, filter)
}

func (s *Store) findMessages(ctx context.Context, channelID string, filter bson.M) ([]domain.ChatMessage, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	cur, err := s.chats.Collection(ChannelCollection(channelID)).Find(ctx, filter, options.Find().SetSort(ascending))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.ChatMessage{}
	for cur.Next(ctx) {
		var m domain.ChatMessage
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		m.ChannelID = channelID
		out = append(out, m)
	}
	return out, cur.Err()
}

func (s *Store) CountMessagesBySender(ctx context.Context, channelID string, sender domain.Sender) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.chats.Collection(ChannelCollection(channelID)).CountDocuments(ctx, bson.M{"sender": sender})
}

func (s *Store) LatestMessage(ctx context.Context, channelID string) (*domain.ChatMessage, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	var m domain.ChatMessage
	if err := s.chats.Collection(ChannelCollection(channelID)).FindOne(ctx, bson.M{}, opts).Decode(&m); err != nil {
		return nil, mapErr(err)
	}
	m.ChannelID = channelID
	return &m, nil
}

func (s *Store) GetMessage(ctx context.Context, channelID, id string) (*domain.ChatMessage, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var m domain.ChatMessage
	if err := s.chats.Collection(ChannelCollection(channelID)).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, mapErr(err)
	}
	m.ChannelID = channelID
	return &m, nil
}

func (s *Store) MessagesStats(ctx context.Context, channelID string) (int64, *time.Time, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.chats.Collection(ChannelCollection(channelID)).CountDocuments(ctx, bson.M{})
	if err != nil || n == 0 {
		return 0, nil, err
	}
	latest, err := s.LatestMessage(ctx, channelID)
	if err != nil {
		return 0, nil, err
	}
	return n, &latest.Timestamp, nil
}

func (s *Store) GetIdempotency(ctx context.Context, scope, key string, at time.Time) (*domain.Idempotency, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var rec domain.Idempotency
	filter := bson.M{"scope": scope, "key": key, "expiresAt": bson.M{"$gt": at.UTC()}}
	if err := s.auth.Collection(collIdempotency).FindOne(ctx, filter).Decode(&rec); err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

// CreateIdempotency inserts a record, replacing an expired one for the same
// (scope, key). A live record yields domain.ErrDuplicate.
func (s *Store) CreateIdempotency(ctx context.Context, scope, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	ts := now()
	coll := s.auth.Collection(collIdempotency)
	if _, err := coll.DeleteOne(ctx, bson.M{"scope": scope, "key": key, "expiresAt": bson.M{"$lte": ts}}); err != nil {
		return nil, err
	}
	rec := &domain.Idempotency{
		ID:        newID(),
		Scope:     scope,
		Key:       key,
		MessageID: messageID,
		Status:    status,
		CreatedAt: ts,
		ExpiresAt: ts.Add(ttl),
	}
	if _, err := coll.InsertOne(ctx, rec); err != nil {
		return nil, mapErr(err)
	}
	return rec, nil
}
