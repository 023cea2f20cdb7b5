// Package mongostore implements the service Store on MongoDB. Sessions,
// users, preferences and idempotency records live in the auth database;
// every chat channel is its own collection ("chat_<userId>") in the chat
// database.
package mongostore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

const (
	collSessions    = "sessions"
	collUsers       = "users"
	collPreferences = "preferences"
	collIdempotency = "idempotency"

	channelPrefix = "chat_"
)

// Store is a MongoDB-backed persistence layer.
type Store struct {
	client *mongo.Client
	auth   *mongo.Database
	chats  *mongo.Database

	// OpTimeout bounds each store call. Zero leaves the caller's context
	// as the only limit.
	OpTimeout time.Duration

	indexed sync.Map // channel collection name -> struct{}
}

// Connect dials uri, pings the primary, and ensures the auth-database
// indexes exist.
func Connect(ctx context.Context, uri, authDB, chatDB string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s := New(client, authDB, chatDB)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client without touching the server.
func New(client *mongo.Client, authDB, chatDB string) *Store {
	return &Store{
		client: client,
		auth:   client.Database(authDB),
		chats:  client.Database(chatDB),
	}
}

// EnsureIndexes creates the unique keys the services rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	stringMobile := bson.M{"mobileNumber": bson.M{"$type": "string"}}
	specs := map[string][]mongo.IndexModel{
		collSessions: {
			{Keys: bson.D{{Key: "mobileNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "sessionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collUsers: {
			{Keys: bson.D{{Key: "mobileNumber", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(stringMobile)},
			{Keys: bson.D{{Key: "email", Value: 1}}},
			{Keys: bson.D{{Key: "clerkSessionId", Value: 1}}},
		},
		collPreferences: {
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collIdempotency: {
			{Keys: bson.D{{Key: "scope", Value: 1}, {Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
	for coll, models := range specs {
		if _, err := s.auth.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.OpTimeout)
}

// Ping checks the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ChannelCollection names the collection that holds channelID's messages.
func ChannelCollection(channelID string) string { return channelPrefix + channelID }

func newID() string { return primitive.NewObjectID().Hex() }

func newMessageID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// mapErr converts driver errors into the domain sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return domain.ErrDuplicate
	}
	return err
}
