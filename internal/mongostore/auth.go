package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// UpsertSession stores sessionID against mobile; a later send for the same
// number overwrites it and clears verification.
func (s *Store) UpsertSession(ctx context.Context, mobile, sessionID string) (*domain.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	ts := now()
	_, err := s.auth.Collection(collSessions).UpdateOne(ctx,
		bson.M{"mobileNumber": mobile},
		bson.M{
			"$set": bson.M{
				"sessionId": sessionID,
				"verified":  false,
				"createdAt": ts,
				"updatedAt": ts,
			},
			"$unset":       bson.M{"verifiedAt": ""},
			"$setOnInsert": bson.M{"_id": newID(), "userDetailsCompleted": false},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return s.findSession(ctx, bson.M{"sessionId": sessionID})
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.findSession(ctx, bson.M{"sessionId": sessionID})
}

func (s *Store) GetVerifiedSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.findSession(ctx, bson.M{"sessionId": sessionID, "verified": true})
}

func (s *Store) findSession(ctx context.Context, filter bson.M) (*domain.Session, error) {
	var out domain.Session
	if err := s.auth.Collection(collSessions).FindOne(ctx, filter).Decode(&out); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (s *Store) MarkSessionVerified(ctx context.Context, sessionID string, at time.Time) error {
	return s.updateSession(ctx, sessionID, bson.M{"verified": true, "verifiedAt": at.UTC()})
}

func (s *Store) MarkDetailsCompleted(ctx context.Context, sessionID string) error {
	return s.updateSession(ctx, sessionID, bson.M{"userDetailsCompleted": true})
}

func (s *Store) updateSession(ctx context.Context, sessionID string, set bson.M) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	set["updatedAt"] = now()
	res, err := s.auth.Collection(collSessions).UpdateOne(ctx, bson.M{"sessionId": sessionID}, bson.M{"$set": set})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// userField maps a natural key to its document field.
func userField(f domain.UserKeyField) (string, error) {
	switch f {
	case domain.UserKeyID:
		return "_id", nil
	case domain.UserKeyMobile:
		return "mobileNumber", nil
	case domain.UserKeyEmail:
		return "email", nil
	case domain.UserKeyClerkSession:
		return "clerkSessionId", nil
	}
	return "", fmt.Errorf("unknown user key %q", f)
}

func (s *Store) FindUser(ctx context.Context, key domain.UserKey) (*domain.User, error) {
	field, err := userField(key.Field)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var u domain.User
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if err := s.auth.Collection(collUsers).FindOne(ctx, bson.M{field: key.Value}, opts).Decode(&u); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	ts := now()
	if u.ID == "" {
		u.ID = newID()
	}
	if u.AuthProvider == "" {
		u.AuthProvider = domain.ProviderMobile
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = ts
	}
	u.UpdatedAt = ts
	_, err := s.auth.Collection(collUsers).InsertOne(ctx, u)
	return mapErr(err)
}

func (s *Store) UpdateUser(ctx context.Context, key domain.UserKey, patch domain.UserPatch) error {
	field, err := userField(key.Field)
	if err != nil {
		return err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	set := patchDoc(patch)
	set["updatedAt"] = now()
	res, err := s.auth.Collection(collUsers).UpdateOne(ctx, bson.M{field: key.Value}, bson.M{"$set": set})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// patchDoc turns a UserPatch into a $set document; explicit nulls are
// stored as null.
func patchDoc(p domain.UserPatch) bson.M {
	set := bson.M{}
	if p.FirstName != nil {
		set["firstName"] = *p.FirstName
	}
	if p.LastName.Set {
		set["lastName"] = p.LastName.Value
	}
	if p.Email.Set {
		set["email"] = p.Email.Value
	}
	if p.MobileNumber.Set {
		set["mobileNumber"] = p.MobileNumber.Value
	}
	if p.ClerkSessionID != nil {
		set["clerkSessionId"] = *p.ClerkSessionID
	}
	if p.SessionID != nil {
		set["sessionId"] = *p.SessionID
	}
	if p.AuthProvider != nil {
		set["authProvider"] = string(*p.AuthProvider)
	}
	return set
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var p domain.Preferences
	if err := s.auth.Collection(collPreferences).FindOne(ctx, bson.M{"userId": userID}).Decode(&p); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// CreatePreferences inserts p unless the user already has a record.
func (s *Store) CreatePreferences(ctx context.Context, p *domain.Preferences) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	ts := now()
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt, p.UpdatedAt = ts, ts
	_, err := s.auth.Collection(collPreferences).UpdateOne(ctx,
		bson.M{"userId": p.UserID},
		bson.M{"$setOnInsert": p},
		options.Update().SetUpsert(true),
	)
	return mapErr(err)
}

// ReplacePreferences overwrites the flags of p.UserID, creating the record
// when missing.
func (s *Store) ReplacePreferences(ctx context.Context, p *domain.Preferences) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	ts := now()
	set := bson.M{"preferences": p.Flags, "updatedAt": ts}
	if p.SessionID != nil {
		set["sessionId"] = *p.SessionID
	}
	if p.ClerkSessionID != nil {
		set["clerkSessionId"] = *p.ClerkSessionID
	}
	id := p.ID
	if id == "" {
		id = newID()
	}
	_, err := s.auth.Collection(collPreferences).UpdateOne(ctx,
		bson.M{"userId": p.UserID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"_id": id, "createdAt": ts}},
		options.Update().SetUpsert(true),
	)
	return mapErr(err)
}
