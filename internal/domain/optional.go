package domain

import (
	"encoding/json"
	"strings"
)

// OptString distinguishes an omitted JSON key from an explicit null.
//
//	{}                  -> Set=false
//	{"lastName": null}  -> Set=true, Value=nil
//	{"lastName": "Doe"} -> Set=true, Value="Doe"
type OptString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON implements json.Unmarshaler. It only runs when the key is
// present, which is what records Set.
func (o *OptString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if strings.TrimSpace(string(b)) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// MarshalJSON renders the value, or null when unset.
func (o OptString) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// NonEmpty reports whether the key was sent with a non-blank string.
func (o OptString) NonEmpty() bool {
	return o.Set && o.Value != nil && strings.TrimSpace(*o.Value) != ""
}

// Some returns a present, non-null OptString.
func Some(s string) OptString { return OptString{Set: true, Value: &s} }

// Null returns a present OptString holding null.
func Null() OptString { return OptString{Set: true} }

// UserPatch lists the user fields an update may touch. Pointer fields are
// written when non-nil; OptString fields are written when Set, which lets a
// caller store an explicit null.
type UserPatch struct {
	FirstName      *string
	LastName       OptString
	Email          OptString
	MobileNumber   OptString
	ClerkSessionID *string
	SessionID      *string
	AuthProvider   *AuthProvider
}

// Empty reports whether the patch would change nothing.
func (p UserPatch) Empty() bool {
	return p.FirstName == nil && !p.LastName.Set && !p.Email.Set && !p.MobileNumber.Set &&
		p.ClerkSessionID == nil && p.SessionID == nil && p.AuthProvider == nil
}

// UserKeyField selects the natural key used to address a user record.
type UserKeyField string

const (
	UserKeyID           UserKeyField = "id"
	UserKeyMobile       UserKeyField = "mobileNumber"
	UserKeyEmail        UserKeyField = "email"
	UserKeyClerkSession UserKeyField = "clerkSessionId"
)

// UserKey addresses exactly one user by a natural key.
type UserKey struct {
	Field UserKeyField
	Value string
}

// ByMobile, ByEmail, ByClerkSession and ByID build UserKeys.
func ByMobile(m string) UserKey { return UserKey{Field: UserKeyMobile, Value: m} }
func ByEmail(e string) UserKey { return UserKey{Field: UserKeyEmail, Value: e} }
func ByClerkSession(c string) UserKey { return UserKey{Field: UserKeyClerkSession, Value: c} }
func ByID(id string) UserKey { return UserKey{Field: UserKeyID, Value: id} }
