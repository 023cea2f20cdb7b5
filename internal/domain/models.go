// Package domain defines the persistence models for OTP sessions, users,
// notification preferences, and support-chat messages. The types carry both
// GORM tags (SQLite store) and BSON tags (MongoDB store) so either backend
// can persist them without a mapping layer.
package domain

import (
	"strings"
	"time"
)

// AuthProvider discriminates the identity scheme a user signed up with.
type AuthProvider string

const (
	ProviderMobile AuthProvider = "mobile"
	ProviderGoogle AuthProvider = "google"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
	SenderBot   Sender = "bot"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderAdmin, SenderBot:
		return true
	}
	return false
}

// Session is a mobile OTP session. There is at most one row per mobile
// number: every OTP send overwrites SessionID and resets Verified.
//
// Fields:
//   - SessionID: token issued by the OTP provider; the client's handle.
//   - MobileNumber: 10-digit number the OTP was sent to (upsert key).
//   - Verified: flips to true once the OTP was checked against SessionID.
//   - UserDetailsCompleted: flips to true after a matching profile save.
type Session struct {
	ID                   string     `json:"-"                    gorm:"type:char(36);primaryKey"                bson:"_id"`
	SessionID            string     `json:"sessionId"            gorm:"type:varchar(128);not null;uniqueIndex"  bson:"sessionId"`
	MobileNumber         string     `json:"mobileNumber"         gorm:"type:varchar(32);not null;uniqueIndex"   bson:"mobileNumber"`
	Verified             bool       `json:"verified"             gorm:"not null;default:false"                  bson:"verified"`
	UserDetailsCompleted bool       `json:"userDetailsCompleted" gorm:"not null;default:false"                  bson:"userDetailsCompleted"`
	CreatedAt            time.Time  `json:"createdAt"                                                           bson:"createdAt"`
	VerifiedAt           *time.Time `json:"verifiedAt,omitempty"                                                bson:"verifiedAt,omitempty"`
	UpdatedAt            time.Time  `json:"updatedAt"                                                           bson:"updatedAt"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// User is a support-chat customer. Mobile users are keyed by MobileNumber,
// Google users by Email with a ClerkSessionID that rotates on every login.
// A Google user may later gain a MobileNumber; it is never removed.
//
// ID and SessionID are never serialized to API clients.
type User struct {
	ID             string       `json:"-"                        gorm:"type:char(36);primaryKey"                                  bson:"_id"`
	AuthProvider   AuthProvider `json:"authProvider"             gorm:"type:varchar(16);not null;default:'mobile';index"          bson:"authProvider"`
	MobileNumber   *string      `json:"mobileNumber"             gorm:"type:varchar(32);uniqueIndex"                              bson:"mobileNumber"`
	Email          *string      `json:"email"                    gorm:"type:varchar(320);index"                                   bson:"email"`
	ClerkSessionID *string      `json:"clerkSessionId,omitempty" gorm:"type:varchar(128);index"                                   bson:"clerkSessionId,omitempty"`
	SessionID      *string      `json:"-"                        gorm:"type:varchar(128)"                                         bson:"sessionId,omitempty"`
	FirstName      string       `json:"firstName"                gorm:"type:varchar(255);not null"                                bson:"firstName"`
	LastName       *string      `json:"lastName"                 gorm:"type:varchar(255)"                                         bson:"lastName"`
	CreatedAt      time.Time    `json:"createdAt"                                                                                 bson:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"                                                                                 bson:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// IsGoogle reports whether the user signed up through the external provider.
func (u *User) IsGoogle() bool { return u != nil && u.AuthProvider == ProviderGoogle }

// DisplayName joins first and last name for operator-facing output.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != nil {
		name += " " + *u.LastName
	}
	return strings.TrimSpace(name)
}

// Preferences stores the notification flags of one user. UserID is the
// owning key; SessionID / ClerkSessionID mirror the scheme key that last
// wrote the record.
type Preferences struct {
	ID             string        `json:"-"                  gorm:"type:char(36);primaryKey"               bson:"_id"`
	UserID         string        `json:"userId"             gorm:"type:char(36);not null;uniqueIndex"     bson:"userId"`
	SessionID      *string       `json:"sessionId,omitempty"      gorm:"type:varchar(128);index"        bson:"sessionId,omitempty"`
	ClerkSessionID *string       `json:"clerkSessionId,omitempty" gorm:"type:varchar(128);index"        bson:"clerkSessionId,omitempty"`
	Flags          PreferenceSet `json:"preferences"        gorm:"column:preferences;type:text;not null;serializer:json" bson:"preferences"`
	CreatedAt      time.Time     `json:"createdAt"                                                        bson:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"                                                        bson:"updatedAt"`
}

// TableName returns the database table name for Preferences.
func (Preferences) TableName() string { return "preferences" }

// ChatMessage is a single entry of a per-user support channel. Channels are
// append-only: messages are never updated or deleted. Ordering is by
// Timestamp, with the time-ordered ID breaking ties.
//
// A Text starting with the configured image-host prefix is an image
// attachment; there is no separate type field.
type ChatMessage struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"                                  bson:"_id"`
	ChannelID string    `json:"-"         gorm:"type:char(36);not null;index:idx_channel_ts,priority:1"    bson:"-"`
	Sender    Sender    `json:"sender"    gorm:"type:varchar(16);not null;check:sender IN ('user','admin','bot')" bson:"sender"`
	Text      string    `json:"text"      gorm:"type:text;not null"                                        bson:"text"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index:idx_channel_ts,priority:2"                  bson:"timestamp"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// IsImage reports whether the message text is a hosted image URL.
func (m ChatMessage) IsImage(prefix string) bool {
	return prefix != "" && strings.HasPrefix(m.Text, prefix)
}
