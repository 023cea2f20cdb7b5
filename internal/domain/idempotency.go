package domain

import "time"

// Idempotency records the outcome of a completed send so that a retried
// request carrying the same Idempotency-Key returns the original message
// instead of appending a duplicate. Scope namespaces keys per channel.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"                               bson:"_id"`
	Scope     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_key,priority:1"      bson:"scope"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_key,priority:2"      bson:"key"`
	MessageID string    `gorm:"type:TEXT NOT NULL"                                          bson:"messageId"`
	Status    int       `gorm:"type:INTEGER NOT NULL"                                       bson:"status"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"                       bson:"createdAt"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"                                bson:"expiresAt"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
