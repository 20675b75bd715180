// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the store and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed request,
// keyed by (user_id, scope, key). It enables safe retries for POST operations
// by returning the originally produced message without re-executing side
// effects. Scope is the route the key was used on.
type Idempotency struct {
	ID        string    `json:"id"         gorm:"type:varchar(36);not null;primaryKey"`
	UserID    int64     `json:"userId"     gorm:"not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope     string    `json:"scope"      gorm:"type:varchar(128);not null;uniqueIndex:ux_user_scope_key,priority:2"`
	Key       string    `json:"key"        gorm:"type:varchar(200);not null;uniqueIndex:ux_user_scope_key,priority:3"`
	MessageID int64     `json:"messageId"  gorm:"not null"`
	Status    int       `json:"status"     gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"  gorm:"not null"`
	ExpiresAt time.Time `json:"expiresAt"  gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record is no longer valid at now.
func (i Idempotency) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}
