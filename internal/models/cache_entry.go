package models

import (
	"time"
)

// CacheEntry is a key/value row used when no Redis instance is configured.
// A nil ExpiresAt never expires.
type CacheEntry struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     []byte
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the entry is stale at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
