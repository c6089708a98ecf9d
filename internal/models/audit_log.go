package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAuditLogImmutable is returned when code attempts to update or delete a ledger entry.
var ErrAuditLogImmutable = errors.New("audit log entries are immutable")

// AuditStatus is the outcome of an audited action.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// Valid reports whether s is a known status.
func (s AuditStatus) Valid() bool {
	switch s {
	case AuditStatusSuccess, AuditStatusFailed:
		return true
	}
	return false
}

// AuditLog is a single append-only ledger entry describing an administrative action.
type AuditLog struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID   *string        `gorm:"type:varchar(64);index" json:"actorId"`
	Action    string         `gorm:"type:varchar(64);not null;index" json:"action"`
	Entity    string         `gorm:"type:varchar(64);not null;index" json:"entity"`
	EntityID  *string        `gorm:"type:varchar(128)" json:"entityId"`
	Changes   datatypes.JSON `json:"changes"`
	IPAddress *string        `gorm:"type:varchar(64)" json:"ipAddress"`
	UserAgent *string        `gorm:"type:text" json:"userAgent"`
	Status    AuditStatus    `gorm:"type:varchar(16);not null;index" json:"status"`
	Timestamp time.Time      `gorm:"column:occurred_at;not null;index" json:"timestamp"`
}

// BeforeCreate fills server side defaults.
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = AuditStatusSuccess
	}
	return nil
}

// BeforeUpdate rejects every update issued through gorm.
func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditLogImmutable
}

// BeforeDelete rejects every delete issued through gorm.
func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditLogImmutable
}
