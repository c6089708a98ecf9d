package models

import (
	"time"
)

// BaseModel provides shared fields for mutable persistent models. Identifiers are
// database assigned and strictly increasing, which keeps (created_at, id) a total order.
type BaseModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
