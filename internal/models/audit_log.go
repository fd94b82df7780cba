package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit levels.
const (
	AuditLevelInfo  = "info"
	AuditLevelWarn  = "warn"
	AuditLevelError = "error"
)

// AuditLog captures auditable events raised by users and background jobs.
type AuditLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    *uint             `gorm:"index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	Level      string            `gorm:"size:16;not null" json:"level"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	Details    datatypes.JSONMap `gorm:"type:json" json:"details"`
	CreatedAt  time.Time         `json:"created_at"`
}
