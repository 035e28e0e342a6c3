package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditLog records a staff action for later review.
type AuditLog struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    *uuid.UUID     `gorm:"column:user_id;type:uuid"`
	Action    string         `gorm:"column:action;not null"`
	Module    string         `gorm:"column:module;not null"`
	Details   datatypes.JSON `gorm:"column:details;type:jsonb"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}
