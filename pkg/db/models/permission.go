package models

import (
	"time"

	"github.com/google/uuid"
)

// Permission is one entry of the capability catalogue, coded as <module>.<action>.
type Permission struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code        string    `gorm:"column:code;not null;uniqueIndex"`
	Name        string    `gorm:"column:name;not null"`
	Description *string   `gorm:"column:description"`
	Module      string    `gorm:"column:module;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// PermissionAssignment grants or explicitly denies a permission to a user.
type PermissionAssignment struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_permission_assignments_user_permission"`
	PermissionID uuid.UUID  `gorm:"column:permission_id;type:uuid;not null;uniqueIndex:idx_permission_assignments_user_permission"`
	Granted      bool       `gorm:"column:granted;not null;default:true"`
	GrantedBy    *uuid.UUID `gorm:"column:granted_by;type:uuid"`
	Permission   Permission `gorm:"foreignKey:PermissionID"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
