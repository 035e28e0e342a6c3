package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// User is the application profile attached to a principal. ID equals the principal id.
type User struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Email              string              `gorm:"column:email;type:text;not null;uniqueIndex"`
	FullName           string              `gorm:"column:full_name;not null"`
	Role               enums.UserRole      `gorm:"column:role;type:user_role;not null;default:cliente"`
	ApprovalState      enums.ApprovalState `gorm:"column:approval_state;type:approval_state;not null;default:pendiente"`
	MustChangePassword bool                `gorm:"column:must_change_password;not null;default:false"`
	TaxID              *string             `gorm:"column:tax_id"`
	WhatsApp           *string             `gorm:"column:whatsapp"`
	Institution        *string             `gorm:"column:institution"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
