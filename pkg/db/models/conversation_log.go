package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ConversationLog is an append-only record of one assistant exchange.
type ConversationLog struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID      `gorm:"column:user_id;type:uuid;not null"`
	UserMessage string         `gorm:"column:user_message;not null"`
	Response    string         `gorm:"column:response;not null"`
	Context     datatypes.JSON `gorm:"column:context;type:jsonb;not null"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (ConversationLog) TableName() string { return "assistant_conversations" }
