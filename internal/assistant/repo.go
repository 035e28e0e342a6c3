package assistant

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
)

// Repository appends assistant conversation logs.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, entry *models.ConversationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// RecentForUser returns the newest exchanges of one user.
func (r *Repository) RecentForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.ConversationLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.ConversationLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
