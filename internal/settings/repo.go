package settings

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]models.Setting, error) {
	var rows []models.Setting
	err := r.db.WithContext(ctx).Order("category ASC").Order("key ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) ByCategory(ctx context.Context, category string) ([]models.Setting, error) {
	var rows []models.Setting
	err := r.db.WithContext(ctx).
		Where("category = ?", category).
		Order("key ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var row models.Setting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Update sets the value of an existing key. Unknown keys yield gorm.ErrRecordNotFound.
func (r *Repository) Update(ctx context.Context, key, value string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Setting{}).
		Where("key = ?", key).
		Updates(map[string]any{"value": value, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
