package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
)

// Repository persists principals.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts a principal inside the caller's transaction.
func (r *Repository) CreateTx(tx *gorm.DB, principal *models.Principal) error {
	if principal.ID == uuid.Nil {
		principal.ID = uuid.New()
	}
	return tx.Create(principal).Error
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	var principal models.Principal
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&principal).Error; err != nil {
		return nil, err
	}
	return &principal, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	var principal models.Principal
	if err := r.db.WithContext(ctx).First(&principal, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &principal, nil
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("id = ?", id).
		Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("id = ?", id).
		UpdateColumn("last_sign_in_at", at).Error
}
