package permissions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
)

// Repository reads the capability catalogue and per-user assignment rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Catalogue lists every permission ordered by module then code.
func (r *Repository) Catalogue(ctx context.Context) ([]models.Permission, error) {
	var rows []models.Permission
	err := r.db.WithContext(ctx).
		Order("module ASC").
		Order("code ASC").
		Find(&rows).Error
	return rows, err
}

// FindByCodes returns the catalogue rows matching codes.
func (r *Repository) FindByCodes(ctx context.Context, codes []string) ([]models.Permission, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var rows []models.Permission
	err := r.db.WithContext(ctx).Where("code IN ?", codes).Find(&rows).Error
	return rows, err
}

// Assignments returns the explicit rows for a user, granted or denied.
func (r *Repository) Assignments(ctx context.Context, userID uuid.UUID) ([]Assignment, error) {
	var rows []Assignment
	err := r.db.WithContext(ctx).
		Table("permission_assignments AS pa").
		Select("p.code AS code, pa.granted AS granted").
		Joins("JOIN permissions p ON p.id = pa.permission_id").
		Where("pa.user_id = ?", userID).
		Order("p.code ASC").
		Scan(&rows).Error
	return rows, err
}

// ReplaceAssignmentsTx swaps every explicit row for the user in one transaction.
func (r *Repository) ReplaceAssignmentsTx(tx *gorm.DB, userID uuid.UUID, rows []models.PermissionAssignment) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.PermissionAssignment{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].UserID = userID
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
	}
	return tx.Omit("Permission").Create(&rows).Error
}
