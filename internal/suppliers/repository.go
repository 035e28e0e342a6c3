package supplier

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
)

// Repository persists suppliers.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	var s models.Supplier
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) Create(ctx context.Context, s *models.Supplier) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repository) Update(ctx context.Context, s *models.Supplier) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// List returns one page of suppliers, newest first, plus the unpaged total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Supplier, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Supplier{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		q = q.Where("(name ILIKE ? OR tax_id ILIKE ? OR contact_name ILIKE ?)", pattern, pattern, pattern)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Supplier
	err := q.Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	return rows, total, err
}

func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := r.db.WithContext(ctx).Raw(`
SELECT COUNT(*) AS total,
       COUNT(*) FILTER (WHERE status = 'activo') AS active,
       COUNT(*) FILTER (WHERE rating >= 4.5) AS top_rated
FROM suppliers`).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
