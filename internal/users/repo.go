package users

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/pagination"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts the user inside the caller's transaction.
func (r *Repository) CreateTx(tx *gorm.DB, user *models.User) error {
	return tx.Create(user).Error
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDForUpdateTx locks the row for a state or role change.
func (r *Repository) FindByIDForUpdateTx(tx *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns one page of users plus the unpaged total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if filter.State != nil {
		q = q.Where("approval_state = ?", *filter.State)
	}
	if filter.Role != nil {
		q = q.Where("role = ?", *filter.Role)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + escapeLike(search) + "%"
		q = q.Where("(full_name ILIKE ? OR email ILIKE ? OR tax_id ILIKE ?)", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.User
	page := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}
	if err := page.Apply(q.Order("created_at DESC").Order("id")).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListApprovedClients returns approved customers ordered by name for the assistant.
func (r *Repository) ListApprovedClients(ctx context.Context, limit int) ([]models.User, error) {
	var rows []models.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND approval_state = ?", enums.RoleCliente, enums.ApprovalAprobado).
		Order("full_name ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// UpdateStateTx changes the approval state.
func (r *Repository) UpdateStateTx(tx *gorm.DB, id uuid.UUID, state enums.ApprovalState) error {
	return tx.Model(&models.User{}).Where("id = ?", id).Update("approval_state", state).Error
}

// UpdateRoleTx changes the role.
func (r *Repository) UpdateRoleTx(tx *gorm.DB, id uuid.UUID, role enums.UserRole) error {
	return tx.Model(&models.User{}).Where("id = ?", id).Update("role", role).Error
}

// ClearMustChangePassword drops the forced password change flag.
func (r *Repository) ClearMustChangePassword(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("must_change_password", false).Error
}

type groupCount struct {
	Key   string
	Count int64
}

// CountBy groups users by the given column (approval_state or role).
func (r *Repository) CountBy(ctx context.Context, column string) (map[string]int64, error) {
	if column != "approval_state" && column != "role" {
		return nil, gorm.ErrInvalidField
	}
	var rows []groupCount
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select(column + "::text AS key, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Count
	}
	return out, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
