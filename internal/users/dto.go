package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// ApplicationUser is the authorization-relevant view of a user: who they are,
// which role they hold and whether staff approved them.
type ApplicationUser struct {
	ID                 uuid.UUID           `json:"id"`
	Email              string              `json:"email"`
	FullName           string              `json:"full_name"`
	Role               enums.UserRole      `json:"role"`
	ApprovalState      enums.ApprovalState `json:"approval_state"`
	MustChangePassword bool                `json:"must_change_password"`
	TaxID              *string             `json:"tax_id,omitempty"`
	WhatsApp           *string             `json:"whatsapp,omitempty"`
	Institution        *string             `json:"institution,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// IsSuper reports whether the user bypasses role and approval checks.
func (u *ApplicationUser) IsSuper() bool {
	return u != nil && u.Role.IsSuper()
}

// IsApproved reports whether the user may use their portal.
func (u *ApplicationUser) IsApproved() bool {
	return u != nil && (u.ApprovalState.IsApproved() || u.IsSuper())
}

func FromModel(u *models.User) *ApplicationUser {
	if u == nil {
		return nil
	}
	return &ApplicationUser{
		ID:                 u.ID,
		Email:              u.Email,
		FullName:           u.FullName,
		Role:               u.Role,
		ApprovalState:      u.ApprovalState,
		MustChangePassword: u.MustChangePassword,
		TaxID:              u.TaxID,
		WhatsApp:           u.WhatsApp,
		Institution:        u.Institution,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

// RegisterRequest is the public customer sign-up form.
type RegisterRequest struct {
	Email       string  `json:"email" validate:"required,email,max=254"`
	Password    string  `json:"password" validate:"required,min=8,max=128"`
	FullName    string  `json:"full_name" validate:"required,min=2,max=200"`
	TaxID       *string `json:"tax_id,omitempty" validate:"omitempty,max=20"`
	WhatsApp    *string `json:"whatsapp,omitempty" validate:"omitempty,max=30"`
	Institution *string `json:"institution,omitempty" validate:"omitempty,max=200"`
}

// ListFilter narrows the admin user listing.
type ListFilter struct {
	State  *enums.ApprovalState
	Role   *enums.UserRole
	Search string
	Limit  int
	Offset int
}

// Stats groups user counts for the management dashboard.
type Stats struct {
	Total   int64                         `json:"total"`
	ByState map[enums.ApprovalState]int64 `json:"by_state"`
	ByRole  map[enums.UserRole]int64      `json:"by_role"`
}

// UpdateStateRequest is the body of PATCH /api/admin/users/{id}/state.
type UpdateStateRequest struct {
	State string `json:"state" validate:"required,oneof=pendiente aprobado rechazado suspendido"`
}

// UpdateRoleRequest is the body of PATCH /api/admin/users/{id}/role.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=cliente vendedor facturacion despacho compras gerencia"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
