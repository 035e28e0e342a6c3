package supplier

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

type SupplierDTO struct {
	ID           uuid.UUID           `json:"id"`
	Name         string              `json:"name"`
	TaxID        *string             `json:"tax_id,omitempty"`
	ContactName  *string             `json:"contact_name,omitempty"`
	Phone        *string             `json:"phone,omitempty"`
	Email        *string             `json:"email,omitempty"`
	Supplies     []string            `json:"supplies"`
	LeadTimeDays *int                `json:"lead_time_days,omitempty"`
	PaymentTerms *string             `json:"payment_terms,omitempty"`
	Rating       *decimal.Decimal    `json:"rating,omitempty"`
	LogoURL      *string             `json:"logo_url,omitempty"`
	Status       enums.PartnerStatus `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func NewSupplierDTO(s *models.Supplier) *SupplierDTO {
	return &SupplierDTO{
		ID:           s.ID,
		Name:         s.Name,
		TaxID:        s.TaxID,
		ContactName:  s.ContactName,
		Phone:        s.Phone,
		Email:        s.Email,
		Supplies:     append([]string{}, s.Supplies...),
		LeadTimeDays: s.LeadTimeDays,
		PaymentTerms: s.PaymentTerms,
		Rating:       s.Rating,
		LogoURL:      s.LogoURL,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func newSupplierDTOs(rows []models.Supplier) []SupplierDTO {
	out := make([]SupplierDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewSupplierDTO(&rows[i]))
	}
	return out
}

// CreateSupplierInput accepts supplies either as a list or as one
// comma-separated string.
type CreateSupplierInput struct {
	Name         string               `json:"name" validate:"required,min=2,max=200"`
	TaxID        *string              `json:"tax_id,omitempty" validate:"omitempty,max=20"`
	ContactName  *string              `json:"contact_name,omitempty" validate:"omitempty,max=200"`
	Phone        *string              `json:"phone,omitempty" validate:"omitempty,max=40"`
	Email        *string              `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Supplies     SupplyList           `json:"supplies,omitempty" validate:"omitempty,max=100,dive,max=120"`
	LeadTimeDays *int                 `json:"lead_time_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	PaymentTerms *string              `json:"payment_terms,omitempty" validate:"omitempty,max=200"`
	Rating       *decimal.Decimal     `json:"rating,omitempty"`
	LogoURL      *string              `json:"logo_url,omitempty" validate:"omitempty,url,max=2048"`
	Status       *enums.PartnerStatus `json:"status,omitempty" validate:"omitempty,oneof=activo inactivo"`
}

type UpdateSupplierInput struct {
	Name         *string              `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	TaxID        *string              `json:"tax_id,omitempty" validate:"omitempty,max=20"`
	ContactName  *string              `json:"contact_name,omitempty" validate:"omitempty,max=200"`
	Phone        *string              `json:"phone,omitempty" validate:"omitempty,max=40"`
	Email        *string              `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Supplies     *SupplyList          `json:"supplies,omitempty"`
	LeadTimeDays *int                 `json:"lead_time_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	PaymentTerms *string              `json:"payment_terms,omitempty" validate:"omitempty,max=200"`
	Rating       *decimal.Decimal     `json:"rating,omitempty"`
	LogoURL      *string              `json:"logo_url,omitempty" validate:"omitempty,url,max=2048"`
	Status       *enums.PartnerStatus `json:"status,omitempty" validate:"omitempty,oneof=activo inactivo"`
}

type ListFilter struct {
	Search string
	Status *enums.PartnerStatus
	Limit  int
	Offset int
}

// Stats is the suppliers dashboard header.
type Stats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"activos"`
	TopRated int64 `json:"mejor_calificados"`
}
