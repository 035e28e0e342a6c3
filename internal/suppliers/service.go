package supplier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/pagination"
	"github.com/angelmondragon/medfarma-backend/pkg/types"
)

const auditModule = "compras"

var maxRating = decimal.NewFromInt(5)

// Service manages the supplier directory.
type Service interface {
	Create(ctx context.Context, actorID uuid.UUID, input CreateSupplierInput) (*SupplierDTO, error)
	Update(ctx context.Context, actorID, id uuid.UUID, input UpdateSupplierInput) (*SupplierDTO, error)
	Deactivate(ctx context.Context, actorID, id uuid.UUID) (*SupplierDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*SupplierDTO, error)
	List(ctx context.Context, filter ListFilter) (*types.Page[SupplierDTO], error)
	Stats(ctx context.Context) (*Stats, error)
}

type supplierStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
	Create(ctx context.Context, s *models.Supplier) error
	Update(ctx context.Context, s *models.Supplier) error
	List(ctx context.Context, filter ListFilter) ([]models.Supplier, int64, error)
	Stats(ctx context.Context) (*Stats, error)
}

type auditLogger interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
}

type service struct {
	repo  supplierStore
	audit auditLogger
	logg  *logger.Logger
}

func NewService(repo supplierStore, audit auditLogger, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("supplier repository required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit logger required")
	}
	return &service{repo: repo, audit: audit, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, actorID uuid.UUID, input CreateSupplierInput) (*SupplierDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier name required").
			WithDetails(map[string]string{"name": "required"})
	}
	if err := validateRating(input.Rating); err != nil {
		return nil, err
	}
	status := enums.PartnerActivo
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid supplier status")
		}
		status = *input.Status
	}
	record := &models.Supplier{
		Name:         name,
		TaxID:        trimOptional(input.TaxID),
		ContactName:  trimOptional(input.ContactName),
		Phone:        trimOptional(input.Phone),
		Email:        lowerOptional(input.Email),
		Supplies:     pq.StringArray(cleanSupplies(input.Supplies)),
		LeadTimeDays: input.LeadTimeDays,
		PaymentTerms: trimOptional(input.PaymentTerms),
		Rating:       roundRating(input.Rating),
		LogoURL:      trimOptional(input.LogoURL),
		Status:       status,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: create supplier")
	}
	s.audit.Log(ctx, "alta_proveedor", auditModule, map[string]any{
		"supplier_id": record.ID.String(),
		"name":        record.Name,
	}, &actorID)
	return NewSupplierDTO(record), nil
}

func (s *service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateSupplierInput) (*SupplierDTO, error) {
	if err := validateRating(input.Rating); err != nil {
		return nil, err
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier name required").
				WithDetails(map[string]string{"name": "required"})
		}
		record.Name = name
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid supplier status")
		}
		record.Status = *input.Status
	}
	if input.TaxID != nil {
		record.TaxID = trimOptional(input.TaxID)
	}
	if input.ContactName != nil {
		record.ContactName = trimOptional(input.ContactName)
	}
	if input.Phone != nil {
		record.Phone = trimOptional(input.Phone)
	}
	if input.Email != nil {
		record.Email = lowerOptional(input.Email)
	}
	if input.Supplies != nil {
		record.Supplies = pq.StringArray(cleanSupplies(*input.Supplies))
	}
	if input.LeadTimeDays != nil {
		record.LeadTimeDays = input.LeadTimeDays
	}
	if input.PaymentTerms != nil {
		record.PaymentTerms = trimOptional(input.PaymentTerms)
	}
	if input.Rating != nil {
		record.Rating = roundRating(input.Rating)
	}
	if input.LogoURL != nil {
		record.LogoURL = trimOptional(input.LogoURL)
	}
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update supplier")
	}
	s.audit.Log(ctx, "edicion_proveedor", auditModule, map[string]any{"supplier_id": id.String()}, &actorID)
	return NewSupplierDTO(record), nil
}

// Deactivate soft-deletes a supplier. Its purchase orders keep pointing at it.
func (s *service) Deactivate(ctx context.Context, actorID, id uuid.UUID) (*SupplierDTO, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status == enums.PartnerInactivo {
		return NewSupplierDTO(record), nil
	}
	record.Status = enums.PartnerInactivo
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: deactivate supplier")
	}
	s.audit.Log(ctx, "baja_proveedor", auditModule, map[string]any{"supplier_id": id.String()}, &actorID)
	return NewSupplierDTO(record), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*SupplierDTO, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewSupplierDTO(record), nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*types.Page[SupplierDTO], error) {
	page := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list suppliers")
	}
	return &types.Page[SupplierDTO]{Items: newSupplierDTOs(rows), Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supplier stats")
	}
	return stats, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supplier")
	}
	return record, nil
}

func validateRating(rating *decimal.Decimal) error {
	if rating == nil {
		return nil
	}
	if rating.IsNegative() || rating.GreaterThan(maxRating) {
		return pkgerrors.New(pkgerrors.CodeValidation, "rating out of range").
			WithDetails(map[string]string{"rating": "must be between 0 and 5"})
	}
	return nil
}

func roundRating(rating *decimal.Decimal) *decimal.Decimal {
	if rating == nil {
		return nil
	}
	r := rating.Round(1)
	return &r
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

func lowerOptional(value *string) *string {
	v := trimOptional(value)
	if v == nil {
		return nil
	}
	lowered := strings.ToLower(*v)
	return &lowered
}
