package product

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/medfarma-backend/pkg/pagination"
	"github.com/angelmondragon/medfarma-backend/pkg/types"
)

const auditModule = "stock"

var allowedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// Service exposes catalog and stock management operations.
type Service interface {
	Create(ctx context.Context, actorID uuid.UUID, input CreateProductInput) (*ProductDTO, error)
	Update(ctx context.Context, actorID, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	Deactivate(ctx context.Context, actorID, id uuid.UUID) (*ProductDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	GetActive(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	List(ctx context.Context, filter ListFilter) (*types.Page[ProductDTO], error)
	AdjustStock(ctx context.Context, actorID, id uuid.UUID, input AdjustStockInput) (*ProductDTO, error)
	LowStock(ctx context.Context) ([]ProductDTO, error)
	Categories(ctx context.Context, activeOnly bool) ([]string, error)
	Stats(ctx context.Context) (*Stats, error)
	ImageUploadURL(ctx context.Context, id uuid.UUID, input ImageUploadInput) (*ImageUpload, error)
}

type productStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	List(ctx context.Context, filter ListFilter) ([]models.Product, int64, error)
	LowStock(ctx context.Context, activeOnly bool) ([]models.Product, error)
	Categories(ctx context.Context, activeOnly bool) ([]string, error)
	Stats(ctx context.Context) (*Stats, error)
}

// stockLocker is the transactional slice used by AdjustStock.
type stockLocker interface {
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error)
	UpdateStock(ctx context.Context, id uuid.UUID, stock int) error
}

type urlSigner interface {
	SignedURL(bucket, object, contentType string, expires time.Duration) (string, error)
	PublicURL(bucket, object string) string
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditLogger interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
}

// ServiceParams bundles the product service dependencies.
type ServiceParams struct {
	Repo productStore
	// StockTx binds the stock locker to a transaction. Defaults to Repo.WithTx
	// when Repo is a *Repository.
	StockTx     func(tx *gorm.DB) stockLocker
	Tx          db.TxRunner
	Outbox      outboxEmitter
	Audit       auditLogger
	Signer      urlSigner
	Bucket      string
	ImagePrefix string
	UploadTTL   time.Duration
	Logger      *logger.Logger
}

// service implements the product service.
type service struct {
	repo        productStore
	stockTx     func(tx *gorm.DB) stockLocker
	tx          db.TxRunner
	outbox      outboxEmitter
	audit       auditLogger
	signer      urlSigner
	bucket      string
	imagePrefix string
	uploadTTL   time.Duration
	logg        *logger.Logger
	now         func() time.Time
}

// NewService constructs a product service instance.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit logger required")
	}
	stockTx := params.StockTx
	if stockTx == nil {
		repo, ok := params.Repo.(*Repository)
		if !ok {
			return nil, fmt.Errorf("stock transaction binder required")
		}
		stockTx = func(tx *gorm.DB) stockLocker { return repo.WithTx(tx) }
	}
	prefix := strings.Trim(params.ImagePrefix, "/")
	if prefix == "" {
		prefix = "productos"
	}
	ttl := params.UploadTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &service{
		repo:        params.Repo,
		stockTx:     stockTx,
		tx:          params.Tx,
		outbox:      params.Outbox,
		audit:       params.Audit,
		signer:      params.Signer,
		bucket:      params.Bucket,
		imagePrefix: prefix,
		uploadTTL:   ttl,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// Create inserts a product. New products are active unless told otherwise.
func (s *service) Create(ctx context.Context, actorID uuid.UUID, input CreateProductInput) (*ProductDTO, error) {
	if err := validatePrices(&input.UnitPrice, input.LotPrice); err != nil {
		return nil, err
	}
	status := enums.ProductStatusActivo
	if input.Status != nil {
		status = *input.Status
	}
	product := &models.Product{
		Name:                 strings.TrimSpace(input.Name),
		Brands:               pq.StringArray(cleanBrands(input.Brands)),
		TechnicalDescription: trimOptional(input.TechnicalDescription),
		StockCurrent:         input.StockCurrent,
		StockMinimum:         input.StockMinimum,
		UnitPrice:            input.UnitPrice,
		LotPrice:             input.LotPrice,
		Category:             trimOptional(input.Category),
		Status:               status,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
	}
	s.audit.Log(ctx, "alta_producto", auditModule, map[string]any{"product_id": product.ID.String(), "name": product.Name}, &actorID)
	return NewProductDTO(product), nil
}

// Update applies the provided fields. Stock levels change through AdjustStock only.
func (s *service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	if err := validatePrices(input.UnitPrice, input.LotPrice); err != nil {
		return nil, err
	}
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	applyUpdateToProduct(product, input)
	if err := s.repo.Update(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product")
	}
	s.audit.Log(ctx, "edicion_producto", auditModule, map[string]any{"product_id": id.String()}, &actorID)
	return NewProductDTO(product), nil
}

// Deactivate hides the product from the catalog. Products are never hard-deleted.
func (s *service) Deactivate(ctx context.Context, actorID, id uuid.UUID) (*ProductDTO, error) {
	inactive := enums.ProductStatusInactivo
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.Status == inactive {
		return NewProductDTO(product), nil
	}
	product.Status = inactive
	if err := s.repo.Update(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: deactivate product")
	}
	s.audit.Log(ctx, "baja_producto", auditModule, map[string]any{"product_id": id.String()}, &actorID)
	return NewProductDTO(product), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewProductDTO(product), nil
}

// GetActive hides inactive products from public callers.
func (s *service) GetActive(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.Status != enums.ProductStatusActivo {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return NewProductDTO(product), nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*types.Page[ProductDTO], error) {
	page := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return &types.Page[ProductDTO]{
		Items:  newProductDTOs(rows),
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

const maxStockAdjustment = 1_000_000

// AdjustStock applies op under a row lock. Crossing into low stock emits
// product_low_stock in the same transaction.
func (s *service) AdjustStock(ctx context.Context, actorID, id uuid.UUID, input AdjustStockInput) (*ProductDTO, error) {
	if !input.Operation.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid stock operation").
			WithDetails(map[string]string{"operation": "must be one of sumar restar establecer"})
	}
	if input.Quantity < 0 || input.Quantity > maxStockAdjustment {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity out of range").
			WithDetails(map[string]string{"quantity": "must be between 0 and 1000000"})
	}

	var (
		result   *models.Product
		previous int
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.stockTx(tx)
		product, err := store.FindByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: lock product")
		}
		wasLow := product.IsLowStock()
		previous = product.StockCurrent

		next, err := input.Operation.Apply(product.StockCurrent, input.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stock operation")
		}
		if err := store.UpdateStock(ctx, id, next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update stock")
		}
		product.StockCurrent = next

		if !wasLow && product.IsLowStock() && product.Status == enums.ProductStatusActivo {
			if err := s.outbox.Emit(ctx, tx, LowStockEvent(product, payloads.LowStockSourceAdjustment, &actorID)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit low stock event")
			}
		}
		result = product
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust stock")
	}

	s.audit.Log(ctx, "ajuste_stock", auditModule, map[string]any{
		"product_id": id.String(),
		"operation":  string(input.Operation),
		"quantity":   input.Quantity,
		"previous":   previous,
		"current":    result.StockCurrent,
	}, &actorID)
	return NewProductDTO(result), nil
}

// LowStockEvent builds the outbox event announcing product fell below its minimum.
func LowStockEvent(product *models.Product, source string, actorID *uuid.UUID) outbox.DomainEvent {
	event := outbox.DomainEvent{
		EventType:     enums.EventProductLowStock,
		AggregateType: enums.AggregateProduct,
		AggregateID:   product.ID,
		Data: payloads.ProductLowStockEvent{
			ProductID:    product.ID,
			Name:         product.Name,
			Category:     product.Category,
			StockCurrent: product.StockCurrent,
			StockMinimum: product.StockMinimum,
			Source:       source,
		},
	}
	if actorID != nil {
		event.Actor = &outbox.ActorRef{UserID: *actorID}
	}
	return event
}

func (s *service) LowStock(ctx context.Context) ([]ProductDTO, error) {
	rows, err := s.repo.LowStock(ctx, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock")
	}
	return newProductDTOs(rows), nil
}

func (s *service) Categories(ctx context.Context, activeOnly bool) ([]string, error) {
	out, err := s.repo.Categories(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "product stats")
	}
	return stats, nil
}

// ImageUploadURL signs a PUT target under <prefix>/<id>-<unix>.<ext>.
func (s *service) ImageUploadURL(ctx context.Context, id uuid.UUID, input ImageUploadInput) (*ImageUpload, error) {
	if s.signer == nil || s.bucket == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "image storage is not configured")
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(input.Filename)))
	expected, ok := allowedImageExtensions[ext]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported image type").
			WithDetails(map[string]string{"filename": "must end in .jpg, .jpeg, .png, .webp or .gif"})
	}
	contentType := strings.ToLower(strings.TrimSpace(input.ContentType))
	if contentType != expected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content type does not match the file extension").
			WithDetails(map[string]string{"content_type": "must be " + expected})
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	object := fmt.Sprintf("%s/%s-%d%s", s.imagePrefix, id, now.Unix(), ext)
	uploadURL, err := s.signer.SignedURL(s.bucket, object, contentType, s.uploadTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign upload url")
	}
	return &ImageUpload{
		UploadURL:   uploadURL,
		PublicURL:   s.signer.PublicURL(s.bucket, object),
		ObjectName:  object,
		ContentType: contentType,
		ExpiresAt:   now.Add(s.uploadTTL),
	}, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func applyUpdateToProduct(product *models.Product, input UpdateProductInput) {
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Brands != nil {
		product.Brands = pq.StringArray(cleanBrands(*input.Brands))
	}
	if input.TechnicalDescription != nil {
		product.TechnicalDescription = trimOptional(input.TechnicalDescription)
	}
	if input.StockMinimum != nil {
		product.StockMinimum = *input.StockMinimum
	}
	if input.UnitPrice != nil {
		product.UnitPrice = *input.UnitPrice
	}
	if input.LotPrice != nil {
		product.LotPrice = input.LotPrice
	}
	if input.Category != nil {
		product.Category = trimOptional(input.Category)
	}
	if input.Status != nil {
		product.Status = *input.Status
	}
	if input.ImageURL != nil {
		product.ImageURL = trimOptional(input.ImageURL)
	}
}

func validatePrices(unit, lot *decimal.Decimal) error {
	if unit != nil && unit.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit_price must not be negative").
			WithDetails(map[string]string{"unit_price": "must be greater than or equal to 0"})
	}
	if lot != nil && lot.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "lot_price must not be negative").
			WithDetails(map[string]string{"lot_price": "must be greater than or equal to 0"})
	}
	return nil
}

func cleanBrands(brands []string) []string {
	out := make([]string, 0, len(brands))
	seen := make(map[string]bool, len(brands))
	for _, brand := range brands {
		brand = strings.TrimSpace(brand)
		key := strings.ToLower(brand)
		if brand == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, brand)
	}
	return out
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
