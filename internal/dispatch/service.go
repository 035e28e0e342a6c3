package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/internal/orders"
	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
)

const (
	auditModule = "despacho"

	// DefaultInvoiceWindow is how long billing has to invoice a delivered order.
	DefaultInvoiceWindow = 2 * time.Hour
)

var allowedProofExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// Service runs the logistics board and the carrier directory.
type Service interface {
	Metrics(ctx context.Context) (*Metrics, error)
	Active(ctx context.Context) ([]ActiveDispatch, error)
	Get(ctx context.Context, id uuid.UUID) (*DispatchDTO, error)
	Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*DispatchDTO, error)
	ProofUploadURL(ctx context.Context, id uuid.UUID, input ProofUploadInput) (*ProofUpload, error)
	Carriers(ctx context.Context, activeOnly bool) ([]CarrierDTO, error)
	CreateCarrier(ctx context.Context, actorID uuid.UUID, input CarrierInput) (*CarrierDTO, error)
	UpdateCarrier(ctx context.Context, actorID, id uuid.UUID, input CarrierUpdateInput) (*CarrierDTO, error)
}

type dispatchStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Dispatch, error)
	Active(ctx context.Context, since time.Time) ([]ActiveDispatch, error)
	Metrics(ctx context.Context, dayStart time.Time) (*Metrics, error)
	Carriers(ctx context.Context, activeOnly bool) ([]models.Carrier, error)
	FindCarrier(ctx context.Context, id uuid.UUID) (*models.Carrier, error)
	CreateCarrier(ctx context.Context, c *models.Carrier) error
	UpdateCarrier(ctx context.Context, c *models.Carrier) error
}

// dispatchLocker is the transactional slice used by Update.
type dispatchLocker interface {
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispatch, error)
	Update(ctx context.Context, d *models.Dispatch) error
	FindCarrier(ctx context.Context, id uuid.UUID) (*models.Carrier, error)
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

type ServiceParams struct {
	Repo dispatchStore
	// DispatchTx defaults to Repo.WithTx when Repo is a *Repository.
	DispatchTx    func(tx *gorm.DB) dispatchLocker
	OrdersTx      func(tx *gorm.DB) orders.Mover
	Tx            db.TxRunner
	Outbox        outboxEmitter
	Audit         auditLogger
	Signer        urlSigner
	Bucket        string
	ProofPrefix   string
	UploadTTL     time.Duration
	InvoiceWindow time.Duration
	// Location decides where "today" starts for the delivered counter.
	Location *time.Location
	Logger   *logger.Logger
}

type service struct {
	repo          dispatchStore
	dispatchTx    func(tx *gorm.DB) dispatchLocker
	ordersTx      func(tx *gorm.DB) orders.Mover
	tx            db.TxRunner
	outbox        outboxEmitter
	audit         auditLogger
	signer        urlSigner
	bucket        string
	proofPrefix   string
	uploadTTL     time.Duration
	invoiceWindow time.Duration
	loc           *time.Location
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("dispatch repository required")
	}
	if params.OrdersTx == nil {
		return nil, fmt.Errorf("order transaction binder required")
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
	dispatchTx := params.DispatchTx
	if dispatchTx == nil {
		repo, ok := params.Repo.(*Repository)
		if !ok {
			return nil, fmt.Errorf("dispatch transaction binder required")
		}
		dispatchTx = func(tx *gorm.DB) dispatchLocker { return repo.WithTx(tx) }
	}
	prefix := strings.Trim(params.ProofPrefix, "/")
	if prefix == "" {
		prefix = "comprobantes_despacho"
	}
	ttl := params.UploadTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	window := params.InvoiceWindow
	if window <= 0 {
		window = DefaultInvoiceWindow
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		repo:          params.Repo,
		dispatchTx:    dispatchTx,
		ordersTx:      params.OrdersTx,
		tx:            params.Tx,
		outbox:        params.Outbox,
		audit:         params.Audit,
		signer:        params.Signer,
		bucket:        params.Bucket,
		proofPrefix:   prefix,
		uploadTTL:     ttl,
		invoiceWindow: window,
		loc:           loc,
		logg:          params.Logger,
		now:           time.Now,
	}, nil
}

func (s *service) dayStart() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

func (s *service) Metrics(ctx context.Context) (*Metrics, error) {
	m, err := s.repo.Metrics(ctx, s.dayStart())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispatch metrics")
	}
	return m, nil
}

func (s *service) Active(ctx context.Context) ([]ActiveDispatch, error) {
	rows, err := s.repo.Active(ctx, s.dayStart())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dispatches")
	}
	if rows == nil {
		rows = []ActiveDispatch{}
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*DispatchDTO, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err, "dispatch")
	}
	return NewDispatchDTO(d), nil
}

// Update applies the board change. A status change moves the order along:
// despachado stamps the pickup, entregado starts the invoicing window and
// is final.
func (s *service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*DispatchDTO, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispatch status").
			WithDetails(map[string]string{"status": "must be one of preparacion listo despachado entregado error"})
	}

	var (
		result   *models.Dispatch
		previous enums.DispatchStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.dispatchTx(tx)
		d, err := store.FindByIDForUpdate(ctx, id)
		if err != nil {
			return loadError(err, "dispatch")
		}
		previous = d.Status
		if d.Status == enums.DispatchEntregado {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispatch already delivered")
		}

		if input.CarrierID != nil {
			carrier, err := store.FindCarrier(ctx, *input.CarrierID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeValidation, "unknown carrier").
						WithDetails(map[string]string{"carrier_id": "does not exist"})
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load carrier")
			}
			if carrier.Status != enums.PartnerActivo {
				return pkgerrors.New(pkgerrors.CodeValidation, "carrier is inactive").
					WithDetails(map[string]string{"carrier_id": "must be an active carrier"})
			}
			d.CarrierID = &carrier.ID
		}
		applyFields(d, input)

		now := s.now().UTC()
		if input.Status != nil && *input.Status != d.Status {
			if err := s.moveOrder(ctx, tx, d.OrderID, *input.Status, actorID, now); err != nil {
				return err
			}
			d.Status = *input.Status
			d.HandledBy = &actorID
			if d.Status == enums.DispatchDespachado && d.PickedUpAt == nil {
				d.PickedUpAt = &now
			}
		}
		if err := store.Update(ctx, d); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update dispatch")
		}
		result = d
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update dispatch")
	}

	details := map[string]any{"dispatch_id": id.String(), "order_id": result.OrderID.String()}
	action := "actualizacion_despacho"
	if result.Status != previous {
		action = "estado_despacho"
		details["previous"] = string(previous)
		details["current"] = string(result.Status)
	}
	s.audit.Log(ctx, action, auditModule, details, &actorID)
	return NewDispatchDTO(result), nil
}

// moveOrder carries the dispatch status onto the order and emits the
// customer notification when the order status changes.
func (s *service) moveOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, next enums.DispatchStatus, actorID uuid.UUID, now time.Time) error {
	store := s.ordersTx(tx)
	order, err := store.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return loadError(err, "order")
	}
	if order.Status.Closed() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is closed").
			WithDetails(map[string]string{"order_status": string(order.Status)})
	}
	target, ok := next.OrderStatus()
	if !ok || target == order.Status {
		return nil
	}
	previous := order.Status
	order.Status = target
	if target == enums.OrderStatusEntregado {
		deadline := now.Add(s.invoiceWindow)
		order.DeliveredAt = &now
		order.InvoiceDeadline = &deadline
	}
	if err := store.Update(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update order status")
	}
	email, err := store.CustomerEmail(ctx, order.CustomerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer email")
	}
	if err := s.outbox.Emit(ctx, tx, orders.StatusEvent(order, previous, email, &actorID, now)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
	}
	return nil
}

func applyFields(d *models.Dispatch, input UpdateInput) {
	if input.TrackingNumber != nil {
		d.TrackingNumber = trimOptional(input.TrackingNumber)
	}
	if input.EstimatedDelivery != nil {
		at := input.EstimatedDelivery.UTC()
		d.EstimatedDelivery = &at
	}
	if input.ReceivedBy != nil {
		d.ReceivedBy = trimOptional(input.ReceivedBy)
	}
	if input.ProofURL != nil {
		d.ProofURL = trimOptional(input.ProofURL)
	}
	if input.Notes != nil {
		d.Notes = trimOptional(input.Notes)
	}
}

// ProofUploadURL signs a PUT target under <prefix>/<id>_<unix>.<ext>. The
// client stores the public URL on the dispatch with Update.
func (s *service) ProofUploadURL(ctx context.Context, id uuid.UUID, input ProofUploadInput) (*ProofUpload, error) {
	if s.signer == nil || s.bucket == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "document storage is not configured")
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(input.Filename)))
	expected, ok := allowedProofExtensions[ext]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported proof type").
			WithDetails(map[string]string{"filename": "must end in .jpg, .jpeg, .png, .webp or .pdf"})
	}
	contentType := strings.ToLower(strings.TrimSpace(input.ContentType))
	if contentType != expected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content type does not match the file extension").
			WithDetails(map[string]string{"content_type": "must be " + expected})
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	object := fmt.Sprintf("%s/%s_%d%s", s.proofPrefix, id, now.UnixMilli(), ext)
	uploadURL, err := s.signer.SignedURL(s.bucket, object, contentType, s.uploadTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign upload url")
	}
	return &ProofUpload{
		UploadURL:   uploadURL,
		PublicURL:   s.signer.PublicURL(s.bucket, object),
		ObjectName:  object,
		ContentType: contentType,
		ExpiresAt:   now.Add(s.uploadTTL),
	}, nil
}

func (s *service) Carriers(ctx context.Context, activeOnly bool) ([]CarrierDTO, error) {
	rows, err := s.repo.Carriers(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list carriers")
	}
	out := make([]CarrierDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewCarrierDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) CreateCarrier(ctx context.Context, actorID uuid.UUID, input CarrierInput) (*CarrierDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier name required").
			WithDetails(map[string]string{"name": "required"})
	}
	status := enums.PartnerActivo
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid carrier status")
		}
		status = *input.Status
	}
	carrier := &models.Carrier{
		Name:         name,
		TaxID:        trimOptional(input.TaxID),
		Phone:        trimOptional(input.Phone),
		Email:        lowerOptional(input.Email),
		VehicleModel: trimOptional(input.VehicleModel),
		VehiclePlate: upperOptional(input.VehiclePlate),
		Notes:        trimOptional(input.Notes),
		Status:       status,
	}
	if err := s.repo.CreateCarrier(ctx, carrier); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: create carrier")
	}
	s.audit.Log(ctx, "alta_transportista", auditModule, map[string]any{"carrier_id": carrier.ID.String(), "name": carrier.Name}, &actorID)
	return NewCarrierDTO(carrier), nil
}

func (s *service) UpdateCarrier(ctx context.Context, actorID, id uuid.UUID, input CarrierUpdateInput) (*CarrierDTO, error) {
	carrier, err := s.repo.FindCarrier(ctx, id)
	if err != nil {
		return nil, loadError(err, "carrier")
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier name required").
				WithDetails(map[string]string{"name": "required"})
		}
		carrier.Name = name
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid carrier status")
		}
		carrier.Status = *input.Status
	}
	if input.TaxID != nil {
		carrier.TaxID = trimOptional(input.TaxID)
	}
	if input.Phone != nil {
		carrier.Phone = trimOptional(input.Phone)
	}
	if input.Email != nil {
		carrier.Email = lowerOptional(input.Email)
	}
	if input.VehicleModel != nil {
		carrier.VehicleModel = trimOptional(input.VehicleModel)
	}
	if input.VehiclePlate != nil {
		carrier.VehiclePlate = upperOptional(input.VehiclePlate)
	}
	if input.Notes != nil {
		carrier.Notes = trimOptional(input.Notes)
	}
	if err := s.repo.UpdateCarrier(ctx, carrier); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update carrier")
	}
	s.audit.Log(ctx, "edicion_transportista", auditModule, map[string]any{"carrier_id": id.String()}, &actorID)
	return NewCarrierDTO(carrier), nil
}

func loadError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
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

func upperOptional(value *string) *string {
	v := trimOptional(value)
	if v == nil {
		return nil
	}
	upper := strings.ToUpper(*v)
	return &upper
}
