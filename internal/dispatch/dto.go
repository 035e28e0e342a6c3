package dispatch

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

type DispatchDTO struct {
	ID                uuid.UUID            `json:"id"`
	OrderID           uuid.UUID            `json:"order_id"`
	HandledBy         *uuid.UUID           `json:"handled_by,omitempty"`
	CarrierID         *uuid.UUID           `json:"carrier_id,omitempty"`
	TrackingNumber    *string              `json:"tracking_number,omitempty"`
	PickedUpAt        *time.Time           `json:"picked_up_at,omitempty"`
	EstimatedDelivery *time.Time           `json:"estimated_delivery,omitempty"`
	ReceivedBy        *string              `json:"received_by,omitempty"`
	ProofURL          *string              `json:"proof_url,omitempty"`
	Notes             *string              `json:"notes,omitempty"`
	Status            enums.DispatchStatus `json:"status"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func NewDispatchDTO(d *models.Dispatch) *DispatchDTO {
	return &DispatchDTO{
		ID:                d.ID,
		OrderID:           d.OrderID,
		HandledBy:         d.HandledBy,
		CarrierID:         d.CarrierID,
		TrackingNumber:    d.TrackingNumber,
		PickedUpAt:        d.PickedUpAt,
		EstimatedDelivery: d.EstimatedDelivery,
		ReceivedBy:        d.ReceivedBy,
		ProofURL:          d.ProofURL,
		Notes:             d.Notes,
		Status:            d.Status,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// ActiveDispatch is a board row: the dispatch joined with its order,
// customer and carrier.
type ActiveDispatch struct {
	ID                uuid.UUID            `json:"id"`
	OrderID           uuid.UUID            `json:"order_id"`
	OrderNumber       string               `json:"order_number"`
	OrderTotal        decimal.Decimal      `json:"order_total"`
	OrderStatus       enums.OrderStatus    `json:"order_status"`
	CustomerName      string               `json:"customer_name"`
	CustomerEmail     string               `json:"customer_email"`
	CustomerWhatsapp  *string              `json:"customer_whatsapp,omitempty"`
	CarrierID         *uuid.UUID           `json:"carrier_id,omitempty"`
	CarrierName       *string              `json:"carrier_name,omitempty"`
	TrackingNumber    *string              `json:"tracking_number,omitempty"`
	PickedUpAt        *time.Time           `json:"picked_up_at,omitempty"`
	EstimatedDelivery *time.Time           `json:"estimated_delivery,omitempty"`
	ReceivedBy        *string              `json:"received_by,omitempty"`
	ProofURL          *string              `json:"proof_url,omitempty"`
	Notes             *string              `json:"notes,omitempty"`
	Status            enums.DispatchStatus `json:"status"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// Metrics is the logistics dashboard header.
type Metrics struct {
	Preparing      int64 `json:"en_preparacion"`
	Ready          int64 `json:"listos_para_despacho"`
	InTransit      int64 `json:"en_ruta"`
	DeliveredToday int64 `json:"entregados_hoy"`
	Failed         int64 `json:"con_error"`
}

// UpdateInput changes a dispatch. Nil fields are left alone.
type UpdateInput struct {
	Status            *enums.DispatchStatus `json:"status,omitempty" validate:"omitempty,oneof=preparacion listo despachado entregado error"`
	CarrierID         *uuid.UUID            `json:"carrier_id,omitempty"`
	TrackingNumber    *string               `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
	EstimatedDelivery *time.Time            `json:"estimated_delivery,omitempty"`
	ReceivedBy        *string               `json:"received_by,omitempty" validate:"omitempty,max=200"`
	ProofURL          *string               `json:"proof_url,omitempty" validate:"omitempty,url,max=2048"`
	Notes             *string               `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type ProofUploadInput struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required,max=100"`
}

// ProofUpload is a signed PUT target for a delivery receipt.
type ProofUpload struct {
	UploadURL   string    `json:"upload_url"`
	PublicURL   string    `json:"public_url"`
	ObjectName  string    `json:"object_name"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type CarrierDTO struct {
	ID           uuid.UUID           `json:"id"`
	Name         string              `json:"name"`
	TaxID        *string             `json:"tax_id,omitempty"`
	Phone        *string             `json:"phone,omitempty"`
	Email        *string             `json:"email,omitempty"`
	VehicleModel *string             `json:"vehicle_model,omitempty"`
	VehiclePlate *string             `json:"vehicle_plate,omitempty"`
	Notes        *string             `json:"notes,omitempty"`
	Status       enums.PartnerStatus `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func NewCarrierDTO(c *models.Carrier) *CarrierDTO {
	return &CarrierDTO{
		ID:           c.ID,
		Name:         c.Name,
		TaxID:        c.TaxID,
		Phone:        c.Phone,
		Email:        c.Email,
		VehicleModel: c.VehicleModel,
		VehiclePlate: c.VehiclePlate,
		Notes:        c.Notes,
		Status:       c.Status,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// CarrierInput creates a carrier or, through its pointer twin, updates one.
type CarrierInput struct {
	Name         string               `json:"name" validate:"required,min=2,max=200"`
	TaxID        *string              `json:"tax_id,omitempty" validate:"omitempty,max=20"`
	Phone        *string              `json:"phone,omitempty" validate:"omitempty,max=40"`
	Email        *string              `json:"email,omitempty" validate:"omitempty,email,max=254"`
	VehicleModel *string              `json:"vehicle_model,omitempty" validate:"omitempty,max=100"`
	VehiclePlate *string              `json:"vehicle_plate,omitempty" validate:"omitempty,max=20"`
	Notes        *string              `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Status       *enums.PartnerStatus `json:"status,omitempty" validate:"omitempty,oneof=activo inactivo"`
}

type CarrierUpdateInput struct {
	Name         *string              `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	TaxID        *string              `json:"tax_id,omitempty" validate:"omitempty,max=20"`
	Phone        *string              `json:"phone,omitempty" validate:"omitempty,max=40"`
	Email        *string              `json:"email,omitempty" validate:"omitempty,email,max=254"`
	VehicleModel *string              `json:"vehicle_model,omitempty" validate:"omitempty,max=100"`
	VehiclePlate *string              `json:"vehicle_plate,omitempty" validate:"omitempty,max=20"`
	Notes        *string              `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Status       *enums.PartnerStatus `json:"status,omitempty" validate:"omitempty,oneof=activo inactivo"`
}
