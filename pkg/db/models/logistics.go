package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Dispatch follows one order from the warehouse to the customer.
type Dispatch struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	HandledBy         *uuid.UUID           `gorm:"column:handled_by;type:uuid"`
	CarrierID         *uuid.UUID           `gorm:"column:carrier_id;type:uuid"`
	TrackingNumber    *string              `gorm:"column:tracking_number"`
	PickedUpAt        *time.Time           `gorm:"column:picked_up_at"`
	EstimatedDelivery *time.Time           `gorm:"column:estimated_delivery"`
	ReceivedBy        *string              `gorm:"column:received_by"`
	ProofURL          *string              `gorm:"column:proof_url"`
	Notes             *string              `gorm:"column:notes"`
	Status            enums.DispatchStatus `gorm:"column:status;type:dispatch_status;not null;default:preparacion"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// Carrier is a transport company or driver used for dispatches.
type Carrier struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string              `gorm:"column:name;not null"`
	TaxID        *string             `gorm:"column:tax_id"`
	Phone        *string             `gorm:"column:phone"`
	Email        *string             `gorm:"column:email"`
	VehicleModel *string             `gorm:"column:vehicle_model"`
	VehiclePlate *string             `gorm:"column:vehicle_plate"`
	Notes        *string             `gorm:"column:notes"`
	Status       enums.PartnerStatus `gorm:"column:status;type:partner_status;not null;default:activo"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
