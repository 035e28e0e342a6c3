package product

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// ListFilter describes the supported filter knobs for the product listing.
type ListFilter struct {
	Search   string
	Category string
	Status   *enums.ProductStatus
	LowStock bool
	Limit    int
	Offset   int
}

// ContextScope narrows the active products handed to the assistant.
// ProductID wins over Category; both empty means the whole catalog.
type ContextScope struct {
	ProductID *uuid.UUID
	Category  string
}
