package enums

import (
	"fmt"
	"math"
	"strings"
)

// ProductStatus is the catalog visibility flag on products.status.
type ProductStatus string

const (
	ProductStatusActivo   ProductStatus = "activo"
	ProductStatusInactivo ProductStatus = "inactivo"
)

var validProductStatuses = []ProductStatus{
	ProductStatusActivo,
	ProductStatusInactivo,
}

// String implements fmt.Stringer.
func (s ProductStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ProductStatus.
func (s ProductStatus) IsValid() bool {
	for _, candidate := range validProductStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseProductStatus converts raw input into a ProductStatus.
func ParseProductStatus(value string) (ProductStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validProductStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product status %q", value)
}

// StockOperation names how a stock adjustment is applied.
type StockOperation string

const (
	StockSumar      StockOperation = "sumar"
	StockRestar     StockOperation = "restar"
	StockEstablecer StockOperation = "establecer"
)

var validStockOperations = []StockOperation{
	StockSumar,
	StockRestar,
	StockEstablecer,
}

func (o StockOperation) IsValid() bool {
	for _, candidate := range validStockOperations {
		if candidate == o {
			return true
		}
	}
	return false
}

// MaxStock is the largest quantity the integer stock columns hold.
const MaxStock = math.MaxInt32

// Apply returns the resulting stock for current after the operation.
// Subtraction never drops below zero; results above MaxStock are rejected.
func (o StockOperation) Apply(current, qty int) (int, error) {
	if qty < 0 || qty > MaxStock {
		return current, fmt.Errorf("stock quantity %d out of range", qty)
	}
	switch o {
	case StockSumar:
		if current > MaxStock-qty {
			return current, fmt.Errorf("stock would exceed %d", MaxStock)
		}
		return current + qty, nil
	case StockRestar:
		if next := current - qty; next > 0 {
			return next, nil
		}
		return 0, nil
	case StockEstablecer:
		return qty, nil
	default:
		return current, fmt.Errorf("invalid stock operation %q", o)
	}
}
