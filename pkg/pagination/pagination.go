package pagination

import (
	"gorm.io/gorm"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any list query can request.
	MaxLimit = 100
)

// Params holds offset pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Offset int
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize clamps the limit and floors the offset at zero.
func (p Params) Normalize() Params {
	p.Limit = NormalizeLimit(p.Limit)
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Apply adds LIMIT/OFFSET to a query using the normalized params.
func (p Params) Apply(q *gorm.DB) *gorm.DB {
	n := p.Normalize()
	return q.Limit(n.Limit).Offset(n.Offset)
}
