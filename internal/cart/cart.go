package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is one cart line. Quantity is always at least 1.
type Item struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Brand    *string         `json:"brand,omitempty"`
	Category *string         `json:"category,omitempty"`
}

// Cart is the snapshot the reducer operates on. Methods never mutate the
// receiver; they return the next state.
type Cart struct {
	Items  []Item `json:"items"`
	IsOpen bool   `json:"is_open"`
}

func (c Cart) clone() Cart {
	items := make([]Item, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items, IsOpen: c.IsOpen}
}

// Add merges by id incrementing quantity, or appends at quantity 1, and opens the cart.
func (c Cart) Add(item Item) Cart {
	next := c.clone()
	next.IsOpen = true
	for i := range next.Items {
		if next.Items[i].ID == item.ID {
			next.Items[i].Quantity++
			return next
		}
	}
	item.Quantity = 1
	next.Items = append(next.Items, item)
	return next
}

func (c Cart) Remove(id uuid.UUID) Cart {
	next := c.clone()
	items := next.Items[:0]
	for _, item := range next.Items {
		if item.ID != id {
			items = append(items, item)
		}
	}
	next.Items = items
	return next
}

// SetQuantity overwrites the quantity; n <= 0 removes the line. Unknown ids are ignored.
func (c Cart) SetQuantity(id uuid.UUID, n int) Cart {
	if n <= 0 {
		return c.Remove(id)
	}
	next := c.clone()
	for i := range next.Items {
		if next.Items[i].ID == id {
			next.Items[i].Quantity = n
			break
		}
	}
	return next
}

func (c Cart) Clear() Cart {
	return Cart{Items: []Item{}, IsOpen: c.IsOpen}
}

func (c Cart) Toggle() Cart {
	next := c.clone()
	next.IsOpen = !c.IsOpen
	return next
}

// Contains reports whether a line for id exists.
func (c Cart) Contains(id uuid.UUID) bool {
	for _, item := range c.Items {
		if item.ID == id {
			return true
		}
	}
	return false
}

// TotalItems is the sum of quantities.
func (c Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// TotalPrice is the sum of price times quantity.
func (c Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
