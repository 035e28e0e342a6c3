package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	product "github.com/angelmondragon/medfarma-backend/internal/products"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
)

// View is the cart snapshot with derived totals.
type View struct {
	Items      []Item          `json:"items"`
	IsOpen     bool            `json:"is_open"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Empty is the view of a cart that was never created.
func Empty() *View {
	return newView(Cart{})
}

func newView(c Cart) *View {
	items := c.Items
	if items == nil {
		items = []Item{}
	}
	return &View{
		Items:      items,
		IsOpen:     c.IsOpen,
		TotalItems: c.TotalItems(),
		TotalPrice: c.TotalPrice(),
	}
}

type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}

type SetQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0,lte=10000"`
}

// Service exposes cart operations keyed by the opaque cart cookie.
type Service interface {
	Get(ctx context.Context, cartID string) (*View, error)
	AddProduct(ctx context.Context, cartID string, productID uuid.UUID) (*View, error)
	SetQuantity(ctx context.Context, cartID string, itemID uuid.UUID, quantity int) (*View, error)
	Remove(ctx context.Context, cartID string, itemID uuid.UUID) (*View, error)
	Clear(ctx context.Context, cartID string) (*View, error)
	Toggle(ctx context.Context, cartID string) (*View, error)
}

type snapshotStore interface {
	Load(ctx context.Context, cartID string) (Cart, error)
	Update(ctx context.Context, cartID string, reduce func(Cart) (Cart, error)) (Cart, error)
}

type catalog interface {
	GetActive(ctx context.Context, id uuid.UUID) (*product.ProductDTO, error)
}

type service struct {
	store   snapshotStore
	catalog catalog
}

// NewService builds a cart service backed by the provided stack.
func NewService(store snapshotStore, catalog catalog) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	return &service{store: store, catalog: catalog}, nil
}

func (s *service) Get(ctx context.Context, cartID string) (*View, error) {
	current, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return newView(current), nil
}

// AddProduct prices the line from the catalog so callers cannot choose prices.
func (s *service) AddProduct(ctx context.Context, cartID string, productID uuid.UUID) (*View, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	current, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	var item Item
	if current.Contains(productID) {
		item = Item{ID: productID}
	} else {
		entry, err := s.catalog.GetActive(ctx, productID)
		if err != nil {
			return nil, err
		}
		item = Item{
			ID:       entry.ID,
			Name:     entry.Name,
			Price:    entry.UnitPrice,
			Category: entry.Category,
		}
		if len(entry.Brands) > 0 {
			brand := entry.Brands[0]
			item.Brand = &brand
		}
	}
	return s.apply(ctx, cartID, func(c Cart) Cart {
		// The line may have been removed since the lookup above.
		if !c.Contains(productID) && item.Name == "" {
			return c
		}
		return c.Add(item)
	})
}

func (s *service) SetQuantity(ctx context.Context, cartID string, itemID uuid.UUID, quantity int) (*View, error) {
	return s.apply(ctx, cartID, func(c Cart) Cart { return c.SetQuantity(itemID, quantity) })
}

func (s *service) Remove(ctx context.Context, cartID string, itemID uuid.UUID) (*View, error) {
	return s.apply(ctx, cartID, func(c Cart) Cart { return c.Remove(itemID) })
}

func (s *service) Clear(ctx context.Context, cartID string) (*View, error) {
	return s.apply(ctx, cartID, Cart.Clear)
}

func (s *service) Toggle(ctx context.Context, cartID string) (*View, error) {
	return s.apply(ctx, cartID, Cart.Toggle)
}

func (s *service) apply(ctx context.Context, cartID string, reduce func(Cart) Cart) (*View, error) {
	if !ValidID(cartID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart id")
	}
	next, err := s.store.Update(ctx, cartID, func(c Cart) (Cart, error) { return reduce(c), nil })
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart")
	}
	return newView(next), nil
}

func (s *service) load(ctx context.Context, cartID string) (Cart, error) {
	if !ValidID(cartID) {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart id")
	}
	current, err := s.store.Load(ctx, cartID)
	if err != nil {
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return current, nil
}
