package cart

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/medfarma-backend/api/responses"
	"github.com/angelmondragon/medfarma-backend/api/validators"
	cartsvc "github.com/angelmondragon/medfarma-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

// Cookie identifies the browser cart. The value is an opaque id issued by
// cartsvc.NewID; the snapshot itself lives server side.
type Cookie struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

func (c Cookie) read(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	value := strings.TrimSpace(cookie.Value)
	if !cartsvc.ValidID(value) {
		return ""
	}
	return value
}

// ensure returns the request's cart id, issuing a new one (and its cookie)
// when the browser has none.
func (c Cookie) ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if id := c.read(r); id != "" {
		return id, nil
	}
	id, err := cartsvc.NewID()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue cart id")
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = cartsvc.DefaultTTL
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// CartFetch returns the current cart. A browser without a cart cookie gets
// an empty cart and no cookie.
func CartFetch(svc cartsvc.Service, cookie Cookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		id := cookie.read(r)
		if id == "" {
			responses.WriteSuccess(w, cartsvc.Empty())
			return
		}

		view, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartAddItem adds one unit of an active product.
func CartAddItem(svc cartsvc.Service, cookie Cookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var req cartsvc.AddItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := cookie.ensure(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.AddProduct(r.Context(), id, req.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartSetQuantity sets an item's quantity; zero removes it.
func CartSetQuantity(svc cartsvc.Service, cookie Cookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		itemID, err := validators.ParseURLParamUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cartsvc.SetQuantityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := cookie.ensure(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SetQuantity(r.Context(), id, itemID, req.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

func CartRemoveItem(svc cartsvc.Service, cookie Cookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		itemID, err := validators.ParseURLParamUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := cookie.ensure(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Remove(r.Context(), id, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

func CartClear(svc cartsvc.Service, cookie Cookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		id, err := cookie.ensure(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Clear(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartToggle flips the drawer open flag.
func CartToggle(svc cartsvc.Service, cookie Cookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		id, err := cookie.ensure(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Toggle(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}
