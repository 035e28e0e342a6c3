package cart

import (
	"net/http"

	"github.com/angelmondragon/medfarma-backend/api/middleware"
	"github.com/angelmondragon/medfarma-backend/api/responses"
	"github.com/angelmondragon/medfarma-backend/api/validators"
	"github.com/angelmondragon/medfarma-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

// CartCheckout turns the browser cart into an order for the signed-in
// customer. The body is optional.
func CartCheckout(svc checkout.Service, cookie Cookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		user := middleware.UserFromContext(r.Context())
		if user == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var input checkout.CheckoutInput
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &input); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		id := cookie.read(r)
		if id == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
			return
		}

		order, err := svc.Execute(r.Context(), checkout.Customer{ID: user.ID, Email: user.Email, FullName: user.FullName}, id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
