package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/medfarma-backend/api/middleware"
	"github.com/angelmondragon/medfarma-backend/api/responses"
	"github.com/angelmondragon/medfarma-backend/api/validators"
	"github.com/angelmondragon/medfarma-backend/internal/sales"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

func salesViewer(r *http.Request) (sales.Viewer, error) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		return sales.Viewer{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return sales.ViewerFrom(user), nil
}

func AdminSalesMetrics(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		viewer, err := salesViewer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sellerID, err := validators.ParseQueryUUID(r, "seller_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		metrics, err := svc.Metrics(r.Context(), viewer, sellerID, from)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, metrics)
	}
}

// AdminSalesOrders is the sales board listing, scoped to the seller when
// the viewer is one.
func AdminSalesOrders(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		viewer, err := salesViewer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := parseOrderFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.Orders(r.Context(), viewer, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

func AdminListCommissions(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		viewer, err := salesViewer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filter sales.CommissionFilter
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseCommissionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}
		if filter.SellerID, err = validators.ParseQueryUUID(r, "seller_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Limit, filter.Offset, err = parsePage(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.Commissions(r.Context(), viewer, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

func AdminAssignSeller(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseURLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input sales.AssignSellerInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.AssignSeller(r.Context(), actor, id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

func AdminSettleCommission(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseURLParamUUID(r, "commissionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input sales.SettleInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SettleCommission(r.Context(), actor, id, input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"id": id, "status": input.Status})
	}
}
