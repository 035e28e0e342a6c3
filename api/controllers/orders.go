package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/api/responses"
	"github.com/angelmondragon/medfarma-backend/api/validators"
	"github.com/angelmondragon/medfarma-backend/internal/orders"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

func parseOrderFilter(r *http.Request) (orders.ListFilter, error) {
	query := r.URL.Query()
	filter := orders.ListFilter{
		Search: validators.SanitizeString(query.Get("search"), 100),
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status filter")
		}
		filter.PaymentStatus = &status
	}
	filter.AuditAlert = strings.EqualFold(strings.TrimSpace(query.Get("audit_alert")), "true")

	var err error
	if filter.CustomerID, err = validators.ParseQueryUUID(r, "customer_id"); err != nil {
		return filter, err
	}
	if filter.SellerID, err = validators.ParseQueryUUID(r, "seller_id"); err != nil {
		return filter, err
	}
	if filter.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return filter, err
	}
	if filter.Limit, filter.Offset, err = parsePage(r); err != nil {
		return filter, err
	}
	return filter, nil
}

func parsePage(r *http.Request) (int, int, error) {
	limit, err := validators.ParseQueryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		return 0, 0, err
	}
	offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// CustomerOrders lists the signed-in customer's own orders.
func CustomerOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		customer, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter, err := parseOrderFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.CustomerID = &customer
		filter.SellerID = nil
		filter.AuditAlert = false

		page, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

func CustomerOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		customer, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := validators.ParseURLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetForCustomer(r.Context(), customer, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

func AdminListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		filter, err := parseOrderFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

func AdminGetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		id, err := validators.ParseURLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

func AdminUpdateOrderPayment(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderAction(svc, logg, func(r *http.Request, actor, id uuid.UUID) (*orders.OrderDTO, error) {
		var input orders.PaymentInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return nil, err
		}
		return svc.UpdatePayment(r.Context(), actor, id, input)
	})
}

func AdminCancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderAction(svc, logg, func(r *http.Request, actor, id uuid.UUID) (*orders.OrderDTO, error) {
		return svc.Cancel(r.Context(), actor, id)
	})
}

func orderAction(svc orders.Service, logg *logger.Logger, run func(r *http.Request, actor, id uuid.UUID) (*orders.OrderDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
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

		order, err := run(r, actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}
