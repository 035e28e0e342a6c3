package controllers

import (
	"net/http"

	"github.com/angelmondragon/medfarma-backend/api/responses"
	"github.com/angelmondragon/medfarma-backend/api/validators"
	"github.com/angelmondragon/medfarma-backend/internal/audit"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

// AdminAuditLog lists audit entries newest first.
func AdminAuditLog(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		filter := audit.Filter{Module: validators.SanitizeString(r.URL.Query().Get("module"), 50)}

		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.UserID = userID

		if filter.From, err = validators.ParseQueryTime(r, "from"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.To, err = validators.ParseQueryTime(r, "to"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Limit, err = validators.ParseQueryInt(r, "limit", audit.DefaultLimit, 1, audit.MaxLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Offset, err = validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, entries)
	}
}
