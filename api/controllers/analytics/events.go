package analytics

import (
	"net/http"

	"github.com/angelmondragon/medfarma-backend/api/responses"
	"github.com/angelmondragon/medfarma-backend/api/validators"
	analyticssvc "github.com/angelmondragon/medfarma-backend/internal/analytics"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

// EventCounts reports back-office event counts over the trailing ?days=
// window. Range checks live in the service so the default applies when the
// parameter is absent.
func EventCounts(svc analyticssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "analytics not configured"))
			return
		}

		days, err := validators.ParseQueryInt(r, "days", 0, -1_000_000, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.EventCounts(r.Context(), days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, resp)
	}
}
