package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/medfarma-backend/api/responses"
	"github.com/angelmondragon/medfarma-backend/internal/access"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

type capabilityResolver interface {
	Capabilities(ctx context.Context, user *users.ApplicationUser) (access.Capabilities, error)
}

// RequireCapability rejects JSON requests whose user lacks code. It must run
// after a guard has placed the user on the context.
func RequireCapability(resolver capabilityResolver, code string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, caps, err := loadCapabilities(r.Context(), resolver)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !caps.Has(code) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "missing capability").
					WithDetails(map[string]string{"capability": code}))
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapabilityPage is the page variant: a missing capability sends the
// user back to the staff dashboard.
func RequireCapabilityPage(resolver capabilityResolver, code string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, caps, err := loadCapabilities(r.Context(), resolver)
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "portal.capabilities_failed", err)
				}
				http.Error(w, "servicio no disponible", http.StatusServiceUnavailable)
				return
			}
			if !caps.Has(code) {
				if logg != nil {
					logg.Info(logg.WithField(ctx, "capability", code), "portal.capability_denied")
				}
				http.Redirect(w, r, access.StaffLandingPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loadCapabilities(ctx context.Context, resolver capabilityResolver) (context.Context, access.Capabilities, error) {
	if caps, ok := CapabilitiesFromContext(ctx); ok {
		return ctx, caps, nil
	}
	user := UserFromContext(ctx)
	if user == nil {
		return ctx, access.Capabilities{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if user.IsSuper() {
		caps := access.SuperCapabilities()
		return withCapabilities(ctx, caps), caps, nil
	}
	if resolver == nil {
		return ctx, access.Capabilities{}, pkgerrors.New(pkgerrors.CodeInternal, "capability resolver unavailable")
	}
	caps, err := resolver.Capabilities(ctx, user)
	if err != nil {
		return ctx, access.Capabilities{}, err
	}
	return withCapabilities(ctx, caps), caps, nil
}
