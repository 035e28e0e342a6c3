package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/medfarma-backend/api/middleware"
	"github.com/angelmondragon/medfarma-backend/api/responses"
	"github.com/angelmondragon/medfarma-backend/api/validators"
	"github.com/angelmondragon/medfarma-backend/internal/access"
	"github.com/angelmondragon/medfarma-backend/internal/identity"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

type capabilityResolver interface {
	Capabilities(ctx context.Context, user *users.ApplicationUser) (access.Capabilities, error)
}

// AuthLogin signs in with email and password. The access token is returned
// in the body and also set as the session cookie for the page routes.
func AuthLogin(svc identity.Service, cookie SessionCookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
			return
		}

		var req identity.SignInRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tokens, err := svc.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cookie.Set(w, tokens.AccessToken, tokens.ExpiresAt)
		responses.WriteSuccess(w, tokens)
	}
}

// AuthLogout revokes the current session. It succeeds for anonymous callers
// so clients can always clear local state.
func AuthLogout(svc identity.Service, cookie SessionCookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
			return
		}

		if token := validators.SessionToken(r, cookie.Name); token != "" {
			if err := svc.SignOut(r.Context(), token); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		cookie.Clear(w)
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// AuthRefresh rotates the refresh token bound to the presented access token.
func AuthRefresh(svc identity.Service, cookie SessionCookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
			return
		}

		accessToken := validators.SessionToken(r, cookie.Name)
		if accessToken == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var req identity.RefreshRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tokens, err := svc.Refresh(r.Context(), accessToken, req.RefreshToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cookie.Persist(w, tokens)
		responses.WriteSuccess(w, tokens)
	}
}

// AuthRegister creates a pending customer account.
func AuthRegister(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}

		var req users.RegisterRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.Register(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, user)
	}
}

// AuthPasswordResetRequest always answers 202 so the endpoint cannot be used
// to discover which emails exist.
func AuthPasswordResetRequest(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
			return
		}

		var req identity.PasswordResetRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "requested"})
	}
}

func AuthPasswordResetConfirm(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
			return
		}

		var req identity.PasswordResetConfirmRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "password_reset"})
	}
}

// AuthChangePassword changes the signed-in user's password and clears the
// must-change flag.
func AuthChangePassword(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req identity.ChangePasswordRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "password_changed"})
	}
}

type meResponse struct {
	User         *users.ApplicationUser `json:"user"`
	Portal       access.Portal          `json:"portal"`
	Landing      string                 `json:"landing"`
	Approved     bool                   `json:"approved"`
	Capabilities []string               `json:"capabilities"`
}

// AuthMe returns the signed-in user with their portal and effective
// capabilities, letting clients gate navigation without a second call.
func AuthMe(perms capabilityResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())
		if user == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		portal := access.PortalFor(user.Role)
		resp := meResponse{
			User:         user,
			Portal:       portal,
			Landing:      portal.LandingPath(),
			Approved:     user.IsApproved(),
			Capabilities: []string{},
		}

		if user.IsSuper() {
			resp.Capabilities = access.KnownCapabilities()
		} else if perms != nil && portal == access.PortalStaff {
			caps, err := perms.Capabilities(r.Context(), user)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			resp.Capabilities = caps.Codes()
		}

		responses.WriteSuccess(w, resp)
	}
}
