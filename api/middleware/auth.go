package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/medfarma-backend/api/responses"
	"github.com/angelmondragon/medfarma-backend/api/validators"
	"github.com/angelmondragon/medfarma-backend/internal/access"
	"github.com/angelmondragon/medfarma-backend/internal/identity"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

type userResolver interface {
	Resolve(ctx context.Context, token string) *users.ApplicationUser
}

type sessionRefresher interface {
	Refresh(ctx context.Context, accessToken, refreshToken string) (*identity.Tokens, error)
}

type authOptions struct {
	refresher     sessionRefresher
	refreshCookie string
	persist       func(http.ResponseWriter, *identity.Tokens)
}

// AuthOption tunes Authenticate.
type AuthOption func(*authOptions)

// WithSessionRefresh lets a page session outlive its access token: when the
// access cookie no longer resolves and the refresh cookie is present, the
// pair is rotated and persist writes the new cookies.
func WithSessionRefresh(refresher sessionRefresher, refreshCookie string, persist func(http.ResponseWriter, *identity.Tokens)) AuthOption {
	return func(o *authOptions) {
		o.refresher = refresher
		o.refreshCookie = refreshCookie
		o.persist = persist
	}
}

// Authenticate resolves the session token (bearer header first, then the
// session cookie) and seeds the context with the user. It never rejects;
// the guards decide what an anonymous request may see.
func Authenticate(resolver userResolver, cookieName string, logg *logger.Logger, opts ...AuthOption) func(http.Handler) http.Handler {
	var o authOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := validators.SessionToken(r, cookieName)
			if token == "" || resolver == nil {
				next.ServeHTTP(w, r)
				return
			}
			user := resolver.Resolve(r.Context(), token)
			if user == nil && validators.BearerToken(r) == "" {
				user = o.refresh(w, r, resolver, token, logg)
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithUser(r.Context(), user)
			if logg != nil {
				ctx = logg.WithUserID(ctx, user.ID.String())
				ctx = logg.WithActorRole(ctx, string(user.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (o authOptions) refresh(w http.ResponseWriter, r *http.Request, resolver userResolver, accessToken string, logg *logger.Logger) *users.ApplicationUser {
	if o.refresher == nil || o.refreshCookie == "" {
		return nil
	}
	cookie, err := r.Cookie(o.refreshCookie)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil
	}
	tokens, err := o.refresher.Refresh(r.Context(), accessToken, strings.TrimSpace(cookie.Value))
	if err != nil {
		if logg != nil {
			logg.Warn(logg.WithField(r.Context(), "reason", err.Error()), "auth.session_refresh_failed")
		}
		return nil
	}
	if o.persist != nil {
		o.persist(w, tokens)
	}
	return resolver.Resolve(r.Context(), tokens.AccessToken)
}

// APIGuard is the JSON form of the portal guard. It never redirects.
func APIGuard(portal access.Portal, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := access.Decide(portal, UserFromContext(r.Context()))
			if err := decisionError(decision); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser admits any signed-in user regardless of portal or approval.
func RequireUser(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserFromContext(r.Context()) == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decisionError(decision access.Decision) error {
	switch decision.State {
	case access.StateAuthorized:
		return nil
	case access.StateUnauthenticated:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	case access.StateForbiddenRole:
		return pkgerrors.New(pkgerrors.CodeForbidden, "role not allowed on this portal")
	case access.StatePendingApproval:
		return pkgerrors.New(pkgerrors.CodeNotApproved, "account not approved").
			WithDetails(map[string]string{"approval_state": string(decision.Blocked)})
	case access.StatePasswordChange:
		return pkgerrors.New(pkgerrors.CodePasswordChange, "password change required")
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, "unknown guard state")
	}
}

// BlockedPage renders the terminal page for a signed-in user whose account
// is not approved.
type BlockedPage func(w http.ResponseWriter, r *http.Request, portal access.Portal, state enums.ApprovalState)

// PortalGuard protects server-rendered pages. The decision is made before
// any byte is written, so protected markup is never flushed to a visitor
// the guard turns away.
func PortalGuard(portal access.Portal, blocked BlockedPage, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithPortal(ctx, string(portal))
			}
			decision := access.Decide(portal, UserFromContext(ctx))
			switch decision.State {
			case access.StateAuthorized:
				next.ServeHTTP(w, r.WithContext(ctx))
			case access.StateUnauthenticated:
				http.Redirect(w, r, access.LoginRedirect(portal, r.URL.RequestURI()), http.StatusSeeOther)
			case access.StateForbiddenRole:
				if logg != nil {
					logg.Info(ctx, "portal.cross_redirect")
				}
				http.Redirect(w, r, decision.RedirectTo, http.StatusSeeOther)
			case access.StatePasswordChange:
				http.Redirect(w, r, decision.RedirectTo, http.StatusSeeOther)
			default:
				if logg != nil {
					logg.Info(logg.WithField(ctx, "approval_state", string(decision.Blocked)), "portal.blocked")
				}
				if blocked == nil {
					http.Error(w, "cuenta no aprobada", http.StatusForbidden)
					return
				}
				blocked(w, r, portal, decision.Blocked)
			}
		})
	}
}
