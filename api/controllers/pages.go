package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/api/middleware"
	"github.com/angelmondragon/medfarma-backend/api/views"
	"github.com/angelmondragon/medfarma-backend/internal/access"
	"github.com/angelmondragon/medfarma-backend/internal/identity"
	"github.com/angelmondragon/medfarma-backend/internal/permissions"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

type userGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*users.ApplicationUser, error)
}

// LoginPage renders the login form for portal. Signed-in users skip it.
func LoginPage(portal access.Portal, v *views.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if user := middleware.UserFromContext(r.Context()); user != nil {
			http.Redirect(w, r, access.PortalFor(user.Role).LandingPath(), http.StatusSeeOther)
			return
		}
		v.Login(w, r, http.StatusOK, views.LoginPage{
			Portal: portal,
			Next:   safeNext(r.URL.Query().Get("next")),
		})
	}
}

// LoginForm handles the HTML login post: it signs in, sets the session
// cookie and redirects to next or to the landing of the user's portal.
func LoginForm(svc identity.Service, usersSvc userGetter, cookie SessionCookie, v *views.Renderer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "formulario inválido", http.StatusBadRequest)
			return
		}
		portal := access.PortalCustomer
		if r.PostForm.Get("portal") == string(access.PortalStaff) {
			portal = access.PortalStaff
		}
		email := strings.TrimSpace(r.PostForm.Get("email"))
		next := safeNext(r.PostForm.Get("next"))

		fail := func(status int, msg string) {
			v.Login(w, r, status, views.LoginPage{Portal: portal, Next: next, Email: email, Error: msg})
		}

		tokens, err := svc.SignIn(r.Context(), email, r.PostForm.Get("password"))
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				fail(http.StatusUnauthorized, "Email o contraseña incorrectos.")
				return
			}
			if logg != nil {
				logg.Error(r.Context(), "page.login_failed", err)
			}
			fail(http.StatusServiceUnavailable, "No pudimos iniciar sesión. Intentá de nuevo.")
			return
		}

		cookie.Persist(w, tokens)

		landing := portal.LandingPath()
		if user, err := usersSvc.Get(r.Context(), tokens.PrincipalID); err == nil {
			if user.MustChangePassword {
				http.Redirect(w, r, access.ChangePasswordPath, http.StatusSeeOther)
				return
			}
			landing = access.PortalFor(user.Role).LandingPath()
		}
		if next != "" {
			landing = next
		}
		http.Redirect(w, r, landing, http.StatusSeeOther)
	}
}

// LogoutForm signs out and returns to the login of the portal named in the
// form. This is the single action offered by the blocked page.
func LogoutForm(svc identity.Service, cookie SessionCookie, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		portal := access.PortalCustomer
		if err := r.ParseForm(); err == nil && r.PostForm.Get("portal") == string(access.PortalStaff) {
			portal = access.PortalStaff
		}
		if token := readCookie(r, cookie.Name); token != "" {
			if err := svc.SignOut(r.Context(), token); err != nil && logg != nil {
				logg.Warn(logg.WithField(r.Context(), "reason", err.Error()), "page.logout_failed")
			}
		}
		cookie.Clear(w)
		http.Redirect(w, r, portal.LoginPath(), http.StatusSeeOther)
	}
}

// ChangePasswordPage renders the password form. Users flagged with
// must_change_password are held here by the portal guards.
func ChangePasswordPage(v *views.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())
		if user == nil {
			http.Redirect(w, r, access.LoginRedirect(access.PortalCustomer, access.ChangePasswordPath), http.StatusSeeOther)
			return
		}
		v.ChangePassword(w, r, http.StatusOK, views.ChangePasswordPage{
			Portal:   access.PortalFor(user.Role),
			Required: user.MustChangePassword,
		})
	}
}

// ChangePasswordForm handles the password form post and sends the user to
// their portal landing once the flag is cleared.
func ChangePasswordForm(svc identity.Service, v *views.Renderer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())
		if user == nil {
			http.Redirect(w, r, access.LoginRedirect(access.PortalCustomer, access.ChangePasswordPath), http.StatusSeeOther)
			return
		}
		portal := access.PortalFor(user.Role)
		fail := func(status int, msg string) {
			v.ChangePassword(w, r, status, views.ChangePasswordPage{Portal: portal, Required: user.MustChangePassword, Error: msg})
		}
		if err := r.ParseForm(); err != nil {
			fail(http.StatusBadRequest, "Formulario inválido.")
			return
		}
		current := r.PostForm.Get("current_password")
		next := r.PostForm.Get("new_password")
		if next != r.PostForm.Get("confirm_password") {
			fail(http.StatusBadRequest, "Las contraseñas nuevas no coinciden.")
			return
		}

		if err := svc.ChangePassword(r.Context(), user.ID, current, next); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				msg := "No se pudo cambiar la contraseña."
				if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
					msg = typed.Message()
				}
				fail(http.StatusBadRequest, msg)
				return
			}
			if logg != nil {
				logg.Error(r.Context(), "page.change_password_failed", err)
			}
			fail(http.StatusServiceUnavailable, "No pudimos guardar la contraseña. Intentá de nuevo.")
			return
		}
		http.Redirect(w, r, portal.LandingPath(), http.StatusSeeOther)
	}
}

// StaffDashboard renders the tile grid for the signed-in staff user.
func StaffDashboard(perms capabilityResolver, v *views.Renderer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())
		caps, ok := middleware.CapabilitiesFromContext(r.Context())
		if !ok {
			var err error
			if user.IsSuper() {
				caps = access.SuperCapabilities()
			} else if caps, err = perms.Capabilities(r.Context(), user); err != nil {
				if logg != nil {
					logg.Error(r.Context(), "page.dashboard_failed", err)
				}
				http.Error(w, "servicio no disponible", http.StatusServiceUnavailable)
				return
			}
		}
		v.Dashboard(w, r, views.DashboardPage{User: user, Tiles: permissions.Tiles(caps)})
	}
}

// ModulePage renders the shell of one dashboard module. The route is
// registered behind the staff guard and the module's capability.
func ModulePage(module permissions.Module, api string, v *views.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v.Module(w, r, views.ModulePage{Title: module.Title, Key: module.Key, API: api})
	}
}

func CustomerDashboard(v *views.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v.Customer(w, r, views.CustomerPage{User: middleware.UserFromContext(r.Context())})
	}
}

// safeNext keeps only same-site absolute paths so the login redirect cannot
// be pointed at another host.
func safeNext(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return ""
	}
	for _, r := range raw {
		if r < 0x20 || r == 0x7f || r == '\\' {
			return ""
		}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return ""
	}
	return raw
}

func readCookie(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
