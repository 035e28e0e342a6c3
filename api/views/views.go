// Package views renders the server-side pages: login forms, the staff
// dashboard, module shells and the blocked-account page.
package views

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/angelmondragon/medfarma-backend/internal/access"
	"github.com/angelmondragon/medfarma-backend/internal/permissions"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

type LoginPage struct {
	Title   string
	Heading string
	Portal  access.Portal
	Next    string
	Email   string
	Error   string
}

type ChangePasswordPage struct {
	Title    string
	Heading  string
	Portal   access.Portal
	Required bool
	Error    string
}

type DashboardPage struct {
	Title string
	User  *users.ApplicationUser
	Tiles []permissions.Tile
}

type ModulePage struct {
	Title string
	Key   string
	API   string
}

type CustomerPage struct {
	Title string
	User  *users.ApplicationUser
}

type blockedPage struct {
	Title   string
	Heading string
	Message string
	Portal  access.Portal
}

// Renderer executes the embedded templates. Output is buffered so a template
// error never leaves a half-written page.
type Renderer struct {
	tmpl *template.Template
	logg *logger.Logger
}

func NewRenderer(logg *logger.Logger) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl, logg: logg}, nil
}

func (v *Renderer) Login(w http.ResponseWriter, r *http.Request, status int, page LoginPage) {
	if page.Heading == "" {
		page.Heading = loginHeading(page.Portal)
	}
	if page.Title == "" {
		page.Title = page.Heading
	}
	v.render(w, r, status, "login", page)
}

func (v *Renderer) Dashboard(w http.ResponseWriter, r *http.Request, page DashboardPage) {
	if page.Title == "" {
		page.Title = "Panel"
	}
	v.render(w, r, http.StatusOK, "dashboard", page)
}

func (v *Renderer) ChangePassword(w http.ResponseWriter, r *http.Request, status int, page ChangePasswordPage) {
	if page.Heading == "" {
		page.Heading = "Cambiar contraseña"
	}
	if page.Title == "" {
		page.Title = page.Heading
	}
	v.render(w, r, status, "change_password", page)
}

func (v *Renderer) Module(w http.ResponseWriter, r *http.Request, page ModulePage) {
	v.render(w, r, http.StatusOK, "module", page)
}

func (v *Renderer) Customer(w http.ResponseWriter, r *http.Request, page CustomerPage) {
	if page.Title == "" {
		page.Title = "Mi cuenta"
	}
	v.render(w, r, http.StatusOK, "customer", page)
}

// Blocked satisfies middleware.BlockedPage. The only action offered is
// signing out, which lands on the portal's login.
func (v *Renderer) Blocked(w http.ResponseWriter, r *http.Request, portal access.Portal, state enums.ApprovalState) {
	heading, message := blockedCopy(state)
	v.render(w, r, http.StatusForbidden, "blocked", blockedPage{
		Title:   heading,
		Heading: heading,
		Message: message,
		Portal:  portal,
	})
}

func (v *Renderer) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := v.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		if v.logg != nil {
			v.logg.Error(v.logg.WithField(r.Context(), "template", name), "page.render_failed", err)
		}
		http.Error(w, "error interno", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func loginHeading(portal access.Portal) string {
	if portal == access.PortalStaff {
		return "Acceso del personal"
	}
	return "Iniciar sesión"
}

func blockedCopy(state enums.ApprovalState) (string, string) {
	switch state {
	case enums.ApprovalRechazado:
		return "Solicitud rechazada", "Tu solicitud de cuenta fue rechazada. Contactá a Medical Farma si creés que es un error."
	case enums.ApprovalSuspendido:
		return "Cuenta suspendida", "Tu cuenta está suspendida. Contactá a Medical Farma para reactivarla."
	default:
		return "Cuenta pendiente de aprobación", "Tu cuenta todavía no fue aprobada. Te avisaremos cuando esté habilitada."
	}
}
