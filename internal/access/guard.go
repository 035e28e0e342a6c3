package access

import (
	"net/url"

	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Portal identifies which side of the application a route belongs to.
type Portal string

const (
	PortalStaff    Portal = "staff"
	PortalCustomer Portal = "customer"
)

// State is the outcome of a guard evaluation.
type State string

const (
	StateLoading         State = "LOADING"
	StateUnauthenticated State = "UNAUTHENTICATED"
	StateForbiddenRole   State = "FORBIDDEN_ROLE"
	StatePendingApproval State = "PENDING_APPROVAL"
	StatePasswordChange  State = "PASSWORD_CHANGE_REQUIRED"
	StateAuthorized      State = "AUTHORIZED"
)

const (
	StaffLoginPath      = "/acceso"
	CustomerLoginPath   = "/auth/login"
	StaffLandingPath    = "/admin/dashboard"
	CustomerLandingPath = "/dashboard"
	ChangePasswordPath  = "/auth/cambiar-password"
)

// Decision tells the caller how to respond to a guarded request.
type Decision struct {
	State      State
	RedirectTo string
	// Blocked carries the approval state rendered on the blocked page.
	Blocked enums.ApprovalState
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.State == StateAuthorized
}

// LoginPath is where unauthenticated visitors of the portal are sent.
func (p Portal) LoginPath() string {
	if p == PortalStaff {
		return StaffLoginPath
	}
	return CustomerLoginPath
}

// LandingPath is the portal home after sign-in.
func (p Portal) LandingPath() string {
	if p == PortalStaff {
		return StaffLandingPath
	}
	return CustomerLandingPath
}

// Admits reports whether role belongs to the portal's allowed set.
func (p Portal) Admits(role enums.UserRole) bool {
	if role.IsSuper() {
		return true
	}
	switch p {
	case PortalStaff:
		return role.IsStaff()
	case PortalCustomer:
		return role == enums.RoleCliente
	default:
		return false
	}
}

// PortalFor returns the portal a role lands on.
func PortalFor(role enums.UserRole) Portal {
	if role.IsStaff() {
		return PortalStaff
	}
	return PortalCustomer
}

// Decide evaluates the portal guard for user. A nil user is unauthenticated.
func Decide(portal Portal, user *users.ApplicationUser) Decision {
	if user == nil {
		return Decision{State: StateUnauthenticated, RedirectTo: portal.LoginPath()}
	}
	if !portal.Admits(user.Role) {
		return Decision{State: StateForbiddenRole, RedirectTo: crossPortalLanding(portal)}
	}
	if !user.IsApproved() {
		return Decision{State: StatePendingApproval, Blocked: user.ApprovalState}
	}
	// Applies to gerencia too: the bootstrap superuser starts with the flag.
	if user.MustChangePassword {
		return Decision{State: StatePasswordChange, RedirectTo: ChangePasswordPath}
	}
	return Decision{State: StateAuthorized}
}

func crossPortalLanding(portal Portal) string {
	if portal == PortalStaff {
		return CustomerLandingPath
	}
	return StaffLandingPath
}

// LoginRedirect builds the login URL carrying the original path as next.
func LoginRedirect(portal Portal, next string) string {
	if next == "" || next == portal.LoginPath() {
		return portal.LoginPath()
	}
	return portal.LoginPath() + "?next=" + url.QueryEscape(next)
}
