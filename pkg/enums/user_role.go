package enums

import (
	"fmt"
	"strings"
)

// UserRole is the application role stored on users.role.
type UserRole string

const (
	RoleCliente     UserRole = "cliente"
	RoleVendedor    UserRole = "vendedor"
	RoleFacturacion UserRole = "facturacion"
	RoleDespacho    UserRole = "despacho"
	RoleCompras     UserRole = "compras"
	RoleGerencia    UserRole = "gerencia"
)

var validUserRoles = []UserRole{
	RoleCliente,
	RoleVendedor,
	RoleFacturacion,
	RoleDespacho,
	RoleCompras,
	RoleGerencia,
}

// StaffRoles is the coarse set admitted to the back-office portal.
var StaffRoles = []UserRole{
	RoleGerencia,
	RoleVendedor,
	RoleFacturacion,
	RoleDespacho,
	RoleCompras,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role belongs to the back-office staff set.
func (r UserRole) IsStaff() bool {
	for _, candidate := range StaffRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsSuper reports whether the role bypasses approval and capability checks.
func (r UserRole) IsSuper() bool {
	return r == RoleGerencia
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validUserRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
