package access

import (
	"sort"

	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Capability codes follow the <module>.<action> format stored in permissions.code.
const (
	CapVentasVer         = "ventas.ver"
	CapVentasCrear       = "ventas.crear"
	CapDespachoVer       = "despacho.ver"
	CapDespachoGestionar = "despacho.gestionar"
	CapUsuariosVer       = "usuarios.ver"
	CapUsuariosGestionar = "usuarios.gestionar"
	CapFacturacionVer    = "facturacion.ver"
	CapFacturacionEmitir = "facturacion.emitir"
	CapComprasVer        = "compras.ver"
	CapComprasGestionar  = "compras.gestionar"
	CapStockVer          = "stock.ver"
	CapStockEditar       = "stock.editar"
	CapReportesVentas    = "reportes.ventas"
	CapConfigGeneral     = "config.general"
	CapAsistenteUsar     = "asistente.usar"
	CapAuditoriaVer      = "auditoria.ver"
)

// KnownCapabilities lists every capability code, sorted.
func KnownCapabilities() []string {
	out := []string{
		CapVentasVer, CapVentasCrear, CapDespachoVer, CapDespachoGestionar,
		CapUsuariosVer, CapUsuariosGestionar, CapFacturacionVer, CapFacturacionEmitir,
		CapComprasVer, CapComprasGestionar, CapStockVer, CapStockEditar,
		CapReportesVentas, CapConfigGeneral, CapAsistenteUsar, CapAuditoriaVer,
	}
	sort.Strings(out)
	return out
}

// Policy maps each capability to the roles that hold it by default.
// gerencia is never listed; it satisfies every capability.
type Policy struct {
	roles map[string][]enums.UserRole
}

// DefaultPolicy is the role table used when a user has no explicit assignment rows.
func DefaultPolicy() Policy {
	return Policy{roles: map[string][]enums.UserRole{
		CapVentasVer:         {enums.RoleVendedor, enums.RoleFacturacion},
		CapVentasCrear:       {enums.RoleVendedor},
		CapDespachoVer:       {enums.RoleDespacho},
		CapDespachoGestionar: {enums.RoleDespacho},
		CapUsuariosVer:       {enums.RoleVendedor, enums.RoleFacturacion},
		CapFacturacionVer:    {enums.RoleFacturacion},
		CapFacturacionEmitir: {enums.RoleFacturacion},
		CapComprasVer:        {enums.RoleCompras},
		CapComprasGestionar:  {enums.RoleCompras},
		CapStockVer:          {enums.RoleVendedor, enums.RoleDespacho, enums.RoleCompras},
		CapStockEditar:       {enums.RoleCompras},
		CapAsistenteUsar:     {enums.RoleVendedor},
	}}
}

// Allows reports whether role holds code by default.
func (p Policy) Allows(role enums.UserRole, code string) bool {
	if role.IsSuper() {
		return true
	}
	for _, candidate := range p.roles[code] {
		if candidate == role {
			return true
		}
	}
	return false
}

// Defaults lists the capabilities a role holds without explicit grants.
func (p Policy) Defaults(role enums.UserRole) []string {
	out := make([]string, 0)
	for code, roles := range p.roles {
		for _, candidate := range roles {
			if candidate == role {
				out = append(out, code)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Effective combines the role defaults with explicit rows: granted codes are
// added, denied codes are removed.
func (p Policy) Effective(role enums.UserRole, granted, denied []string) Capabilities {
	if role.IsSuper() {
		return Capabilities{super: true}
	}
	codes := make(map[string]struct{})
	for _, code := range p.Defaults(role) {
		codes[code] = struct{}{}
	}
	for _, code := range granted {
		codes[code] = struct{}{}
	}
	for _, code := range denied {
		delete(codes, code)
	}
	return Capabilities{codes: codes}
}

// Capabilities is the resolved capability set for one user.
type Capabilities struct {
	super bool
	codes map[string]struct{}
}

// SuperCapabilities satisfies every check.
func SuperCapabilities() Capabilities {
	return Capabilities{super: true}
}

func (c Capabilities) Super() bool {
	return c.super
}

func (c Capabilities) Has(code string) bool {
	if c.super {
		return true
	}
	_, ok := c.codes[code]
	return ok
}

// Codes returns the explicit codes, sorted. A super set returns nil.
func (c Capabilities) Codes() []string {
	if c.super {
		return nil
	}
	out := make([]string, 0, len(c.codes))
	for code := range c.codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
