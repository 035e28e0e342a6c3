package permissions

import "github.com/angelmondragon/medfarma-backend/internal/access"

// Module is one dashboard tile and the capability it needs.
type Module struct {
	Key        string
	Title      string
	Path       string
	Capability string
}

// Modules is the fixed dashboard layout.
var Modules = []Module{
	{Key: "ventas", Title: "Ventas", Path: "/admin/ventas", Capability: access.CapVentasVer},
	{Key: "despacho", Title: "Despacho", Path: "/admin/despacho", Capability: access.CapDespachoVer},
	{Key: "clientes", Title: "Clientes", Path: "/admin/usuarios?tipo=cliente", Capability: access.CapUsuariosVer},
	{Key: "facturacion", Title: "Facturación", Path: "/admin/facturacion", Capability: access.CapFacturacionVer},
	{Key: "compras", Title: "Compras", Path: "/admin/compras", Capability: access.CapComprasVer},
	{Key: "stock", Title: "Stock", Path: "/admin/stock", Capability: access.CapStockVer},
	{Key: "estadisticas", Title: "Estadísticas", Path: "/admin/estadisticas", Capability: access.CapReportesVentas},
	{Key: "usuarios", Title: "Usuarios", Path: "/admin/usuarios", Capability: access.CapUsuariosVer},
	{Key: "configuracion", Title: "Configuración", Path: "/settings", Capability: access.CapConfigGeneral},
}

// Tile is a rendered dashboard entry. Href is empty when disabled.
type Tile struct {
	Key        string `json:"key"`
	Title      string `json:"title"`
	Href       string `json:"href,omitempty"`
	Capability string `json:"capability"`
	Enabled    bool   `json:"enabled"`
}

// Tiles resolves every dashboard module against caps.
func Tiles(caps access.Capabilities) []Tile {
	out := make([]Tile, 0, len(Modules))
	for _, module := range Modules {
		tile := Tile{
			Key:        module.Key,
			Title:      module.Title,
			Capability: module.Capability,
			Enabled:    caps.Has(module.Capability),
		}
		if tile.Enabled {
			tile.Href = module.Path
		}
		out = append(out, tile)
	}
	return out
}
