package routes

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/medfarma-backend/api/controllers"
	analyticscontrollers "github.com/angelmondragon/medfarma-backend/api/controllers/analytics"
	cartcontrollers "github.com/angelmondragon/medfarma-backend/api/controllers/cart"
	"github.com/angelmondragon/medfarma-backend/api/middleware"
	"github.com/angelmondragon/medfarma-backend/api/views"
	"github.com/angelmondragon/medfarma-backend/internal/access"
	"github.com/angelmondragon/medfarma-backend/internal/analytics"
	"github.com/angelmondragon/medfarma-backend/internal/assistant"
	"github.com/angelmondragon/medfarma-backend/internal/audit"
	"github.com/angelmondragon/medfarma-backend/internal/billing"
	"github.com/angelmondragon/medfarma-backend/internal/cart"
	"github.com/angelmondragon/medfarma-backend/internal/checkout"
	"github.com/angelmondragon/medfarma-backend/internal/dispatch"
	"github.com/angelmondragon/medfarma-backend/internal/identity"
	"github.com/angelmondragon/medfarma-backend/internal/orders"
	"github.com/angelmondragon/medfarma-backend/internal/permissions"
	products "github.com/angelmondragon/medfarma-backend/internal/products"
	"github.com/angelmondragon/medfarma-backend/internal/purchasing"
	"github.com/angelmondragon/medfarma-backend/internal/sales"
	"github.com/angelmondragon/medfarma-backend/internal/settings"
	supplier "github.com/angelmondragon/medfarma-backend/internal/suppliers"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/metrics"
)

// KV is the Redis surface used by the rate limiter and idempotency middleware.
type KV interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

type sessionResolver interface {
	Resolve(ctx context.Context, token string) *users.ApplicationUser
}

// RouterParams carries every dependency the HTTP surface needs. Analytics
// may be nil when BigQuery is not configured.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Ready       map[string]controllers.Pinger
	KV          KV
	Resolver    sessionResolver
	Identity    identity.Service
	Users       users.Service
	Permissions permissions.Service
	Products    products.Service
	Cart        cart.Service
	Checkout    checkout.Service
	Orders      orders.Service
	Sales       sales.Service
	Billing     billing.Service
	Dispatch    dispatch.Service
	Suppliers   supplier.Service
	Purchasing  purchasing.Service
	Assistant   assistant.Service
	Analytics   analytics.Service
	Audit       audit.Service
	Settings    settings.Service
	Views       *views.Renderer
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
}

// moduleAPIs points each dashboard module shell at the JSON API it drives.
var moduleAPIs = map[string]string{
	"ventas":        "/api/admin/sales/orders",
	"despacho":      "/api/admin/dispatch",
	"facturacion":   "/api/admin/billing/pending",
	"compras":       "/api/admin/purchasing/purchase-orders",
	"clientes":      "/api/admin/users?role=cliente",
	"usuarios":      "/api/admin/users",
	"stock":         "/api/admin/products",
	"estadisticas":  "/api/admin/analytics/events",
	"configuracion": "/api/admin/settings",
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	sessionCookie := controllers.SessionCookie{
		Name:        cfg.Session.CookieName,
		RefreshName: cfg.Session.RefreshCookie,
		Secure:      cfg.Session.CookieSecure,
	}
	authOpts := []middleware.AuthOption{}
	if p.Identity != nil {
		authOpts = append(authOpts, middleware.WithSessionRefresh(p.Identity, cfg.Session.RefreshCookie, sessionCookie.Persist))
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
		middleware.Authenticate(p.Resolver, cfg.Session.CookieName, logg, authOpts...),
	)

	cartCookie := cartcontrollers.Cookie{Name: cfg.Session.CartCookieName, Secure: cfg.Session.CookieSecure, TTL: cfg.Session.CartTTL}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	resetPolicy := middleware.NewAuthRateLimitPolicy(
		"password_reset",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	loginLimit := middleware.AuthRateLimit(loginPolicy, p.KV, logg)
	staffGuard := middleware.PortalGuard(access.PortalStaff, p.Views.Blocked, logg)
	customerGuard := middleware.PortalGuard(access.PortalCustomer, p.Views.Blocked, logg)
	capability := func(code string) func(http.Handler) http.Handler {
		return middleware.RequireCapability(p.Permissions, code, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Ready))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	// Pages.
	r.Get(access.StaffLoginPath, controllers.LoginPage(access.PortalStaff, p.Views))
	r.Get(access.CustomerLoginPath, controllers.LoginPage(access.PortalCustomer, p.Views))
	r.With(loginLimit).Post("/auth/login/form", controllers.LoginForm(p.Identity, p.Users, sessionCookie, p.Views, logg))
	r.Post("/auth/logout", controllers.LogoutForm(p.Identity, sessionCookie, logg))
	r.Get(access.ChangePasswordPath, controllers.ChangePasswordPage(p.Views))
	r.Post(access.ChangePasswordPath, controllers.ChangePasswordForm(p.Identity, p.Views, logg))

	r.Group(func(r chi.Router) {
		r.Use(staffGuard)
		r.Get(access.StaffLandingPath, controllers.StaffDashboard(p.Permissions, p.Views, logg))
		seen := map[string]bool{}
		for _, module := range permissions.Modules {
			path := module.Path
			if i := strings.IndexByte(path, '?'); i >= 0 {
				path = path[:i]
			}
			if seen[path] {
				continue
			}
			seen[path] = true
			r.With(middleware.RequireCapabilityPage(p.Permissions, module.Capability, logg)).
				Get(path, controllers.ModulePage(module, moduleAPIs[module.Key], p.Views))
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(customerGuard)
		r.Get(access.CustomerLandingPath, controllers.CustomerDashboard(p.Views))
	})

	// JSON API.
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Idempotency(p.KV, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimit).Post("/login", controllers.AuthLogin(p.Identity, sessionCookie, logg))
			r.Post("/logout", controllers.AuthLogout(p.Identity, sessionCookie, logg))
			r.Post("/refresh", controllers.AuthRefresh(p.Identity, sessionCookie, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, p.KV, logg)).Post("/register", controllers.AuthRegister(p.Users, logg))
			r.With(middleware.AuthRateLimit(resetPolicy, p.KV, logg)).Post("/password-reset", controllers.AuthPasswordResetRequest(p.Identity, logg))
			r.Post("/password-reset/confirm", controllers.AuthPasswordResetConfirm(p.Identity, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireUser(logg))
				r.Get("/me", controllers.AuthMe(p.Permissions, logg))
				r.Post("/password", controllers.AuthChangePassword(p.Identity, logg))
			})
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/products", controllers.CatalogProducts(p.Products, logg))
			r.Get("/products/{productId}", controllers.CatalogProduct(p.Products, logg))
			r.Get("/categories", controllers.ProductCategories(p.Products, true, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(p.Cart, cartCookie, logg))
			r.Delete("/", cartcontrollers.CartClear(p.Cart, cartCookie, logg))
			r.Post("/toggle", cartcontrollers.CartToggle(p.Cart, cartCookie, logg))
			r.Post("/items", cartcontrollers.CartAddItem(p.Cart, cartCookie, logg))
			r.Patch("/items/{itemId}", cartcontrollers.CartSetQuantity(p.Cart, cartCookie, logg))
			r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(p.Cart, cartCookie, logg))
		})

		r.Route("/customer", func(r chi.Router) {
			r.Use(middleware.APIGuard(access.PortalCustomer, logg))
			r.Post("/checkout", cartcontrollers.CartCheckout(p.Checkout, cartCookie, logg))
			r.Get("/orders", controllers.CustomerOrders(p.Orders, logg))
			r.Get("/orders/{orderId}", controllers.CustomerOrder(p.Orders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.APIGuard(access.PortalStaff, logg))

			r.Get("/dashboard/tiles", controllers.AdminDashboardTiles(p.Permissions, logg))

			r.Route("/users", func(r chi.Router) {
				r.With(capability(access.CapUsuariosVer)).Get("/", controllers.AdminListUsers(p.Users, logg))
				r.With(capability(access.CapUsuariosVer)).Get("/stats", controllers.AdminUserStats(p.Users, logg))
				r.With(capability(access.CapUsuariosVer)).Get("/{userId}", controllers.AdminGetUser(p.Users, logg))
				r.Group(func(r chi.Router) {
					r.Use(capability(access.CapUsuariosGestionar))
					r.Patch("/{userId}/state", controllers.AdminUpdateUserState(p.Users, logg))
					r.Patch("/{userId}/role", controllers.AdminUpdateUserRole(p.Users, logg))
					r.Get("/{userId}/permissions", controllers.AdminUserPermissions(p.Permissions, logg))
					r.Put("/{userId}/permissions", controllers.AdminReplaceUserPermissions(p.Permissions, logg))
				})
			})
			r.With(capability(access.CapUsuariosGestionar)).Get("/permissions", controllers.AdminPermissionCatalogue(p.Permissions, logg))

			r.Route("/products", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(capability(access.CapStockVer))
					r.Get("/", controllers.AdminListProducts(p.Products, logg))
					r.Get("/low-stock", controllers.AdminLowStockProducts(p.Products, logg))
					r.Get("/stats", controllers.AdminProductStats(p.Products, logg))
					r.Get("/categories", controllers.ProductCategories(p.Products, false, logg))
					r.Get("/{productId}", controllers.AdminGetProduct(p.Products, logg))
				})
				r.Group(func(r chi.Router) {
					r.Use(capability(access.CapStockEditar))
					r.Post("/", controllers.AdminCreateProduct(p.Products, logg))
					r.Patch("/{productId}", controllers.AdminUpdateProduct(p.Products, logg))
					r.Delete("/{productId}", controllers.AdminDeactivateProduct(p.Products, logg))
					r.Post("/{productId}/stock", controllers.AdminAdjustStock(p.Products, logg))
					r.Post("/{productId}/image-upload", controllers.AdminProductImageUpload(p.Products, logg))
				})
			})

			r.Route("/orders", func(r chi.Router) {
				r.With(capability(access.CapVentasVer)).Get("/", controllers.AdminListOrders(p.Orders, logg))
				r.With(capability(access.CapVentasVer)).Get("/{orderId}", controllers.AdminGetOrder(p.Orders, logg))
				r.With(capability(access.CapVentasCrear)).Post("/{orderId}/cancel", controllers.AdminCancelOrder(p.Orders, logg))
				r.With(capability(access.CapVentasCrear)).Put("/{orderId}/seller", controllers.AdminAssignSeller(p.Sales, logg))
				r.With(capability(access.CapFacturacionEmitir)).Patch("/{orderId}/payment", controllers.AdminUpdateOrderPayment(p.Orders, logg))
				r.With(capability(access.CapFacturacionEmitir)).Post("/{orderId}/invoice", controllers.AdminMarkInvoiced(p.Billing, logg))
			})

			r.Route("/sales", func(r chi.Router) {
				r.Use(capability(access.CapVentasVer))
				r.Get("/metrics", controllers.AdminSalesMetrics(p.Sales, logg))
				r.Get("/orders", controllers.AdminSalesOrders(p.Sales, logg))
				r.Get("/commissions", controllers.AdminListCommissions(p.Sales, logg))
				r.With(capability(access.CapFacturacionEmitir)).Patch("/commissions/{commissionId}", controllers.AdminSettleCommission(p.Sales, logg))
			})

			r.Route("/billing", func(r chi.Router) {
				r.Use(capability(access.CapFacturacionVer))
				r.Get("/metrics", controllers.AdminBillingMetrics(p.Billing, logg))
				r.Get("/pending", controllers.AdminBillingPending(p.Billing, logg))
			})

			r.Route("/dispatch", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(capability(access.CapDespachoVer))
					r.Get("/", controllers.AdminActiveDispatches(p.Dispatch, logg))
					r.Get("/metrics", controllers.AdminDispatchMetrics(p.Dispatch, logg))
					r.Get("/carriers", controllers.AdminListCarriers(p.Dispatch, logg))
					r.Get("/{dispatchId}", controllers.AdminGetDispatch(p.Dispatch, logg))
				})
				r.Group(func(r chi.Router) {
					r.Use(capability(access.CapDespachoGestionar))
					r.Patch("/{dispatchId}", controllers.AdminUpdateDispatch(p.Dispatch, logg))
					r.Post("/{dispatchId}/proof-upload", controllers.AdminDispatchProofUpload(p.Dispatch, logg))
					r.Post("/carriers", controllers.AdminCreateCarrier(p.Dispatch, logg))
					r.Patch("/carriers/{carrierId}", controllers.AdminUpdateCarrier(p.Dispatch, logg))
				})
			})

			r.Route("/suppliers", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(capability(access.CapComprasVer))
					r.Get("/", controllers.AdminListSuppliers(p.Suppliers, logg))
					r.Get("/stats", controllers.AdminSupplierStats(p.Suppliers, logg))
					r.Get("/{supplierId}", controllers.AdminGetSupplier(p.Suppliers, logg))
				})
				r.Group(func(r chi.Router) {
					r.Use(capability(access.CapComprasGestionar))
					r.Post("/", controllers.AdminCreateSupplier(p.Suppliers, logg))
					r.Patch("/{supplierId}", controllers.AdminUpdateSupplier(p.Suppliers, logg))
					r.Delete("/{supplierId}", controllers.AdminDeactivateSupplier(p.Suppliers, logg))
				})
			})

			r.Route("/purchasing", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(capability(access.CapComprasVer))
					r.Get("/metrics", controllers.AdminPurchasingMetrics(p.Purchasing, logg))
					r.Get("/restock", controllers.AdminRestockList(p.Purchasing, logg))
					r.Get("/purchase-orders", controllers.AdminListPurchaseOrders(p.Purchasing, logg))
					r.Get("/purchase-orders/{purchaseOrderId}", controllers.AdminGetPurchaseOrder(p.Purchasing, logg))
				})
				r.Group(func(r chi.Router) {
					r.Use(capability(access.CapComprasGestionar))
					r.Post("/purchase-orders", controllers.AdminCreatePurchaseOrder(p.Purchasing, logg))
					r.Patch("/purchase-orders/{purchaseOrderId}/status", controllers.AdminUpdatePurchaseOrderStatus(p.Purchasing, logg))
				})
			})

			r.Route("/settings", func(r chi.Router) {
				r.Use(capability(access.CapConfigGeneral))
				r.Get("/", controllers.AdminListSettings(p.Settings, logg))
				r.Put("/{key}", controllers.AdminUpdateSetting(p.Settings, logg))
			})

			r.With(capability(access.CapAuditoriaVer)).Get("/audit", controllers.AdminAuditLog(p.Audit, logg))

			r.Route("/assistant", func(r chi.Router) {
				r.Use(capability(access.CapAsistenteUsar))
				r.Post("/chat", controllers.AssistantChat(p.Assistant, logg))
				r.Get("/status", controllers.AssistantStatus(p.Assistant, logg))
				r.Get("/suggestions", controllers.AssistantSuggestions(p.Assistant, logg))
				r.Get("/history", controllers.AssistantHistory(p.Assistant, logg))
			})

			r.With(capability(access.CapReportesVentas)).Get("/analytics/events", analyticscontrollers.EventCounts(p.Analytics, logg))
		})
	})

	return r
}
