package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/api/controllers"
	"github.com/angelmondragon/medfarma-backend/api/routes"
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
	product "github.com/angelmondragon/medfarma-backend/internal/products"
	"github.com/angelmondragon/medfarma-backend/internal/purchasing"
	"github.com/angelmondragon/medfarma-backend/internal/sales"
	"github.com/angelmondragon/medfarma-backend/internal/settings"
	supplier "github.com/angelmondragon/medfarma-backend/internal/suppliers"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/auth/session"
	"github.com/angelmondragon/medfarma-backend/pkg/bigquery"
	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/gemini"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/metrics"
	"github.com/angelmondragon/medfarma-backend/pkg/migrate"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/redis"
	"github.com/angelmondragon/medfarma-backend/pkg/storage/gcs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ready := map[string]controllers.Pinger{"db": dbClient, "redis": redisClient}

	gormDB := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	auditSvc, err := audit.NewService(audit.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(ctx, "failed to create audit service", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(gormDB)
	identitySvc, err := identity.NewService(identity.ServiceParams{
		Principals:     identity.NewRepository(gormDB),
		Sessions:       sessionManager,
		Resets:         redisClient,
		Profiles:       usersRepo,
		Tx:             dbClient,
		Outbox:         outboxSvc,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		SessionConfig:  cfg.Session,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create identity service", err)
		os.Exit(1)
	}

	usersSvc, err := users.NewService(users.ServiceParams{
		Repo:       usersRepo,
		Principals: identitySvc,
		Tx:         dbClient,
		Outbox:     outboxSvc,
		Audit:      auditSvc,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create users service", err)
		os.Exit(1)
	}

	permissionsRepo := permissions.NewRepository(gormDB)
	cachedAssignments := permissions.NewCachedLoader(permissionsRepo, redisClient, cfg.Permissions.CacheTTL, logg)
	permissionsSvc, err := permissions.NewService(permissions.ServiceParams{
		Repo:   permissionsRepo,
		Loader: permissions.NewLoader(cachedAssignments),
		Cache:  cachedAssignments,
		Users:  usersSvc,
		Tx:     dbClient,
		Audit:  auditSvc,
		Policy: access.DefaultPolicy(),
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create permissions service", err)
		os.Exit(1)
	}

	location, err := cfg.Sales.Location()
	if err != nil {
		logg.Error(ctx, "failed to load sales timezone", err)
		os.Exit(1)
	}

	productRepo := product.NewRepository(gormDB)
	productParams := product.ServiceParams{
		Repo:        productRepo,
		Tx:          dbClient,
		Outbox:      outboxSvc,
		Audit:       auditSvc,
		ImagePrefix: cfg.GCS.ImagePrefix,
		UploadTTL:   cfg.GCS.UploadURLExpiry,
		Logger:      logg,
	}
	ordersRepo := orders.NewRepository(gormDB)
	moverTx := func(tx *gorm.DB) orders.Mover { return ordersRepo.WithTx(tx) }
	dispatchRepo := dispatch.NewRepository(gormDB)
	dispatchParams := dispatch.ServiceParams{
		Repo:          dispatchRepo,
		OrdersTx:      moverTx,
		Tx:            dbClient,
		Outbox:        outboxSvc,
		Audit:         auditSvc,
		ProofPrefix:   cfg.Dispatch.ProofPrefix,
		UploadTTL:     cfg.GCS.UploadURLExpiry,
		InvoiceWindow: cfg.Dispatch.InvoiceWindow,
		Location:      location,
		Logger:        logg,
	}
	if cfg.GCS.BucketName != "" {
		gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap gcs", err)
			os.Exit(1)
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing gcs", err)
			}
		}()
		productParams.Signer = gcsClient
		productParams.Bucket = gcsClient.DefaultBucket()
		dispatchParams.Signer = gcsClient
		dispatchParams.Bucket = gcsClient.DefaultBucket()
		ready["gcs"] = gcsClient
	}
	productSvc, err := product.NewService(productParams)
	if err != nil {
		logg.Error(ctx, "failed to create product service", err)
		os.Exit(1)
	}

	cartSvc, err := cart.NewService(cart.NewStore(redisClient, cfg.Session.CartTTL), productSvc)
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:   ordersRepo,
		Tx:     dbClient,
		Outbox: outboxSvc,
		Audit:  auditSvc,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Carts:      cartSvc,
		Products:   productRepo,
		OrdersTx:   func(tx *gorm.DB) checkout.OrderWriter { return ordersRepo.WithTx(tx) },
		DispatchTx: func(tx *gorm.DB) checkout.DispatchOpener { return dispatchRepo.WithTx(tx) },
		Tx:         dbClient,
		Outbox:     outboxSvc,
		Audit:      auditSvc,
		TaxRate:    decimal.NewFromFloat(cfg.Sales.TaxRate),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	dispatchSvc, err := dispatch.NewService(dispatchParams)
	if err != nil {
		logg.Error(ctx, "failed to create dispatch service", err)
		os.Exit(1)
	}

	salesRepo := sales.NewRepository(gormDB)
	salesSvc, err := sales.NewService(sales.ServiceParams{
		Repo:     salesRepo,
		OrdersTx: moverTx,
		Orders:   ordersSvc,
		Users:    usersSvc,
		Tx:       dbClient,
		Audit:    auditSvc,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create sales service", err)
		os.Exit(1)
	}

	billingSvc, err := billing.NewService(billing.ServiceParams{
		Orders:         ordersRepo,
		CommissionsTx:  func(tx *gorm.DB) billing.CommissionWriter { return salesRepo.WithTx(tx) },
		Tx:             dbClient,
		Outbox:         outboxSvc,
		Audit:          auditSvc,
		CommissionRate: decimal.NewFromFloat(cfg.Sales.CommissionRate),
		Location:       location,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create billing service", err)
		os.Exit(1)
	}

	supplierRepo := supplier.NewRepository(gormDB)
	supplierSvc, err := supplier.NewService(supplierRepo, auditSvc, logg)
	if err != nil {
		logg.Error(ctx, "failed to create supplier service", err)
		os.Exit(1)
	}

	purchasingSvc, err := purchasing.NewService(purchasing.ServiceParams{
		Repo:      purchasing.NewRepository(gormDB),
		StockTx:   func(tx *gorm.DB) purchasing.StockLocker { return productRepo.WithTx(tx) },
		Products:  productRepo,
		Suppliers: supplierRepo,
		Tx:        dbClient,
		Outbox:    outboxSvc,
		Audit:     auditSvc,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create purchasing service", err)
		os.Exit(1)
	}

	assistantParams := assistant.ServiceParams{
		Products:      productRepo,
		Clients:       usersRepo,
		Conversations: assistant.NewRepository(gormDB),
		Model:         cfg.Assistant.Model,
		MaxProducts:   cfg.Assistant.MaxContextProducts,
		MaxClients:    cfg.Assistant.MaxContextClients,
		Metrics:       metrics.NewAssistantMetrics(reg),
		Logger:        logg,
	}
	if cfg.Assistant.APIKey != "" {
		geminiClient, err := gemini.NewClient(cfg.Assistant.APIKey,
			gemini.WithBaseURL(cfg.Assistant.BaseURL),
			gemini.WithModel(cfg.Assistant.Model),
			gemini.WithAttemptTimeout(cfg.Assistant.Timeout),
			gemini.WithRetries(cfg.Assistant.MaxRetries, time.Second),
			gemini.WithGenerationConfig(cfg.Assistant.Temperature, cfg.Assistant.MaxOutputTokens),
		)
		if err != nil {
			logg.Error(ctx, "failed to create gemini client", err)
			os.Exit(1)
		}
		assistantParams.Generator = geminiClient
	} else {
		logg.Warn(ctx, "assistant api key not set; chat disabled")
	}
	assistantSvc, err := assistant.NewService(assistantParams)
	if err != nil {
		logg.Error(ctx, "failed to create assistant service", err)
		os.Exit(1)
	}

	settingsSvc, err := settings.NewService(settings.NewRepository(gormDB), auditSvc)
	if err != nil {
		logg.Error(ctx, "failed to create settings service", err)
		os.Exit(1)
	}

	var analyticsSvc analytics.Service
	if cfg.GCP.ProjectID != "" {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()
		analyticsSvc, err = analytics.NewService(bqClient)
		if err != nil {
			logg.Error(ctx, "failed to create analytics service", err)
			os.Exit(1)
		}
	}

	renderer, err := views.NewRenderer(logg)
	if err != nil {
		logg.Error(ctx, "failed to parse templates", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(routes.RouterParams{
		Config:      cfg,
		Logger:      logg,
		Ready:       ready,
		KV:          redisClient,
		Resolver:    access.NewResolver(identitySvc, usersSvc, logg),
		Identity:    identitySvc,
		Users:       usersSvc,
		Permissions: permissionsSvc,
		Products:    productSvc,
		Cart:        cartSvc,
		Checkout:    checkoutSvc,
		Orders:      ordersSvc,
		Sales:       salesSvc,
		Billing:     billingSvc,
		Dispatch:    dispatchSvc,
		Suppliers:   supplierSvc,
		Purchasing:  purchasingSvc,
		Assistant:   assistantSvc,
		Analytics:   analyticsSvc,
		Audit:       auditSvc,
		Settings:    settingsSvc,
		Views:       renderer,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Gatherer:    reg,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("K_REVISION")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"version":  cfg.App.Version,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "api server shutdown failed", err)
		}
		logg.Info(logCtx, "api server stopped")
	}
}
