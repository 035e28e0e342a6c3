package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/internal/audit"
	"github.com/angelmondragon/medfarma-backend/internal/billing"
	"github.com/angelmondragon/medfarma-backend/internal/cron"
	"github.com/angelmondragon/medfarma-backend/internal/orders"
	product "github.com/angelmondragon/medfarma-backend/internal/products"
	"github.com/angelmondragon/medfarma-backend/internal/sales"
	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/metrics"
	"github.com/angelmondragon/medfarma-backend/pkg/migrate"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	location, err := cfg.Sales.Location()
	if err != nil {
		logg.Error(context.Background(), "failed to load sales timezone", err)
		os.Exit(1)
	}

	lowStockJob, err := cron.NewLowStockJob(cron.LowStockJobParams{
		Logger:   logg,
		DB:       dbClient,
		Products: product.NewRepository(gormDB),
		Outbox:   outboxSvc,
		Marker:   redisClient,
		Location: location,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create low stock job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Outbox:           outboxRepo,
		DLQ:              outbox.NewDLQRepository(gormDB),
		RetentionDays:    cfg.Cron.OutboxRetentionDays,
		DLQRetentionDays: cfg.Cron.OutboxDLQRetentionDays,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	auditSvc, err := audit.NewService(audit.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}
	salesRepo := sales.NewRepository(gormDB)
	billingSvc, err := billing.NewService(billing.ServiceParams{
		Orders:         orders.NewRepository(gormDB),
		CommissionsTx:  func(tx *gorm.DB) billing.CommissionWriter { return salesRepo.WithTx(tx) },
		Tx:             dbClient,
		Outbox:         outboxSvc,
		Audit:          auditSvc,
		CommissionRate: decimal.NewFromFloat(cfg.Sales.CommissionRate),
		Location:       location,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}
	invoiceAuditJob, err := cron.NewInvoiceAuditJob(cron.InvoiceAuditJobParams{
		Logger:  logg,
		Billing: billingSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invoice audit job", err)
		os.Exit(1)
	}

	locks, err := cron.NewJobLocks(redisClient, redisClient.LockKey("cron:"+lockEnv(cfg.App.Env)))
	if err != nil {
		logg.Error(context.Background(), "failed to create cron locks", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	for _, entry := range []struct {
		job   cron.Job
		every time.Duration
	}{
		{lowStockJob, cfg.Cron.LowStockEvery},
		{retentionJob, cfg.Cron.OutboxRetentionEvery},
		{invoiceAuditJob, cfg.Cron.InvoiceAuditEvery},
	} {
		if err := registry.Register(entry.job, entry.every); err != nil {
			logg.Error(context.Background(), "failed to register cron job", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Locks:      locks,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Tick:       cfg.Cron.Tick,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "cron metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
