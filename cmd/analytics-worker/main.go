package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/medfarma-backend/internal/analytics/worker"
	"github.com/angelmondragon/medfarma-backend/internal/analytics/writer"
	"github.com/angelmondragon/medfarma-backend/pkg/bigquery"
	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/medfarma-backend/pkg/pubsub"
	"github.com/angelmondragon/medfarma-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg, pubsub.RoleAnalytics)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency guard", err)

	eventsWriter, err := writer.New(bqClient, writer.Config{EventsTable: cfg.BigQuery.EventsTable})
	requireResource(ctx, logg, "analytics bigquery writer", err)
	defer func() {
		if err := eventsWriter.Flush(context.Background()); err != nil {
			logg.Error(ctx, "failed to flush buffered analytics rows", err)
		}
	}()

	sink, err := worker.NewSink(eventsWriter)
	requireResource(ctx, logg, "analytics sink", err)

	service, err := worker.NewService(subscription, sink, guard, logg)
	requireResource(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "analytics worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
