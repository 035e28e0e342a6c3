package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/medfarma-backend/internal/audit"
	"github.com/angelmondragon/medfarma-backend/internal/identity"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/auth/session"
	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "create-superuser"})

	_ = godotenv.Load()

	email := flag.String("email", "", "superuser email")
	name := flag.String("name", "", "superuser full name")
	flag.Parse()

	if *email == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "usage: create-superuser -email <email> -name <full name>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "create-superuser",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	sessions, err := session.NewManager(redisClient, cfg.JWT)
	requireResource(ctx, logg, "session manager", err)

	gormDB := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)
	auditSvc, err := audit.NewService(audit.NewRepository(gormDB), logg)
	requireResource(ctx, logg, "audit service", err)

	usersRepo := users.NewRepository(gormDB)
	identitySvc, err := identity.NewService(identity.ServiceParams{
		Principals:     identity.NewRepository(gormDB),
		Sessions:       sessions,
		Resets:         redisClient,
		Profiles:       usersRepo,
		Tx:             dbClient,
		Outbox:         outboxSvc,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		SessionConfig:  cfg.Session,
		Logger:         logg,
	})
	requireResource(ctx, logg, "identity service", err)

	usersSvc, err := users.NewService(users.ServiceParams{
		Repo:       usersRepo,
		Principals: identitySvc,
		Tx:         dbClient,
		Outbox:     outboxSvc,
		Audit:      auditSvc,
		Logger:     logg,
	})
	requireResource(ctx, logg, "users service", err)

	user, password, err := usersSvc.BootstrapSuperuser(ctx, *email, *name)
	if err != nil {
		logg.Error(ctx, "failed to create superuser", err)
		fmt.Fprintf(os.Stderr, "create superuser: %v\n", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "user_id", user.ID.String()), "superuser created")
	fmt.Printf("email: %s\ntemporary password: %s\nthe password must be changed on first sign-in\n", user.Email, password)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
