package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

const heartbeatInterval = time.Minute

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         pinger
	Redis      pinger
	PubSub     pinger
	Automation consumer
}

// Service runs the automation consumer once its dependencies answer.
type Service struct {
	cfg        *config.Config
	logg       *logger.Logger
	deps       []namedPinger
	automation consumer
}

type namedPinger struct {
	name string
	ping pinger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Automation == nil {
		return nil, errors.New("automation consumer is required")
	}

	return &Service{
		cfg:  params.Config,
		logg: params.Logger,
		deps: []namedPinger{
			{name: "database", ping: params.DB},
			{name: "redis", ping: params.Redis},
			{name: "pubsub", ping: params.PubSub},
		},
		automation: params.Automation,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.ping.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.automation.Run(ctx)
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "automation consumer stopped unexpectedly", err)
			}
			return err
		case <-ticker.C:
			s.logg.Debug(ctx, "worker heartbeat")
		}
	}
}
