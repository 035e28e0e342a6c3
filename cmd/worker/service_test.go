package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error {
	return f.err
}

type fakeConsumer struct {
	started bool
	err     error
}

func (f *fakeConsumer) Run(context.Context) error {
	f.started = true
	return f.err
}

func newWorker(t *testing.T, redisErr error, c *fakeConsumer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:         fakePinger{},
		Redis:      fakePinger{err: redisErr},
		PubSub:     fakePinger{},
		Automation: c,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRunStopsWhenDependencyIsDown(t *testing.T) {
	c := &fakeConsumer{}
	svc := newWorker(t, errors.New("connection refused"), c)
	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness error")
	}
	if c.started {
		t.Fatalf("consumer should not start before dependencies are ready")
	}
}

func TestRunReturnsConsumerError(t *testing.T) {
	want := errors.New("subscription deleted")
	c := &fakeConsumer{err: want}
	svc := newWorker(t, nil, c)
	if err := svc.Run(context.Background()); !errors.Is(err, want) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

func TestNewServiceRequiresConsumer(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: logger.New(logger.Options{Output: io.Discard}),
		DB:     fakePinger{},
		Redis:  fakePinger{},
		PubSub: fakePinger{},
	})
	if err == nil {
		t.Fatalf("expected error without automation consumer")
	}
}
