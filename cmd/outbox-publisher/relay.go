package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	idleCeiling        = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

var errUnroutable = errors.New("no publisher for topic")

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(topic string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// publisher is the slice of a Pub/Sub publisher the relay needs. After a
// failed publish on an ordering key, the key stays paused until resumed.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

// RelayParams wire the relay to its stores and the topic.
type RelayParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Registry   registryResolver
	DLQ        dlqRepository
	Publishers publisherFactory
}

// Relay moves committed outbox rows onto the back-office topic. Each
// message is keyed by its aggregate so one user's or one product's events
// reach subscribers in commit order; urgent event types go first.
type Relay struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	registry    registryResolver
	dlq         dlqRepository
	publishers  publisherFactory
	batchSize   int
	maxAttempts int
	idle        time.Duration
	source      string
	jitter      func(time.Duration) time.Duration
	now         func() time.Time
}

// NewRelay validates params and applies outbox defaults.
func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	}

	publishers := params.Publishers
	if publishers == nil {
		publishers = func(topic string) publisher {
			if p := params.PubSub.Publisher(topic); p != nil {
				return gcpPublisher{p}
			}
			return nil
		}
	}
	cfg := params.Config.Outbox
	return &Relay{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		repo:        params.Repository,
		registry:    params.Registry,
		dlq:         params.DLQ,
		publishers:  publishers,
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		idle:        time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		source:      params.Config.Automation.Source,
		jitter:      jitter,
		now:         time.Now,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains the outbox until ctx ends. Empty polls and failing batches
// back off up to idleCeiling.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": r.db.Ping, "pubsub": r.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := r.idle
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}
		handled, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch error", err)
			wait = min(wait*2, idleCeiling)
		case handled > 0:
			wait = r.idle
			continue
		default:
			wait = r.idle
		}
		if err := sleep(ctx, r.jitter(wait)); err != nil {
			return err
		}
	}
}

// drain relays one batch inside a transaction and reports how many rows
// left the pending state.
func (r *Relay) drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		// A failed key blocks the rest of its aggregate until the next batch.
		stalled := map[string]bool{}
		for _, job := range r.plan(rows) {
			if stalled[job.key] {
				continue
			}
			done, err := r.relayOne(ctx, tx, job)
			if err != nil {
				return err
			}
			if !done {
				stalled[job.key] = true
				continue
			}
			handled++
		}
		return nil
	})
	return handled, err
}

type relayJob struct {
	row      models.OutboxEvent
	resolved *registry.ResolvedEvent
	// resolveErr is set for rows the registry rejected.
	resolveErr error
	key        string
	urgent     bool
}

// plan resolves the batch and orders it urgent first, keeping commit order
// inside each group.
func (r *Relay) plan(rows []models.OutboxEvent) []relayJob {
	jobs := make([]relayJob, 0, len(rows))
	for _, row := range rows {
		job := relayJob{row: row, key: orderingKey(row)}
		job.resolved, job.resolveErr = r.registry.Resolve(row)
		if job.resolved != nil {
			job.urgent = job.resolved.Descriptor.Urgent
		}
		jobs = append(jobs, job)
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].urgent && !jobs[j].urgent })
	return jobs
}

func orderingKey(row models.OutboxEvent) string {
	return string(row.AggregateType) + ":" + row.AggregateID.String()
}

// relayOne publishes a row and records the result. It returns false when
// the row stays pending for a retry.
func (r *Relay) relayOne(ctx context.Context, tx *gorm.DB, job relayJob) (bool, error) {
	row := job.row
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"ordering_key":  job.key,
		"urgent":        job.urgent,
		"attempt_count": row.AttemptCount,
	})

	if job.resolveErr != nil || job.resolved == nil {
		cause := job.resolveErr
		if cause == nil {
			cause = errors.New("event did not resolve")
		}
		return true, r.bury(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, cause)
	}

	err := r.publish(ctx, row, job)
	if errors.Is(err, errUnroutable) {
		return true, r.bury(logCtx, tx, row, enums.OutboxDLQReasonUnroutable, err)
	}
	if err == nil {
		if markErr := r.repo.MarkPublishedTx(tx, row.ID); markErr != nil {
			return false, fmt.Errorf("mark published %s: %w", row.ID, markErr)
		}
		r.logg.Info(r.logg.WithField(logCtx, "event_id", job.resolved.Envelope.EventID), "outbox event published")
		return true, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		return true, r.bury(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	if row.AttemptCount+1 >= r.maxAttempts {
		return true, r.bury(logCtx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
	}
	r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed; will retry")
	if markErr := r.repo.MarkFailedTx(tx, row.ID, err); markErr != nil {
		return false, fmt.Errorf("mark failure %s: %w", row.ID, markErr)
	}
	return false, nil
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, job relayJob) error {
	topic := job.resolved.Descriptor.Topic
	pub := r.publishers(topic)
	if pub == nil {
		return fmt.Errorf("%w: topic %s", errUnroutable, topic)
	}
	priority := "normal"
	if job.urgent {
		priority = "urgent"
	}
	msg := &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: job.key,
		Attributes: map[string]string{
			"event_id":       job.resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
			"priority":       priority,
			"source":         r.source,
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned no result for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		pub.ResumePublish(job.key)
		return err
	}
	return nil
}

// bury copies the row to the DLQ and marks it terminal.
func (r *Relay) bury(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": cause.Error()}), "outbox event moved to dlq")
	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.repo.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(jitterWindow)))
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
