package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
	defaultTerminalAttempts    = 10
)

// OutboxRetentionJobParams configure the outbox cleanup. TerminalAttempts
// must match the relay's max attempts so rows already copied to the DLQ
// are purged with the published ones.
type OutboxRetentionJobParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Outbox           publishedPurger
	DLQ              failedPurger
	RetentionDays    int
	DLQRetentionDays int
	TerminalAttempts int
}

type publishedPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type failedPurger interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob purges relayed outbox rows and old DLQ entries.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox repository required")
	case params.DLQ == nil:
		return nil, fmt.Errorf("dlq repository required")
	}
	return &outboxRetentionJob{
		logg:             params.Logger,
		db:               params.DB,
		outbox:           params.Outbox,
		dlq:              params.DLQ,
		retentionDays:    positiveOr(params.RetentionDays, defaultOutboxRetentionDays),
		dlqRetentionDays: positiveOr(params.DLQRetentionDays, defaultDLQRetentionDays),
		terminalAttempts: positiveOr(params.TerminalAttempts, defaultTerminalAttempts),
		now:              time.Now,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

type outboxRetentionJob struct {
	logg             *logger.Logger
	db               txRunner
	outbox           publishedPurger
	dlq              failedPurger
	retentionDays    int
	dlqRetentionDays int
	terminalAttempts int
	now              func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run purges both tables in separate transactions so a failure on one does
// not keep the other growing.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := daysBefore(now, j.retentionDays)
	dlqCutoff := daysBefore(now, j.dlqRetentionDays)

	var relayed, buried int64
	outboxErr := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.terminalAttempts)
		relayed = n
		return err
	})
	if outboxErr != nil {
		outboxErr = fmt.Errorf("purge outbox: %w", outboxErr)
	}
	dlqErr := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff)
		buried = n
		return err
	})
	if dlqErr != nil {
		dlqErr = fmt.Errorf("purge dlq: %w", dlqErr)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":     outboxCutoff,
		"dlq_cutoff":        dlqCutoff,
		"terminal_attempts": j.terminalAttempts,
		"outbox_deleted":    relayed,
		"dlq_deleted":       buried,
	}), "outbox retention cleanup complete")
	return multierr.Combine(outboxErr, dlqErr)
}

func daysBefore(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}
