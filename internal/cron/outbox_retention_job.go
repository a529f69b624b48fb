package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/pkg/logger"
)

const (
	defaultOutboxRetention   = 30 * day
	defaultDLQRetention      = 90 * day
	defaultOutboxMinAttempts = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the outbox cleanup. DLQ is optional;
// without it dead-lettered events are kept forever.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	DLQ        dlqRetentionRepo
	Retention  time.Duration
	// DLQRetention should exceed Retention so a pruned event can still be
	// replayed from its DLQ copy.
	DLQRetention time.Duration
	// MinAttempts matches the publisher's max attempts so dead rows are
	// removed only after the publisher gave up on them.
	MinAttempts int
	Clock       func() time.Time
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxRetentionRepo
	dlq          dlqRetentionRepo
	retention    time.Duration
	dlqRetention time.Duration
	minAttempts  int
	now          func() time.Time
}

// NewOutboxRetentionJob prunes delivered and abandoned billing events, and
// old DLQ entries when a DLQ repository is given.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	var errs error
	if params.Logger == nil {
		errs = multierr.Append(errs, errors.New("logger required"))
	}
	if params.DB == nil {
		errs = multierr.Append(errs, errors.New("db runner required"))
	}
	if params.Repository == nil {
		errs = multierr.Append(errs, errors.New("outbox repository required"))
	}
	if errs != nil {
		return nil, errs
	}

	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		dlq:          params.DLQ,
		retention:    orDefault(params.Retention, defaultOutboxRetention),
		dlqRetention: orDefault(params.DLQRetention, defaultDLQRetention),
		minAttempts:  params.MinAttempts,
		now:          params.Clock,
	}
	if job.minAttempts <= 0 {
		job.minAttempts = defaultOutboxMinAttempts
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (j *outboxRetentionJob) Name() string { return JobOutboxRetention }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)
	fields := map[string]any{"cutoff": cutoff, "min_attempts": j.minAttempts}

	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		deleted, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts)
		if err != nil {
			return err
		}
		fields["rows_deleted"] = deleted
		if j.dlq == nil {
			return nil
		}
		dlqCutoff := now.Add(-j.dlqRetention)
		dead, err := j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff)
		if err != nil {
			return err
		}
		fields["dlq_cutoff"] = dlqCutoff
		fields["dlq_rows_deleted"] = dead
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}
