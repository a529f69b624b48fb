package cron

import (
	"context"
	"fmt"

	"github.com/sherlocker/sherlocker-backend/internal/billing"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
)

const (
	JobCheckExpiredPayments = "check-expired-payments"
	JobRecurringCharges     = "recurring-charges"
	JobExpiredPayments      = "expired-payments"
	JobOutboxRetention      = "outbox-retention"
)

// billingSweeper is the part of the billing service the sweeps drive.
type billingSweeper interface {
	CheckExpiredPayments(ctx context.Context) (*billing.CheckExpiredResult, error)
	ProcessRecurringCharges(ctx context.Context) (*billing.RecurringChargesResult, error)
	ProcessExpiredPayments(ctx context.Context) (*billing.ExpiredPaymentsResult, error)
}

// sweepJob adapts one billing sweep to Job and logs its summary.
type sweepJob struct {
	name string
	logg *logger.Logger
	run  func(ctx context.Context) (map[string]any, error)
}

func (j *sweepJob) Name() string { return j.name }

func (j *sweepJob) Run(ctx context.Context) error {
	summary, err := j.run(ctx)
	if summary != nil {
		j.logg.Info(j.logg.WithFields(ctx, summary), "sweep summary")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	return nil
}

func newSweepJob(name string, sweeper billingSweeper, logg *logger.Logger, run func(ctx context.Context) (map[string]any, error)) (Job, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("billing service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &sweepJob{name: name, logg: logg, run: run}, nil
}

// NewCheckExpiredPaymentsJob inactivates subscriptions with an overdue payment.
func NewCheckExpiredPaymentsJob(sweeper billingSweeper, logg *logger.Logger) (Job, error) {
	return newSweepJob(JobCheckExpiredPayments, sweeper, logg, func(ctx context.Context) (map[string]any, error) {
		res, err := sweeper.CheckExpiredPayments(ctx)
		if res == nil {
			return nil, err
		}
		return map[string]any{
			"checked":     res.Checked,
			"inactivated": res.Inactivated,
			"errors":      len(res.Errors),
		}, err
	})
}

// NewRecurringChargesJob issues renewal charges for subscriptions due today.
func NewRecurringChargesJob(sweeper billingSweeper, logg *logger.Logger) (Job, error) {
	return newSweepJob(JobRecurringCharges, sweeper, logg, func(ctx context.Context) (map[string]any, error) {
		res, err := sweeper.ProcessRecurringCharges(ctx)
		if res == nil {
			return nil, err
		}
		return map[string]any{
			"total":     res.TotalSubscriptions,
			"processed": res.Processed,
			"failed":    res.Failed,
		}, err
	})
}

// NewExpiredPaymentsJob fails payments left unpaid past the expiry window.
func NewExpiredPaymentsJob(sweeper billingSweeper, logg *logger.Logger) (Job, error) {
	return newSweepJob(JobExpiredPayments, sweeper, logg, func(ctx context.Context) (map[string]any, error) {
		res, err := sweeper.ProcessExpiredPayments(ctx)
		if res == nil {
			return nil, err
		}
		return map[string]any{
			"total":     res.TotalExpired,
			"processed": res.Processed,
			"skipped":   res.Skipped,
			"errors":    len(res.Errors),
		}, err
	})
}
