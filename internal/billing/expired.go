package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/plans"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
	"github.com/sherlocker/sherlocker-backend/pkg/outbox"
)

const (
	sweepExpired      = "expired_payments"
	sweepCheckExpired = "check_expired_payments"

	reasonPaymentExpired = "payment_expired"
	reasonPaymentOverdue = "payment_overdue"

	unknownPlanName = "Unknown Plan"
)

// ProcessExpiredPayments fails PENDING payments older than the expiry window
// whose subscription is still ACTIVE for the current period, cancels the
// subscription and moves the account to the free plan. Anything that no
// longer qualifies is skipped.
func (s *service) ProcessExpiredPayments(ctx context.Context) (*ExpiredPaymentsResult, error) {
	now := s.clock()
	expired, err := s.payments.ListExpiredPending(ctx, now.Add(-s.cfg.ExpiredPaymentWindow))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired payments")
	}

	result := &ExpiredPaymentsResult{TotalExpired: len(expired), Errors: []string{}}
	var errs error
	for i := range expired {
		payment := expired[i]
		payCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_id":      payment.ID.String(),
			"subscription_id": payment.SubscriptionID.String(),
			"account_id":      payment.AccountID.String(),
		})
		processed, skip, err := s.expirePayment(payCtx, &payment)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("Payment %s: %s", payment.ID, errorMessage(err)))
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
			s.logg.Error(payCtx, "expire payment failed", err)
		case processed:
			result.Processed++
		default:
			result.Skipped++
			s.logg.Info(s.logg.WithField(payCtx, "skip_reason", skip), "expired payment skipped")
		}
	}

	s.metrics.AddSweepItems(sweepExpired, "processed", result.Processed)
	s.metrics.AddSweepItems(sweepExpired, "skipped", result.Skipped)
	s.metrics.AddSweepItems(sweepExpired, "failed", len(result.Errors))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"total":     result.TotalExpired,
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"errors":    len(result.Errors),
	}), "expired payments finished")
	return result, errs
}

// expirePayment returns processed=true when the payment was failed, or a
// skip reason when it no longer qualifies.
func (s *service) expirePayment(ctx context.Context, candidate *models.Payment) (bool, string, error) {
	payment, err := s.payments.FindByID(ctx, candidate.ID)
	if err != nil {
		return false, "", err
	}
	if payment == nil || !payment.IsPending() {
		return false, "payment no longer pending", nil
	}

	subscription, err := s.subscriptions.FindByID(ctx, payment.SubscriptionID)
	if err != nil {
		return false, "", err
	}
	if subscription == nil {
		return false, "subscription not found", nil
	}

	history, err := s.payments.ListBySubscription(ctx, subscription.ID)
	if err != nil {
		return false, "", err
	}
	if paidAfter(history, payment) {
		return false, "newer payment already paid", nil
	}

	plan, err := s.plans.FindByID(ctx, subscription.PlanID)
	if err != nil {
		return false, "", err
	}
	planName := unknownPlanName
	var periodicity enums.PlanPeriodicity
	if plan != nil {
		planName = plan.Name
		periodicity = plan.Periodicity
	}
	if subscription.NextPaymentDate != nil {
		periodStart := plans.SubtractCycle(periodicity, *subscription.NextPaymentDate)
		if monthIndex(payment.CreatedAt) < monthIndex(periodStart) {
			return false, "payment belongs to a previous period", nil
		}
	}

	if !subscription.IsActive() {
		return false, fmt.Sprintf("subscription is %s", subscription.Status), nil
	}

	now := s.clock()
	moved := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.accounts.WithTx(tx).FindByIDForUpdate(ctx, payment.AccountID); err != nil {
			return err
		}
		ok, err := s.failOverdueTx(ctx, tx, payment, subscription.ID, now, reasonPaymentExpired)
		moved = ok
		return err
	})
	if err != nil {
		return false, "", err
	}
	if !moved {
		return false, "payment settled concurrently", nil
	}

	s.logg.Info(ctx, "expired payment failed and account moved to free plan")
	s.sendExpired(ctx, payment, planName, s.cfg.ExpiredPaymentWindow)
	return true, "", nil
}

// failOverdueTx fails the PENDING payment, cancels its subscription and moves
// the account to the free plan. Nothing changes when the payment already
// left PENDING.
func (s *service) failOverdueTx(ctx context.Context, tx *gorm.DB, payment *models.Payment, subscriptionID uuid.UUID, now time.Time, reason string) (bool, error) {
	ok, err := s.settle(ctx, tx, payment, enums.PaymentStatusFailed, now)
	if err != nil || !ok {
		return false, err
	}
	if err := s.emitPaymentStatus(ctx, tx, outbox.SourceCron, payment, enums.PaymentStatusFailed, nil); err != nil {
		return false, err
	}
	if err := s.cancelSubscriptionTx(ctx, tx, subscriptionID, now, reason); err != nil {
		return false, err
	}
	_, err = s.assignFreePlanTx(ctx, tx, payment.AccountID, outbox.SourceCron)
	return err == nil, err
}

// paidAfter reports whether history holds a PAID payment newer than payment.
func paidAfter(history []models.Payment, payment *models.Payment) bool {
	for _, p := range history {
		if p.ID != payment.ID && p.IsPaid() && p.CreatedAt.After(payment.CreatedAt) {
			return true
		}
	}
	return false
}

// CheckExpiredPayments fails the latest payment of ACTIVE subscriptions when
// it has stayed PENDING past the threshold, cancels the subscription and
// moves the account to the free plan. It runs ahead of ProcessExpiredPayments,
// which then only sees pending payments this pass does not reach.
func (s *service) CheckExpiredPayments(ctx context.Context) (*CheckExpiredResult, error) {
	now := s.clock()
	cutoff := now.Add(-s.cfg.CheckExpiredThreshold)
	active, err := s.subscriptions.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list active subscriptions")
	}

	result := &CheckExpiredResult{Errors: []string{}}
	var errs error
	for i := range active {
		sub := active[i]
		result.Checked++
		subCtx := s.logg.WithFields(ctx, map[string]any{
			"subscription_id": sub.ID.String(),
			"account_id":      sub.AccountID.String(),
		})
		inactivated, err := s.checkSubscription(subCtx, &sub, cutoff, now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error checking subscription %s: %s", sub.ID, errorMessage(err)))
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			s.logg.Error(subCtx, "check subscription failed", err)
			continue
		}
		if inactivated {
			result.Inactivated++
		}
	}

	s.metrics.AddSweepItems(sweepCheckExpired, "inactivated", result.Inactivated)
	s.metrics.AddSweepItems(sweepCheckExpired, "failed", len(result.Errors))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"checked":     result.Checked,
		"inactivated": result.Inactivated,
		"errors":      len(result.Errors),
	}), "expired payment check finished")
	return result, errs
}

func (s *service) checkSubscription(ctx context.Context, sub *models.Subscription, cutoff, now time.Time) (bool, error) {
	latest, err := s.payments.FindLatestBySubscription(ctx, sub.ID)
	if err != nil {
		return false, err
	}
	if latest == nil || !latest.IsPending() || !latest.CreatedAt.Before(cutoff) {
		return false, nil
	}

	moved := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.accounts.WithTx(tx).FindByIDForUpdate(ctx, sub.AccountID); err != nil {
			return err
		}
		ok, err := s.failOverdueTx(ctx, tx, latest, sub.ID, now, reasonPaymentOverdue)
		moved = ok
		return err
	})
	if err != nil || !moved {
		return false, err
	}
	ctx = s.logg.WithField(ctx, "payment_id", latest.ID.String())
	s.logg.Info(ctx, "subscription inactivated for overdue payment")

	planName := unknownPlanName
	if plan, err := s.plans.FindByID(ctx, sub.PlanID); err == nil && plan != nil {
		planName = plan.Name
	}
	s.sendExpired(ctx, latest, planName, s.cfg.CheckExpiredThreshold)
	return true, nil
}

// cancelSubscriptionTx cancels the subscription and queues the event. A
// missing or already canceled subscription is left alone.
func (s *service) cancelSubscriptionTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time, reason string) error {
	subsRepo := s.subscriptions.WithTx(tx)
	current, err := subsRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil || !current.Cancel(at) {
		return nil
	}
	if err := subsRepo.Save(ctx, current); err != nil {
		return err
	}
	return s.emitSubscriptionStatus(ctx, tx, outbox.SourceCron, current, reason)
}

func monthIndex(t time.Time) int {
	t = t.UTC()
	return t.Year()*12 + int(t.Month()) - 1
}
