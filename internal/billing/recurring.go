package billing

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/accounts"
	"github.com/sherlocker/sherlocker-backend/internal/plans"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
)

const sweepRecurring = "recurring_charges"

// ProcessRecurringCharges issues renewal charges for every ACTIVE paid
// subscription due by the end of today. Per-subscription failures are
// collected in the result and combined into the returned error; the result is
// always populated once the due list was loaded.
func (s *service) ProcessRecurringCharges(ctx context.Context) (*RecurringChargesResult, error) {
	now := s.clock()
	due, err := s.subscriptions.ListDueForCharge(ctx, endOfDay(now))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscriptions due for charge")
	}

	result := &RecurringChargesResult{TotalSubscriptions: len(due), Errors: []string{}}
	var errs error
	for i := range due {
		sub := due[i]
		subCtx := s.logg.WithFields(ctx, map[string]any{
			"subscription_id": sub.ID.String(),
			"account_id":      sub.AccountID.String(),
		})
		charged, err := s.chargeRenewal(subCtx, &sub)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Error processing subscription %s: %s", sub.ID, errorMessage(err)))
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			s.logg.Error(subCtx, "recurring charge failed", err)
			continue
		}
		if charged {
			result.Processed++
		}
	}

	s.metrics.AddSweepItems(sweepRecurring, "processed", result.Processed)
	s.metrics.AddSweepItems(sweepRecurring, "failed", result.Failed)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"total":     result.TotalSubscriptions,
		"processed": result.Processed,
		"failed":    result.Failed,
	}), "recurring charges finished")
	return result, errs
}

// chargeRenewal reports false when the subscription already has an open charge.
func (s *service) chargeRenewal(ctx context.Context, sub *models.Subscription) (bool, error) {
	pending, err := s.payments.FindPendingBySubscription(ctx, sub.ID)
	if err != nil {
		return false, err
	}
	if pending != nil {
		return false, nil
	}

	plan, err := s.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return false, err
	}
	if plan == nil {
		return false, pkgerrors.Newf(pkgerrors.CodeNotFound, "Plan not found for subscription %s", sub.ID)
	}
	account, err := s.accounts.FindByID(ctx, sub.AccountID)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, pkgerrors.Newf(pkgerrors.CodeNotFound, "User not found for subscription %s", sub.ID)
	}
	profile, err := accounts.ResolveBillingProfile(ctx, s.accounts, sub.AccountID)
	if err != nil {
		return false, err
	}

	payment := &models.Payment{
		AccountID:      sub.AccountID,
		SubscriptionID: sub.ID,
		AmountCents:    plan.AmountCents,
		Status:         enums.PaymentStatusPending,
		PaymentMethod:  enums.PaymentMethodPix,
		IsRecurring:    true,
	}
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.accounts.WithTx(tx).FindByIDForUpdate(ctx, sub.AccountID); err != nil {
			return err
		}
		return s.payments.WithTx(tx).Create(ctx, payment)
	}); err != nil {
		return false, err
	}
	ctx = s.logg.WithField(ctx, "payment_id", payment.ID.String())

	_, details, err := s.requestCharge(ctx, chargeInput{
		payment:      payment,
		subscription: sub,
		plan:         plan,
		profile:      profile,
		dueDays:      s.cfg.RecurringDueDays,
		recurring:    true,
	})
	if err != nil {
		s.dropPayment(ctx, payment)
		return false, err
	}

	now := s.clock()
	next := plans.AddCycle(plan.Periodicity, now)
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.payments.WithTx(tx).AttachCharge(ctx, payment.ID, details); err != nil {
			return err
		}
		sub.SetNextPaymentDate(next)
		return s.subscriptions.WithTx(tx).Save(ctx, sub)
	}); err != nil {
		s.dropPayment(ctx, payment)
		return false, err
	}

	s.metrics.IncChargeCreated(chargeKindRecurring)
	s.logg.Info(s.logg.WithField(ctx, "transaction_id", details.TransactionID), "recurring charge created")
	s.sendRecurringCharge(ctx, account, plan, payment, now.AddDate(0, 0, s.cfg.RecurringDueDays), details.QRCode, details.CopyPaste)
	return true, nil
}

func (s *service) dropPayment(ctx context.Context, payment *models.Payment) {
	ctx, cancel := rollbackContext(ctx)
	defer cancel()
	if err := s.payments.Delete(ctx, payment.ID); err != nil {
		s.logg.Error(ctx, "rollback recurring payment failed", err)
	}
}

// errorMessage prefers the public message of a typed error.
func errorMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		if cause := typed.Unwrap(); cause != nil {
			return typed.Message() + ": " + cause.Error()
		}
		return typed.Message()
	}
	return err.Error()
}
