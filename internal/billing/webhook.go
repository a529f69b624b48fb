package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/plans"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
	"github.com/sherlocker/sherlocker-backend/pkg/outbox"
)

const (
	msgAlreadyProcessed = "Payment already processed"
	msgPaymentProcessed = "Payment processed successfully"
	msgPaymentRecorded  = "Payment recorded; subscription not activated"

	reasonPaymentFailed   = "payment_failed"
	reasonPaymentCanceled = "payment_canceled"
	reasonPaymentRefunded = "payment_refunded"
	reasonSuperseded      = "superseded"
)

// terminalOutcomes maps non-paid gateway outcomes to their response message
// and the reason recorded on the canceled subscription.
var terminalOutcomes = map[enums.PaymentStatus]struct {
	message string
	reason  string
}{
	enums.PaymentStatusFailed:   {"Payment marked as failed", reasonPaymentFailed},
	enums.PaymentStatusCanceled: {"Payment canceled", reasonPaymentCanceled},
	enums.PaymentStatusRefunded: {"Payment refunded", reasonPaymentRefunded},
}

func (s *service) HandlePaymentWebhook(ctx context.Context, input WebhookInput) (*WebhookResult, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_id":     input.PaymentID.String(),
		"transaction_id": input.TransactionID,
		"status":         string(input.Status),
	})

	payment, err := s.findWebhookPayment(ctx, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Payment not found")
	}
	if !payment.IsPending() {
		if input.Status == enums.PaymentStatusPaid && !payment.IsPaid() {
			s.logg.Warn(s.logg.WithField(ctx, "stored_status", string(payment.Status)), "paid notification for a closed payment")
		}
		return &WebhookResult{Success: true, Message: msgAlreadyProcessed}, nil
	}
	if payment.TransactionID != nil && input.TransactionID != "" && *payment.TransactionID != input.TransactionID {
		s.logg.Warn(s.logg.WithField(ctx, "stored_transaction_id", *payment.TransactionID), "webhook transaction id differs from stored charge")
	}

	subscription, err := s.subscriptions.FindByID(ctx, payment.SubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if subscription == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Subscription not found")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"account_id":      payment.AccountID.String(),
		"subscription_id": subscription.ID.String(),
	})

	switch input.Status {
	case enums.PaymentStatusPaid:
		return s.applyPaid(ctx, payment, subscription, input)
	case enums.PaymentStatusFailed, enums.PaymentStatusCanceled, enums.PaymentStatusRefunded:
		return s.applyTerminal(ctx, payment, subscription, input.Status)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "Invalid payment status")
	}
}

func (s *service) applyPaid(ctx context.Context, payment *models.Payment, subscription *models.Subscription, input WebhookInput) (*WebhookResult, error) {
	plan, err := s.plans.FindByID(ctx, subscription.PlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Plan not found")
	}

	now := s.clock()
	paidAt := now
	if input.PaidAt != nil {
		paidAt = input.PaidAt.UTC()
	}
	end := plans.AddCycle(plan.Periodicity, now)

	moved, stranded := false, false
	var superseded []models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.accounts.WithTx(tx).FindByIDForUpdate(ctx, payment.AccountID); err != nil {
			return err
		}
		subsRepo := s.subscriptions.WithTx(tx)

		ok, err := s.settle(ctx, tx, payment, enums.PaymentStatusPaid, paidAt)
		if err != nil || !ok {
			return err
		}
		moved = true
		if err := s.emitPaymentStatus(ctx, tx, outbox.SourceWebhook, payment, enums.PaymentStatusPaid, &paidAt); err != nil {
			return err
		}

		current, err := subsRepo.FindByID(ctx, subscription.ID)
		if err != nil {
			return err
		}
		if current == nil || !current.CanActivate() {
			// The money is recorded; the subscription needs manual follow-up.
			stranded = true
			return nil
		}

		active, err := subsRepo.FindActiveByAccount(ctx, current.AccountID)
		if err != nil {
			return err
		}
		if active != nil && active.ID != current.ID {
			superseded = append(superseded, *active)
		}
		// Cancel before activating so the one-active index never sees two rows.
		if _, err := subsRepo.CancelOtherActive(ctx, current.AccountID, current.ID, now); err != nil {
			return err
		}

		if err := current.Activate(now, end); err != nil {
			return err
		}
		current.SetNextPaymentDate(end)
		if err := subsRepo.Save(ctx, current); err != nil {
			return err
		}
		*subscription = *current

		if err := s.ledger.ResetWithTx(ctx, tx, current.AccountID, plan.TokenCost); err != nil {
			return err
		}
		for i := range superseded {
			superseded[i].Cancel(now)
			if err := s.emitSubscriptionStatus(ctx, tx, outbox.SourceWebhook, &superseded[i], reasonSuperseded); err != nil {
				return err
			}
		}
		if err := s.emitSubscriptionStatus(ctx, tx, outbox.SourceWebhook, current, ""); err != nil {
			return err
		}
		return s.emitTokensReset(ctx, tx, outbox.SourceWebhook, plan, current)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply paid notification")
	}
	if !moved {
		return &WebhookResult{Success: true, Message: msgAlreadyProcessed}, nil
	}
	if stranded {
		s.logg.Warn(s.logg.WithField(ctx, "subscription_status", string(subscription.Status)), "paid charge left subscription inactive")
		return &WebhookResult{Success: true, Message: msgPaymentRecorded}, nil
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tokens":     plan.TokenCost,
		"superseded": len(superseded),
	}), "subscription activated")

	s.sendConfirmation(ctx, payment, plan, end)
	return &WebhookResult{Success: true, Message: msgPaymentProcessed}, nil
}

func (s *service) applyTerminal(ctx context.Context, payment *models.Payment, subscription *models.Subscription, status enums.PaymentStatus) (*WebhookResult, error) {
	outcome := terminalOutcomes[status]
	now := s.clock()

	moved := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.accounts.WithTx(tx).FindByIDForUpdate(ctx, payment.AccountID); err != nil {
			return err
		}
		ok, err := s.settle(ctx, tx, payment, status, now)
		if err != nil || !ok {
			return err
		}
		moved = true

		subsRepo := s.subscriptions.WithTx(tx)
		current, err := subsRepo.FindByID(ctx, subscription.ID)
		if err != nil {
			return err
		}
		if err := s.emitPaymentStatus(ctx, tx, outbox.SourceWebhook, payment, status, nil); err != nil {
			return err
		}
		if current == nil || !current.Cancel(now) {
			return nil
		}
		if err := subsRepo.Save(ctx, current); err != nil {
			return err
		}
		return s.emitSubscriptionStatus(ctx, tx, outbox.SourceWebhook, current, outcome.reason)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply payment outcome")
	}
	if !moved {
		return &WebhookResult{Success: true, Message: msgAlreadyProcessed}, nil
	}

	s.logg.Info(ctx, "payment closed by gateway")
	return &WebhookResult{Success: true, Message: outcome.message}, nil
}

// findWebhookPayment resolves the notification by payment id, then by the
// gateway transaction id for charges whose identifier was not echoed back.
func (s *service) findWebhookPayment(ctx context.Context, input WebhookInput) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, input.PaymentID)
	if err != nil || payment != nil || input.TransactionID == "" {
		return payment, err
	}
	payment, err = s.payments.FindByTransactionID(ctx, input.TransactionID)
	if payment != nil {
		s.logg.Warn(s.logg.WithField(ctx, "resolved_payment_id", payment.ID.String()), "webhook payment resolved by transaction id")
	}
	return payment, err
}

// settle moves payment to status through its state machine and persists the
// move with a compare-and-swap on PENDING. It reports false when the row had
// already left PENDING; payment is only updated when the write landed.
func (s *service) settle(ctx context.Context, tx *gorm.DB, payment *models.Payment, status enums.PaymentStatus, at time.Time) (bool, error) {
	next := *payment
	if err := next.Settle(status, at); err != nil {
		if errors.Is(err, models.ErrPaymentNotPending) {
			return false, nil
		}
		return false, err
	}
	ok, err := s.payments.WithTx(tx).TransitionFromPending(ctx, payment.ID, next.Status, at)
	if err != nil || !ok {
		return false, err
	}
	*payment = next
	return true, nil
}
