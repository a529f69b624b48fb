package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/accounts"
	"github.com/sherlocker/sherlocker-backend/internal/plans"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
)

func (s *service) CreatePixPayment(ctx context.Context, accountID, planID uuid.UUID) (*PixPaymentResult, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if planID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"account_id": accountID.String(),
		"plan_id":    planID.String(),
	})

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Plan not found")
	}
	if !plan.IsActive || !plan.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "Plan is not available")
	}

	profile, err := accounts.ResolveBillingProfile(ctx, s.accounts, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve billing profile")
	}

	// The old ACTIVE subscription stays in place until the new charge is paid.
	subscription := &models.Subscription{
		AccountID: accountID,
		PlanID:    plan.ID,
		Status:    enums.SubscriptionStatusPending,
	}
	payment := &models.Payment{
		AccountID:     accountID,
		AmountCents:   plan.AmountCents,
		Status:        enums.PaymentStatusPending,
		PaymentMethod: enums.PaymentMethodPix,
	}
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.accounts.WithTx(tx).FindByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if locked == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
		}
		// Checked under the lock so concurrent requests for the same plan
		// see each other's activation.
		active, err := s.subscriptions.WithTx(tx).FindActiveByAccount(ctx, accountID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active subscription")
		}
		if active != nil && active.PlanID == planID {
			return pkgerrors.New(pkgerrors.CodeBadRequest, "User already has an active subscription with this plan")
		}
		if err := s.subscriptions.WithTx(tx).Create(ctx, subscription); err != nil {
			return err
		}
		payment.SubscriptionID = subscription.ID
		return s.payments.WithTx(tx).Create(ctx, payment)
	}); err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create pending charge")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"subscription_id": subscription.ID.String(),
		"payment_id":      payment.ID.String(),
	})

	resp, details, err := s.requestCharge(ctx, chargeInput{
		payment:      payment,
		subscription: subscription,
		plan:         plan,
		profile:      profile,
		dueDays:      s.cfg.InitialDueDays,
	})
	if err != nil {
		s.compensate(ctx, payment.ID, subscription.ID)
		s.logg.Error(ctx, "pix charge failed", err)
		return nil, err
	}

	next := plans.AddCycle(plan.Periodicity, s.clock())
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.payments.WithTx(tx).AttachCharge(ctx, payment.ID, details); err != nil {
			return err
		}
		subscription.SetNextPaymentDate(next)
		return s.subscriptions.WithTx(tx).Save(ctx, subscription)
	}); err != nil {
		s.compensate(ctx, payment.ID, subscription.ID)
		s.logg.Error(ctx, "persist pix charge failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeApplication, err, msgChargeFailed)
	}

	s.metrics.IncChargeCreated(chargeKindInitial)
	s.logg.Info(s.logg.WithField(ctx, "transaction_id", details.TransactionID), "pix charge created")

	return &PixPaymentResult{
		PaymentID:      payment.ID,
		SubscriptionID: subscription.ID,
		TransactionID:  details.TransactionID,
		Amount:         payment.AmountCents,
		PixQRCode:      details.QRCode,
		PixCopyPaste:   details.CopyPaste,
		PixQRCodeImage: resp.Pix.Image,
		NextChargeAt:   next,
		ExpiresAt:      details.ExpiresAt,
	}, nil
}

// rollbackTimeout bounds compensating deletes, which outlive the caller's
// context.
const rollbackTimeout = 10 * time.Second

// rollbackContext keeps the values of ctx but not its cancellation. A client
// disconnect or a lost cron lease must not leave a charge-less PENDING row.
func rollbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
}

// compensate removes the pending rows of a charge the gateway never issued.
func (s *service) compensate(ctx context.Context, paymentID, subscriptionID uuid.UUID) {
	ctx, cancel := rollbackContext(ctx)
	defer cancel()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.payments.WithTx(tx).Delete(ctx, paymentID); err != nil {
			return err
		}
		return s.subscriptions.WithTx(tx).Delete(ctx, subscriptionID)
	})
	if err != nil {
		s.logg.Error(ctx, "rollback pending charge failed", err)
	}
}

