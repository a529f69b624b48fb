package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/plans"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
	"github.com/sherlocker/sherlocker-backend/pkg/outbox"
)

const reasonFreePlan = "free_plan"

// AssignFreePlan gives an account without an ACTIVE subscription the free
// plan and resets its balance to the plan's grant.
func (s *service) AssignFreePlan(ctx context.Context, accountID uuid.UUID) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	ctx = s.logg.WithField(ctx, "account_id", accountID.String())

	var assigned bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		assigned, err = s.assignFreePlanTx(ctx, tx, accountID, outbox.SourceAPI)
		return err
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign free plan")
	}
	if assigned {
		s.logg.Info(ctx, "free plan assigned")
	}
	return nil
}

// assignFreePlanTx reports false when the account already has an ACTIVE
// subscription. Callers that just canceled one inside tx get a fresh free one.
func (s *service) assignFreePlanTx(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, source string) (bool, error) {
	account, err := s.accounts.WithTx(tx).FindByIDForUpdate(ctx, accountID)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
	}

	subsRepo := s.subscriptions.WithTx(tx)
	active, err := subsRepo.FindActiveByAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	if active != nil {
		return false, nil
	}

	free, err := s.plans.WithTx(tx).FindFreePlan(ctx)
	if err != nil {
		return false, err
	}
	if free == nil {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "Free plan not found")
	}

	now := s.clock()
	sub := &models.Subscription{
		AccountID: accountID,
		PlanID:    free.ID,
		Status:    enums.SubscriptionStatusPending,
	}
	if err := sub.Activate(now, plans.AddCycle(free.Periodicity, now)); err != nil {
		return false, err
	}
	if err := subsRepo.Create(ctx, sub); err != nil {
		return false, err
	}
	if err := s.ledger.ResetWithTx(ctx, tx, accountID, free.TokenCost); err != nil {
		return false, err
	}
	if err := s.emitSubscriptionStatus(ctx, tx, source, sub, reasonFreePlan); err != nil {
		return false, err
	}
	if err := s.emitTokensReset(ctx, tx, source, free, sub); err != nil {
		return false, err
	}
	return true, nil
}
