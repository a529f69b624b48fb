package billing

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/sherlocker/sherlocker-backend/pkg/auth"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
)

const (
	msgPaymentNotFound  = "Payment not found"
	msgPaymentNotPaid   = "Payment is not completed yet"
	msgPaymentCompleted = "Payment completed successfully"
)

// CheckPaymentStatus answers a client polling by Pix copy-paste code. Once
// the payment is PAID a fresh access token carrying the new plan is minted.
// Payments owned by another account are reported as not found.
func (s *service) CheckPaymentStatus(ctx context.Context, accountID uuid.UUID, pixCopyPaste string) (*PaymentStatusResult, error) {
	code := strings.TrimSpace(pixCopyPaste)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pixCopyPaste is required")
	}

	payment, err := s.payments.FindByPixCopyPaste(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment == nil || payment.AccountID != accountID {
		return &PaymentStatusResult{IsPaid: false, Message: msgPaymentNotFound}, nil
	}
	if !payment.IsPaid() {
		return &PaymentStatusResult{IsPaid: false, Message: msgPaymentNotPaid}, nil
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
	}

	planName, err := s.currentPlanName(ctx, payment)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve plan name")
	}

	token, err := auth.MintAccessToken(s.jwt, s.clock(), auth.AccessTokenPayload{
		AccountID:           account.ID,
		Email:               account.Email,
		Name:                account.Name,
		PlanName:            planName,
		TokenCount:          account.TokenCount,
		IsMissingOnboarding: account.IsMissingOnboarding,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	return &PaymentStatusResult{IsPaid: true, Token: token, Message: msgPaymentCompleted}, nil
}

// currentPlanName prefers the account's ACTIVE subscription and falls back to
// the plan the payment was charged for.
func (s *service) currentPlanName(ctx context.Context, payment *models.Payment) (string, error) {
	subscription, err := s.subscriptions.FindActiveByAccount(ctx, payment.AccountID)
	if err != nil {
		return "", err
	}
	if subscription == nil {
		subscription, err = s.subscriptions.FindByID(ctx, payment.SubscriptionID)
		if err != nil {
			return "", err
		}
	}
	if subscription == nil {
		return "", nil
	}
	plan, err := s.plans.FindByID(ctx, subscription.PlanID)
	if err != nil || plan == nil {
		return "", err
	}
	return plan.Name, nil
}
