package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sherlocker/sherlocker-backend/internal/mailer"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
)

// Emails are best effort: a failed send is logged and never fails the caller.

func (s *service) recipient(ctx context.Context, accountID uuid.UUID) *models.Account {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		s.logg.Error(ctx, "load email recipient", err)
		return nil
	}
	if account == nil || account.Email == "" {
		return nil
	}
	return account
}

func (s *service) sendConfirmation(ctx context.Context, payment *models.Payment, plan *models.Plan, end time.Time) {
	account := s.recipient(ctx, payment.AccountID)
	if account == nil {
		return
	}
	err := s.mailer.SendPaymentConfirmation(ctx, mailer.PaymentConfirmation{
		To:          account.Email,
		Name:        account.Name,
		PlanName:    plan.Name,
		AmountCents: payment.AmountCents,
		EndDate:     end,
	})
	if err != nil {
		s.logg.Error(ctx, "send payment confirmation", err)
	}
}

func (s *service) sendRecurringCharge(ctx context.Context, account *models.Account, plan *models.Plan, payment *models.Payment, dueDate time.Time, qrCode, copyPaste string) {
	if account == nil || account.Email == "" {
		return
	}
	err := s.mailer.SendRecurringCharge(ctx, mailer.RecurringCharge{
		To:           account.Email,
		Name:         account.Name,
		PlanName:     plan.Name,
		AmountCents:  payment.AmountCents,
		DueDate:      dueDate,
		QRCodeBase64: qrCode,
		CopyPaste:    copyPaste,
	})
	if err != nil {
		s.logg.Error(ctx, "send recurring charge", err)
	}
}

// sendExpired tells the account its charge lapsed after window.
func (s *service) sendExpired(ctx context.Context, payment *models.Payment, planName string, window time.Duration) {
	account := s.recipient(ctx, payment.AccountID)
	if account == nil {
		return
	}
	err := s.mailer.SendPaymentExpired(ctx, mailer.PaymentExpired{
		To:             account.Email,
		Name:           account.Name,
		PlanName:       planName,
		AmountCents:    payment.AmountCents,
		ChargedAt:      payment.CreatedAt,
		ExpirationDays: int(window / (24 * time.Hour)),
	})
	if err != nil {
		s.logg.Error(ctx, "send payment expired", err)
	}
}
