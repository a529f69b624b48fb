package billing

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	"github.com/sherlocker/sherlocker-backend/pkg/outbox"
	"github.com/sherlocker/sherlocker-backend/pkg/outbox/payloads"
)

var paymentEventTypes = map[enums.PaymentStatus]enums.OutboxEventType{
	enums.PaymentStatusPaid:     enums.EventPaymentPaid,
	enums.PaymentStatusFailed:   enums.EventPaymentFailed,
	enums.PaymentStatusCanceled: enums.EventPaymentCanceled,
	enums.PaymentStatusRefunded: enums.EventPaymentRefunded,
}

func (s *service) emitPaymentStatus(ctx context.Context, tx *gorm.DB, source string, payment *models.Payment, status enums.PaymentStatus, paidAt *time.Time) error {
	eventType, ok := paymentEventTypes[status]
	if !ok {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         &outbox.ActorRef{AccountID: &payment.AccountID, Source: source},
		Data: payloads.PaymentStatusEvent{
			PaymentID:      payment.ID,
			SubscriptionID: payment.SubscriptionID,
			AccountID:      payment.AccountID,
			Status:         status,
			AmountCents:    payment.AmountCents,
			TransactionID:  payment.TransactionID,
			IsRecurring:    payment.IsRecurring,
			PaidAt:         paidAt,
		},
	})
}

func (s *service) emitSubscriptionStatus(ctx context.Context, tx *gorm.DB, source string, sub *models.Subscription, reason string) error {
	eventType := enums.EventSubscriptionCanceled
	if sub.IsActive() {
		eventType = enums.EventSubscriptionActivated
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         &outbox.ActorRef{AccountID: &sub.AccountID, Source: source},
		Data: payloads.SubscriptionStatusEvent{
			SubscriptionID: sub.ID,
			AccountID:      sub.AccountID,
			PlanID:         sub.PlanID,
			Status:         sub.Status,
			StartDate:      sub.StartDate,
			EndDate:        sub.EndDate,
			Reason:         reason,
		},
	})
}

func (s *service) emitTokensReset(ctx context.Context, tx *gorm.DB, source string, plan *models.Plan, sub *models.Subscription) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTokensReset,
		AggregateType: enums.AggregateAccount,
		AggregateID:   sub.AccountID,
		Actor:         &outbox.ActorRef{AccountID: &sub.AccountID, Source: source},
		Data: payloads.TokensResetEvent{
			AccountID: sub.AccountID,
			PlanID:    plan.ID,
			Tokens:    plan.TokenCost,
		},
	})
}
