package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

// PaymentStatusEvent is emitted whenever a payment leaves PENDING.
type PaymentStatusEvent struct {
	PaymentID      uuid.UUID           `json:"payment_id"`
	SubscriptionID uuid.UUID           `json:"subscription_id"`
	AccountID      uuid.UUID           `json:"account_id"`
	Status         enums.PaymentStatus `json:"status"`
	AmountCents    int64               `json:"amount_cents"`
	TransactionID  *string             `json:"transaction_id,omitempty"`
	IsRecurring    bool                `json:"is_recurring"`
	PaidAt         *time.Time          `json:"paid_at,omitempty"`
}

// SubscriptionStatusEvent is emitted on activation and cancellation.
type SubscriptionStatusEvent struct {
	SubscriptionID uuid.UUID                `json:"subscription_id"`
	AccountID      uuid.UUID                `json:"account_id"`
	PlanID         uuid.UUID                `json:"plan_id"`
	Status         enums.SubscriptionStatus `json:"status"`
	StartDate      *time.Time               `json:"start_date,omitempty"`
	EndDate        *time.Time               `json:"end_date,omitempty"`
	Reason         string                   `json:"reason,omitempty"`
}

// TokensResetEvent records a ledger reset to a plan grant.
type TokensResetEvent struct {
	AccountID uuid.UUID `json:"account_id"`
	PlanID    uuid.UUID `json:"plan_id"`
	Tokens    int       `json:"tokens"`
}
