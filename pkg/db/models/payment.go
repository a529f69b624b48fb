package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

var ErrPaymentNotPending = errors.New("payment is not pending")

// Payment is one Pix charge issued against a subscription.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID      uuid.UUID           `gorm:"column:account_id;type:uuid;not null;index"`
	SubscriptionID uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	AmountCents    int64               `gorm:"column:amount;not null"`
	Status         enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'PENDING'"`
	PaymentMethod  enums.PaymentMethod `gorm:"column:payment_method;not null;default:'PIX'"`
	TransactionID  *string             `gorm:"column:transaction_id;uniqueIndex"`
	PixQRCode      *string             `gorm:"column:pix_qr_code"`
	PixCopyPaste   *string             `gorm:"column:pix_copy_paste;index"`
	ExpiresAt      *time.Time          `gorm:"column:expires_at"`
	PaidAt         *time.Time          `gorm:"column:paid_at"`
	IsRecurring    bool                `gorm:"column:is_recurring;not null;default:false"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = enums.PaymentStatusPending
	}
	if p.PaymentMethod == "" {
		p.PaymentMethod = enums.PaymentMethodPix
	}
	return multierr.Combine(
		enums.Check("payment status", p.Status),
		enums.Check("payment method", p.PaymentMethod),
	)
}

func (p *Payment) IsPending() bool {
	return p.Status == enums.PaymentStatusPending
}

func (p *Payment) IsPaid() bool {
	return p.Status == enums.PaymentStatusPaid
}

func (p *Payment) MarkAsPaid(at time.Time) error {
	if err := p.transition(enums.PaymentStatusPaid); err != nil {
		return err
	}
	p.PaidAt = &at
	return nil
}

func (p *Payment) MarkAsFailed() error {
	return p.transition(enums.PaymentStatusFailed)
}

func (p *Payment) Cancel() error {
	return p.transition(enums.PaymentStatusCanceled)
}

func (p *Payment) Refund() error {
	return p.transition(enums.PaymentStatusRefunded)
}

// Settle applies a terminal outcome to a PENDING payment.
func (p *Payment) Settle(status enums.PaymentStatus, at time.Time) error {
	switch status {
	case enums.PaymentStatusPaid:
		return p.MarkAsPaid(at)
	case enums.PaymentStatusFailed:
		return p.MarkAsFailed()
	case enums.PaymentStatusCanceled:
		return p.Cancel()
	case enums.PaymentStatusRefunded:
		return p.Refund()
	}
	return fmt.Errorf("payment cannot settle as %q", status)
}

func (p *Payment) transition(next enums.PaymentStatus) error {
	if !p.IsPending() {
		return ErrPaymentNotPending
	}
	p.Status = next
	return nil
}
