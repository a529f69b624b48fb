package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

var ErrInvalidSubscriptionTransition = errors.New("invalid subscription transition")

// Subscription binds an account to a plan for one billing period at a time.
type Subscription struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID       uuid.UUID                `gorm:"column:account_id;type:uuid;not null;index"`
	PlanID          uuid.UUID                `gorm:"column:plan_id;type:uuid;not null;index"`
	Status          enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'PENDING'"`
	StartDate       *time.Time               `gorm:"column:start_date"`
	EndDate         *time.Time               `gorm:"column:end_date"`
	NextPaymentDate *time.Time               `gorm:"column:next_payment_date"`
	CanceledAt      *time.Time               `gorm:"column:canceled_at"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = enums.SubscriptionStatusPending
	}
	return enums.Check("subscription status", s.Status)
}

func (s *Subscription) IsActive() bool {
	return s.Status == enums.SubscriptionStatusActive
}

// CanActivate reports whether a paid charge may open a period on s. A
// CANCELED subscription is reactivated when its pending charge is paid late.
func (s *Subscription) CanActivate() bool {
	switch s.Status {
	case enums.SubscriptionStatusPending, enums.SubscriptionStatusActive, enums.SubscriptionStatusCanceled:
		return true
	}
	return false
}

// Activate opens a new billing period.
func (s *Subscription) Activate(start, end time.Time) error {
	if !s.CanActivate() {
		return ErrInvalidSubscriptionTransition
	}
	s.Status = enums.SubscriptionStatusActive
	s.StartDate = &start
	s.EndDate = &end
	s.CanceledAt = nil
	return nil
}

// Cancel moves the subscription to CANCELED. Canceling twice is a no-op.
func (s *Subscription) Cancel(at time.Time) bool {
	if s.Status == enums.SubscriptionStatusCanceled {
		return false
	}
	s.Status = enums.SubscriptionStatusCanceled
	s.CanceledAt = &at
	return true
}

func (s *Subscription) SetNextPaymentDate(next time.Time) {
	s.NextPaymentDate = &next
}
