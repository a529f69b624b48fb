package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

func TestPaymentTransitionsOnlyLeavePending(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p := &Payment{Status: enums.PaymentStatusPending}
	if err := p.MarkAsPaid(now); err != nil {
		t.Fatalf("expected pending payment to be payable: %v", err)
	}
	if !p.IsPaid() || p.PaidAt == nil || !p.PaidAt.Equal(now) {
		t.Fatalf("expected paid payment with paidAt, got %+v", p)
	}

	for name, move := range map[string]func() error{
		"paid":     func() error { return p.MarkAsPaid(now) },
		"failed":   p.MarkAsFailed,
		"canceled": p.Cancel,
		"refunded": p.Refund,
	} {
		if err := move(); !errors.Is(err, ErrPaymentNotPending) {
			t.Fatalf("%s: expected ErrPaymentNotPending from terminal state, got %v", name, err)
		}
	}
	if p.Status != enums.PaymentStatusPaid {
		t.Fatalf("terminal payment status changed to %s", p.Status)
	}
}

func TestSubscriptionTransitions(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	sub := &Subscription{Status: enums.SubscriptionStatusPending}
	if err := sub.Activate(start, end); err != nil {
		t.Fatalf("activate pending: %v", err)
	}
	if !sub.IsActive() || !sub.StartDate.Equal(start) || !sub.EndDate.Equal(end) {
		t.Fatalf("unexpected activated subscription %+v", sub)
	}

	if !sub.Cancel(end) {
		t.Fatalf("expected first cancel to change state")
	}
	if sub.Cancel(end.Add(time.Hour)) {
		t.Fatalf("expected second cancel to be a no-op")
	}
	if !sub.CanceledAt.Equal(end) {
		t.Fatalf("canceledAt moved on idempotent cancel")
	}
	if err := sub.Activate(start, end); err != nil {
		t.Fatalf("expected canceled subscription to reactivate: %v", err)
	}
	if !sub.IsActive() || sub.CanceledAt != nil {
		t.Fatalf("expected reactivation to clear canceledAt, got %+v", sub)
	}

	expired := &Subscription{Status: enums.SubscriptionStatusExpired}
	if err := expired.Activate(start, end); !errors.Is(err, ErrInvalidSubscriptionTransition) {
		t.Fatalf("expected expired subscription to reject activation, got %v", err)
	}
}

func TestPaymentSettle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, status := range []enums.PaymentStatus{
		enums.PaymentStatusPaid,
		enums.PaymentStatusFailed,
		enums.PaymentStatusCanceled,
		enums.PaymentStatusRefunded,
	} {
		p := &Payment{Status: enums.PaymentStatusPending}
		if err := p.Settle(status, now); err != nil {
			t.Fatalf("settle %s: %v", status, err)
		}
		if p.Status != status {
			t.Fatalf("expected %s, got %s", status, p.Status)
		}
		if err := p.Settle(status, now); !errors.Is(err, ErrPaymentNotPending) {
			t.Fatalf("expected second settle to fail, got %v", err)
		}
	}

	p := &Payment{Status: enums.PaymentStatusPending}
	if err := p.Settle(enums.PaymentStatusPending, now); err == nil {
		t.Fatalf("expected pending to be rejected as an outcome")
	}
}

func TestPlanPrice(t *testing.T) {
	plan := Plan{AmountCents: 19500}
	if !plan.Price().Equal(decimal.RequireFromString("195")) {
		t.Fatalf("unexpected price %s", plan.Price())
	}
	if !plan.IsPaid() {
		t.Fatalf("expected paid plan")
	}
	free := Plan{AmountCents: 0, IsFree: true}
	if free.IsPaid() {
		t.Fatalf("free plan should not be paid")
	}
}
