package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/accounts"
	"github.com/sherlocker/sherlocker-backend/internal/gateway/zyonpay"
	"github.com/sherlocker/sherlocker-backend/internal/ledger"
	"github.com/sherlocker/sherlocker-backend/internal/mailer"
	"github.com/sherlocker/sherlocker-backend/internal/payments"
	"github.com/sherlocker/sherlocker-backend/internal/plans"
	"github.com/sherlocker/sherlocker-backend/internal/subscriptions"
	"github.com/sherlocker/sherlocker-backend/pkg/config"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
	"github.com/sherlocker/sherlocker-backend/pkg/metrics"
	"github.com/sherlocker/sherlocker-backend/pkg/outbox"
)

const (
	defaultExpiredPaymentWindow  = 5 * 24 * time.Hour
	defaultCheckExpiredThreshold = 3 * 24 * time.Hour
	defaultInitialDueDays        = 1
	defaultRecurringDueDays      = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service orchestrates charges, gateway notifications and the billing sweeps.
type Service interface {
	CreatePixPayment(ctx context.Context, accountID, planID uuid.UUID) (*PixPaymentResult, error)
	HandlePaymentWebhook(ctx context.Context, input WebhookInput) (*WebhookResult, error)
	CheckPaymentStatus(ctx context.Context, accountID uuid.UUID, pixCopyPaste string) (*PaymentStatusResult, error)
	ProcessRecurringCharges(ctx context.Context) (*RecurringChargesResult, error)
	ProcessExpiredPayments(ctx context.Context) (*ExpiredPaymentsResult, error)
	CheckExpiredPayments(ctx context.Context) (*CheckExpiredResult, error)
	AssignFreePlan(ctx context.Context, accountID uuid.UUID) error
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	TransactionRunner txRunner
	Accounts          accounts.Repository
	Plans             plans.Repository
	Subscriptions     subscriptions.Repository
	Payments          payments.Repository
	Ledger            ledger.Service
	Gateway           zyonpay.Gateway
	Mailer            mailer.Mailer
	Outbox            outboxPublisher
	Metrics           *metrics.BillingMetrics
	Logger            *logger.Logger
	Config            config.BillingConfig
	JWT               config.JWTConfig
	CallbackURL       string
	// Clock defaults to time.Now and is overridden in tests.
	Clock func() time.Time
}

// PixPaymentResult is returned to the client after a charge is issued.
type PixPaymentResult struct {
	PaymentID      uuid.UUID  `json:"paymentId"`
	SubscriptionID uuid.UUID  `json:"subscriptionId"`
	TransactionID  string     `json:"transactionId"`
	Amount         int64      `json:"amount"`
	PixQRCode      string     `json:"pixQrCode"`
	PixCopyPaste   string     `json:"pixCopyPaste"`
	PixQRCodeImage string     `json:"pixQrCodeImage"`
	NextChargeAt   time.Time  `json:"nextChargeAt"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// WebhookInput is a normalized gateway notification.
type WebhookInput struct {
	PaymentID     uuid.UUID
	TransactionID string
	Status        enums.PaymentStatus
	PaidAt        *time.Time
}

// WebhookResult acknowledges a gateway notification.
type WebhookResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PaymentStatusResult answers a client polling for a Pix payment.
type PaymentStatusResult struct {
	IsPaid  bool   `json:"isPaid"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// RecurringChargesResult summarizes one renewal sweep.
type RecurringChargesResult struct {
	TotalSubscriptions int      `json:"totalSubscriptions"`
	Processed          int      `json:"processed"`
	Failed             int      `json:"failed"`
	Errors             []string `json:"errors"`
}

// ExpiredPaymentsResult summarizes one expiry sweep.
type ExpiredPaymentsResult struct {
	TotalExpired int      `json:"totalExpired"`
	Processed    int      `json:"processed"`
	Skipped      int      `json:"skipped"`
	Errors       []string `json:"errors"`
}

// CheckExpiredResult summarizes one stale-subscription sweep.
type CheckExpiredResult struct {
	Checked     int      `json:"checked"`
	Inactivated int      `json:"inactivated"`
	Errors      []string `json:"errors"`
}

type service struct {
	tx            txRunner
	accounts      accounts.Repository
	plans         plans.Repository
	subscriptions subscriptions.Repository
	payments      payments.Repository
	ledger        ledger.Service
	gateway       zyonpay.Gateway
	mailer        mailer.Mailer
	outbox        outboxPublisher
	metrics       *metrics.BillingMetrics
	logg          *logger.Logger
	cfg           config.BillingConfig
	jwt           config.JWTConfig
	callbackURL   string
	now           func() time.Time
}

// NewService wires a billing service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account repository required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg := params.Config
	if cfg.ExpiredPaymentWindow <= 0 {
		cfg.ExpiredPaymentWindow = defaultExpiredPaymentWindow
	}
	if cfg.CheckExpiredThreshold <= 0 {
		cfg.CheckExpiredThreshold = defaultCheckExpiredThreshold
	}
	if cfg.InitialDueDays <= 0 {
		cfg.InitialDueDays = defaultInitialDueDays
	}
	if cfg.RecurringDueDays <= 0 {
		cfg.RecurringDueDays = defaultRecurringDueDays
	}

	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}

	return &service{
		tx:            params.TransactionRunner,
		accounts:      params.Accounts,
		plans:         params.Plans,
		subscriptions: params.Subscriptions,
		payments:      params.Payments,
		ledger:        params.Ledger,
		gateway:       params.Gateway,
		mailer:        params.Mailer,
		outbox:        params.Outbox,
		metrics:       params.Metrics,
		logg:          params.Logger,
		cfg:           cfg,
		jwt:           params.JWT,
		callbackURL:   strings.TrimSpace(params.CallbackURL),
		now:           clock,
	}, nil
}

func (s *service) clock() time.Time {
	return s.now().UTC()
}

// endOfDay returns the last instant of t's UTC calendar day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}
