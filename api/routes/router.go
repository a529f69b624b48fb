package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sherlocker/sherlocker-backend/api/controllers"
	billingcontrollers "github.com/sherlocker/sherlocker-backend/api/controllers/billing"
	tokencontrollers "github.com/sherlocker/sherlocker-backend/api/controllers/tokens"
	webhookcontrollers "github.com/sherlocker/sherlocker-backend/api/controllers/webhooks"
	"github.com/sherlocker/sherlocker-backend/api/middleware"
	zyonpaywebhook "github.com/sherlocker/sherlocker-backend/internal/webhooks/zyonpay"
	"github.com/sherlocker/sherlocker-backend/pkg/config"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
	"github.com/sherlocker/sherlocker-backend/pkg/metrics"
)

// RedisStore is the subset of the redis client the HTTP surface uses.
type RedisStore interface {
	Ping(ctx context.Context) error
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Params groups the dependencies of the HTTP router.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    RedisStore
	Payments billingcontrollers.PaymentService
	Webhooks webhookcontrollers.PaymentWebhookService
	// WebhookGuard suppresses replayed gateway deliveries; nil disables it.
	WebhookGuard   *zyonpaywebhook.IdempotencyGuard
	Plans          billingcontrollers.PlanCatalog
	Ledger         tokencontrollers.LedgerReader
	BillingMetrics *metrics.BillingMetrics
	HTTPMetrics    *metrics.HTTPMetrics
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.CORS(),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
	)

	deps := map[string]controllers.Pinger{}
	if p.DB != nil {
		deps["database"] = p.DB
	}
	if p.Redis != nil {
		deps["redis"] = p.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	var rateStore interface {
		FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	}
	if p.Redis != nil {
		rateStore = p.Redis
	}
	chargePolicy := middleware.NewRateLimitPolicy(
		"pix_charge",
		cfg.Billing.ChargeRateLimitWindow,
		cfg.Billing.ChargeRateLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", billingcontrollers.PlansList(p.Plans, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/webhook", webhookcontrollers.ZyonPayWebhook(p.Webhooks, webhookGuard(p.WebhookGuard), p.BillingMetrics, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(cfg.JWT, logg))
				r.With(middleware.RateLimit(chargePolicy, rateStore, logg)).
					Post("/pix", billingcontrollers.CreatePixPayment(p.Payments, logg))
				r.Post("/status", billingcontrollers.CheckPaymentStatus(p.Payments, logg))
			})
		})

		r.Route("/tokens", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Get("/balance", tokencontrollers.Balance(p.Ledger, logg))
			r.Get("/transactions", tokencontrollers.Transactions(p.Ledger, logg))
		})
	})

	return r
}

// webhookGuard keeps a nil guard pointer from becoming a non-nil interface.
func webhookGuard(g *zyonpaywebhook.IdempotencyGuard) interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
} {
	if g == nil {
		return nil
	}
	return g
}
