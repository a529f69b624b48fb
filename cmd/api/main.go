package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sherlocker/sherlocker-backend/api/routes"
	"github.com/sherlocker/sherlocker-backend/internal/accounts"
	"github.com/sherlocker/sherlocker-backend/internal/billing"
	"github.com/sherlocker/sherlocker-backend/internal/gateway/zyonpay"
	"github.com/sherlocker/sherlocker-backend/internal/ledger"
	"github.com/sherlocker/sherlocker-backend/internal/mailer"
	"github.com/sherlocker/sherlocker-backend/internal/payments"
	"github.com/sherlocker/sherlocker-backend/internal/plans"
	"github.com/sherlocker/sherlocker-backend/internal/subscriptions"
	zyonpaywebhook "github.com/sherlocker/sherlocker-backend/internal/webhooks/zyonpay"
	"github.com/sherlocker/sherlocker-backend/pkg/config"
	"github.com/sherlocker/sherlocker-backend/pkg/db"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
	"github.com/sherlocker/sherlocker-backend/pkg/metrics"
	"github.com/sherlocker/sherlocker-backend/pkg/migrate"
	"github.com/sherlocker/sherlocker-backend/pkg/outbox"
	"github.com/sherlocker/sherlocker-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Environment: cfg.App.Env,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()
	if err := redisClient.RegisterPoolMetrics(prometheus.DefaultRegisterer); err != nil {
		logg.Warn(context.Background(), "redis pool metrics unavailable: "+err.Error())
	}
	if err := dbClient.RegisterPoolMetrics(prometheus.DefaultRegisterer); err != nil {
		logg.Warn(context.Background(), "database pool metrics unavailable: "+err.Error())
	}

	accountRepo := accounts.NewRepository(dbClient.DB())
	planRepo := plans.NewRepository(dbClient.DB())

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:              ledger.NewRepository(dbClient.DB()),
		Accounts:          accountRepo,
		TransactionRunner: dbClient,
		Logger:            logg,
		PerPage:           cfg.Billing.TokenTransactionsPerPage,
		CostPerSearch:     cfg.Billing.TokenCostPerSearch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	planService, err := plans.NewService(planRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	gateway, err := zyonpay.NewClientFromConfig(cfg.ZyonPay)
	if err != nil {
		logg.Error(context.Background(), "failed to create zyonpay client", err)
		os.Exit(1)
	}

	mail, err := mailer.NewFromConfig(cfg.Resend, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create mailer", err)
		os.Exit(1)
	}

	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)
	billingService, err := billing.NewService(billing.ServiceParams{
		TransactionRunner: dbClient,
		Accounts:          accountRepo,
		Plans:             planRepo,
		Subscriptions:     subscriptions.NewRepository(dbClient.DB()),
		Payments:          payments.NewRepository(dbClient.DB()),
		Ledger:            ledgerService,
		Gateway:           gateway,
		Mailer:            mail,
		Outbox:            outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:           billingMetrics,
		Logger:            logg,
		Config:            cfg.Billing,
		JWT:               cfg.JWT,
		CallbackURL:       cfg.ZyonPay.WebhookURL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	webhookGuard, err := zyonpaywebhook.NewIdempotencyGuard(redisClient, cfg.Billing.WebhookIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Payments:       billingService,
			Webhooks:       billingService,
			WebhookGuard:   webhookGuard,
			Plans:          planService,
			Ledger:         ledgerService,
			BillingMetrics: billingMetrics,
			HTTPMetrics:    metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
			Gatherer:       prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
