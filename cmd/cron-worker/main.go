package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sherlocker/sherlocker-backend/internal/accounts"
	"github.com/sherlocker/sherlocker-backend/internal/billing"
	"github.com/sherlocker/sherlocker-backend/internal/cron"
	"github.com/sherlocker/sherlocker-backend/internal/gateway/zyonpay"
	"github.com/sherlocker/sherlocker-backend/internal/ledger"
	"github.com/sherlocker/sherlocker-backend/internal/mailer"
	"github.com/sherlocker/sherlocker-backend/internal/payments"
	"github.com/sherlocker/sherlocker-backend/internal/plans"
	"github.com/sherlocker/sherlocker-backend/internal/subscriptions"
	"github.com/sherlocker/sherlocker-backend/pkg/config"
	"github.com/sherlocker/sherlocker-backend/pkg/db"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
	"github.com/sherlocker/sherlocker-backend/pkg/metrics"
	"github.com/sherlocker/sherlocker-backend/pkg/migrate"
	"github.com/sherlocker/sherlocker-backend/pkg/outbox"
	"github.com/sherlocker/sherlocker-backend/pkg/redis"
)

const (
	scheduleBillingDaily  = "billing-daily"
	scheduleBillingExpiry = "billing-expiry"
	lockNameFormat        = "cron-worker:%s:%s"
)

func main() {
	runNow := flag.String("run-now", "", "run the named schedule once and exit ("+scheduleBillingDaily+", "+scheduleBillingExpiry+")")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address when set")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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
	if err := dbClient.RegisterPoolMetrics(prometheus.DefaultRegisterer); err != nil {
		logg.Warn(context.Background(), "database pool metrics unavailable: "+err.Error())
	}

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

	billingService, err := newBillingService(cfg, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	schedules, err := buildSchedules(cfg, dbClient, redisClient, billingService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron schedules", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:    logg,
		Schedules: schedules,
		Metrics:   metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "serviceKind", cfg.Service.Kind)

	if *runNow != "" {
		logg.Info(logg.WithField(ctx, "schedule", *runNow), "running schedule once")
		if err := service.RunNow(ctx, *runNow); err != nil {
			logg.Error(ctx, "manual schedule run failed", err)
			os.Exit(1)
		}
		return
	}

	if *metricsAddr != "" {
		go metrics.Serve(ctx, *metricsAddr, prometheus.DefaultGatherer, logg)
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func newBillingService(cfg *config.Config, dbClient *db.Client, logg *logger.Logger) (billing.Service, error) {
	accountRepo := accounts.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:              ledger.NewRepository(dbClient.DB()),
		Accounts:          accountRepo,
		TransactionRunner: dbClient,
		Logger:            logg,
		PerPage:           cfg.Billing.TokenTransactionsPerPage,
		CostPerSearch:     cfg.Billing.TokenCostPerSearch,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	gateway, err := zyonpay.NewClientFromConfig(cfg.ZyonPay)
	if err != nil {
		return nil, fmt.Errorf("zyonpay client: %w", err)
	}
	mail, err := mailer.NewFromConfig(cfg.Resend, logg)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	return billing.NewService(billing.ServiceParams{
		TransactionRunner: dbClient,
		Accounts:          accountRepo,
		Plans:             plans.NewRepository(dbClient.DB()),
		Subscriptions:     subscriptions.NewRepository(dbClient.DB()),
		Payments:          payments.NewRepository(dbClient.DB()),
		Ledger:            ledgerService,
		Gateway:           gateway,
		Mailer:            mail,
		Outbox:            outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:           metrics.NewBillingMetrics(prometheus.DefaultRegisterer),
		Logger:            logg,
		Config:            cfg.Billing,
		JWT:               cfg.JWT,
		CallbackURL:       cfg.ZyonPay.WebhookURL,
	})
}

func buildSchedules(cfg *config.Config, dbClient *db.Client, redisClient *redis.Client, svc billing.Service, logg *logger.Logger) ([]cron.Schedule, error) {
	checkExpired, err := cron.NewCheckExpiredPaymentsJob(svc, logg)
	if err != nil {
		return nil, err
	}
	recurring, err := cron.NewRecurringChargesJob(svc, logg)
	if err != nil {
		return nil, err
	}
	expired, err := cron.NewExpiredPaymentsJob(svc, logg)
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outbox.NewRepository(dbClient.DB()),
		DLQ:         outbox.NewDLQRepository(dbClient.DB()),
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	dailyLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env, scheduleBillingDaily)), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}
	expiryLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env, scheduleBillingExpiry)), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}

	return []cron.Schedule{
		{
			Name:   scheduleBillingDaily,
			Offset: cfg.Cron.DailyChargeOffset,
			Lock:   dailyLock,
			Jobs:   []cron.Job{checkExpired, recurring},
		},
		{
			Name:   scheduleBillingExpiry,
			Offset: cfg.Cron.ExpirySweepOffset,
			Lock:   expiryLock,
			Jobs:   []cron.Job{expired, retention},
		},
	}, nil
}

func lockName(env, schedule string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env, schedule)
}
