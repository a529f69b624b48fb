package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	ZyonPay      ZyonPayConfig
	Resend       ResendConfig
	Billing      BillingConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHERLOCKER_APP_ENV" required:"true"`
	Port         string `envconfig:"SHERLOCKER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHERLOCKER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SHERLOCKER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SHERLOCKER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"SHERLOCKER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"SHERLOCKER_DB_DSN"`

	LegacyHost     string `envconfig:"SHERLOCKER_DB_HOST"`
	LegacyPort     int    `envconfig:"SHERLOCKER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHERLOCKER_DB_USER"`
	LegacyPassword string `envconfig:"SHERLOCKER_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHERLOCKER_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHERLOCKER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHERLOCKER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHERLOCKER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHERLOCKER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHERLOCKER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHERLOCKER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHERLOCKER_REDIS_ADDR"`
	Password     string        `envconfig:"SHERLOCKER_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHERLOCKER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHERLOCKER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHERLOCKER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHERLOCKER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHERLOCKER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHERLOCKER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SHERLOCKER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHERLOCKER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHERLOCKER_JWT_EXPIRATION_MINUTES" required:"true"`
}

// AccessTokenTTL returns the configured access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHERLOCKER_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"SHERLOCKER_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"SHERLOCKER_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	BillingTopic string `envconfig:"SHERLOCKER_PUBSUB_BILLING_TOPIC" default:"sherlocker-billing-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHERLOCKER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHERLOCKER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHERLOCKER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type ZyonPayConfig struct {
	BaseURL    string        `envconfig:"SHERLOCKER_ZYONPAY_BASE_URL" default:"https://app.hotpayy.com/api/v1"`
	PublicKey  string        `envconfig:"SHERLOCKER_ZYONPAY_PUBLIC_KEY"`
	SecretKey  string        `envconfig:"SHERLOCKER_ZYONPAY_SECRET_KEY"`
	WebhookURL string        `envconfig:"SHERLOCKER_ZYONPAY_WEBHOOK_URL"`
	Timeout    time.Duration `envconfig:"SHERLOCKER_ZYONPAY_TIMEOUT" default:"15s"`
}

type ResendConfig struct {
	APIKey      string `envconfig:"SHERLOCKER_RESEND_API_KEY"`
	DefaultFrom string `envconfig:"SHERLOCKER_RESEND_FROM_EMAIL" default:"Sherlocker <no-reply@sherlocker.com.br>"`
}

type BillingConfig struct {
	ExpiredPaymentWindow     time.Duration `envconfig:"SHERLOCKER_BILLING_EXPIRED_PAYMENT_WINDOW" default:"120h"`
	CheckExpiredThreshold    time.Duration `envconfig:"SHERLOCKER_BILLING_CHECK_EXPIRED_THRESHOLD" default:"72h"`
	InitialDueDays           int           `envconfig:"SHERLOCKER_BILLING_INITIAL_DUE_DAYS" default:"1"`
	RecurringDueDays         int           `envconfig:"SHERLOCKER_BILLING_RECURRING_DUE_DAYS" default:"3"`
	TokenCostPerSearch       int           `envconfig:"SHERLOCKER_BILLING_TOKEN_COST_PER_SEARCH" default:"1"`
	WebhookIdempotencyTTL    time.Duration `envconfig:"SHERLOCKER_BILLING_WEBHOOK_IDEMPOTENCY_TTL" default:"24h"`
	ChargeRateLimit          int           `envconfig:"SHERLOCKER_BILLING_CHARGE_RATE_LIMIT" default:"5"`
	ChargeRateLimitWindow    time.Duration `envconfig:"SHERLOCKER_BILLING_CHARGE_RATE_LIMIT_WINDOW" default:"10m"`
	TokenTransactionsPerPage int           `envconfig:"SHERLOCKER_BILLING_TOKEN_TRANSACTIONS_PER_PAGE" default:"10"`
}

type CronConfig struct {
	DailyChargeOffset time.Duration `envconfig:"SHERLOCKER_CRON_DAILY_CHARGE_OFFSET" default:"0h"`
	ExpirySweepOffset time.Duration `envconfig:"SHERLOCKER_CRON_EXPIRY_SWEEP_OFFSET" default:"2h"`
	LockTTL           time.Duration `envconfig:"SHERLOCKER_CRON_LOCK_TTL" default:"30m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
