package config

// EnvPrefix is passed to envconfig; every field declares its full variable name.
const EnvPrefix = "SHERLOCKER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv     = "SHERLOCKER_APP_ENV"
	EnvPort       = "SHERLOCKER_APP_PORT"
	EnvLogLevel   = "SHERLOCKER_LOG_LEVEL"
	EnvDBDSN      = "SHERLOCKER_DB_DSN"
	EnvDBHost     = "SHERLOCKER_DB_HOST"
	EnvDBPort     = "SHERLOCKER_DB_PORT"
	EnvDBUser     = "SHERLOCKER_DB_USER"
	EnvDBPass     = "SHERLOCKER_DB_PASSWORD"
	EnvDBName     = "SHERLOCKER_DB_NAME"
	EnvRedisURL   = "SHERLOCKER_REDIS_URL"
	EnvJWTSecret  = "SHERLOCKER_JWT_SECRET"
	EnvJWTIssuer  = "SHERLOCKER_JWT_ISSUER"
	EnvJWTExpMins = "SHERLOCKER_JWT_EXPIRATION_MINUTES"

	EnvZyonPayPublicKey  = "SHERLOCKER_ZYONPAY_PUBLIC_KEY"
	EnvZyonPaySecretKey  = "SHERLOCKER_ZYONPAY_SECRET_KEY"
	EnvZyonPayWebhookURL = "SHERLOCKER_ZYONPAY_WEBHOOK_URL"
	EnvResendAPIKey      = "SHERLOCKER_RESEND_API_KEY"

	EnvBillingExpiredWindow   = "SHERLOCKER_BILLING_EXPIRED_PAYMENT_WINDOW"
	EnvBillingCheckExpiredTTL = "SHERLOCKER_BILLING_CHECK_EXPIRED_THRESHOLD"
	EnvCronExpirySweepOffset  = "SHERLOCKER_CRON_EXPIRY_SWEEP_OFFSET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
