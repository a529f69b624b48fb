// Package dbtest opens throwaway sqlite databases shaped like the Postgres
// schema so repository and use case tests can run without a server.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  token_count INTEGER NOT NULL DEFAULT 0,
  is_missing_onboarding INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS individual_profiles (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL UNIQUE,
  cpf TEXT NOT NULL,
  phone TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS corporate_profiles (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL UNIQUE,
  cnpj TEXT NOT NULL,
  company_name TEXT NOT NULL,
  phone TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  description TEXT,
  amount INTEGER NOT NULL,
  periodicity TEXT NOT NULL,
  token_cost INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  is_free INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  start_date DATETIME,
  end_date DATETIME,
  next_payment_date DATETIME,
  canceled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_one_active_per_account ON subscriptions (account_id) WHERE status = 'ACTIVE';`,
	`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  subscription_id TEXT NOT NULL,
  amount INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  payment_method TEXT NOT NULL DEFAULT 'PIX',
  transaction_id TEXT,
  pix_qr_code TEXT,
  pix_copy_paste TEXT,
  expires_at DATETIME,
  paid_at DATETIME,
  is_recurring INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_transaction_id ON payments (transaction_id) WHERE transaction_id IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS token_transactions (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount INTEGER NOT NULL,
  balance_before INTEGER NOT NULL,
  balance_after INTEGER NOT NULL,
  search_type TEXT,
  description TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns an isolated in-memory database with the billing schema.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:billing_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection keeps the shared in-memory database alive and
	// serializes transactions the way row locks would.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// SeedAccount inserts an account with the given balance.
func SeedAccount(t *testing.T, db *gorm.DB, tokens int) *models.Account {
	t.Helper()
	id := uuid.New()
	account := &models.Account{
		ID:         id,
		Name:       "Ana Souza",
		Email:      id.String() + "@example.com",
		TokenCount: tokens,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

// SeedPlan inserts an active plan.
func SeedPlan(t *testing.T, db *gorm.DB, name string, amountCents int64, periodicity enums.PlanPeriodicity, tokens int, free bool) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		ID:          uuid.New(),
		Name:        name,
		AmountCents: amountCents,
		Periodicity: periodicity,
		TokenCost:   tokens,
		IsActive:    true,
		IsFree:      free,
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

// SeedSubscription inserts a subscription in the given state.
func SeedSubscription(t *testing.T, db *gorm.DB, accountID, planID uuid.UUID, status enums.SubscriptionStatus, next *time.Time) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		ID:              uuid.New(),
		AccountID:       accountID,
		PlanID:          planID,
		Status:          status,
		NextPaymentDate: next,
	}
	if status == enums.SubscriptionStatusActive {
		start := time.Now().UTC().AddDate(0, -1, 0)
		end := time.Now().UTC()
		sub.StartDate = &start
		sub.EndDate = &end
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

// SeedPayment inserts a payment created at the given time.
func SeedPayment(t *testing.T, db *gorm.DB, sub *models.Subscription, amount int64, status enums.PaymentStatus, createdAt time.Time) *models.Payment {
	t.Helper()
	txID := "tx_" + uuid.NewString()
	copyPaste := "00020126pix" + uuid.NewString()
	payment := &models.Payment{
		ID:             uuid.New(),
		AccountID:      sub.AccountID,
		SubscriptionID: sub.ID,
		AmountCents:    amount,
		Status:         status,
		PaymentMethod:  enums.PaymentMethodPix,
		TransactionID:  &txID,
		PixCopyPaste:   &copyPaste,
		CreatedAt:      createdAt.UTC(),
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}

// Runner satisfies the transaction runner services expect, backed by a test
// database. Callbacks must only use the tx they receive.
type Runner struct {
	DB *gorm.DB
}

func (r Runner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn)
}
