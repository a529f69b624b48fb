package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/sherlocker/sherlocker-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.Validate(migrate.Migrations()); err != nil {
		t.Fatalf("expected valid embedded migrations: %v", err)
	}
	if err := migrate.Validate(migrate.Source("migrations")); err != nil {
		t.Fatalf("expected valid migrations dir: %v", err)
	}
}

func TestValidateRejectsBadSets(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"empty": {},
		"bad name": {
			"create_accounts.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"duplicate version": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260301090000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := migrate.Validate(fsys); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSubscriptionsMigrationGuardsSingleActive(t *testing.T) {
	content := readMigration(t, "create_subscriptions")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS subscriptions",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_one_active_per_account ON subscriptions (account_id) WHERE status = 'ACTIVE'",
		"DROP TABLE IF EXISTS subscriptions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentsMigrationUniqueTransaction(t *testing.T) {
	content := readMigration(t, "create_payments")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS payments",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_transaction_id ON payments (transaction_id)",
		"REFERENCES subscriptions(id)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPlansMigrationSeedsCatalog(t *testing.T) {
	content := readMigration(t, "create_plans")
	checks := []string{
		"ux_plans_single_active_free",
		"('FREE', 'Free tier granted to every account', 0, 'MONTHLY', 50, true, true)",
		"('STARTER', 'Starter monthly plan', 19500, 'MONTHLY', 150, true, false)",
		"('PREMIUM', 'Premium monthly plan', 42500, 'MONTHLY', 600, true, false)",
		"('BUSINESS', 'Business daily plan', 100, 'DAYS', 1500, true, false)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Refund Reason!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20260402103000_add_refund_reason.sql" {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add refund reason", now); err == nil {
		t.Fatalf("expected error when the migration already exists")
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!", now); err == nil {
		t.Fatalf("expected error for a name without usable characters")
	}
}
