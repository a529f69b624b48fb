package migrate

import (
	"context"
	"io"
	"testing"
	"testing/fstest"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/pkg/logger"
)

var sqliteMigrations = fstest.MapFS{
	"20260301090000_create_plans.sql": {Data: []byte(`-- +goose Up
CREATE TABLE plans (id INTEGER PRIMARY KEY, name TEXT NOT NULL);

-- +goose Down
DROP TABLE plans;
`)},
	"20260301090100_seed_plans.sql": {Data: []byte(`-- +goose Up
INSERT INTO plans (id, name) VALUES (1, 'FREE');

-- +goose Down
DELETE FROM plans WHERE id = 1;
`)},
}

func newSQLiteRunner(t *testing.T) (*Runner, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	runner, err := newRunner(goose.DialectSQLite3, sqlDB, sqliteMigrations, logg)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return runner, conn
}

func countPlans(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := conn.Raw("SELECT COUNT(*) FROM plans").Scan(&n).Error; err != nil {
		t.Fatalf("count plans: %v", err)
	}
	return n
}

func TestRunnerUpDownAndTo(t *testing.T) {
	runner, conn := newSQLiteRunner(t)
	ctx := context.Background()

	if err := runner.Up(ctx); err != nil {
		t.Fatalf("up: %v", err)
	}
	if got := countPlans(t, conn); got != 1 {
		t.Fatalf("expected seeded plan, got %d", got)
	}

	statuses, err := runner.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, st := range statuses {
		if st.State != goose.StateApplied {
			t.Fatalf("expected %d applied, got %s", st.Source.Version, st.State)
		}
	}

	if err := runner.Down(ctx); err != nil {
		t.Fatalf("down: %v", err)
	}
	if got := countPlans(t, conn); got != 0 {
		t.Fatalf("expected seed rolled back, got %d", got)
	}

	if err := runner.To(ctx, "20260301090100"); err != nil {
		t.Fatalf("migrate to latest: %v", err)
	}
	if got := countPlans(t, conn); got != 1 {
		t.Fatalf("expected seed reapplied, got %d", got)
	}
	if err := runner.To(ctx, "not-a-version"); err == nil {
		t.Fatalf("expected error for malformed version")
	}
}

func TestNewRunnerRequiresInputs(t *testing.T) {
	if _, err := NewRunner(nil, Migrations(), nil); err == nil {
		t.Fatalf("expected error without a database")
	}
}
