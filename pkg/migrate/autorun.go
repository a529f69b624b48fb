package migrate

import (
	"context"
	"fmt"

	"github.com/sherlocker/sherlocker-backend/pkg/config"
	"github.com/sherlocker/sherlocker-backend/pkg/db"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
)

// MaybeRunDev applies the embedded schema on boot in dev when auto-migrate is
// enabled. Other environments migrate through cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, Migrations(), logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "migrations", "embedded")
	logg.Info(ctx, "applying billing schema (dev auto-migrate)")
	return runner.Up(ctx)
}
