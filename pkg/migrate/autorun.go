package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/alumnet-backend/pkg/config"
	"github.com/angelmondragon/alumnet-backend/pkg/db"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

// ShouldAutoRun reports whether boot-time migrations apply: always for the
// local SQLite mode, otherwise only in dev with the auto-migrate flag set.
func ShouldAutoRun(cfg *config.Config) bool {
	if cfg.FeatureFlags.UseSQLite {
		return true
	}
	return cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
}

// MaybeRunDev brings the schema up to date when ShouldAutoRun allows it.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !ShouldAutoRun(cfg) {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	dialect := Dialect(cfg.DB.Driver)
	ctx = logg.WithFields(ctx, map[string]any{"dialect": dialect, "dir": DefaultDir})
	if err := Run(ctx, sqlDB, dialect, DefaultDir, "up"); err != nil {
		return fmt.Errorf("boot migrations: %w", err)
	}
	version, err := Version(sqlDB, dialect)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "schema_version", version), "schema up to date")
	return nil
}
