package migration

import (
	"strings"

	"github.com/formgate/formgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		// golang-migrate runs against the postgres driver; other dialects are
		// for tests and local tooling and manage schema themselves.
		if strings.ToLower(cfg.DBType) != "postgres" {
			log.Named("migration").Info("skipping migrations for non-postgres database",
				zap.String("db_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
