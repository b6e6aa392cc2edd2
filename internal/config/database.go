package config

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alfredoptarigan/cv-matcher/internal/models"
)

// InitDatabase opens the configured database and migrates the service tables.
// DB_TYPE=pgsql uses Postgres, anything else is treated as a sqlite file name.
func InitDatabase(cfg *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if cfg.Database.Type == "pgsql" {
		dialector = postgres.Open(cfg.GetDatabaseDSN())
	} else {
		dialector = sqlite.Open(cfg.GetDatabaseDSN())
	}

	logLevel := logger.Silent
	if cfg.Server.Env == "development" {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	zap.S().Named("gorm").Infof("connected to %s database", cfg.Database.Type)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.CVDocument{},
		&models.MatchJob{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
