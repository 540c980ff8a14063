package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sifan077/quotalink/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultConnMaxLifetime = 5 * time.Minute

// NewGorm returns a gorm.DB backing the mapping store. Unique violations are
// left untranslated so the repository can tell the two indexes apart.
func NewGorm(cfg config.PostgresConfig) (*gorm.DB, error) {
	settings, err := parsePoolSettings(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(ConnString(cfg)), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: retrieve sql db: %w", err)
	}

	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)
	if settings.maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(settings.maxLifetime)
	}
	if settings.maxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(settings.maxIdleTime)
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(int(cfg.MinConns))
	}

	return db, nil
}

// AutoMigrate uses GORM to create the mappings table and its unique indexes.
func AutoMigrate(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	if db == nil || len(models) == 0 {
		return nil
	}

	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("postgres: auto migrate: %w", err)
	}

	return nil
}
