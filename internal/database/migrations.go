package database

import (
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrate applies any pending schema migrations from migrationsDir. The
// registry schema must be current before the administrator seed and the
// product counter are touched, so this runs ahead of bootstrap.
func (s *Service) Migrate(migrationsDir string, logger *zap.Logger) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(s.db, migrationsDir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersion(s.db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	logger.Info("Registry schema up to date", zap.Int64("schema_version", version))
	return nil
}
