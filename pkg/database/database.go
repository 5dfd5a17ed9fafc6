package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aldoetobex/assignment-portal/pkg/models"
)

// Open connects to Postgres. The portal only owns its audit tables; the
// assignment and wallet data stay in the marketplace.
func Open(dsn string, log *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("database connected")
	return db, nil
}

// Migrate creates or updates the portal-owned tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Submission{}, &models.TopUp{}); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
