package database

import (
	"fmt"

	"backoffice/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection opens the postgres pool. Debug enables SQL logging.
func NewConnection(dsn string, debug bool) (*gorm.DB, error) {
	level := logger.Silent
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(level), TranslateError: true})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Models lists every persisted type in dependency order.
func Models() []interface{} {
	return []interface{}{
		&model.Permission{},
		&model.Role{},
		&model.User{},
		&model.RefreshToken{},
		&model.Client{},
		&model.ClientNote{},
		&model.Invoice{},
		&model.InvoiceItem{},
		&model.Payment{},
		&model.AuditLog{},
		&model.Notification{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
