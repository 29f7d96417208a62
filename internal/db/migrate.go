package db

import (
	"fmt"

	"github.com/zulandar/mailslot/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model backing the relational mirror.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Balance{},
		&models.HistoryEntry{},
		&models.Publication{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
