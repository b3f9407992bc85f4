package db

import (
	"betwatch/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Market{},
		&models.Bet{},
		&models.MarketStatistics{},
		&models.Alert{},
	)
}
