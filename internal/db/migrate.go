package db

import (
	"stratcraft/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.Template{},
		&models.Strategy{},
		&models.BacktestResult{},
		&models.ScoreSnapshot{},
		&models.TemplateScore{},
		&models.SystemSetting{},
	)
}
