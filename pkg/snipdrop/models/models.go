package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: Item must be migrated first as ShareLink references it
func AllModels() []interface{} {
	return []interface{}{
		&Item{},
		&ShareLink{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
