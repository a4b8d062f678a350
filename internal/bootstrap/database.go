package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"vpngrid/internal/models"
)

// MigrateAndSeed ensures required tables exist and inserts baseline rows.
func MigrateAndSeed(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	if err := seedDefaults(db); err != nil {
		return fmt.Errorf("seed defaults failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.Cluster{},
		&models.Server{},
		&models.Tariff{},
		&models.Subscription{},
	}
}

func seedDefaults(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		return ensureTrialTariff(tx)
	})
}

// ensureTrialTariff seeds one free trial tariff so trial provisioning
// works out of the box: 7 days, 2 GiB, single device.
func ensureTrialTariff(tx *gorm.DB) error {
	var count int64
	if err := tx.Model(&models.Tariff{}).Where("is_trial = ?", true).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	row := models.Tariff{
		Name:         "Trial",
		Description:  "Free trial access",
		Price:        0,
		DurationDays: 7,
		TrafficLimit: 2 << 30,
		Devices:      1,
		IsActive:     true,
		IsTrial:      true,
	}
	return tx.Create(&row).Error
}
