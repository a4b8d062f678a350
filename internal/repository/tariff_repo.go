package repository

import (
	"gorm.io/gorm"

	"vpngrid/internal/models"
)

// TariffRepository handles tariff database operations.
type TariffRepository struct {
	db *gorm.DB
}

func NewTariffRepository(db *gorm.DB) *TariffRepository {
	return &TariffRepository{db: db}
}

// FindByID returns a tariff by ID.
func (r *TariffRepository) FindByID(id uint) (*models.Tariff, error) {
	var tariff models.Tariff
	if err := r.db.Where("id = ?", id).First(&tariff).Error; err != nil {
		return nil, err
	}
	return &tariff, nil
}

// FindAll returns tariffs, optionally restricted to active ones and
// optionally excluding trials.
func (r *TariffRepository) FindAll(onlyActive, includeTrial bool) ([]models.Tariff, error) {
	db := r.db.Model(&models.Tariff{})
	if onlyActive {
		db = db.Where("is_active = ?", true)
	}
	if !includeTrial {
		db = db.Where("is_trial = ?", false)
	}
	var tariffs []models.Tariff
	err := db.Order("price").Find(&tariffs).Error
	return tariffs, err
}

// FindTrial returns the active trial tariff, if one exists.
func (r *TariffRepository) FindTrial() (*models.Tariff, error) {
	var tariff models.Tariff
	if err := r.db.Where("is_trial = ? AND is_active = ?", true, true).First(&tariff).Error; err != nil {
		return nil, err
	}
	return &tariff, nil
}

// Create creates a new tariff.
func (r *TariffRepository) Create(tariff *models.Tariff) error {
	return r.db.Create(tariff).Error
}

// Update updates tariff fields.
func (r *TariffRepository) Update(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Tariff{}).Where("id = ?", id).Updates(updates).Error
}

// Delete deletes a tariff.
func (r *TariffRepository) Delete(id uint) error {
	return r.db.Where("id = ?", id).Delete(&models.Tariff{}).Error
}
