package repository

import (
	"gorm.io/gorm"

	"vpngrid/internal/models"
)

// ServerRepository handles VPN server database operations.
type ServerRepository struct {
	db *gorm.DB
}

func NewServerRepository(db *gorm.DB) *ServerRepository {
	return &ServerRepository{db: db}
}

// FindAll returns servers with pagination and search.
func (r *ServerRepository) FindAll(limit, page int, query string) ([]models.Server, int64, error) {
	var servers []models.Server
	var total int64

	db := r.db.Model(&models.Server{})
	if query != "" {
		search := "%" + query + "%"
		db = db.Where("name LIKE ? OR country LIKE ? OR city LIKE ?", search, search, search)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	if err := db.Order("cluster_id, priority").Limit(limit).Offset(offset).Find(&servers).Error; err != nil {
		return nil, 0, err
	}
	return servers, total, nil
}

// FindByID returns a server by ID.
func (r *ServerRepository) FindByID(id uint) (*models.Server, error) {
	var server models.Server
	if err := r.db.Where("id = ?", id).First(&server).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

// FindActive returns all active servers ordered by cluster and priority.
func (r *ServerRepository) FindActive() ([]models.Server, error) {
	var servers []models.Server
	err := r.db.Where("is_active = ?", true).Order("cluster_id, priority").Find(&servers).Error
	return servers, err
}

// FindByCluster returns all servers of a cluster ordered by priority.
func (r *ServerRepository) FindByCluster(clusterID uint) ([]models.Server, error) {
	var servers []models.Server
	err := r.db.Where("cluster_id = ?", clusterID).Order("priority").Find(&servers).Error
	return servers, err
}

// FindActiveByCluster returns active servers of a cluster.
func (r *ServerRepository) FindActiveByCluster(clusterID uint) ([]models.Server, error) {
	var servers []models.Server
	err := r.db.Where("cluster_id = ? AND is_active = ?", clusterID, true).
		Order("priority").Find(&servers).Error
	return servers, err
}

// Create creates a new server.
func (r *ServerRepository) Create(server *models.Server) error {
	return r.db.Create(server).Error
}

// Update updates server fields.
func (r *ServerRepository) Update(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Server{}).Where("id = ?", id).Updates(updates).Error
}

// Delete deletes a server.
func (r *ServerRepository) Delete(id uint) error {
	return r.db.Where("id = ?", id).Delete(&models.Server{}).Error
}
