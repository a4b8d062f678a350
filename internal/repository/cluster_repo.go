package repository

import (
	"gorm.io/gorm"

	"vpngrid/internal/models"
)

// ClusterRepository handles cluster database operations.
type ClusterRepository struct {
	db *gorm.DB
}

func NewClusterRepository(db *gorm.DB) *ClusterRepository {
	return &ClusterRepository{db: db}
}

// FindAll returns clusters with pagination and search.
func (r *ClusterRepository) FindAll(limit, page int, query string) ([]models.Cluster, int64, error) {
	var clusters []models.Cluster
	var total int64

	db := r.db.Model(&models.Cluster{})
	if query != "" {
		search := "%" + query + "%"
		db = db.Where("name LIKE ? OR description LIKE ?", search, search)
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

	if err := db.Order("id").Limit(limit).Offset(offset).Find(&clusters).Error; err != nil {
		return nil, 0, err
	}
	return clusters, total, nil
}

// FindByID returns a cluster by ID.
func (r *ClusterRepository) FindByID(id uint) (*models.Cluster, error) {
	var cluster models.Cluster
	if err := r.db.Where("id = ?", id).First(&cluster).Error; err != nil {
		return nil, err
	}
	return &cluster, nil
}

// FindByName returns a cluster by name.
func (r *ClusterRepository) FindByName(name string) (*models.Cluster, error) {
	var cluster models.Cluster
	if err := r.db.Where("name = ?", name).First(&cluster).Error; err != nil {
		return nil, err
	}
	return &cluster, nil
}

// FindActive returns all active clusters.
func (r *ClusterRepository) FindActive() ([]models.Cluster, error) {
	var clusters []models.Cluster
	err := r.db.Where("is_active = ?", true).Find(&clusters).Error
	return clusters, err
}

// Create creates a new cluster.
func (r *ClusterRepository) Create(cluster *models.Cluster) error {
	return r.db.Create(cluster).Error
}

// Update updates cluster fields.
func (r *ClusterRepository) Update(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Cluster{}).Where("id = ?", id).Updates(updates).Error
}

// Delete deletes a cluster.
func (r *ClusterRepository) Delete(id uint) error {
	return r.db.Where("id = ?", id).Delete(&models.Cluster{}).Error
}

// CountServers counts servers belonging to a cluster.
func (r *ClusterRepository) CountServers(clusterID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Server{}).Where("cluster_id = ?", clusterID).Count(&count).Error
	return count, err
}
