package registry

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpngrid/internal/models"
)

// Lookup misses and blocked deletions. These are returned to the caller
// as-is and never retried.
var (
	ErrClusterNotFound        = errors.New("cluster not found")
	ErrServerNotFound         = errors.New("server not found")
	ErrClusterHasServers      = errors.New("cluster still owns servers")
	ErrHasActiveSubscriptions = errors.New("server has active subscriptions")
)

// ClusterStore is the persistence surface the registry needs for clusters.
type ClusterStore interface {
	FindByID(id uint) (*models.Cluster, error)
	FindActive() ([]models.Cluster, error)
	FindAll(limit, page int, query string) ([]models.Cluster, int64, error)
	Create(cluster *models.Cluster) error
	Update(id uint, updates map[string]interface{}) error
	Delete(id uint) error
	CountServers(clusterID uint) (int64, error)
}

// ServerStore is the persistence surface the registry needs for servers.
type ServerStore interface {
	FindByID(id uint) (*models.Server, error)
	FindActive() ([]models.Server, error)
	FindByCluster(clusterID uint) ([]models.Server, error)
	FindAll(limit, page int, query string) ([]models.Server, int64, error)
	Create(server *models.Server) error
	Update(id uint, updates map[string]interface{}) error
	Delete(id uint) error
}

// SubscriptionCounter counts effectively active subscriptions bound to a
// server. The registry only reads it, for the delete guard.
type SubscriptionCounter interface {
	CountEffectiveActiveByServer(serverID uint, now time.Time) (int64, error)
}

// Registry owns the cluster/server catalog. All cluster and server
// mutation goes through it; nothing else writes those tables.
type Registry struct {
	clusters ClusterStore
	servers  ServerStore
	subs     SubscriptionCounter
	logger   *zap.Logger
	now      func() time.Time
}

func New(clusters ClusterStore, servers ServerStore, subs SubscriptionCounter, logger *zap.Logger) *Registry {
	return &Registry{
		clusters: clusters,
		servers:  servers,
		subs:     subs,
		logger:   logger,
		now:      time.Now,
	}
}

// --- Clusters ---

func (r *Registry) CreateCluster(name, description string, maxLoad int) (*models.Cluster, error) {
	cluster := &models.Cluster{
		Name:        name,
		Description: description,
		IsActive:    true,
		MaxLoad:     maxLoad,
	}
	if err := r.clusters.Create(cluster); err != nil {
		return nil, err
	}
	r.logger.Info("cluster created",
		zap.Uint("cluster_id", cluster.ID),
		zap.String("name", cluster.Name),
		zap.Int("max_load", cluster.MaxLoad))
	return cluster, nil
}

func (r *Registry) GetClusterByID(id uint) (*models.Cluster, error) {
	cluster, err := r.clusters.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClusterNotFound
	}
	return cluster, err
}

func (r *Registry) ListClusters(limit, page int, query string) ([]models.Cluster, int64, error) {
	return r.clusters.FindAll(limit, page, query)
}

func (r *Registry) UpdateCluster(id uint, updates map[string]interface{}) error {
	if _, err := r.GetClusterByID(id); err != nil {
		return err
	}
	return r.clusters.Update(id, updates)
}

// DeactivateCluster takes a cluster out of rotation. Its servers keep
// their data and their subscriptions; they just stop being eligible for
// selection until the cluster is reactivated.
func (r *Registry) DeactivateCluster(id uint) error {
	if _, err := r.GetClusterByID(id); err != nil {
		return err
	}
	if err := r.clusters.Update(id, map[string]interface{}{"is_active": false}); err != nil {
		return err
	}
	r.logger.Info("cluster deactivated", zap.Uint("cluster_id", id))
	return nil
}

// DeleteCluster removes a cluster that owns no servers.
func (r *Registry) DeleteCluster(id uint) error {
	if _, err := r.GetClusterByID(id); err != nil {
		return err
	}
	count, err := r.clusters.CountServers(id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrClusterHasServers
	}
	return r.clusters.Delete(id)
}

// --- Servers ---

func (r *Registry) GetServerByID(id uint) (*models.Server, error) {
	server, err := r.servers.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrServerNotFound
	}
	return server, err
}

// ActiveServers returns all servers flagged active, regardless of their
// cluster's state; the selector applies the cluster filter.
func (r *Registry) ActiveServers() ([]models.Server, error) {
	return r.servers.FindActive()
}

func (r *Registry) ServersByCluster(clusterID uint) ([]models.Server, error) {
	return r.servers.FindByCluster(clusterID)
}

func (r *Registry) ListServers(limit, page int, query string) ([]models.Server, int64, error) {
	return r.servers.FindAll(limit, page, query)
}

// CreateServer registers a server. The owning cluster must exist.
func (r *Registry) CreateServer(server *models.Server) error {
	if _, err := r.GetClusterByID(server.ClusterID); err != nil {
		return err
	}
	if server.Priority <= 0 {
		server.Priority = 1
	}
	if server.InboundID <= 0 {
		server.InboundID = 1
	}
	server.IsActive = true
	if err := r.servers.Create(server); err != nil {
		return err
	}
	r.logger.Info("server created",
		zap.Uint("server_id", server.ID),
		zap.Uint("cluster_id", server.ClusterID),
		zap.String("name", server.Name))
	return nil
}

func (r *Registry) UpdateServer(id uint, updates map[string]interface{}) error {
	if _, err := r.GetServerByID(id); err != nil {
		return err
	}
	return r.servers.Update(id, updates)
}

// DeleteServer removes a server unless effectively active subscriptions
// still reference it.
func (r *Registry) DeleteServer(id uint) error {
	if _, err := r.GetServerByID(id); err != nil {
		return err
	}
	count, err := r.subs.CountEffectiveActiveByServer(id, r.now())
	if err != nil {
		return err
	}
	if count > 0 {
		r.logger.Warn("server delete blocked",
			zap.Uint("server_id", id),
			zap.Int64("active_subscriptions", count))
		return ErrHasActiveSubscriptions
	}
	return r.servers.Delete(id)
}
