package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpngrid/internal/models"
)

type memClusters struct {
	rows        map[uint]*models.Cluster
	nextID      uint
	serverCount map[uint]int64
}

func newMemClusters() *memClusters {
	return &memClusters{rows: make(map[uint]*models.Cluster), nextID: 1, serverCount: make(map[uint]int64)}
}

func (s *memClusters) FindByID(id uint) (*models.Cluster, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *memClusters) FindActive() ([]models.Cluster, error) {
	var out []models.Cluster
	for _, row := range s.rows {
		if row.IsActive {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memClusters) FindAll(int, int, string) ([]models.Cluster, int64, error) {
	var out []models.Cluster
	for _, row := range s.rows {
		out = append(out, *row)
	}
	return out, int64(len(out)), nil
}

func (s *memClusters) Create(cluster *models.Cluster) error {
	cluster.ID = s.nextID
	s.nextID++
	cp := *cluster
	s.rows[cluster.ID] = &cp
	return nil
}

func (s *memClusters) Update(id uint, updates map[string]interface{}) error {
	row, ok := s.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["is_active"]; ok {
		row.IsActive = v.(bool)
	}
	if v, ok := updates["max_load"]; ok {
		row.MaxLoad = v.(int)
	}
	return nil
}

func (s *memClusters) Delete(id uint) error {
	delete(s.rows, id)
	return nil
}

func (s *memClusters) CountServers(clusterID uint) (int64, error) {
	return s.serverCount[clusterID], nil
}

type memServers struct {
	rows   map[uint]*models.Server
	nextID uint
}

func newMemServers() *memServers {
	return &memServers{rows: make(map[uint]*models.Server), nextID: 1}
}

func (s *memServers) FindByID(id uint) (*models.Server, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *memServers) FindActive() ([]models.Server, error) {
	var out []models.Server
	for _, row := range s.rows {
		if row.IsActive {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memServers) FindByCluster(clusterID uint) ([]models.Server, error) {
	var out []models.Server
	for _, row := range s.rows {
		if row.ClusterID == clusterID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memServers) FindAll(int, int, string) ([]models.Server, int64, error) {
	var out []models.Server
	for _, row := range s.rows {
		out = append(out, *row)
	}
	return out, int64(len(out)), nil
}

func (s *memServers) Create(server *models.Server) error {
	server.ID = s.nextID
	s.nextID++
	cp := *server
	s.rows[server.ID] = &cp
	return nil
}

func (s *memServers) Update(id uint, updates map[string]interface{}) error {
	row, ok := s.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["is_active"]; ok {
		row.IsActive = v.(bool)
	}
	return nil
}

func (s *memServers) Delete(id uint) error {
	delete(s.rows, id)
	return nil
}

type memCounter struct {
	byServer map[uint]int64
}

func (c *memCounter) CountEffectiveActiveByServer(serverID uint, _ time.Time) (int64, error) {
	return c.byServer[serverID], nil
}

func newTestRegistry() (*Registry, *memClusters, *memServers, *memCounter) {
	clusters := newMemClusters()
	servers := newMemServers()
	counter := &memCounter{byServer: make(map[uint]int64)}
	return New(clusters, servers, counter, zap.NewNop()), clusters, servers, counter
}

func TestGetClusterByIDMissing(t *testing.T) {
	reg, _, _, _ := newTestRegistry()
	_, err := reg.GetClusterByID(5)
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestDeleteClusterBlockedWhileOwningServers(t *testing.T) {
	reg, clusters, _, _ := newTestRegistry()

	cluster, err := reg.CreateCluster("eu-west", "", 500)
	require.NoError(t, err)

	clusters.serverCount[cluster.ID] = 2
	assert.ErrorIs(t, reg.DeleteCluster(cluster.ID), ErrClusterHasServers)

	clusters.serverCount[cluster.ID] = 0
	require.NoError(t, reg.DeleteCluster(cluster.ID))
	_, err = reg.GetClusterByID(cluster.ID)
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestDeactivateClusterKeepsRow(t *testing.T) {
	reg, _, _, _ := newTestRegistry()
	cluster, err := reg.CreateCluster("eu-west", "", 500)
	require.NoError(t, err)

	require.NoError(t, reg.DeactivateCluster(cluster.ID))
	got, err := reg.GetClusterByID(cluster.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestCreateServerRequiresCluster(t *testing.T) {
	reg, _, _, _ := newTestRegistry()
	err := reg.CreateServer(&models.Server{ClusterID: 77, Name: "orphan"})
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestCreateServerAppliesDefaults(t *testing.T) {
	reg, _, _, _ := newTestRegistry()
	cluster, err := reg.CreateCluster("eu-west", "", 500)
	require.NoError(t, err)

	srv := &models.Server{ClusterID: cluster.ID, Name: "fra-1"}
	require.NoError(t, reg.CreateServer(srv))
	assert.Equal(t, 1, srv.Priority)
	assert.Equal(t, 1, srv.InboundID)
	assert.True(t, srv.IsActive)
}

func TestDeleteServerBlockedByActiveSubscriptions(t *testing.T) {
	reg, _, _, counter := newTestRegistry()
	cluster, err := reg.CreateCluster("eu-west", "", 500)
	require.NoError(t, err)
	srv := &models.Server{ClusterID: cluster.ID, Name: "fra-1"}
	require.NoError(t, reg.CreateServer(srv))

	counter.byServer[srv.ID] = 3
	assert.ErrorIs(t, reg.DeleteServer(srv.ID), ErrHasActiveSubscriptions)

	counter.byServer[srv.ID] = 0
	require.NoError(t, reg.DeleteServer(srv.ID))
	_, err = reg.GetServerByID(srv.ID)
	assert.ErrorIs(t, err, ErrServerNotFound)
}
