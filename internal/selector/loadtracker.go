package selector

import (
	"time"

	"vpngrid/internal/models"
)

// LoadCounter counts effectively active subscriptions bound to a server.
type LoadCounter interface {
	CountEffectiveActiveByServer(serverID uint, now time.Time) (int64, error)
}

// ClusterServerLister lists the active servers of one cluster.
type ClusterServerLister interface {
	FindActiveByCluster(clusterID uint) ([]models.Server, error)
}

// LoadTracker computes current load on demand. It holds no state of its
// own: every read goes back to subscription storage, so two reads in one
// selection decision cannot drift apart by more than the interleaved
// writes. Correctness of the max_load ceiling is preferred over caching.
type LoadTracker struct {
	servers ClusterServerLister
	subs    LoadCounter
	now     func() time.Time
}

func NewLoadTracker(servers ClusterServerLister, subs LoadCounter) *LoadTracker {
	return &LoadTracker{servers: servers, subs: subs, now: time.Now}
}

// ServerLoad returns the count of effectively active subscriptions on
// one server.
func (t *LoadTracker) ServerLoad(serverID uint) (int64, error) {
	return t.subs.CountEffectiveActiveByServer(serverID, t.now())
}

// ClusterLoad sums the loads of a cluster's active servers.
func (t *LoadTracker) ClusterLoad(clusterID uint) (int64, error) {
	servers, err := t.servers.FindActiveByCluster(clusterID)
	if err != nil {
		return 0, err
	}
	now := t.now()
	var total int64
	for _, srv := range servers {
		n, err := t.subs.CountEffectiveActiveByServer(srv.ID, now)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
