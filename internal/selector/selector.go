package selector

import (
	"errors"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"vpngrid/internal/models"
)

// ErrNoServerAvailable means every server was filtered out: none active,
// or all of them at or above the load threshold. Terminal for the
// triggering request; not retried.
var ErrNoServerAvailable = errors.New("no server available")

// ServerSource is the registry surface the selector reads.
type ServerSource interface {
	ActiveServers() ([]models.Server, error)
	GetClusterByID(id uint) (*models.Cluster, error)
}

// Config tunes the placement policy. The defaults match the long-standing
// production behavior: exclude servers at 90%+ of their cluster ceiling,
// then pick uniformly among the best three candidates.
type Config struct {
	LoadThreshold float64
	PoolSize      int
}

func DefaultConfig() Config {
	return Config{LoadThreshold: 90, PoolSize: 3}
}

// Selector places new subscriptions. Priority wins, load percentage
// breaks ties, and a uniform pick over the top candidates spreads
// near-equal servers so a burst of signups does not herd onto one box.
type Selector struct {
	source ServerSource
	loads  *LoadTracker
	cfg    Config
	pick   func(n int) int
	logger *zap.Logger
}

func New(source ServerSource, loads *LoadTracker, cfg Config, logger *zap.Logger) *Selector {
	if cfg.LoadThreshold <= 0 {
		cfg.LoadThreshold = 90
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 3
	}
	return &Selector{
		source: source,
		loads:  loads,
		cfg:    cfg,
		pick:   rand.Intn,
		logger: logger,
	}
}

// WithPick overrides the random pick function. Tests inject a
// deterministic stub here.
func (s *Selector) WithPick(pick func(n int) int) *Selector {
	s.pick = pick
	return s
}

type candidate struct {
	server  models.Server
	load    int64
	loadPct float64
}

// SelectOptimalServer returns the server a new subscription should land
// on. Load is advisory, not a reservation: two concurrent selections may
// pick the same server, bounded by the threshold margin.
func (s *Selector) SelectOptimalServer() (*models.Server, error) {
	servers, err := s.source.ActiveServers()
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		s.logger.Warn("no active servers registered")
		return nil, ErrNoServerAvailable
	}

	clusters := make(map[uint]*models.Cluster)
	candidates := make([]candidate, 0, len(servers))

	for _, srv := range servers {
		cluster, ok := clusters[srv.ClusterID]
		if !ok {
			cluster, err = s.source.GetClusterByID(srv.ClusterID)
			if err != nil {
				// Missing or unreadable cluster disqualifies the server,
				// it does not fail the whole selection.
				clusters[srv.ClusterID] = nil
				continue
			}
			clusters[srv.ClusterID] = cluster
		}
		if cluster == nil || !cluster.IsActive {
			continue
		}

		load, err := s.loads.ServerLoad(srv.ID)
		if err != nil {
			return nil, err
		}

		loadPct := 100.0
		if cluster.MaxLoad > 0 {
			loadPct = float64(load) / float64(cluster.MaxLoad) * 100
		}
		if loadPct >= s.cfg.LoadThreshold {
			continue
		}
		candidates = append(candidates, candidate{server: srv, load: load, loadPct: loadPct})
	}

	if len(candidates) == 0 {
		s.logger.Warn("all servers overloaded or ineligible")
		return nil, ErrNoServerAvailable
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].server.Priority != candidates[j].server.Priority {
			return candidates[i].server.Priority < candidates[j].server.Priority
		}
		return candidates[i].loadPct < candidates[j].loadPct
	})

	pool := candidates
	if len(pool) > s.cfg.PoolSize {
		pool = pool[:s.cfg.PoolSize]
	}
	chosen := pool[s.pick(len(pool))]

	s.logger.Info("server selected",
		zap.Uint("server_id", chosen.server.ID),
		zap.String("name", chosen.server.Name),
		zap.Int64("load", chosen.load),
		zap.Float64("load_pct", chosen.loadPct))
	return &chosen.server, nil
}
