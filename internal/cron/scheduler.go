package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"vpngrid/internal/config"
	"vpngrid/internal/models"
	"vpngrid/internal/panel"
	"vpngrid/internal/pkg/telegram"
	"vpngrid/internal/repository"
	"vpngrid/internal/selector"
	"vpngrid/internal/subscription"
)

// Deps bundles everything the background jobs touch.
type Deps struct {
	Engine   *subscription.Engine
	Servers  *repository.ServerRepository
	Clusters *repository.ClusterRepository
	Loads    *selector.LoadTracker
	Panels   *panel.Factory
}

// Scheduler runs the periodic maintenance jobs: lapsed-subscription
// sweep, traffic polling, expiry warnings and the daily fleet report.
type Scheduler struct {
	cron   *cron.Cron
	cfg    *config.Config
	logger *zap.Logger
	deps   *Deps
	bot    *telegram.BotAPI
}

// New creates a new cron scheduler.
func New(cfg *config.Config, deps *Deps, bot *telegram.BotAPI, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		cfg:    cfg,
		logger: logger,
		deps:   deps,
		bot:    bot,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler...")

	// Sweep lapsed subscriptions - every 5 minutes
	s.cron.AddFunc("0 */5 * * * *", func() {
		s.logger.Debug("Running: sweep lapsed subscriptions")
		s.sweepLapsed()
	})

	// Poll panel traffic counters - every 10 minutes
	s.cron.AddFunc("0 */10 * * * *", func() {
		s.logger.Debug("Running: poll traffic usage")
		s.pollTraffic()
	})

	// Warn about subscriptions expiring soon - daily at 09:00
	s.cron.AddFunc("0 0 9 * * *", func() {
		s.logger.Debug("Running: expiry warnings")
		s.expiryWarnings()
	})

	// Fleet load report - daily at 23:45
	s.cron.AddFunc("0 45 23 * * *", func() {
		s.logger.Debug("Running: daily fleet report")
		s.dailyFleetReport()
	})

	s.cron.Start()
	s.logger.Info("Cron scheduler started")
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ── Sweep lapsed subscriptions ────────────────────────────────────────

func (s *Scheduler) sweepLapsed() {
	defer s.recoverFromPanic("sweepLapsed")

	flipped, err := s.deps.Engine.SweepLapsed()
	if err != nil {
		s.logger.Error("Lapsed sweep failed", zap.Error(err))
		return
	}
	if flipped > 0 {
		s.logger.Info("Lapsed subscriptions deactivated", zap.Int("count", flipped))
	}
}

// ── Poll traffic usage from panels ────────────────────────────────────

// pollTraffic reads cumulative per-account counters from each bound
// panel and records the delta against the local counter. Panels report
// totals since account creation, so only growth is applied.
func (s *Scheduler) pollTraffic() {
	defer s.recoverFromPanic("pollTraffic")

	subs, err := s.deps.Engine.BoundActive()
	if err != nil {
		s.logger.Error("Traffic poll: listing subscriptions failed", zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	byServer := make(map[uint][]models.Subscription)
	for _, sub := range subs {
		byServer[*sub.ServerID] = append(byServer[*sub.ServerID], sub)
	}

	for serverID, group := range byServer {
		srv, err := s.deps.Servers.FindByID(serverID)
		if err != nil {
			s.logger.Warn("Traffic poll: server lookup failed",
				zap.Uint("server_id", serverID), zap.Error(err))
			continue
		}
		s.pollServerTraffic(srv, group)
	}
}

func (s *Scheduler) pollServerTraffic(srv *models.Server, subs []models.Subscription) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := s.deps.Panels.ForServer(srv)
	for _, sub := range subs {
		stats, err := client.AccountStats(ctx, sub.VPNUUID)
		if errors.Is(err, panel.ErrAccountNotFound) {
			s.logger.Warn("Traffic poll: account missing on panel",
				zap.Uint("subscription_id", sub.ID),
				zap.String("account_id", sub.VPNUUID),
				zap.Uint("server_id", srv.ID))
			continue
		}
		if err != nil {
			s.logger.Warn("Traffic poll: stats fetch failed",
				zap.Uint("subscription_id", sub.ID),
				zap.Uint("server_id", srv.ID),
				zap.Error(err))
			// Panel down, skip the whole server until next run.
			if errors.Is(err, panel.ErrUnavailable) {
				return
			}
			continue
		}

		total := stats.BytesUp + stats.BytesDown
		delta := total - sub.TrafficUsed
		if delta <= 0 {
			continue
		}
		if _, err := s.deps.Engine.RecordTrafficUsage(sub.ID, delta); err != nil {
			s.logger.Error("Traffic poll: recording usage failed",
				zap.Uint("subscription_id", sub.ID), zap.Error(err))
		}
	}
}

// ── Expiry warnings ───────────────────────────────────────────────────

func (s *Scheduler) expiryWarnings() {
	defer s.recoverFromPanic("expiryWarnings")

	days := s.cfg.Alerts.ExpiryWarnDays
	subs, err := s.deps.Engine.ExpiringWithin(days)
	if err != nil {
		s.logger.Error("Expiry warning query failed", zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ %d subscription(s) expire within %d day(s):\n", len(subs), days)
	for _, sub := range subs {
		fmt.Fprintf(&b, "• #%d user %d ends %s\n",
			sub.ID, sub.UserID, sub.EndDate.Format("2006-01-02 15:04"))
	}
	s.reportToAdmin(b.String())
}

// ── Daily fleet report ────────────────────────────────────────────────

func (s *Scheduler) dailyFleetReport() {
	defer s.recoverFromPanic("dailyFleetReport")

	clusters, err := s.deps.Clusters.FindActive()
	if err != nil {
		s.logger.Error("Fleet report: cluster query failed", zap.Error(err))
		return
	}

	var b strings.Builder
	b.WriteString("📊 Daily fleet report\n")
	for _, cluster := range clusters {
		load, err := s.deps.Loads.ClusterLoad(cluster.ID)
		if err != nil {
			s.logger.Warn("Fleet report: cluster load failed",
				zap.Uint("cluster_id", cluster.ID), zap.Error(err))
			continue
		}
		serverCount, err := s.deps.Clusters.CountServers(cluster.ID)
		if err != nil {
			serverCount = 0
		}
		capacity := int64(cluster.MaxLoad) * serverCount
		pct := float64(0)
		if capacity > 0 {
			pct = float64(load) / float64(capacity) * 100
		}
		fmt.Fprintf(&b, "• %s: %d active subs on %d server(s) (%.1f%% of capacity)\n",
			cluster.Name, load, serverCount, pct)
	}
	s.reportToAdmin(b.String())
}

// ── Helpers ───────────────────────────────────────────────────────────

func (s *Scheduler) reportToAdmin(text string) {
	if !s.bot.Enabled() || s.cfg.Telegram.AdminChatID == "" {
		s.logger.Info("Operator report (no chat configured)", zap.String("text", text))
		return
	}
	if _, err := s.bot.SendMessage(s.cfg.Telegram.AdminChatID, text); err != nil {
		s.logger.Error("Sending operator report failed", zap.Error(err))
	}
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
