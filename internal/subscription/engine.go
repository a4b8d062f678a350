package subscription

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpngrid/internal/models"
)

// ErrSubscriptionNotFound is returned on lookup misses.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Store is the persistence surface the engine needs. The gorm repository
// implements it; tests use an in-memory fake.
type Store interface {
	FindByID(id uint) (*models.Subscription, error)
	Create(sub *models.Subscription) error
	Update(id uint, updates map[string]interface{}) error
	Delete(id uint) error
	FindByUser(userID int64) ([]models.Subscription, error)
	FindEffectiveActiveByUser(userID int64, now time.Time) ([]models.Subscription, error)
	FindEffectiveActiveByServer(serverID uint, now time.Time) ([]models.Subscription, error)
	FindExpiringWithin(days int, now time.Time) ([]models.Subscription, error)
	FindFlaggedActiveButLapsed(now time.Time) ([]models.Subscription, error)
	FindBoundActive(now time.Time) ([]models.Subscription, error)
	AddTrafficUsed(id uint, delta int64) (*models.Subscription, error)
}

// CreateParams describes a subscription to persist. The caller has
// already provisioned the panel account named by AccountID.
type CreateParams struct {
	UserID       int64
	TariffID     uint
	Days         int
	TrafficLimit int64
	MaxDevices   int
	ServerID     *uint
	ClusterID    *uint
	AccountID    string
}

// Engine owns the subscription lifecycle. Per-subscription mutations are
// serialized through a keyed mutex on top of the store's row locking, so
// concurrent traffic reports cannot lose updates.
type Engine struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
		locks:  make(map[uint]*sync.Mutex),
	}
}

func (e *Engine) lockFor(id uint) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

func (e *Engine) find(id uint) (*models.Subscription, error) {
	sub, err := e.store.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

// Create persists a new active subscription running for p.Days from now.
func (e *Engine) Create(p CreateParams) (*models.Subscription, error) {
	now := e.now()
	sub := &models.Subscription{
		UserID:       p.UserID,
		TariffID:     p.TariffID,
		StartDate:    now,
		EndDate:      now.Add(time.Duration(p.Days) * 24 * time.Hour),
		IsActive:     true,
		TrafficLimit: p.TrafficLimit,
		MaxDevices:   p.MaxDevices,
		ServerID:     p.ServerID,
		ClusterID:    p.ClusterID,
		VPNUUID:      p.AccountID,
	}
	if sub.MaxDevices <= 0 {
		sub.MaxDevices = 1
	}
	if err := e.store.Create(sub); err != nil {
		return nil, err
	}
	e.logger.Info("subscription created",
		zap.Uint("subscription_id", sub.ID),
		zap.Int64("user_id", sub.UserID),
		zap.Time("end_date", sub.EndDate))
	return sub, nil
}

// Extend pushes the end date forward by the given days and reactivates
// the subscription. An expired subscription restarts from now, a live
// one extends from its current end date: renewing early is never
// penalized, renewing late never credits the lapsed gap.
func (e *Engine) Extend(id uint, days int) (*models.Subscription, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	sub, err := e.find(id)
	if err != nil {
		return nil, err
	}

	now := e.now()
	base := sub.EndDate
	if base.Before(now) {
		base = now
	}
	newEnd := base.Add(time.Duration(days) * 24 * time.Hour)

	if err := e.store.Update(id, map[string]interface{}{
		"end_date":  newEnd,
		"is_active": true,
	}); err != nil {
		return nil, err
	}
	sub.EndDate = newEnd
	sub.IsActive = true

	e.logger.Info("subscription extended",
		zap.Uint("subscription_id", id),
		zap.Int("days", days),
		zap.Time("end_date", newEnd))
	return sub, nil
}

// Cancel clears the active flag. Removing the remote panel account is
// the orchestrator's job; the engine never reaches across to the panel.
func (e *Engine) Cancel(id uint) error {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if _, err := e.find(id); err != nil {
		return err
	}
	if err := e.store.Update(id, map[string]interface{}{"is_active": false}); err != nil {
		return err
	}
	e.logger.Info("subscription cancelled", zap.Uint("subscription_id", id))
	return nil
}

// RecordTrafficUsage adds consumed bytes to the counter. Crossing a
// finite limit deactivates the subscription in the same write. Unlimited
// subscriptions only accumulate.
func (e *Engine) RecordTrafficUsage(id uint, bytesUsed int64) (*models.Subscription, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	sub, err := e.store.AddTrafficUsed(id, bytesUsed)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !sub.IsActive {
		e.logger.Info("subscription suspended on traffic limit",
			zap.Uint("subscription_id", id),
			zap.Int64("traffic_used", sub.TrafficUsed),
			zap.Int64("traffic_limit", sub.TrafficLimit))
	}
	return sub, nil
}

// AddTraffic raises a finite traffic limit (top-up). No-op for unlimited
// subscriptions.
func (e *Engine) AddTraffic(id uint, bytes int64) error {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	sub, err := e.find(id)
	if err != nil {
		return err
	}
	if sub.TrafficLimit == 0 {
		return nil
	}
	return e.store.Update(id, map[string]interface{}{
		"traffic_limit": sub.TrafficLimit + bytes,
	})
}

// Get returns a subscription by id.
func (e *Engine) Get(id uint) (*models.Subscription, error) {
	return e.find(id)
}

// EffectiveStatus derives the current state of a subscription.
func (e *Engine) EffectiveStatus(sub *models.Subscription) models.SubscriptionStatus {
	return sub.EffectiveStatus(e.now())
}

// --- Queries. All of them filter on the effective status, not the raw
// flag, so a date- or traffic-expired row never reads as serving. ---

func (e *Engine) ByUser(userID int64) ([]models.Subscription, error) {
	return e.store.FindByUser(userID)
}

func (e *Engine) ActiveByUser(userID int64) ([]models.Subscription, error) {
	return e.store.FindEffectiveActiveByUser(userID, e.now())
}

func (e *Engine) ActiveByServer(serverID uint) ([]models.Subscription, error) {
	return e.store.FindEffectiveActiveByServer(serverID, e.now())
}

func (e *Engine) ExpiringWithin(days int) ([]models.Subscription, error) {
	return e.store.FindExpiringWithin(days, e.now())
}

func (e *Engine) BoundActive() ([]models.Subscription, error) {
	return e.store.FindBoundActive(e.now())
}

// SweepLapsed clears the active flag on rows whose window closed or
// traffic ran out while still flagged active, converging stored state
// with the effective status. Returns how many rows were flipped.
func (e *Engine) SweepLapsed() (int, error) {
	lapsed, err := e.store.FindFlaggedActiveButLapsed(e.now())
	if err != nil {
		return 0, err
	}
	flipped := 0
	for _, sub := range lapsed {
		l := e.lockFor(sub.ID)
		l.Lock()
		err := e.store.Update(sub.ID, map[string]interface{}{"is_active": false})
		l.Unlock()
		if err != nil {
			e.logger.Error("lapsed sweep update failed",
				zap.Uint("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		flipped++
	}
	return flipped, nil
}

// Purge hard-deletes an inactive subscription for cleanup.
func (e *Engine) Purge(id uint) error {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	sub, err := e.find(id)
	if err != nil {
		return err
	}
	if sub.EffectivelyActive(e.now()) {
		return errors.New("refusing to purge an active subscription")
	}
	return e.store.Delete(id)
}
