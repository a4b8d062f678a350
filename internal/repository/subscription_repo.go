package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vpngrid/internal/models"
)

// effectiveActive is the SQL counterpart of Subscription.EffectivelyActive:
// flag set, inside the date window, finite traffic not exhausted.
const effectiveActive = "is_active = ? AND start_date <= ? AND end_date >= ? AND (traffic_limit = 0 OR traffic_used < traffic_limit)"

// SubscriptionRepository handles subscription database operations.
type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// FindByID returns a subscription by ID.
func (r *SubscriptionRepository) FindByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create persists a new subscription.
func (r *SubscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// Update updates subscription fields.
func (r *SubscriptionRepository) Update(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).Updates(updates).Error
}

// Delete hard-deletes a subscription. Used for cleanup only; normal
// lifecycle goes through deactivation.
func (r *SubscriptionRepository) Delete(id uint) error {
	return r.db.Where("id = ?", id).Delete(&models.Subscription{}).Error
}

// FindByUser returns all subscriptions of a user, newest first.
func (r *SubscriptionRepository) FindByUser(userID int64) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

// FindEffectiveActiveByUser returns the effectively active subscriptions
// of a user, soonest expiry first.
func (r *SubscriptionRepository) FindEffectiveActiveByUser(userID int64, now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).
		Where(effectiveActive, true, now, now).
		Order("end_date").Find(&subs).Error
	return subs, err
}

// FindEffectiveActiveByServer returns the effectively active
// subscriptions bound to a server.
func (r *SubscriptionRepository) FindEffectiveActiveByServer(serverID uint, now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("server_id = ?", serverID).
		Where(effectiveActive, true, now, now).
		Order("end_date").Find(&subs).Error
	return subs, err
}

// CountEffectiveActiveByServer counts effectively active subscriptions on
// one server.
func (r *SubscriptionRepository) CountEffectiveActiveByServer(serverID uint, now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).
		Where("server_id = ?", serverID).
		Where(effectiveActive, true, now, now).
		Count(&count).Error
	return count, err
}

// FindExpiringWithin returns effectively active subscriptions whose end
// date falls inside (now, now+days].
func (r *SubscriptionRepository) FindExpiringWithin(days int, now time.Time) ([]models.Subscription, error) {
	deadline := now.Add(time.Duration(days) * 24 * time.Hour)
	var subs []models.Subscription
	err := r.db.Where(effectiveActive, true, now, now).
		Where("end_date <= ?", deadline).
		Order("end_date").Find(&subs).Error
	return subs, err
}

// FindFlaggedActiveButLapsed returns subscriptions still flagged active
// whose window closed or traffic ran out. The cron sweep clears their
// flags so raw-flag consumers converge with the effective status.
func (r *SubscriptionRepository) FindFlaggedActiveButLapsed(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("is_active = ?", true).
		Where("end_date < ? OR (traffic_limit > 0 AND traffic_used >= traffic_limit)", now).
		Find(&subs).Error
	return subs, err
}

// FindBoundActive returns effectively active subscriptions that carry a
// panel account binding, for traffic polling.
func (r *SubscriptionRepository) FindBoundActive(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where(effectiveActive, true, now, now).
		Where("server_id IS NOT NULL AND vpn_uuid <> ''").
		Find(&subs).Error
	return subs, err
}

// AddTrafficUsed atomically increments traffic_used under a row lock and
// clears the active flag when a finite limit is reached. Returns the
// updated row.
func (r *SubscriptionRepository) AddTrafficUsed(id uint, delta int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&sub).Error; err != nil {
			return err
		}
		sub.TrafficUsed += delta
		updates := map[string]interface{}{"traffic_used": sub.TrafficUsed}
		if sub.TrafficLimit > 0 && sub.TrafficUsed >= sub.TrafficLimit {
			sub.IsActive = false
			updates["is_active"] = false
		}
		return tx.Model(&models.Subscription{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
