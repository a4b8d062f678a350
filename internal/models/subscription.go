package models

import "time"

// SubscriptionStatus is the derived state of a subscription. It is never
// stored; EffectiveStatus computes it from the flag, the date window and
// the traffic counters.
type SubscriptionStatus string

const (
	StatusPending   SubscriptionStatus = "pending"
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is a user's time/traffic-bounded entitlement to a VPN
// account. ServerID/ClusterID are lookup-only references into the server
// registry; VPNUUID is the account id on the remote panel. Traffic is
// accounted in bytes, limit 0 means unlimited.
type Subscription struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"column:user_id;index" json:"user_id"`
	TariffID     uint      `gorm:"column:tariff_id;index" json:"tariff_id"`
	StartDate    time.Time `gorm:"column:start_date" json:"start_date"`
	EndDate      time.Time `gorm:"column:end_date;index" json:"end_date"`
	IsActive     bool      `gorm:"column:is_active;default:true;index" json:"is_active"`
	TrafficUsed  int64     `gorm:"column:traffic_used;default:0" json:"traffic_used"`
	TrafficLimit int64     `gorm:"column:traffic_limit;default:0" json:"traffic_limit"`
	MaxDevices   int       `gorm:"column:max_devices;default:1" json:"max_devices"`
	ServerID     *uint     `gorm:"column:server_id;index" json:"server_id"`
	ClusterID    *uint     `gorm:"column:cluster_id" json:"cluster_id"`
	VPNUUID      string    `gorm:"column:vpn_uuid;size:36" json:"vpn_uuid"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// TrafficExhausted reports whether a finite traffic limit has been used up.
func (s *Subscription) TrafficExhausted() bool {
	return s.TrafficLimit > 0 && s.TrafficUsed >= s.TrafficLimit
}

// WithinWindow reports whether now falls inside [StartDate, EndDate].
func (s *Subscription) WithinWindow(now time.Time) bool {
	return !now.Before(s.StartDate) && !now.After(s.EndDate)
}

// EffectiveStatus derives the subscription state at the given instant.
// A subscription whose flag was cleared while its window and traffic are
// still valid was cancelled explicitly; once the window closes or the
// traffic runs out it reads as expired.
func (s *Subscription) EffectiveStatus(now time.Time) SubscriptionStatus {
	if now.Before(s.StartDate) {
		return StatusPending
	}
	if now.After(s.EndDate) || s.TrafficExhausted() {
		return StatusExpired
	}
	if !s.IsActive {
		return StatusCancelled
	}
	return StatusActive
}

// EffectivelyActive reports whether the subscription currently grants
// service: flag set, inside the date window, traffic not exhausted.
func (s *Subscription) EffectivelyActive(now time.Time) bool {
	return s.IsActive && s.WithinWindow(now) && !s.TrafficExhausted()
}

// DaysLeft returns the floor of the remaining duration in whole days,
// never negative.
func (s *Subscription) DaysLeft(now time.Time) int {
	if now.After(s.EndDate) {
		return 0
	}
	return int(s.EndDate.Sub(now).Hours() / 24)
}

// TrafficLeft returns remaining bytes, or 0 for unlimited subscriptions.
func (s *Subscription) TrafficLeft() int64 {
	if s.TrafficLimit == 0 {
		return 0
	}
	left := s.TrafficLimit - s.TrafficUsed
	if left < 0 {
		return 0
	}
	return left
}
