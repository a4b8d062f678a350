package models

import "time"

// Tariff is the immutable reference data a subscription is created from.
// TrafficLimit is in bytes, 0 = unlimited.
type Tariff struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"column:name;size:200" json:"name"`
	Description  string    `gorm:"column:description;size:2000" json:"description"`
	Price        float64   `gorm:"column:price" json:"price"`
	DurationDays int       `gorm:"column:duration_days" json:"duration_days"`
	TrafficLimit int64     `gorm:"column:traffic_limit;default:0" json:"traffic_limit"`
	Devices      int       `gorm:"column:devices;default:1" json:"devices"`
	IsActive     bool      `gorm:"column:is_active;default:true" json:"is_active"`
	IsTrial      bool      `gorm:"column:is_trial;default:false" json:"is_trial"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Tariff) TableName() string {
	return "tariffs"
}
