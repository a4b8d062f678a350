package models

import "time"

// Cluster is a named, capacity-bounded group of VPN servers.
// MaxLoad is the active-subscription capacity of each server in the
// cluster, the denominator for load percentages; 0 means the cluster
// accepts no placements.
type Cluster struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"column:name;size:200;uniqueIndex" json:"name"`
	Description string    `gorm:"column:description;size:2000" json:"description"`
	IsActive    bool      `gorm:"column:is_active;default:true" json:"is_active"`
	MaxLoad     int       `gorm:"column:max_load;default:1000" json:"max_load"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Cluster) TableName() string {
	return "vpn_clusters"
}
