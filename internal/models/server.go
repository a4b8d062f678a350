package models

import "time"

// Server is one VPN endpoint and the credentials of its management panel.
// Panel credentials are secret: they are excluded from JSON payloads and
// must never appear in logs.
type Server struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ClusterID   uint      `gorm:"column:cluster_id;index" json:"cluster_id"`
	Name        string    `gorm:"column:name;size:200;uniqueIndex" json:"name"`
	Country     string    `gorm:"column:country;size:100" json:"country"`
	City        string    `gorm:"column:city;size:100" json:"city"`
	IPAddress   string    `gorm:"column:ip_address;size:100" json:"ip_address"`
	APIURL      string    `gorm:"column:api_url;size:500" json:"-"`
	APIUsername string    `gorm:"column:api_username;size:200" json:"-"`
	APIPassword string    `gorm:"column:api_password;size:200" json:"-"`
	InboundID   int       `gorm:"column:inbound_id;default:1" json:"inbound_id"`
	IsActive    bool      `gorm:"column:is_active;default:true" json:"is_active"`
	Priority    int       `gorm:"column:priority;default:1" json:"priority"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Server) TableName() string {
	return "vpn_servers"
}
