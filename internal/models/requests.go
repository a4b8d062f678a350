package models

// APIResponse is the standard envelope returned by every admin API
// endpoint.
type APIResponse struct {
	Status bool        `json:"status"`
	Msg    string      `json:"msg"`
	Obj    interface{} `json:"obj"`
}

// PaginatedResponse wraps list results with pagination info.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// --- Admin API request payloads ---

type ClusterCreateRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	MaxLoad     int    `json:"max_load" validate:"gte=0"`
}

type ClusterUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	IsActive    *bool   `json:"is_active"`
	MaxLoad     *int    `json:"max_load" validate:"omitempty,gte=0"`
}

type ServerCreateRequest struct {
	ClusterID   uint   `json:"cluster_id" validate:"required"`
	Name        string `json:"name" validate:"required,max=200"`
	Country     string `json:"country" validate:"max=100"`
	City        string `json:"city" validate:"max=100"`
	IPAddress   string `json:"ip_address" validate:"required,max=100"`
	APIURL      string `json:"api_url" validate:"required,url"`
	APIUsername string `json:"api_username" validate:"required"`
	APIPassword string `json:"api_password" validate:"required"`
	InboundID   int    `json:"inbound_id" validate:"omitempty,gte=1"`
	Priority    int    `json:"priority" validate:"omitempty,gte=1,lte=10"`
}

type ServerUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	City        *string `json:"city" validate:"omitempty,max=100"`
	IPAddress   *string `json:"ip_address" validate:"omitempty,max=100"`
	APIURL      *string `json:"api_url" validate:"omitempty,url"`
	APIUsername *string `json:"api_username"`
	APIPassword *string `json:"api_password"`
	InboundID   *int    `json:"inbound_id" validate:"omitempty,gte=1"`
	IsActive    *bool   `json:"is_active"`
	Priority    *int    `json:"priority" validate:"omitempty,gte=1,lte=10"`
}

type TariffCreateRequest struct {
	Name         string  `json:"name" validate:"required,max=200"`
	Description  string  `json:"description" validate:"max=2000"`
	Price        float64 `json:"price" validate:"gte=0"`
	DurationDays int     `json:"duration_days" validate:"required,gte=1"`
	TrafficLimit int64   `json:"traffic_limit" validate:"gte=0"`
	Devices      int     `json:"devices" validate:"omitempty,gte=1"`
	IsTrial      bool    `json:"is_trial"`
}

// PaymentEvent is delivered by the payment layer once a payment has been
// verified. SubscriptionID is set for renewals, zero for new purchases.
type PaymentEvent struct {
	EventID        string `json:"event_id" validate:"required"`
	UserID         int64  `json:"user_id" validate:"required"`
	TariffID       uint   `json:"tariff_id" validate:"required"`
	SubscriptionID uint   `json:"subscription_id"`
}
