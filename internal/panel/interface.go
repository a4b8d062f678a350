package panel

import (
	"context"
	"time"
)

// CreateAccountRequest carries the parameters for provisioning one VPN
// account. AccountID is generated by the caller; the panel client never
// invents identifiers, which keeps CreateAccount idempotent.
type CreateAccountRequest struct {
	AccountID    string
	Email        string
	ExpireAt     time.Time
	TrafficLimit int64 // bytes, 0 = unlimited
}

// ProvisionResult describes a freshly created panel account.
type ProvisionResult struct {
	AccountID       string
	Email           string
	ExpireAt        time.Time
	SubscriptionURI string
}

// AccountStats is the per-account traffic snapshot read back from a panel.
type AccountStats struct {
	AccountID string
	Email     string
	BytesUp   int64
	BytesDown int64
	Limit     int64
	ExpireAt  time.Time
	Enabled   bool
}

// Client abstracts one remote VPN panel's account management API. All
// calls authenticate against the bound server, re-authenticating
// transparently once on an authorization failure before surfacing an
// error. Create is an upsert: repeating it with the same AccountID must
// not create duplicates. Remove treats a missing account as success.
type Client interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*ProvisionResult, error)
	RemoveAccount(ctx context.Context, accountID string) error
	AccountStats(ctx context.Context, accountID string) (*AccountStats, error)
	UpdateAccountExpiry(ctx context.Context, accountID string, expireAt time.Time) error
	SubscriptionURI(ctx context.Context, accountID string) (string, error)
}
