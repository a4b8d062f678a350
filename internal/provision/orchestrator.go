package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpngrid/internal/models"
	"vpngrid/internal/panel"
	"vpngrid/internal/subscription"
)

var (
	ErrTariffNotFound   = errors.New("tariff not found")
	ErrNoTrialTariff    = errors.New("no trial tariff configured")
	ErrTrialAlreadyUsed = errors.New("trial already used")
	ErrServerNotBound   = errors.New("subscription has no bound server")
)

// ServerPicker returns the best server to place a new account on.
type ServerPicker interface {
	SelectOptimalServer() (*models.Server, error)
}

// PanelFactory hands out a panel client for a given server.
type PanelFactory interface {
	ForServer(srv *models.Server) panel.Client
}

// TariffStore is the tariff lookup surface the orchestrator needs.
type TariffStore interface {
	FindByID(id uint) (*models.Tariff, error)
	FindTrial() (*models.Tariff, error)
}

// ServerStore resolves the server a subscription is bound to.
type ServerStore interface {
	FindByID(id uint) (*models.Server, error)
}

// Result pairs the persisted subscription with the client-facing
// connection URI returned by the panel.
type Result struct {
	Subscription    *models.Subscription
	Server          *models.Server
	SubscriptionURI string
}

// Orchestrator drives the multi-step flows that touch both a remote
// panel and the database: provision, renewal, deprovision. Each flow
// orders its steps so that a failure leaves either a consistent state
// or a compensated one.
type Orchestrator struct {
	picker  ServerPicker
	panels  PanelFactory
	engine  *subscription.Engine
	tariffs TariffStore
	servers ServerStore
	logger  *zap.Logger
	backoff time.Duration
	newID   func() string
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(picker ServerPicker, panels PanelFactory, engine *subscription.Engine,
	tariffs TariffStore, servers ServerStore, backoff time.Duration, logger *zap.Logger) *Orchestrator {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Orchestrator{
		picker:  picker,
		panels:  panels,
		engine:  engine,
		tariffs: tariffs,
		servers: servers,
		logger:  logger,
		backoff: backoff,
		newID:   uuid.NewString,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProvisionNewSubscription places a subscription for the given tariff:
// pick a server, create the panel account, then persist. If persistence
// fails the panel account is removed again so no orphan keeps serving.
func (o *Orchestrator) ProvisionNewSubscription(ctx context.Context, userID int64, tariffID uint) (*Result, error) {
	tariff, err := o.findTariff(tariffID)
	if err != nil {
		return nil, err
	}
	return o.provision(ctx, userID, tariff)
}

// ProvisionTrial provisions the configured trial tariff, at most once
// per user.
func (o *Orchestrator) ProvisionTrial(ctx context.Context, userID int64) (*Result, error) {
	trial, err := o.tariffs.FindTrial()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoTrialTariff
	}
	if err != nil {
		return nil, err
	}

	existing, err := o.engine.ByUser(userID)
	if err != nil {
		return nil, err
	}
	for _, sub := range existing {
		if sub.TariffID == trial.ID {
			return nil, ErrTrialAlreadyUsed
		}
	}
	return o.provision(ctx, userID, trial)
}

func (o *Orchestrator) provision(ctx context.Context, userID int64, tariff *models.Tariff) (*Result, error) {
	srv, err := o.picker.SelectOptimalServer()
	if err != nil {
		return nil, err
	}

	accountID := o.newID()
	expireAt := time.Now().Add(time.Duration(tariff.DurationDays) * 24 * time.Hour)
	client := o.panels.ForServer(srv)

	res, err := o.createWithRetry(ctx, client, panel.CreateAccountRequest{
		AccountID:    accountID,
		Email:        accountEmail(userID, accountID),
		ExpireAt:     expireAt,
		TrafficLimit: tariff.TrafficLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create panel account on server %d: %w", srv.ID, err)
	}

	sub, err := o.engine.Create(subscription.CreateParams{
		UserID:       userID,
		TariffID:     tariff.ID,
		Days:         tariff.DurationDays,
		TrafficLimit: tariff.TrafficLimit,
		MaxDevices:   tariff.Devices,
		ServerID:     &srv.ID,
		ClusterID:    &srv.ClusterID,
		AccountID:    accountID,
	})
	if err != nil {
		// Compensate: the account exists remotely but nothing records
		// it, so tear it down before surfacing the original failure.
		if rmErr := client.RemoveAccount(ctx, accountID); rmErr != nil {
			o.logger.Error("rollback of panel account failed, manual cleanup needed",
				zap.String("account_id", accountID),
				zap.Uint("server_id", srv.ID),
				zap.Error(rmErr))
		}
		return nil, fmt.Errorf("persist subscription: %w", err)
	}

	o.logger.Info("subscription provisioned",
		zap.Uint("subscription_id", sub.ID),
		zap.Int64("user_id", userID),
		zap.Uint("server_id", srv.ID),
		zap.String("account_id", accountID))

	return &Result{Subscription: sub, Server: srv, SubscriptionURI: res.SubscriptionURI}, nil
}

// createWithRetry retries exactly once, after a short backoff, when the
// panel looks transiently down. Rejections are surfaced immediately.
func (o *Orchestrator) createWithRetry(ctx context.Context, client panel.Client, req panel.CreateAccountRequest) (*panel.ProvisionResult, error) {
	res, err := client.CreateAccount(ctx, req)
	if !errors.Is(err, panel.ErrUnavailable) {
		return res, err
	}
	o.logger.Warn("panel unavailable, retrying account creation",
		zap.String("account_id", req.AccountID),
		zap.Duration("backoff", o.backoff))
	if err := o.sleep(ctx, o.backoff); err != nil {
		return nil, err
	}
	return client.CreateAccount(ctx, req)
}

// RenewSubscription extends the subscription by the tariff's duration
// and pushes the new expiry to the panel. The extension is committed
// first; a panel push failure is logged for reconciliation rather than
// rolled back, since the user has already paid for the time.
func (o *Orchestrator) RenewSubscription(ctx context.Context, subID uint, tariffID uint) (*models.Subscription, error) {
	tariff, err := o.findTariff(tariffID)
	if err != nil {
		return nil, err
	}

	sub, err := o.engine.Extend(subID, tariff.DurationDays)
	if err != nil {
		return nil, err
	}

	if srv, err := o.boundServer(sub); err == nil {
		client := o.panels.ForServer(srv)
		if err := client.UpdateAccountExpiry(ctx, sub.VPNUUID, sub.EndDate); err != nil {
			o.logger.Error("panel expiry update failed after renewal",
				zap.Uint("subscription_id", sub.ID),
				zap.Uint("server_id", srv.ID),
				zap.Error(err))
		}
	} else {
		o.logger.Warn("renewed subscription has no reachable server",
			zap.Uint("subscription_id", sub.ID), zap.Error(err))
	}
	return sub, nil
}

// Deprovision removes the panel account and cancels the subscription.
// A panel that no longer knows the account counts as success; any other
// removal failure is logged but never blocks the cancellation.
func (o *Orchestrator) Deprovision(ctx context.Context, subID uint) error {
	sub, err := o.engine.Get(subID)
	if err != nil {
		return err
	}

	if srv, err := o.boundServer(sub); err == nil {
		client := o.panels.ForServer(srv)
		if err := client.RemoveAccount(ctx, sub.VPNUUID); err != nil {
			o.logger.Error("panel account removal failed, cancelling anyway",
				zap.Uint("subscription_id", sub.ID),
				zap.Uint("server_id", srv.ID),
				zap.String("account_id", sub.VPNUUID),
				zap.Error(err))
		}
	} else {
		o.logger.Warn("deprovision without reachable server",
			zap.Uint("subscription_id", sub.ID), zap.Error(err))
	}
	return o.engine.Cancel(subID)
}

// ConnectionInfo fetches the client-facing subscription URI for an
// existing subscription from its bound panel.
func (o *Orchestrator) ConnectionInfo(ctx context.Context, subID uint) (*Result, error) {
	sub, err := o.engine.Get(subID)
	if err != nil {
		return nil, err
	}
	srv, err := o.boundServer(sub)
	if err != nil {
		return nil, err
	}
	uri, err := o.panels.ForServer(srv).SubscriptionURI(ctx, sub.VPNUUID)
	if err != nil {
		return nil, err
	}
	return &Result{Subscription: sub, Server: srv, SubscriptionURI: uri}, nil
}

func (o *Orchestrator) boundServer(sub *models.Subscription) (*models.Server, error) {
	if sub.ServerID == nil {
		return nil, ErrServerNotBound
	}
	srv, err := o.servers.FindByID(*sub.ServerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrServerNotBound
	}
	return srv, err
}

func (o *Orchestrator) findTariff(id uint) (*models.Tariff, error) {
	tariff, err := o.tariffs.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTariffNotFound
	}
	return tariff, err
}

func accountEmail(userID int64, accountID string) string {
	short := accountID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("u%d-%s", userID, short)
}
