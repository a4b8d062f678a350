package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpngrid/internal/models"
	"vpngrid/internal/provision"
	"vpngrid/internal/selector"
	"vpngrid/internal/subscription"
)

// SubscriptionHandler exposes the subscription lifecycle: views with
// derived status, renewal, traffic top-up, cancellation and the
// client-facing connection info.
type SubscriptionHandler struct {
	engine       *subscription.Engine
	orchestrator *provision.Orchestrator
	logger       *zap.Logger
}

func NewSubscriptionHandler(engine *subscription.Engine, orchestrator *provision.Orchestrator, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{engine: engine, orchestrator: orchestrator, logger: logger}
}

// subscriptionView decorates the raw row with the derived fields every
// consumer wants.
type subscriptionView struct {
	models.Subscription
	EffectiveStatus models.SubscriptionStatus `json:"effective_status"`
	DaysLeft        int                       `json:"days_left"`
	TrafficLeft     int64                     `json:"traffic_left"`
}

func newSubscriptionView(sub models.Subscription, now time.Time) subscriptionView {
	return subscriptionView{
		Subscription:    sub,
		EffectiveStatus: sub.EffectiveStatus(now),
		DaysLeft:        sub.DaysLeft(now),
		TrafficLeft:     sub.TrafficLeft(),
	}
}

func subscriptionViews(subs []models.Subscription) []subscriptionView {
	now := time.Now()
	views := make([]subscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, newSubscriptionView(sub, now))
	}
	return views
}

// ListByUser handles GET /api/users/:user_id/subscriptions.
// ?active=1 narrows to currently serving ones.
func (h *SubscriptionHandler) ListByUser(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		return errorResponse(c, http.StatusBadRequest, "invalid user_id")
	}

	var subs []models.Subscription
	if c.QueryParam("active") == "1" {
		subs, err = h.engine.ActiveByUser(userID)
	} else {
		subs, err = h.engine.ByUser(userID)
	}
	if err != nil {
		h.logger.Error("Failed to list subscriptions", zap.Int64("user_id", userID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve subscriptions")
	}
	return successResponse(c, "Successful", subscriptionViews(subs))
}

// Get handles GET /api/subscriptions/:id.
func (h *SubscriptionHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	sub, err := h.engine.Get(id)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return errorResponse(c, http.StatusNotFound, "Subscription not found")
	}
	if err != nil {
		h.logger.Error("Failed to get subscription", zap.Uint("subscription_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve subscription")
	}
	return successResponse(c, "Successful", newSubscriptionView(*sub, time.Now()))
}

// Trial handles POST /api/users/:user_id/trial.
func (h *SubscriptionHandler) Trial(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		return errorResponse(c, http.StatusBadRequest, "invalid user_id")
	}

	res, err := h.orchestrator.ProvisionTrial(c.Request().Context(), userID)
	switch {
	case errors.Is(err, provision.ErrTrialAlreadyUsed):
		return errorResponse(c, http.StatusConflict, "Trial already used")
	case errors.Is(err, provision.ErrNoTrialTariff):
		return errorResponse(c, http.StatusNotFound, "No trial tariff configured")
	case errors.Is(err, selector.ErrNoServerAvailable):
		return errorResponse(c, http.StatusServiceUnavailable, "No server available")
	case err != nil:
		h.logger.Error("Trial provisioning failed", zap.Int64("user_id", userID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to provision trial")
	}
	return successResponse(c, "Trial provisioned", map[string]interface{}{
		"subscription":     newSubscriptionView(*res.Subscription, time.Now()),
		"subscription_uri": res.SubscriptionURI,
	})
}

// Renew handles POST /api/subscriptions/:id/renew with {"tariff_id": n}.
func (h *SubscriptionHandler) Renew(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	var req struct {
		TariffID uint `json:"tariff_id" validate:"required"`
	}
	if err := bindAndValidate(c, &req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	sub, err := h.orchestrator.RenewSubscription(c.Request().Context(), id, req.TariffID)
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		return errorResponse(c, http.StatusNotFound, "Subscription not found")
	case errors.Is(err, provision.ErrTariffNotFound):
		return errorResponse(c, http.StatusBadRequest, "Tariff not found")
	case err != nil:
		h.logger.Error("Renewal failed", zap.Uint("subscription_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to renew subscription")
	}
	return successResponse(c, "Subscription renewed", newSubscriptionView(*sub, time.Now()))
}

// AddTraffic handles POST /api/subscriptions/:id/traffic with {"bytes": n}.
func (h *SubscriptionHandler) AddTraffic(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Bytes int64 `json:"bytes" validate:"required,gt=0"`
	}
	if err := bindAndValidate(c, &req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	if err := h.engine.AddTraffic(id, req.Bytes); err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			return errorResponse(c, http.StatusNotFound, "Subscription not found")
		}
		h.logger.Error("Traffic top-up failed", zap.Uint("subscription_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to add traffic")
	}
	return successResponse(c, "Traffic added", nil)
}

// Cancel handles DELETE /api/subscriptions/:id: removes the panel
// account and deactivates the row.
func (h *SubscriptionHandler) Cancel(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	err = h.orchestrator.Deprovision(c.Request().Context(), id)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return errorResponse(c, http.StatusNotFound, "Subscription not found")
	}
	if err != nil {
		h.logger.Error("Cancellation failed", zap.Uint("subscription_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to cancel subscription")
	}
	return successResponse(c, "Subscription cancelled", nil)
}

// Connection handles GET /api/subscriptions/:id/connection.
func (h *SubscriptionHandler) Connection(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	res, err := h.orchestrator.ConnectionInfo(c.Request().Context(), id)
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		return errorResponse(c, http.StatusNotFound, "Subscription not found")
	case errors.Is(err, provision.ErrServerNotBound):
		return errorResponse(c, http.StatusConflict, "Subscription has no bound server")
	case err != nil:
		h.logger.Error("Connection info fetch failed", zap.Uint("subscription_id", id), zap.Error(err))
		return errorResponse(c, http.StatusBadGateway, "Failed to fetch connection info")
	}
	return successResponse(c, "Successful", map[string]interface{}{
		"subscription_uri": res.SubscriptionURI,
		"server": map[string]interface{}{
			"id":      res.Server.ID,
			"name":    res.Server.Name,
			"country": res.Server.Country,
			"city":    res.Server.City,
		},
	})
}
