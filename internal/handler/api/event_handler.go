package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpngrid/internal/models"
	"vpngrid/internal/provision"
	"vpngrid/internal/selector"
	"vpngrid/internal/subscription"
)

// EventHandler ingests verified payment events and turns them into
// provisioning work. Deliveries may repeat; the dedup middleware in
// front of this handler absorbs retries.
type EventHandler struct {
	orchestrator *provision.Orchestrator
	logger       *zap.Logger
}

func NewEventHandler(orchestrator *provision.Orchestrator, logger *zap.Logger) *EventHandler {
	return &EventHandler{orchestrator: orchestrator, logger: logger}
}

// PaymentEvent handles POST /api/events/payment. A zero subscription_id
// provisions a new subscription, a non-zero one renews it.
func (h *EventHandler) PaymentEvent(c echo.Context) error {
	var event models.PaymentEvent
	if err := bindAndValidate(c, &event); err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()

	if event.SubscriptionID != 0 {
		sub, err := h.orchestrator.RenewSubscription(ctx, event.SubscriptionID, event.TariffID)
		switch {
		case errors.Is(err, subscription.ErrSubscriptionNotFound):
			return errorResponse(c, http.StatusNotFound, "Subscription not found")
		case errors.Is(err, provision.ErrTariffNotFound):
			return errorResponse(c, http.StatusBadRequest, "Tariff not found")
		case err != nil:
			h.logger.Error("Payment renewal failed",
				zap.String("event_id", event.EventID),
				zap.Uint("subscription_id", event.SubscriptionID),
				zap.Error(err))
			return errorResponse(c, http.StatusInternalServerError, "Failed to renew subscription")
		}
		h.logger.Info("Payment event renewed subscription",
			zap.String("event_id", event.EventID),
			zap.Uint("subscription_id", sub.ID))
		return successResponse(c, "Subscription renewed", newSubscriptionView(*sub, time.Now()))
	}

	res, err := h.orchestrator.ProvisionNewSubscription(ctx, event.UserID, event.TariffID)
	switch {
	case errors.Is(err, provision.ErrTariffNotFound):
		return errorResponse(c, http.StatusBadRequest, "Tariff not found")
	case errors.Is(err, selector.ErrNoServerAvailable):
		return errorResponse(c, http.StatusServiceUnavailable, "No server available")
	case err != nil:
		h.logger.Error("Payment provisioning failed",
			zap.String("event_id", event.EventID),
			zap.Int64("user_id", event.UserID),
			zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to provision subscription")
	}

	h.logger.Info("Payment event provisioned subscription",
		zap.String("event_id", event.EventID),
		zap.Uint("subscription_id", res.Subscription.ID),
		zap.Uint("server_id", res.Server.ID))
	return successResponse(c, "Subscription provisioned", map[string]interface{}{
		"subscription":     newSubscriptionView(*res.Subscription, time.Now()),
		"subscription_uri": res.SubscriptionURI,
	})
}
