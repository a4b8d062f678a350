package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpngrid/internal/models"
	"vpngrid/internal/repository"
)

// TariffHandler exposes the tariff catalog.
type TariffHandler struct {
	tariffs *repository.TariffRepository
	logger  *zap.Logger
}

func NewTariffHandler(tariffs *repository.TariffRepository, logger *zap.Logger) *TariffHandler {
	return &TariffHandler{tariffs: tariffs, logger: logger}
}

// List handles GET /api/tariffs. ?all=1 includes inactive entries.
func (h *TariffHandler) List(c echo.Context) error {
	onlyActive := c.QueryParam("all") != "1"
	includeTrial := c.QueryParam("trial") != "0"

	tariffs, err := h.tariffs.FindAll(onlyActive, includeTrial)
	if err != nil {
		h.logger.Error("Failed to list tariffs", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve tariffs")
	}
	return successResponse(c, "Successful", tariffs)
}

// Get handles GET /api/tariffs/:id.
func (h *TariffHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	tariff, err := h.tariffs.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorResponse(c, http.StatusNotFound, "Tariff not found")
	}
	if err != nil {
		h.logger.Error("Failed to get tariff", zap.Uint("tariff_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve tariff")
	}
	return successResponse(c, "Successful", tariff)
}

// Create handles POST /api/tariffs.
func (h *TariffHandler) Create(c echo.Context) error {
	var req models.TariffCreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	tariff := &models.Tariff{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		DurationDays: req.DurationDays,
		TrafficLimit: req.TrafficLimit,
		Devices:      req.Devices,
		IsActive:     true,
		IsTrial:      req.IsTrial,
	}
	if tariff.Devices <= 0 {
		tariff.Devices = 1
	}
	if err := h.tariffs.Create(tariff); err != nil {
		h.logger.Error("Failed to create tariff", zap.String("name", req.Name), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to create tariff")
	}
	return successResponse(c, "Tariff created", tariff)
}

// Deactivate handles DELETE /api/tariffs/:id. Tariffs are reference
// data for existing subscriptions, so they are retired, never erased.
func (h *TariffHandler) Deactivate(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	if _, err := h.tariffs.FindByID(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, "Tariff not found")
		}
		h.logger.Error("Failed to get tariff", zap.Uint("tariff_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to deactivate tariff")
	}
	if err := h.tariffs.Update(id, map[string]interface{}{"is_active": false}); err != nil {
		h.logger.Error("Failed to deactivate tariff", zap.Uint("tariff_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to deactivate tariff")
	}
	return successResponse(c, "Tariff deactivated", nil)
}
