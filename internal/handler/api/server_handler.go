package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpngrid/internal/models"
	"vpngrid/internal/registry"
	"vpngrid/internal/selector"
)

// ServerHandler exposes server CRUD. Panel credentials are accepted on
// write but never echoed back; the model hides them from JSON.
type ServerHandler struct {
	registry *registry.Registry
	loads    *selector.LoadTracker
	logger   *zap.Logger
}

func NewServerHandler(reg *registry.Registry, loads *selector.LoadTracker, logger *zap.Logger) *ServerHandler {
	return &ServerHandler{registry: reg, loads: loads, logger: logger}
}

// List handles GET /api/servers.
func (h *ServerHandler) List(c echo.Context) error {
	limit, page, q := listParams(c)

	servers, total, err := h.registry.ListServers(limit, page, q)
	if err != nil {
		h.logger.Error("Failed to list servers", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve servers")
	}
	return successResponse(c, "Successful", paginatedResponse(servers, total, page, limit))
}

// Get handles GET /api/servers/:id with the live subscription count.
func (h *ServerHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	srv, err := h.registry.GetServerByID(id)
	if errors.Is(err, registry.ErrServerNotFound) {
		return errorResponse(c, http.StatusNotFound, "Server not found")
	}
	if err != nil {
		h.logger.Error("Failed to get server", zap.Uint("server_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve server")
	}

	load, err := h.loads.ServerLoad(id)
	if err != nil {
		load = 0
	}
	return successResponse(c, "Successful", map[string]interface{}{
		"server":      srv,
		"active_subs": load,
	})
}

// Create handles POST /api/servers.
func (h *ServerHandler) Create(c echo.Context) error {
	var req models.ServerCreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	srv := &models.Server{
		ClusterID:   req.ClusterID,
		Name:        req.Name,
		Country:     req.Country,
		City:        req.City,
		IPAddress:   req.IPAddress,
		APIURL:      req.APIURL,
		APIUsername: req.APIUsername,
		APIPassword: req.APIPassword,
		InboundID:   req.InboundID,
		Priority:    req.Priority,
	}
	if err := h.registry.CreateServer(srv); err != nil {
		if errors.Is(err, registry.ErrClusterNotFound) {
			return errorResponse(c, http.StatusBadRequest, "Cluster not found")
		}
		h.logger.Error("Failed to create server", zap.String("name", req.Name), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to create server")
	}
	return successResponse(c, "Server created", srv)
}

// Update handles PUT /api/servers/:id.
func (h *ServerHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	var req models.ServerUpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Country != nil {
		updates["country"] = *req.Country
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.IPAddress != nil {
		updates["ip_address"] = *req.IPAddress
	}
	if req.APIURL != nil {
		updates["api_url"] = *req.APIURL
	}
	if req.APIUsername != nil {
		updates["api_username"] = *req.APIUsername
	}
	if req.APIPassword != nil {
		updates["api_password"] = *req.APIPassword
	}
	if req.InboundID != nil {
		updates["inbound_id"] = *req.InboundID
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if len(updates) == 0 {
		return errorResponse(c, http.StatusBadRequest, "nothing to update")
	}

	if err := h.registry.UpdateServer(id, updates); err != nil {
		if errors.Is(err, registry.ErrServerNotFound) {
			return errorResponse(c, http.StatusNotFound, "Server not found")
		}
		h.logger.Error("Failed to update server", zap.Uint("server_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to update server")
	}
	return successResponse(c, "Server updated", nil)
}

// Delete handles DELETE /api/servers/:id. Servers still carrying active
// subscriptions are protected.
func (h *ServerHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	err = h.registry.DeleteServer(id)
	switch {
	case errors.Is(err, registry.ErrServerNotFound):
		return errorResponse(c, http.StatusNotFound, "Server not found")
	case errors.Is(err, registry.ErrHasActiveSubscriptions):
		return errorResponse(c, http.StatusConflict, "Server still has active subscriptions")
	case err != nil:
		h.logger.Error("Failed to delete server", zap.Uint("server_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to delete server")
	}
	return successResponse(c, "Server deleted", nil)
}
