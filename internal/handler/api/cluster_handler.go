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

// ClusterHandler exposes cluster CRUD plus load introspection.
type ClusterHandler struct {
	registry *registry.Registry
	loads    *selector.LoadTracker
	logger   *zap.Logger
}

func NewClusterHandler(reg *registry.Registry, loads *selector.LoadTracker, logger *zap.Logger) *ClusterHandler {
	return &ClusterHandler{registry: reg, loads: loads, logger: logger}
}

// List handles GET /api/clusters.
func (h *ClusterHandler) List(c echo.Context) error {
	limit, page, q := listParams(c)

	clusters, total, err := h.registry.ListClusters(limit, page, q)
	if err != nil {
		h.logger.Error("Failed to list clusters", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve clusters")
	}
	return successResponse(c, "Successful", paginatedResponse(clusters, total, page, limit))
}

// Get handles GET /api/clusters/:id. The payload includes the cluster's
// servers and its current aggregate load.
func (h *ClusterHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	cluster, err := h.registry.GetClusterByID(id)
	if errors.Is(err, registry.ErrClusterNotFound) {
		return errorResponse(c, http.StatusNotFound, "Cluster not found")
	}
	if err != nil {
		h.logger.Error("Failed to get cluster", zap.Uint("cluster_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve cluster")
	}

	servers, err := h.registry.ServersByCluster(id)
	if err != nil {
		h.logger.Error("Failed to list cluster servers", zap.Uint("cluster_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve cluster")
	}
	load, err := h.loads.ClusterLoad(id)
	if err != nil {
		load = 0
	}

	return successResponse(c, "Successful", map[string]interface{}{
		"cluster":     cluster,
		"servers":     servers,
		"active_subs": load,
	})
}

// Create handles POST /api/clusters.
func (h *ClusterHandler) Create(c echo.Context) error {
	var req models.ClusterCreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	cluster, err := h.registry.CreateCluster(req.Name, req.Description, req.MaxLoad)
	if err != nil {
		h.logger.Error("Failed to create cluster", zap.String("name", req.Name), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to create cluster")
	}
	return successResponse(c, "Cluster created", cluster)
}

// Update handles PUT /api/clusters/:id.
func (h *ClusterHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	var req models.ClusterUpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.MaxLoad != nil {
		updates["max_load"] = *req.MaxLoad
	}
	if len(updates) == 0 {
		return errorResponse(c, http.StatusBadRequest, "nothing to update")
	}

	if err := h.registry.UpdateCluster(id, updates); err != nil {
		if errors.Is(err, registry.ErrClusterNotFound) {
			return errorResponse(c, http.StatusNotFound, "Cluster not found")
		}
		h.logger.Error("Failed to update cluster", zap.Uint("cluster_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to update cluster")
	}
	return successResponse(c, "Cluster updated", nil)
}

// Delete handles DELETE /api/clusters/:id. A cluster that still has
// servers cannot be removed.
func (h *ClusterHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid id")
	}

	err = h.registry.DeleteCluster(id)
	switch {
	case errors.Is(err, registry.ErrClusterNotFound):
		return errorResponse(c, http.StatusNotFound, "Cluster not found")
	case errors.Is(err, registry.ErrClusterHasServers):
		return errorResponse(c, http.StatusConflict, "Cluster still has servers")
	case err != nil:
		h.logger.Error("Failed to delete cluster", zap.Uint("cluster_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to delete cluster")
	}
	return successResponse(c, "Cluster deleted", nil)
}
