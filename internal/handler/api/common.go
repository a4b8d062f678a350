package api

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"vpngrid/internal/models"
)

var validate = validator.New()

func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func errorResponse(c echo.Context, code int, msg string) error {
	return c.JSON(code, models.APIResponse{
		Status: false,
		Msg:    msg,
		Obj:    nil,
	})
}

func paginatedResponse(data interface{}, total int64, page, limit int) models.PaginatedResponse {
	return models.PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		limit = 50
	}
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

// bindAndValidate decodes the JSON body and runs struct validation.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return validate.Struct(req)
}

// idParam parses the :id path segment.
func idParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

// listParams extracts limit/page/q query parameters with defaults.
func listParams(c echo.Context) (limit, page int, q string) {
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}
	return limit, page, c.QueryParam("q")
}
