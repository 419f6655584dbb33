package catalog

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/labsys/lis/pkg/pagination"
)

// Handler exposes the read-only catalog surface used by the admission desk UI.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/tests", h.ListTests)
	api.GET("/profiles", h.ListProfiles)
}

func (h *Handler) ListTests(c echo.Context) error {
	p := pagination.FromContext(c)
	tests, total, err := h.repo.ListTests(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list tests")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(tests, total, p.Limit, p.Offset))
}

func (h *Handler) ListProfiles(c echo.Context) error {
	p := pagination.FromContext(c)
	profiles, total, err := h.repo.ListProfiles(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list profiles")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(profiles, total, p.Limit, p.Offset))
}
