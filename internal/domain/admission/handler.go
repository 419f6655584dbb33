package admission

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/internal/platform/auth"
	"github.com/labsys/lis/pkg/pagination"
)

// Handler exposes the admission request HTTP surface.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	manage := auth.Require(auth.CapManageAdmissions, func(c auth.Capabilities) bool { return c.ManageAdmissions })
	purge := auth.Require(auth.CapPurgeAdmissions, func(c auth.Capabilities) bool { return c.PurgeAdmissions })

	api.POST("/admissions", h.Create, manage)
	api.GET("/admissions", h.List)
	api.GET("/admissions/:id", h.Get)
	api.PUT("/admissions/:id", h.Update, manage)
	api.POST("/admissions/:id/cancel", h.Cancel, manage)
	api.POST("/admissions/:id/convert", h.Convert, manage)
	api.DELETE("/admissions/:id", h.Purge, purge)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	in.CanAdjustPrice = auth.CapabilitiesFromContext(ctx).AdjustAdmissionPricing
	if uid := auth.UserIDFromContext(ctx); uid != "" {
		if parsed, err := uuid.Parse(uid); err == nil {
			in.CreatedByID = &parsed
		}
	}

	result, err := h.svc.Create(ctx, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	filter := ListFilter{Status: c.QueryParam("status")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = &id
	}
	if v := c.QueryParam("branch_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid branch_id")
		}
		filter.BranchID = &id
	}

	requests, total, err := h.svc.List(c.Request().Context(), filter, c.QueryParam("day"), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(requests, total, p.Limit, p.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	detail, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	in.CanAdjustPrice = auth.CapabilitiesFromContext(ctx).AdjustAdmissionPricing

	detail, err := h.svc.Update(ctx, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	req, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Convert(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Convert(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Purge(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Purge(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
