package orders

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/internal/platform/auth"
	"github.com/labsys/lis/pkg/pagination"
)

// Handler exposes the lab-order HTTP surface.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	manage := auth.Require(auth.CapManageOrders, func(c auth.Capabilities) bool { return c.ManageOrders })

	api.POST("/orders", h.Create, manage)
	api.GET("/orders", h.List)
	api.GET("/orders/:id", h.Get)
	api.POST("/orders/:id/items", h.AppendItems, manage)
	api.POST("/orders/:id/status", h.UpdateStatus, manage)
	api.POST("/orders/:id/deliver", h.Deliver, manage)
	api.POST("/orders/:id/annul", h.Annul, manage)
	api.DELETE("/orders/:id", h.Delete, manage)
	api.PUT("/orders/:id/items/:itemID/template-snapshot", h.UpdateItemSnapshot, manage)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	caps := auth.CapabilitiesFromContext(ctx)
	in.CanAdjustPrice = caps.AdjustAdmissionPricing
	if uid := auth.UserIDFromContext(ctx); uid != "" {
		if parsed, err := uuid.Parse(uid); err == nil {
			in.CreatedByID = &parsed
		}
	}

	order, err := h.svc.CreateDirect(ctx, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, order)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	filter := ListFilter{
		Status:        c.QueryParam("status"),
		PaymentStatus: c.QueryParam("payment_status"),
	}
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

	orders, total, err := h.svc.List(c.Request().Context(), filter, c.QueryParam("day"), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orders, total, p.Limit, p.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	detail, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) AppendItems(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in AppendInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	in.CanAdjustPrice = auth.CapabilitiesFromContext(ctx).AdjustAdmissionPricing

	detail, err := h.svc.AppendItems(ctx, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	order, err := h.svc.AdvanceStatus(c.Request().Context(), id, body.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) Deliver(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	order, err := h.svc.MarkDelivered(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) Annul(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	order, err := h.svc.Annul(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateItemSnapshot(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	itemID, err := pathID(c, "itemID")
	if err != nil {
		return err
	}
	var upd SnapshotUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	item, err := h.svc.UpdateItemTemplateSnapshot(c.Request().Context(), orderID, itemID, upd)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}
