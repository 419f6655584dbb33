package payments

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/internal/platform/auth"
)

// Handler exposes both ledger HTTP surfaces.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	register := auth.Require(auth.CapRegisterPayments, func(c auth.Capabilities) bool { return c.RegisterPayments })
	registerLab := auth.Require(auth.CapRegisterLabPayments, func(c auth.Capabilities) bool { return c.RegisterReferredPayments })

	api.POST("/orders/:id/payments", h.RecordPayment, register)
	api.GET("/orders/:id/payments", h.ListPayments)
	api.GET("/orders/:id/payment-summary", h.PaymentSummary)

	api.POST("/orders/:id/referred-payments", h.RecordReferredPayment, registerLab)
	api.GET("/orders/:id/referred-payments", h.ListReferredPayments)
	api.GET("/orders/:id/referred-summary", h.ReferredSummary)
	api.GET("/referred-labs/:id/owed", h.OwedToLab)
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

func (h *Handler) RecordPayment(c echo.Context) error {
	orderID, err := pathID(c)
	if err != nil {
		return err
	}
	var in RecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	result, err := h.svc.RecordPayment(ctx, orderID, in, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListPayments(c echo.Context) error {
	orderID, err := pathID(c)
	if err != nil {
		return err
	}
	list, err := h.svc.ListPayments(c.Request().Context(), orderID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) PaymentSummary(c echo.Context) error {
	orderID, err := pathID(c)
	if err != nil {
		return err
	}
	summary, err := h.svc.OrderPaymentSummary(c.Request().Context(), orderID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) RecordReferredPayment(c echo.Context) error {
	orderID, err := pathID(c)
	if err != nil {
		return err
	}
	var in struct {
		RecordInput
		ReferredLabID uuid.UUID `json:"referred_lab_id"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.ReferredLabID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "referred_lab_id is required")
	}
	ctx := c.Request().Context()
	result, err := h.svc.RecordReferredLabPayment(ctx, orderID, in.ReferredLabID, in.RecordInput, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListReferredPayments(c echo.Context) error {
	orderID, err := pathID(c)
	if err != nil {
		return err
	}
	list, err := h.svc.ListReferredLabPayments(c.Request().Context(), orderID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) ReferredSummary(c echo.Context) error {
	orderID, err := pathID(c)
	if err != nil {
		return err
	}
	summary, err := h.svc.ReferredLabSummary(c.Request().Context(), orderID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) OwedToLab(c echo.Context) error {
	labID, err := pathID(c)
	if err != nil {
		return err
	}
	agg, err := h.svc.TotalOwedToLab(c.Request().Context(), labID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, agg)
}
