package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequestTimeout_CompletesWithinDeadline(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestTimeout(time.Second)(func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequestTimeout_ReturnsTimeoutOnExpiry(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestTimeout(20 * time.Millisecond)(func(c echo.Context) error {
		select {
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		case <-time.After(time.Second):
			return c.JSON(http.StatusOK, nil)
		}
	})

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "time limit") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestRequestTimeout_ContextHasDeadline(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var deadline time.Time
	var ok bool
	h := RequestTimeout(5 * time.Second)(func(c echo.Context) error {
		deadline, ok = c.Request().Context().Deadline()
		return nil
	})

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !ok {
		t.Fatal("request context should carry a deadline")
	}
	if until := time.Until(deadline); until > 5*time.Second {
		t.Fatalf("deadline too far in the future: %v", until)
	}
}

func TestRequestTimeout_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/orders/123", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	wantErr := echo.NewHTTPError(http.StatusNotFound, "not found")
	h := RequestTimeout(time.Second)(func(c echo.Context) error {
		return wantErr
	})

	if err := h(c); err != wantErr {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}
